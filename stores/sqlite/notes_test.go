package sqlite

import (
	"context"
	"errors"
	"fmt"
	"notes-server/core"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *noteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewNoteStore(dbPath)
	if err != nil {
		t.Fatalf("NewNoteStore() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() failed: %v", err)
		}
	})
	return store
}

func TestNewNoteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	store, err := NewNoteStore(dbPath)
	if err != nil {
		t.Fatalf("NewNoteStore() failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("NewNoteStore() did not create database file")
	}
}

func TestNewNoteStore_TablesCreated(t *testing.T) {
	store := setupTestDB(t)

	for _, table := range []string{"notes", "rooms"} {
		var tableName string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&tableName)
		if err != nil {
			t.Fatalf("%s table not created: %v", table, err)
		}
	}
}

func TestCreate_Success(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	note, err := store.Create(ctx, "Test")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	var title, content string
	err = store.db.QueryRow("SELECT title, content FROM notes WHERE id = ?", note.ID).Scan(&title, &content)
	if err != nil {
		t.Fatalf("Failed to query note: %v", err)
	}

	if title != "Test" || content != "" {
		t.Errorf("Row mismatch: got (%q, %q), want (%q, %q)", title, content, "Test", "")
	}
}

func TestFindByID_Success(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "Test")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	retrieved, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID() failed: %v", err)
	}

	if retrieved.ID != created.ID || retrieved.Title != created.Title {
		t.Errorf("FindByID() mismatch: got %+v, want %+v", retrieved, created)
	}

	if !retrieved.UpdatedAt.Equal(created.UpdatedAt) {
		t.Errorf("UpdatedAt mismatch: got %v, want %v", retrieved.UpdatedAt, created.UpdatedAt)
	}
}

func TestFindByID_NotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.FindByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, core.ErrNoteNotFound) {
		t.Errorf("FindByID() error should wrap ErrNoteNotFound, got %v", err)
	}
}

func TestUpdateContent_Success(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "Test")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	updated, err := store.UpdateContent(ctx, created.ID, "hello 世界")
	if err != nil {
		t.Fatalf("UpdateContent() failed: %v", err)
	}

	if updated.Content != "hello 世界" || updated.Title != "Test" {
		t.Errorf("UpdateContent() returned %+v", updated)
	}

	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("UpdatedAt did not advance: %v <= %v", updated.UpdatedAt, created.UpdatedAt)
	}
}

func TestUpdateContent_NotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.UpdateContent(context.Background(), "nonexistent-id", "hello")
	if !errors.Is(err, core.ErrNoteNotFound) {
		t.Errorf("UpdateContent() error should wrap ErrNoteNotFound, got %v", err)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "Test")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			if _, err := store.UpdateContent(ctx, created.ID, fmt.Sprintf("writer-%d", index)); err != nil {
				t.Errorf("Concurrent UpdateContent() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	retrieved, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID() failed: %v", err)
	}

	if len(retrieved.Content) == 0 {
		t.Error("Expected one of the writers to win")
	}
}

func TestTouchAndListRooms(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.TouchRoom(ctx, ""); err == nil {
		t.Error("TouchRoom() should reject an empty room id")
	}

	if err := store.TouchRoom(ctx, "room-a"); err != nil {
		t.Fatalf("TouchRoom() failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := store.TouchRoom(ctx, "room-b"); err != nil {
		t.Fatalf("TouchRoom() failed: %v", err)
	}
	// Touching again only moves the timestamp.
	if err := store.TouchRoom(ctx, "room-b"); err != nil {
		t.Fatalf("TouchRoom() failed: %v", err)
	}

	rooms, err := store.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms() failed: %v", err)
	}

	if len(rooms) != 2 {
		t.Fatalf("Expected 2 rooms, got %d", len(rooms))
	}

	if rooms[0].ID != "room-b" {
		t.Errorf("Most recently touched room should come first, got %q", rooms[0].ID)
	}
}
