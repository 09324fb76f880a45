package stores

import (
	"context"
	"io"
	"notes-server/config"
	"notes-server/core"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetStore_Backends(t *testing.T) {
	dir := t.TempDir()
	testCases := []struct {
		name string
		cfg  config.Config
	}{
		{"memory", config.Config{StorageType: "memory"}},
		{"default", config.Config{}},
		{"filesystem", config.Config{StorageType: "filesystem", LocalStoragePath: filepath.Join(dir, "fs")}},
		{"sqlite", config.Config{StorageType: "sqlite", DataSourceName: filepath.Join(dir, "notes.db")}},
		{"badger", config.Config{StorageType: "badger", BadgerPath: filepath.Join(dir, "badger")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()

			store, err := GetStore(ctx, tc.cfg)
			req.NoError(err)
			if closer, ok := store.(io.Closer); ok {
				t.Cleanup(func() { _ = closer.Close() })
			}

			note, err := store.Create(ctx, "Test")
			req.NoError(err)

			updated, err := store.UpdateContent(ctx, note.ID, "hello")
			req.NoError(err)
			req.Equal("hello", updated.Content)

			found, err := store.FindByID(ctx, note.ID)
			req.NoError(err)
			req.Equal("hello", found.Content)
			req.Equal("Test", found.Title)

			registry, ok := store.(core.RoomRegistry)
			req.True(ok, "%s store should track room activity", tc.name)
			req.NoError(registry.TouchRoom(ctx, note.ID))
			rooms, err := registry.ListRooms(ctx)
			req.NoError(err)
			req.Len(rooms, 1)
			req.Equal(note.ID, rooms[0].ID)
		})
	}
}

func TestGetStore_RoomRegistry(t *testing.T) {
	store, err := GetStore(context.Background(), config.Config{StorageType: "memory"})
	require.NoError(t, err)

	_, ok := store.(core.RoomRegistry)
	require.True(t, ok, "memory store should track room activity")
}
