package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"notes-server/core"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	id TEXT PRIMARY KEY,
	last_active INTEGER NOT NULL
);`

type noteStore struct {
	db *sql.DB
}

func NewNoteStore(dataSourceName string) (*noteStore, error) {
	if dir := filepath.Dir(dataSourceName); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one pooled connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logrus.WithField("dataSourceName", dataSourceName).Debug("SQLite note store initialized")
	return &noteStore{db: db}, nil
}

func (s *noteStore) Close() error {
	return s.db.Close()
}

func (s *noteStore) FindByID(ctx context.Context, id string) (*core.Note, error) {
	log := logrus.WithField("note_id", id)
	log.Debug("Retrieving note by ID")

	note, err := scanNote(s.db.QueryRowContext(ctx,
		"SELECT id, title, content, updated_at FROM notes WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.WithField("error", "note not found").Warn("Note with specified ID not found")
			return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
		}
		log.WithField("error", err).Error("Failed to retrieve note")
		return nil, err
	}

	log.Debug("Note retrieved successfully")
	return note, nil
}

func (s *noteStore) UpdateContent(ctx context.Context, id, content string) (*core.Note, error) {
	log := logrus.WithFields(logrus.Fields{
		"note_id":        id,
		"content_length": len(content),
	})

	note, err := scanNote(s.db.QueryRowContext(ctx,
		"UPDATE notes SET content = ?, updated_at = ? WHERE id = ? RETURNING id, title, content, updated_at",
		content, time.Now().UnixMilli(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.WithField("error", "note not found").Warn("Note with specified ID not found")
			return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
		}
		log.WithField("error", err).Error("Failed to update note")
		return nil, err
	}

	log.Debug("Note updated successfully")
	return note, nil
}

func (s *noteStore) Create(ctx context.Context, title string) (*core.Note, error) {
	now := time.Now()
	note := &core.Note{
		ID:        ulid.Make().String(),
		Title:     title,
		UpdatedAt: time.UnixMilli(now.UnixMilli()).UTC(),
	}
	log := logrus.WithFields(logrus.Fields{
		"note_id": note.ID,
		"title":   title,
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO notes (id, title, content, updated_at) VALUES (?, ?, '', ?)",
		note.ID, note.Title, now.UnixMilli())
	if err != nil {
		log.WithField("error", err).Error("Failed to create note")
		return nil, err
	}

	log.Info("Note created successfully")
	return note, nil
}

func (s *noteStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (id, last_active) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET last_active = excluded.last_active",
		roomID, time.Now().UnixMilli())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"error":   err,
		}).Error("Failed to touch room")
		return err
	}
	return nil
}

func (s *noteStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, last_active FROM rooms ORDER BY last_active DESC, id ASC")
	if err != nil {
		logrus.WithField("error", err).Error("Failed to list rooms")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("Failed to close room rows")
		}
	}()

	var rooms []core.Room
	for rows.Next() {
		var room core.Room
		if err := rows.Scan(&room.ID, &room.LastActive); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func scanNote(row *sql.Row) (*core.Note, error) {
	var note core.Note
	var updatedAt int64
	if err := row.Scan(&note.ID, &note.Title, &note.Content, &updatedAt); err != nil {
		return nil, err
	}
	note.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &note, nil
}
