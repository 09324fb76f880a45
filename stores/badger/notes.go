package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"notes-server/core"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	notePrefix = "note:"
	roomPrefix = "room:"

	maxConflictRetries = 10
)

type noteStore struct {
	db *badger.DB
}

func NewNoteStore(path string) (*noteStore, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
	}
	return &noteStore{db: db}, nil
}

func (s *noteStore) Close() error {
	return s.db.Close()
}

func noteKey(id string) []byte {
	return []byte(notePrefix + id)
}

func (s *noteStore) FindByID(ctx context.Context, id string) (*core.Note, error) {
	log := logrus.WithField("note_id", id)

	var note core.Note
	err := s.db.View(func(txn *badger.Txn) error {
		return readNote(txn, id, &note)
	})
	if err != nil {
		if errors.Is(err, core.ErrNoteNotFound) {
			log.WithField("error", "note not found").Warn("Note with specified ID not found")
		} else {
			log.WithError(err).Error("Failed to retrieve note")
		}
		return nil, err
	}

	log.Debug("Note retrieved successfully")
	return &note, nil
}

func (s *noteStore) UpdateContent(ctx context.Context, id, content string) (*core.Note, error) {
	log := logrus.WithFields(logrus.Fields{
		"note_id":        id,
		"content_length": len(content),
	})

	var note core.Note
	update := func(txn *badger.Txn) error {
		if err := readNote(txn, id, &note); err != nil {
			return err
		}
		note.Content = content
		note.UpdatedAt = time.Now().UTC()
		return writeNote(txn, &note)
	}

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			break
		}
		err = s.db.Update(update)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, core.ErrNoteNotFound) {
			log.WithField("error", "note not found").Warn("Note with specified ID not found")
		} else {
			log.WithError(err).Error("Failed to update note")
		}
		return nil, err
	}

	log.Debug("Note updated successfully")
	return &note, nil
}

func (s *noteStore) Create(ctx context.Context, title string) (*core.Note, error) {
	note := &core.Note{
		ID:        ulid.Make().String(),
		Title:     title,
		UpdatedAt: time.Now().UTC(),
	}
	log := logrus.WithFields(logrus.Fields{
		"note_id": note.ID,
		"title":   title,
	})

	if err := s.db.Update(func(txn *badger.Txn) error {
		return writeNote(txn, note)
	}); err != nil {
		log.WithError(err).Error("Failed to create note")
		return nil, err
	}

	log.Info("Note created successfully")
	return note, nil
}

func (s *noteStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	lastActive := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(roomPrefix+roomID), []byte(lastActive))
	})
}

func (s *noteStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	var rooms []core.Room
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(roomPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			room := core.Room{ID: strings.TrimPrefix(string(item.Key()), roomPrefix)}
			err := item.Value(func(val []byte) error {
				lastActive, err := strconv.ParseInt(string(val), 10, 64)
				if err != nil {
					return err
				}
				room.LastActive = lastActive
				return nil
			})
			if err != nil {
				return err
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to list rooms")
		return nil, err
	}

	core.SortRooms(rooms)
	return rooms, nil
}

func readNote(txn *badger.Txn, id string, note *core.Note) error {
	item, err := txn.Get(noteKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, note)
	})
}

func writeNote(txn *badger.Txn, note *core.Note) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(noteKey(note.ID), data)
}
