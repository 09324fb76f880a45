package memory

import (
	"context"
	"fmt"
	"notes-server/core"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type noteStore struct {
	mu    sync.RWMutex
	notes map[string]core.Note
	rooms map[string]int64
}

func NewNoteStore() *noteStore {
	return &noteStore{
		notes: make(map[string]core.Note),
		rooms: make(map[string]int64),
	}
}

func (s *noteStore) FindByID(ctx context.Context, id string) (*core.Note, error) {
	log := logrus.WithField("note_id", id)

	s.mu.RLock()
	note, ok := s.notes[id]
	s.mu.RUnlock()

	if ok {
		log.Debug("Note retrieved successfully")
		return &note, nil
	}

	log.WithField("error", "note not found").Warn("Note with specified ID not found")
	return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
}

func (s *noteStore) UpdateContent(ctx context.Context, id, content string) (*core.Note, error) {
	log := logrus.WithFields(logrus.Fields{
		"note_id":        id,
		"content_length": len(content),
	})

	s.mu.Lock()
	note, ok := s.notes[id]
	if ok {
		note.Content = content
		note.UpdatedAt = time.Now().UTC()
		s.notes[id] = note
	}
	s.mu.Unlock()

	if !ok {
		log.WithField("error", "note not found").Warn("Note with specified ID not found")
		return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
	}

	log.Debug("Note updated successfully")
	return &note, nil
}

func (s *noteStore) Create(ctx context.Context, title string) (*core.Note, error) {
	note := core.Note{
		ID:        ulid.Make().String(),
		Title:     title,
		UpdatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.notes[note.ID] = note
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"note_id": note.ID,
		"title":   title,
	}).Info("Note created successfully")

	return &note, nil
}

func (s *noteStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	s.rooms[roomID] = time.Now().UnixMilli()
	s.mu.Unlock()

	return nil
}

func (s *noteStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]core.Room, 0, len(s.rooms))
	for id, last := range s.rooms {
		rooms = append(rooms, core.Room{ID: id, LastActive: last})
	}

	core.SortRooms(rooms)

	return rooms, nil
}
