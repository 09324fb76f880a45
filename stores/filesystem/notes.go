package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"notes-server/core"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	noteFileExt = ".json"
	roomsFile   = "rooms.json"
)

type noteStore struct {
	basePath string
	// mu serializes read-modify-write cycles on note files.
	mu sync.Mutex
}

// NewNoteStore creates a store keeping one JSON file per note under basePath.
func NewNoteStore(basePath string) (*noteStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &noteStore{basePath: basePath}, nil
}

// notePath only accepts ULIDs so an id can never escape basePath.
func (s *noteStore) notePath(id string) (string, error) {
	if err := core.ValidateNoteID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, id+noteFileExt), nil
}

func (s *noteStore) FindByID(ctx context.Context, id string) (*core.Note, error) {
	log := logrus.WithField("note_id", id)

	filePath, err := s.notePath(id)
	if err != nil {
		log.WithError(err).Warn("Rejected note ID")
		return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	note, err := s.read(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.WithField("error", "note not found").Warn("Note with specified ID not found")
			return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
		}
		log.WithError(err).Error("Failed to retrieve note")
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

	filePath, err := s.notePath(id)
	if err != nil {
		log.WithError(err).Warn("Rejected note ID")
		return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	note, err := s.read(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.WithField("error", "note not found").Warn("Note with specified ID not found")
			return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
		}
		log.WithError(err).Error("Failed to read note for update")
		return nil, err
	}

	note.Content = content
	note.UpdatedAt = time.Now().UTC()
	if err := s.write(filePath, note); err != nil {
		log.WithError(err).Error("Failed to write note file")
		return nil, err
	}

	log.Debug("Note updated successfully")
	return note, nil
}

func (s *noteStore) Create(ctx context.Context, title string) (*core.Note, error) {
	note := &core.Note{
		ID:        ulid.Make().String(),
		Title:     title,
		UpdatedAt: time.Now().UTC(),
	}
	filePath := filepath.Join(s.basePath, note.ID+noteFileExt)
	log := logrus.WithFields(logrus.Fields{
		"note_id":   note.ID,
		"file_path": filePath,
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(filePath, note); err != nil {
		log.WithError(err).Error("Failed to create note")
		return nil, err
	}

	log.Info("Note created successfully")
	return note, nil
}

func (s *noteStore) read(filePath string) (*core.Note, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var note core.Note
	if err := json.Unmarshal(data, &note); err != nil {
		return nil, fmt.Errorf("failed to unmarshal note file: %w", err)
	}
	return &note, nil
}

// write goes through a temp file and rename so readers never see a partial
// note.
func (s *noteStore) write(filePath string, note *core.Note) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to marshal note: %w", err)
	}

	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}

// roomsPath holds the room activity index. Its name is not a ULID, so it
// never collides with a note file.
func (s *noteStore) roomsPath() string {
	return filepath.Join(s.basePath, roomsFile)
}

func (s *noteStore) readRooms() (map[string]int64, error) {
	rooms := make(map[string]int64)
	data, err := os.ReadFile(s.roomsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rooms, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &rooms); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rooms index: %w", err)
	}
	return rooms, nil
}

func (s *noteStore) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, err := s.readRooms()
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to read rooms index")
		return err
	}
	rooms[roomID] = time.Now().UnixMilli()

	data, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("failed to marshal rooms index: %w", err)
	}
	tmp := s.roomsPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.roomsPath())
}

func (s *noteStore) ListRooms(ctx context.Context) ([]core.Room, error) {
	s.mu.Lock()
	rooms, err := s.readRooms()
	s.mu.Unlock()
	if err != nil {
		logrus.WithError(err).Error("Failed to list rooms")
		return nil, err
	}

	list := make([]core.Room, 0, len(rooms))
	for id, last := range rooms {
		list = append(list, core.Room{ID: id, LastActive: last})
	}
	core.SortRooms(list)
	return list, nil
}
