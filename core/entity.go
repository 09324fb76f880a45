package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrNoteNotFound     = errors.New("note not found")
	ErrStoreUnavailable = errors.New("note store unavailable")
	ErrInvalidNoteID    = errors.New("invalid note id")
)

type (
	// Note is the persisted document a room is keyed by.
	Note struct {
		ID        string    `json:"_id"`
		Title     string    `json:"title"`
		Content   string    `json:"content"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	NoteStore interface {
		FindByID(ctx context.Context, id string) (*Note, error)
		UpdateContent(ctx context.Context, id, content string) (*Note, error)
		Create(ctx context.Context, title string) (*Note, error)
	}

	Room struct {
		ID         string
		LastActive int64
	}

	RoomRegistry interface {
		ListRooms(ctx context.Context) ([]Room, error)
		TouchRoom(ctx context.Context, roomID string) error
	}
)

// IsStoreUnavailable reports whether err is a store failure other than a
// missing note.
func IsStoreUnavailable(err error) bool {
	return err != nil && !errors.Is(err, ErrNoteNotFound) && !errors.Is(err, ErrInvalidNoteID)
}

// ValidateNoteID checks that id is a well-formed note identifier (a ULID).
func ValidateNoteID(id string) error {
	if _, err := ulid.ParseStrict(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidNoteID, id)
	}
	return nil
}

// SortRooms orders rooms by most recent activity, then by id.
func SortRooms(rooms []Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})
}
