package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notes-server/core"
	"notes-server/metrics"

	"github.com/samber/lo"
)

var ErrPersistenceFailed = errors.New("persistence failed")

// PropagationResult is the broadcast produced by a persisted edit.
type PropagationResult struct {
	Message    NoteUpdated
	Recipients []Participant
}

// Propagator applies edits to the store and works out who hears about them.
// Writes are last-writer-wins: there is no version check, and whichever
// UpdateContent reaches the store last determines the stored content.
type Propagator struct {
	rooms *RoomManager
	store core.NoteStore
}

func NewPropagator(rooms *RoomManager, store core.NoteStore) *Propagator {
	return &Propagator{rooms: rooms, store: store}
}

// Admit reports whether connID may edit noteID, i.e. it is currently in that
// note's room. Must be called from the coordinator loop.
func (p *Propagator) Admit(connID, noteID string) bool {
	current, ok := p.rooms.RoomOf(connID)
	return ok && current == noteID
}

// Persist writes the new content. It only touches the store and is safe to
// call off the coordinator loop.
func (p *Propagator) Persist(ctx context.Context, noteID, content string) (*core.Note, error) {
	start := time.Now()
	note, err := p.store.UpdateContent(ctx, noteID, content)
	metrics.StoreLatency.WithLabelValues("update").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	return note, nil
}

// Recipients lists the current members of noteID other than origin.
func (p *Propagator) Recipients(noteID, origin string) []Participant {
	return lo.Filter(p.rooms.Members(noteID), func(member Participant, _ int) bool {
		return member.ConnID != origin
	})
}

// Complete builds the broadcast for a persisted edit against the room
// membership at the time of the call. Must be called from the coordinator
// loop.
func (p *Propagator) Complete(origin, noteID string, note *core.Note) PropagationResult {
	return PropagationResult{
		Message: NoteUpdated{
			Content:   note.Content,
			UpdatedAt: note.UpdatedAt,
			UserID:    origin,
		},
		Recipients: p.Recipients(noteID, origin),
	}
}
