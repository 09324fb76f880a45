package collab

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"notes-server/core"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// heldCall is a store call parked until the test releases it.
type heldCall struct {
	noteID  string
	content string
	release chan struct{}
}

type fakeStore struct {
	mu        sync.Mutex
	notes     map[string]core.Note
	findErr   error
	updateErr error
	updates   int

	findGate   chan *heldCall
	updateGate chan *heldCall
}

func newFakeStore(notes ...core.Note) *fakeStore {
	s := &fakeStore{notes: make(map[string]core.Note)}
	for _, n := range notes {
		s.notes[n.ID] = n
	}
	return s
}

func hold(ctx context.Context, gate chan *heldCall, noteID, content string) error {
	if gate == nil {
		return nil
	}
	call := &heldCall{noteID: noteID, content: content, release: make(chan struct{})}
	select {
	case gate <- call:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-call.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeStore) FindByID(ctx context.Context, id string) (*core.Note, error) {
	if err := hold(ctx, s.findGate, id, ""); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	note, ok := s.notes[id]
	if !ok {
		return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
	}
	return &note, nil
}

func (s *fakeStore) UpdateContent(ctx context.Context, id, content string) (*core.Note, error) {
	if err := hold(ctx, s.updateGate, id, content); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	note, ok := s.notes[id]
	if !ok {
		return nil, fmt.Errorf("note with id %s: %w", id, core.ErrNoteNotFound)
	}
	note.Content = content
	note.UpdatedAt = time.Now()
	s.notes[id] = note
	return &note, nil
}

func (s *fakeStore) Create(_ context.Context, title string) (*core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note := core.Note{ID: fmt.Sprintf("note-%d", len(s.notes)+1), Title: title, UpdatedAt: time.Now()}
	s.notes[note.ID] = note
	return &note, nil
}

func (s *fakeStore) content(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes[id].Content
}

func (s *fakeStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

type fakeRegistry struct {
	touched chan string
}

func (r *fakeRegistry) ListRooms(context.Context) ([]core.Room, error) { return nil, nil }

func (r *fakeRegistry) TouchRoom(_ context.Context, roomID string) error {
	r.touched <- roomID
	return nil
}

type fakeConn struct {
	id   string
	msgs chan Outbound
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, msgs: make(chan Outbound, 64)}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg Outbound) error {
	c.msgs <- msg
	return nil
}

// expect returns the next message sent to conn and checks its event name.
func expect[T Outbound](t *testing.T, conn *fakeConn) T {
	t.Helper()
	select {
	case msg := <-conn.msgs:
		typed, ok := msg.(T)
		require.Truef(t, ok, "connection %s: got %s %+v", conn.id, msg.EventName(), msg)
		return typed
	case <-time.After(waitTimeout):
		var zero T
		require.FailNowf(t, "timed out", "connection %s never received %s", conn.id, zero.EventName())
		return zero
	}
}

func expectNothing(t *testing.T, conn *fakeConn) {
	t.Helper()
	select {
	case msg := <-conn.msgs:
		require.FailNowf(t, "unexpected message", "connection %s got %s %+v", conn.id, msg.EventName(), msg)
	default:
	}
}

func expectHeld(t *testing.T, gate chan *heldCall) *heldCall {
	t.Helper()
	select {
	case call := <-gate:
		return call
	case <-time.After(waitTimeout):
		require.FailNow(t, "store call was never made")
		return nil
	}
}

func startCoordinator(t *testing.T, store core.NoteStore, opts Options) *Coordinator {
	t.Helper()
	c := NewCoordinator(store, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

// settle waits until every event posted so far has been handled by the loop.
func settle(t *testing.T, c *Coordinator) map[string]int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	rooms, err := c.ActiveRooms(ctx)
	require.NoError(t, err)
	return rooms
}
