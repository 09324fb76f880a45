package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"notes-server/core"
	"notes-server/metrics"

	"github.com/sirupsen/logrus"
)

const (
	defaultStoreTimeout = 10 * time.Second
	eventBufferSize     = 256
)

var ErrCoordinatorStopped = errors.New("coordinator stopped")

// Connection is one live client transport session.
type Connection interface {
	ID() string
	Send(msg Outbound) error
}

type (
	connectEvent struct {
		conn Connection
	}

	inboundEvent struct {
		connID string
		msg    Inbound
	}

	disconnectEvent struct {
		connID string
	}

	joinLoaded struct {
		connID string
		req    JoinNote
		note   *core.Note
		err    error
	}

	updatePersisted struct {
		connID string
		noteID string
		note   *core.Note
		err    error
	}

	roomsQuery struct {
		reply chan map[string]int
	}
)

// session is the per-connection state. A connection is Bound while the room
// manager has it attached and Unbound otherwise; busy marks an in-flight
// store call, during which further events from the same connection wait in
// queue so they are applied in arrival order.
type session struct {
	conn  Connection
	queue []Inbound
	busy  bool
}

type Options struct {
	// StoreTimeout bounds each note store call. Zero uses a default.
	StoreTimeout time.Duration
	// Registry, when set, is told about every successful join.
	Registry core.RoomRegistry
}

// Coordinator owns presence and room membership for the whole process. All
// state changes happen on the goroutine running Run; transports feed it
// through Connect, Dispatch and Disconnect.
type Coordinator struct {
	store      core.NoteStore
	registry   core.RoomRegistry
	rooms      *RoomManager
	propagator *Propagator
	sessions   map[string]*session

	storeTimeout time.Duration
	events       chan any
	done         chan struct{}
	inflight     sync.WaitGroup
	ctx          context.Context
}

func NewCoordinator(store core.NoteStore, opts Options) *Coordinator {
	timeout := opts.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}

	rooms := NewRoomManager(NewPresence())
	return &Coordinator{
		store:        store,
		registry:     opts.Registry,
		rooms:        rooms,
		propagator:   NewPropagator(rooms, store),
		sessions:     make(map[string]*session),
		storeTimeout: timeout,
		events:       make(chan any, eventBufferSize),
		done:         make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled. In-flight store calls are
// allowed to finish before Run returns; their results are discarded.
func (c *Coordinator) Run(ctx context.Context) error {
	c.ctx = ctx
	logrus.Debug("Collaboration coordinator started")

	for {
		select {
		case <-ctx.Done():
			close(c.done)
			c.inflight.Wait()
			logrus.Debug("Collaboration coordinator stopped")
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Coordinator) Connect(conn Connection) {
	c.post(connectEvent{conn: conn})
}

func (c *Coordinator) Dispatch(connID string, msg Inbound) {
	c.post(inboundEvent{connID: connID, msg: msg})
}

func (c *Coordinator) Disconnect(connID string) {
	c.post(disconnectEvent{connID: connID})
}

// ActiveRooms returns the participant count per live room.
func (c *Coordinator) ActiveRooms(ctx context.Context) (map[string]int, error) {
	reply := make(chan map[string]int, 1)
	if !c.postContext(ctx, roomsQuery{reply: reply}) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrCoordinatorStopped
	}

	select {
	case rooms := <-reply:
		return rooms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrCoordinatorStopped
	}
}

func (c *Coordinator) post(ev any) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Coordinator) postContext(ctx context.Context, ev any) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

func (c *Coordinator) handle(ev any) {
	switch e := ev.(type) {
	case connectEvent:
		c.handleConnect(e.conn)
	case inboundEvent:
		c.handleInbound(e.connID, e.msg)
	case disconnectEvent:
		c.handleDisconnect(e.connID)
	case joinLoaded:
		c.handleJoinLoaded(e)
	case updatePersisted:
		c.handleUpdatePersisted(e)
	case roomsQuery:
		e.reply <- c.rooms.Rooms()
	default:
		logrus.WithField("event", ev).Warn("Unknown coordinator event")
	}
}

func (c *Coordinator) handleConnect(conn Connection) {
	connID := conn.ID()
	if _, exists := c.sessions[connID]; exists {
		logrus.WithField("conn_id", connID).Warn("Connection registered twice")
		return
	}
	c.sessions[connID] = &session{conn: conn}
	metrics.Connections.Set(float64(len(c.sessions)))
	logrus.WithField("conn_id", connID).Info("New client connected")
}

func (c *Coordinator) handleInbound(connID string, msg Inbound) {
	s, ok := c.sessions[connID]
	if !ok {
		logrus.WithFields(logrus.Fields{
			"conn_id": connID,
			"event":   msg.EventName(),
		}).Debug("Dropping event for unknown connection")
		return
	}

	s.queue = append(s.queue, msg)
	c.drain(connID, s)
}

// drain starts queued events for the session until one of them needs the
// store or the queue runs dry.
func (c *Coordinator) drain(connID string, s *session) {
	for !s.busy && len(s.queue) > 0 {
		msg := s.queue[0]
		s.queue = s.queue[1:]

		switch m := msg.(type) {
		case JoinNote:
			s.busy = true
			c.loadForJoin(connID, m)
		case NoteUpdate:
			if !c.propagator.Admit(connID, m.NoteID) {
				metrics.Updates.WithLabelValues("stale").Inc()
				logrus.WithFields(logrus.Fields{
					"conn_id": connID,
					"note_id": m.NoteID,
				}).Debug("Dropping update from connection outside the room")
				continue
			}
			s.busy = true
			c.persistUpdate(connID, m)
		}
	}
}

func (c *Coordinator) loadForJoin(connID string, req JoinNote) {
	c.goStore(func(ctx context.Context) any {
		start := time.Now()
		note, err := c.store.FindByID(ctx, req.NoteID)
		metrics.StoreLatency.WithLabelValues("find").Observe(time.Since(start).Seconds())
		return joinLoaded{connID: connID, req: req, note: note, err: err}
	})
}

func (c *Coordinator) persistUpdate(connID string, req NoteUpdate) {
	c.goStore(func(ctx context.Context) any {
		note, err := c.propagator.Persist(ctx, req.NoteID, req.Content)
		return updatePersisted{connID: connID, noteID: req.NoteID, note: note, err: err}
	})
}

// goStore runs a store call off the loop and posts its result back.
func (c *Coordinator) goStore(call func(ctx context.Context) any) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.storeTimeout)
		defer cancel()
		c.post(call(ctx))
	}()
}

func (c *Coordinator) handleJoinLoaded(e joinLoaded) {
	log := logrus.WithFields(logrus.Fields{
		"conn_id": e.connID,
		"note_id": e.req.NoteID,
	})

	s, ok := c.sessions[e.connID]
	if !ok {
		log.Debug("Connection left before its join completed")
		return
	}
	s.busy = false

	switch {
	case e.err == nil && e.note == nil:
		e.err = core.ErrNoteNotFound
		fallthrough
	case e.err != nil:
		if core.IsStoreUnavailable(e.err) {
			metrics.Joins.WithLabelValues("error").Inc()
			log.WithError(e.err).Error("Error joining note")
			c.send(e.connID, ErrorNotice("Failed to join note"))
		} else {
			metrics.Joins.WithLabelValues("not_found").Inc()
			log.WithError(e.err).Warn("Join targets a missing note")
			c.send(e.connID, ErrorNotice("Note not found"))
		}
	default:
		metrics.Joins.WithLabelValues("ok").Inc()
		c.completeJoin(e.connID, e.req, e.note)
	}

	c.drain(e.connID, s)
}

func (c *Coordinator) completeJoin(connID string, req JoinNote, note *core.Note) {
	name := req.Username
	if name == "" {
		name = DefaultDisplayName(connID)
	}

	result := c.rooms.Join(connID, *note, name)
	if result.Previous != nil {
		c.announceDeparture(*result.Previous)
	}

	users := toUsers(result.Active)
	c.send(connID, NoteContent{
		Content:     result.Note.Content,
		Title:       result.Note.Title,
		ActiveUsers: users,
	})
	if !result.Rejoined {
		c.broadcast(result.Active, connID, UserJoined{UserID: connID, Username: name})
	}
	c.broadcast(result.Active, "", ActiveUsers{Users: users})
	c.updateGauges()

	logrus.WithFields(logrus.Fields{
		"conn_id":  connID,
		"note_id":  note.ID,
		"username": name,
		"users":    len(result.Active),
	}).Info("Client joined note")

	c.touchRoom(note.ID)
}

func (c *Coordinator) touchRoom(noteID string) {
	if c.registry == nil {
		return
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.storeTimeout)
		defer cancel()
		if err := c.registry.TouchRoom(ctx, noteID); err != nil {
			logrus.WithError(err).WithField("note_id", noteID).Warn("Failed to touch room")
		}
	}()
}

func (c *Coordinator) handleUpdatePersisted(e updatePersisted) {
	log := logrus.WithFields(logrus.Fields{
		"conn_id": e.connID,
		"note_id": e.noteID,
	})

	if e.err != nil || e.note == nil {
		metrics.Updates.WithLabelValues("error").Inc()
		log.WithError(e.err).Error("Error updating note")
		c.send(e.connID, ErrorNotice("Failed to update note"))
	} else {
		metrics.Updates.WithLabelValues("ok").Inc()
		result := c.propagator.Complete(e.connID, e.noteID, e.note)
		c.broadcast(result.Recipients, "", result.Message)
		log.WithField("recipients", len(result.Recipients)).Debug("Note update propagated")
	}

	if s, ok := c.sessions[e.connID]; ok {
		s.busy = false
		c.drain(e.connID, s)
	}
}

func (c *Coordinator) handleDisconnect(connID string) {
	s, ok := c.sessions[connID]
	if !ok {
		return
	}
	delete(c.sessions, connID)
	metrics.Connections.Set(float64(len(c.sessions)))

	log := logrus.WithField("conn_id", connID)
	if len(s.queue) > 0 {
		log.WithField("dropped", len(s.queue)).Debug("Dropping queued events of disconnected client")
	}

	if departure, left := c.rooms.Leave(connID); left {
		c.announceDeparture(departure)
		c.updateGauges()
		log = log.WithField("note_id", departure.NoteID)
	}
	log.Info("Client disconnected")
}

func (c *Coordinator) announceDeparture(d Departure) {
	c.broadcast(d.Remaining, "", UserLeft{
		UserID:   d.Participant.ConnID,
		Username: d.Participant.DisplayName,
	})
	if len(d.Remaining) > 0 {
		c.broadcast(d.Remaining, "", ActiveUsers{Users: toUsers(d.Remaining)})
	}
}

func (c *Coordinator) broadcast(to []Participant, except string, msg Outbound) {
	for _, p := range to {
		if p.ConnID == except {
			continue
		}
		c.send(p.ConnID, msg)
	}
}

// send delivers msg if the connection is still live; sends to departed
// connections are skipped.
func (c *Coordinator) send(connID string, msg Outbound) {
	s, ok := c.sessions[connID]
	if !ok {
		return
	}
	if err := s.conn.Send(msg); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"conn_id": connID,
			"event":   msg.EventName(),
		}).Warn("Failed to send event")
	}
}

func (c *Coordinator) updateGauges() {
	rooms := c.rooms.Rooms()
	metrics.ActiveRooms.Set(float64(len(rooms)))
	metrics.ActiveParticipants.Set(float64(c.rooms.Attached()))
}

// DefaultDisplayName is the name given to a participant that joins without
// one.
func DefaultDisplayName(connID string) string {
	short := connID
	if len(short) > 5 {
		short = short[:5]
	}
	return "User-" + short
}
