package collab

import "notes-server/core"

type (
	// Departure describes a connection leaving a room.
	Departure struct {
		NoteID      string
		Participant Participant
		Remaining   []Participant
	}

	// JoinResult is what a successful join hands back to the coordinator.
	JoinResult struct {
		Note     core.Note
		Active   []Participant
		Previous *Departure
		Rejoined bool
	}
)

// RoomManager keeps every connection attached to at most one room and keeps
// Presence in step with that attachment.
type RoomManager struct {
	presence *Presence
	attached map[string]string
}

func NewRoomManager(presence *Presence) *RoomManager {
	return &RoomManager{
		presence: presence,
		attached: make(map[string]string),
	}
}

// Join attaches connID to note.ID. The note must already have been loaded
// from the store; a note that could not be loaded never reaches Join. If the
// connection was in another room it leaves that room first and the departure
// is reported in the result.
func (m *RoomManager) Join(connID string, note core.Note, displayName string) JoinResult {
	result := JoinResult{Note: note}

	if current, ok := m.attached[connID]; ok {
		if current == note.ID {
			result.Rejoined = true
		} else if departure, left := m.Leave(connID); left {
			result.Previous = &departure
		}
	}

	m.attached[connID] = note.ID
	m.presence.Register(note.ID, connID, displayName)
	result.Active = m.presence.ListActive(note.ID)
	return result
}

// Leave detaches connID from its room. It reports false when the connection
// was not in any room.
func (m *RoomManager) Leave(connID string) (Departure, bool) {
	noteID, ok := m.attached[connID]
	if !ok {
		return Departure{}, false
	}
	delete(m.attached, connID)

	participant, ok := m.presence.Deregister(noteID, connID)
	if !ok {
		participant = Participant{ConnID: connID}
	}

	return Departure{
		NoteID:      noteID,
		Participant: participant,
		Remaining:   m.presence.ListActive(noteID),
	}, true
}

func (m *RoomManager) RoomOf(connID string) (string, bool) {
	noteID, ok := m.attached[connID]
	return noteID, ok
}

func (m *RoomManager) Members(noteID string) []Participant {
	return m.presence.ListActive(noteID)
}

// Rooms returns the participant count of every live room.
func (m *RoomManager) Rooms() map[string]int {
	rooms := make(map[string]int)
	for _, noteID := range m.presence.Notes() {
		rooms[noteID] = m.presence.Count(noteID)
	}
	return rooms
}

// Attached returns how many connections are currently in a room.
func (m *RoomManager) Attached() int {
	return len(m.attached)
}
