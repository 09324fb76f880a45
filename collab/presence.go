package collab

import "sort"

// Participant is one connection present in a note's room.
type Participant struct {
	ConnID      string
	DisplayName string
}

type presenceEntry struct {
	participant Participant
	seq         uint64
}

// Presence tracks who is currently viewing each note. It is owned by the
// coordinator's event loop and is not safe for concurrent use.
type Presence struct {
	notes map[string]map[string]*presenceEntry
	seq   uint64
}

func NewPresence() *Presence {
	return &Presence{notes: make(map[string]map[string]*presenceEntry)}
}

// Register adds connID to the note. Registering an existing participant only
// replaces its display name; its position in ListActive is kept.
func (p *Presence) Register(noteID, connID, displayName string) {
	members, ok := p.notes[noteID]
	if !ok {
		members = make(map[string]*presenceEntry)
		p.notes[noteID] = members
	}

	if entry, ok := members[connID]; ok {
		entry.participant.DisplayName = displayName
		return
	}

	p.seq++
	members[connID] = &presenceEntry{
		participant: Participant{ConnID: connID, DisplayName: displayName},
		seq:         p.seq,
	}
}

// Deregister removes connID from the note and returns the removed
// participant. A note whose set becomes empty is forgotten.
func (p *Presence) Deregister(noteID, connID string) (Participant, bool) {
	members, ok := p.notes[noteID]
	if !ok {
		return Participant{}, false
	}

	entry, ok := members[connID]
	if !ok {
		return Participant{}, false
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(p.notes, noteID)
	}
	return entry.participant, true
}

// ListActive returns the note's participants in join order.
func (p *Presence) ListActive(noteID string) []Participant {
	members := p.notes[noteID]
	entries := make([]*presenceEntry, 0, len(members))
	for _, entry := range members {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	participants := make([]Participant, 0, len(entries))
	for _, entry := range entries {
		participants = append(participants, entry.participant)
	}
	return participants
}

func (p *Presence) Count(noteID string) int {
	return len(p.notes[noteID])
}

// Notes returns the ids of every note with at least one participant.
func (p *Presence) Notes() []string {
	ids := make([]string, 0, len(p.notes))
	for id := range p.notes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
