package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresence_RegisterAndList(t *testing.T) {
	p := NewPresence()
	p.Register("abc", "A", "Alice")
	p.Register("abc", "B", "Bob")
	p.Register("xyz", "C", "Carol")

	assert.Equal(t, []Participant{
		{ConnID: "A", DisplayName: "Alice"},
		{ConnID: "B", DisplayName: "Bob"},
	}, p.ListActive("abc"))
	assert.Equal(t, 2, p.Count("abc"))
	assert.Equal(t, 1, p.Count("xyz"))
	assert.Equal(t, []string{"abc", "xyz"}, p.Notes())
}

func TestPresence_ReRegisterKeepsPosition(t *testing.T) {
	p := NewPresence()
	p.Register("abc", "A", "Alice")
	p.Register("abc", "B", "Bob")
	p.Register("abc", "A", "Alicia")

	assert.Equal(t, []Participant{
		{ConnID: "A", DisplayName: "Alicia"},
		{ConnID: "B", DisplayName: "Bob"},
	}, p.ListActive("abc"))
}

func TestPresence_DeregisterForgetsEmptyNote(t *testing.T) {
	p := NewPresence()
	p.Register("abc", "A", "Alice")

	removed, ok := p.Deregister("abc", "A")
	require.True(t, ok)
	assert.Equal(t, Participant{ConnID: "A", DisplayName: "Alice"}, removed)
	assert.Empty(t, p.ListActive("abc"))
	assert.Empty(t, p.Notes())

	_, ok = p.Deregister("abc", "A")
	assert.False(t, ok)
	_, ok = p.Deregister("missing", "A")
	assert.False(t, ok)
}

func TestPresence_ListUnknownNote(t *testing.T) {
	p := NewPresence()
	list := p.ListActive("nothing")
	assert.NotNil(t, list)
	assert.Empty(t, list)
	assert.Zero(t, p.Count("nothing"))
}
