package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry_RegisterAndLookup(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("scene-1", "session-abc")
	r.Register("scene-1", "session-abc")
	assert.Equal(t, []string{"session-abc"}, r.SessionsFor("scene-1"))
}

func TestSessionRegistry_NotFound(t *testing.T) {
	r := NewSessionRegistry()
	assert.Empty(t, r.SessionsFor("unknown"))
}

func TestSessionRegistry_MultipleWatchers(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("scene-1", "session-b")
	r.Register("scene-1", "session-a")
	r.Register("scene-2", "session-b")

	assert.Equal(t, []string{"session-a", "session-b"}, r.SessionsFor("scene-1"))
	assert.Equal(t, []string{"session-b"}, r.SessionsFor("scene-2"))
}

func TestSessionRegistry_Remove(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("scene-1", "session-abc")
	r.Register("scene-2", "session-abc")
	r.Register("scene-2", "session-xyz")

	r.Remove("session-abc")

	assert.Empty(t, r.SessionsFor("scene-1"))
	assert.Equal(t, []string{"session-xyz"}, r.SessionsFor("scene-2"))
}

func TestSessionRegistry_Forget(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("scene-1", "session-abc")
	r.Forget("scene-1")
	assert.Empty(t, r.SessionsFor("scene-1"))
}
