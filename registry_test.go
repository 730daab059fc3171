package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAnnounceAndLookup(t *testing.T) {
	reg := newRegistry()

	p := reg.announce("conn-1", "alice")
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "conn-1", p.ID)

	got, ok := reg.lookup("conn-1")
	require.True(t, ok)
	assert.Equal(t, p, got)

	_, ok = reg.lookup("conn-2")
	assert.False(t, ok)
}

func TestRegistryReannounceReplaces(t *testing.T) {
	reg := newRegistry()

	reg.announce("conn-1", "alice")
	reg.announce("conn-1", "alicia")

	// Last call wins, and no duplicate entries exist.
	assert.Len(t, reg.list(), 1)

	got, ok := reg.lookup("conn-1")
	require.True(t, ok)
	assert.Equal(t, "alicia", got.Username)
}

func TestRegistryRemove(t *testing.T) {
	reg := newRegistry()

	reg.announce("conn-1", "alice")

	removed, ok := reg.remove("conn-1")
	require.True(t, ok)
	assert.Equal(t, "alice", removed.Username)

	_, ok = reg.lookup("conn-1")
	assert.False(t, ok)

	// Removing again is a safe no-op.
	_, ok = reg.remove("conn-1")
	assert.False(t, ok)

	// Removing a connection that never announced is too.
	_, ok = reg.remove("conn-9")
	assert.False(t, ok)
}

func TestRegistryList(t *testing.T) {
	reg := newRegistry()

	assert.Empty(t, reg.list())

	a := reg.announce("conn-1", "alice")
	b := reg.announce("conn-2", "bob")

	assert.ElementsMatch(t, []Participant{a, b}, reg.list())
}
