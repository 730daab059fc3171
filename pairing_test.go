package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairTableMarkBusy(t *testing.T) {
	pairs := newPairTable()

	assert.False(t, pairs.isBusy("p1"))

	// A pending challenge only marks the challenger.
	pairs.markBusy("p1", "p2")
	assert.True(t, pairs.isBusy("p1"))
	assert.False(t, pairs.isBusy("p2"))

	partner, ok := pairs.partnerOf("p1")
	require.True(t, ok)
	assert.Equal(t, "p2", partner)
}

func TestPairTableMarkBusyPairIdempotent(t *testing.T) {
	pairs := newPairTable()

	// Accept after a pending challenge: the challenger is already linked.
	pairs.markBusy("p1", "p2")
	pairs.markBusyPair("p1", "p2")
	pairs.markBusyPair("p1", "p2")

	assert.ElementsMatch(t, []string{"p1", "p2"}, pairs.busyIDs())
}

func TestPairTableClear(t *testing.T) {
	pairs := newPairTable()

	pairs.markBusy("p1", "p2")
	pairs.clear("p1")
	assert.False(t, pairs.isBusy("p1"))

	// Clearing an absent entry is a no-op.
	pairs.clear("p1")
	assert.Empty(t, pairs.busyIDs())
}

func TestPairTableClearPair(t *testing.T) {
	pairs := newPairTable()

	pairs.markBusyPair("p1", "p2")
	pairs.clearPair("p2", "p1")

	assert.Empty(t, pairs.busyIDs())
}

func TestPairTableClearPairIgnoresStaleOpponent(t *testing.T) {
	pairs := newPairTable()

	pairs.markBusyPair("p2", "p3")

	// p1 claims p2 as its opponent, but p2 is in a session with p3; the
	// stale reference must not free p2.
	pairs.clearPair("p1", "p2")

	assert.True(t, pairs.isBusy("p2"))
	assert.True(t, pairs.isBusy("p3"))
}

func TestPairTableLinkedTo(t *testing.T) {
	pairs := newPairTable()

	pairs.markBusy("p1", "p2")
	pairs.markBusy("p3", "p2")
	pairs.markBusy("p4", "p5")

	assert.ElementsMatch(t, []string{"p1", "p3"}, pairs.linkedTo("p2"))
	assert.Empty(t, pairs.linkedTo("p1"))
}
