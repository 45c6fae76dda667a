package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairwiseCalls_StartAttemptLinksBothSides(t *testing.T) {
	p := NewPairwiseCalls()

	p.StartAttempt("caller", "callee")

	peer, ok := p.GetPeer("caller")
	assert.True(t, ok)
	assert.Equal(t, "callee", peer)

	peer, ok = p.GetPeer("callee")
	assert.True(t, ok)
	assert.Equal(t, "caller", peer)
}

func TestPairwiseCalls_LastCallerWins(t *testing.T) {
	p := NewPairwiseCalls()

	p.StartAttempt("a", "b")
	p.StartAttempt("c", "b")

	// b is now linked to c
	peer, ok := p.GetPeer("b")
	assert.True(t, ok)
	assert.Equal(t, "c", peer)

	// a's displaced mirror entry is cleared, not left stale
	assert.False(t, p.IsInCall("a"))
}

func TestPairwiseCalls_ReinitiateReplacesOwnLink(t *testing.T) {
	p := NewPairwiseCalls()

	p.StartAttempt("a", "b")
	p.StartAttempt("a", "c")

	peer, _ := p.GetPeer("a")
	assert.Equal(t, "c", peer)
	assert.False(t, p.IsInCall("b"))
}

func TestPairwiseCalls_End(t *testing.T) {
	p := NewPairwiseCalls()
	p.StartAttempt("a", "b")
	p.Confirm("a", "b")

	peer, ok := p.End("a")
	assert.True(t, ok)
	assert.Equal(t, "b", peer)

	assert.False(t, p.IsInCall("a"))
	assert.False(t, p.IsInCall("b"))
}

func TestPairwiseCalls_EndWithoutLink(t *testing.T) {
	p := NewPairwiseCalls()

	peer, ok := p.End("nobody")
	assert.False(t, ok)
	assert.Empty(t, peer)
}

func TestPairwiseCalls_ConfirmIsIdempotent(t *testing.T) {
	p := NewPairwiseCalls()
	p.StartAttempt("a", "b")
	p.Confirm("b", "a")
	p.Confirm("b", "a")

	peer, ok := p.GetPeer("a")
	assert.True(t, ok)
	assert.Equal(t, "b", peer)
}
