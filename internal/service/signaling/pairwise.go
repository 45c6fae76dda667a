package signaling

import "sync"

// PairwiseCalls tracks which two connections are paired in a one-to-one
// call attempt or active call. Links are stored as two mirrored entries
// so lookup from either side is O(1). A connection appears as a key in
// at most one link at a time.
//
// The storage does not distinguish tentative from confirmed links; the
// protocol service only calls Confirm after an accept event.
type PairwiseCalls struct {
	mu    sync.Mutex
	peers map[string]string
}

// NewPairwiseCalls creates an empty coordinator.
func NewPairwiseCalls() *PairwiseCalls {
	return &PairwiseCalls{
		peers: make(map[string]string),
	}
}

// StartAttempt records a tentative link between caller and callee. Any
// prior link involving either side is overwritten, last caller wins,
// and the displaced peers' mirrored entries are cleared.
func (p *PairwiseCalls) StartAttempt(callerConn, calleeConn string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.link(callerConn, calleeConn)
}

// Confirm promotes a link to an active call. Idempotent; shares storage
// with StartAttempt.
func (p *PairwiseCalls) Confirm(conn1, conn2 string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.link(conn1, conn2)
}

func (p *PairwiseCalls) link(a, b string) {
	p.unlink(a)
	p.unlink(b)
	p.peers[a] = b
	p.peers[b] = a
}

// unlink clears both mirrored entries for a connection. Caller holds mu.
func (p *PairwiseCalls) unlink(conn string) string {
	peer, ok := p.peers[conn]
	if !ok {
		return ""
	}
	delete(p.peers, conn)
	if p.peers[peer] == conn {
		delete(p.peers, peer)
	}
	return peer
}

// GetPeer returns the peer connection of a linked connection.
func (p *PairwiseCalls) GetPeer(conn string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	peer, ok := p.peers[conn]
	return peer, ok
}

// IsInCall reports whether the connection has an active link.
func (p *PairwiseCalls) IsInCall(conn string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.peers[conn]
	return ok
}

// End atomically deletes both mirrored entries and returns the former
// peer so the caller can notify it. Ending a connection with no link is
// a no-op.
func (p *PairwiseCalls) End(conn string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	peer := p.unlink(conn)
	return peer, peer != ""
}
