package router

import (
	"sync"

	"github.com/axmq/mqttsession/packet"
)

// RemotePacketRouter tracks reservations for packet identifiers the
// peer chose. An exchange is removed from
// the table as soon as it reaches its terminal state (via Route or
// Release), so any id still present is by definition still in flight —
// a second Register for that id is always a collision.
type RemotePacketRouter struct {
	mu      sync.Mutex
	entries map[uint16]Exchange
}

// NewRemotePacketRouter returns an empty router.
func NewRemotePacketRouter() *RemotePacketRouter {
	return &RemotePacketRouter{entries: make(map[uint16]Exchange)}
}

// Register reserves id for ex. It fails with
// ErrDuplicateRemotePacketId if id is already reserved by a
// still-in-flight exchange; the first writer wins.
func (r *RemotePacketRouter) Register(id uint16, ex Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return ErrDuplicateRemotePacketId
	}
	r.entries[id] = ex
	return nil
}

// Route delivers p to the exchange reserved under id, removing the
// entry once the exchange reaches its terminal state.
func (r *RemotePacketRouter) Route(id uint16, p packet.Packet) error {
	r.mu.Lock()
	ex, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownPacketId
	}

	if ex.Handle(p) {
		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
	}
	return nil
}

// Release frees id without delivering an event, used on exchange
// deadline expiry.
func (r *RemotePacketRouter) Release(id uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// InFlight returns the number of reservations currently held.
func (r *RemotePacketRouter) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
