package router

import (
	"sync"

	"github.com/axmq/mqttsession/packet"
)

// Exchange is implemented by every per-packet-id state machine (see
// package exchange). Handle delivers one inbound event and reports
// whether the exchange has now reached its terminal state; a terminal
// exchange is removed from the router immediately.
type Exchange interface {
	Handle(p packet.Packet) (terminal bool)
}

// LocalPacketRouter allocates packet identifiers on our side of the
// connection: it is the sole allocator, and
// picks the smallest free id in [1, 65535].
type LocalPacketRouter struct {
	mu      sync.Mutex
	bitmap  idBitmap
	entries map[uint16]Exchange
}

// NewLocalPacketRouter returns an empty router.
func NewLocalPacketRouter() *LocalPacketRouter {
	return &LocalPacketRouter{entries: make(map[uint16]Exchange)}
}

// Register allocates the smallest free id, binds it to ex, and returns
// it. It fails with ErrNoPacketIdsAvailable when 65,535 ids are already
// in flight.
func (r *LocalPacketRouter) Register(ex Exchange) (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bitmap.allocate()
	if !ok {
		return 0, ErrNoPacketIdsAvailable
	}
	r.entries[id] = ex
	return id, nil
}

// Reserve allocates the smallest free id without binding an exchange
// to it yet, for callers whose exchange constructor needs the id
// before it can build (and send) its first packet. The caller must
// follow up with Bind once the exchange exists.
func (r *LocalPacketRouter) Reserve() (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bitmap.allocate()
	if !ok {
		return 0, ErrNoPacketIdsAvailable
	}
	r.entries[id] = nil
	return id, nil
}

// Bind attaches ex to a previously Reserve'd id.
func (r *LocalPacketRouter) Bind(id uint16, ex Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = ex
}

// Route delivers p to the exchange registered under id, removing the
// entry if the exchange reaches its terminal state. ErrUnknownPacketId
// is returned when no exchange is registered; MQTT 3.1.1 does not
// mandate disconnection for an unmatched ack, so callers log and drop
// it rather than failing the connection.
func (r *LocalPacketRouter) Route(id uint16, p packet.Packet) error {
	r.mu.Lock()
	ex, ok := r.entries[id]
	r.mu.Unlock()
	if !ok || ex == nil {
		// nil covers an id Reserve'd but not yet Bind'ed: an ack racing
		// ahead of the exchange's first transmit has nothing to route to.
		return ErrUnknownPacketId
	}

	if ex.Handle(p) {
		r.mu.Lock()
		delete(r.entries, id)
		r.bitmap.release(id)
		r.mu.Unlock()
	}
	return nil
}

// Release frees id without delivering an event to it, used when an
// exchange terminates on its own deadline rather than via an inbound
// ack.
func (r *LocalPacketRouter) Release(id uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	r.bitmap.release(id)
}

// InFlight returns the number of ids currently allocated.
func (r *LocalPacketRouter) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bitmap.inUse
}
