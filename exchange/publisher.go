package exchange

import (
	"sync"

	"github.com/axmq/mqttsession/packet"
)

// Publisher holds a server's in-flight reservation of a client-chosen
// packet id between receiving a SUBSCRIBE and sending its SUBACK
//. The subscription table itself is an external
// collaborator: Publisher only guards against a second
// SUBSCRIBE reusing the same id before the application finishes
// applying the first.
type Publisher[A any] struct {
	mu    sync.Mutex
	id    uint16
	carry A
	state State

	send func(packet.Packet)
}

// NewPublisher registers the reservation. Complete must be called once
// the application has computed return codes for each filter.
func NewPublisher[A any](id uint16, carry A, send func(packet.Packet)) *Publisher[A] {
	return &Publisher[A]{id: id, carry: carry, state: StateAwaitingAck, send: send}
}

// Handle implements router.Exchange. A duplicate SUBSCRIBE for the
// same still-pending id is dropped; the peer must wait for the
// original SUBACK.
func (p *Publisher[A]) Handle(evt packet.Packet) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = evt
	return p.state == StateTerminated
}

// Complete sends the SUBACK with returnCodes and terminates the
// exchange.
func (p *Publisher[A]) Complete(returnCodes []byte) {
	p.mu.Lock()
	if p.state == StateTerminated {
		p.mu.Unlock()
		return
	}
	p.state = StateTerminated
	p.mu.Unlock()
	p.send(&packet.SubAck{ID: p.id, ReturnCodes: returnCodes})
}

// Carry returns the value the caller attached at registration.
func (p *Publisher[A]) Carry() A {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.carry
}

// Unpublisher is Publisher's UNSUBSCRIBE/UNSUBACK counterpart.
type Unpublisher[A any] struct {
	mu    sync.Mutex
	id    uint16
	carry A
	state State

	send func(packet.Packet)
}

// NewUnpublisher registers the reservation.
func NewUnpublisher[A any](id uint16, carry A, send func(packet.Packet)) *Unpublisher[A] {
	return &Unpublisher[A]{id: id, carry: carry, state: StateAwaitingAck, send: send}
}

// Handle implements router.Exchange.
func (u *Unpublisher[A]) Handle(evt packet.Packet) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_ = evt
	return u.state == StateTerminated
}

// Complete sends the UNSUBACK and terminates the exchange.
func (u *Unpublisher[A]) Complete() {
	u.mu.Lock()
	if u.state == StateTerminated {
		u.mu.Unlock()
		return
	}
	u.state = StateTerminated
	u.mu.Unlock()
	u.send(&packet.UnsubAck{ID: u.id})
}

// Carry returns the value the caller attached at registration.
func (u *Unpublisher[A]) Carry() A {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.carry
}
