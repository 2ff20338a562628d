package exchange

import (
	"sync"
	"time"

	"github.com/axmq/mqttsession/packet"
)

// Subscriber drives an outgoing SUBSCRIBE:
// AwaitingSubAck -> Terminated. A timed-out subscribe is abandoned
// rather than retried; MQTT 3.1.1 gives subscribe no DUP semantics, so
// a retry would risk the server applying the filter list twice.
type Subscriber[A any] struct {
	mu    sync.Mutex
	id    uint16
	carry A
	state State
	timer *time.Timer

	onAck       func(carry A, returnCodes []byte)
	onAbandoned func(carry A)
}

// NewSubscriber sends sub (whose ID must already be allocated) and
// starts the ack deadline.
func NewSubscriber[A any](id uint16, carry A, sub *packet.Subscribe, timeout time.Duration, send func(packet.Packet), onAck func(A, []byte), onAbandoned func(A)) *Subscriber[A] {
	if timeout <= 0 {
		timeout = DefaultConfig().AckTimeout
	}
	sub.ID = id
	s := &Subscriber[A]{id: id, carry: carry, state: StateAwaitingAck, onAck: onAck, onAbandoned: onAbandoned}
	send(sub)
	s.timer = time.AfterFunc(timeout, s.onTimeout)
	return s
}

func (s *Subscriber[A]) onTimeout() {
	s.mu.Lock()
	if s.state != StateAwaitingAck {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminated
	carry := s.carry
	s.mu.Unlock()
	s.onAbandoned(carry)
}

// Handle implements router.Exchange.
func (s *Subscriber[A]) Handle(evt packet.Packet) bool {
	s.mu.Lock()
	if s.state != StateAwaitingAck {
		s.mu.Unlock()
		return false
	}

	ack, ok := evt.(*packet.SubAck)
	if !ok {
		s.mu.Unlock()
		return false
	}

	s.state = StateTerminated
	s.timer.Stop()
	carry := s.carry
	s.mu.Unlock()
	s.onAck(carry, ack.ReturnCodes)
	return true
}

// Unsubscriber drives an outgoing UNSUBSCRIBE the same way Subscriber
// drives SUBSCRIBE.
type Unsubscriber[A any] struct {
	mu    sync.Mutex
	id    uint16
	carry A
	state State
	timer *time.Timer

	onAck       func(carry A)
	onAbandoned func(carry A)
}

// NewUnsubscriber sends uns and starts the ack deadline.
func NewUnsubscriber[A any](id uint16, carry A, uns *packet.Unsubscribe, timeout time.Duration, send func(packet.Packet), onAck func(A), onAbandoned func(A)) *Unsubscriber[A] {
	if timeout <= 0 {
		timeout = DefaultConfig().AckTimeout
	}
	uns.ID = id
	u := &Unsubscriber[A]{id: id, carry: carry, state: StateAwaitingAck, onAck: onAck, onAbandoned: onAbandoned}
	send(uns)
	u.timer = time.AfterFunc(timeout, u.onTimeout)
	return u
}

func (u *Unsubscriber[A]) onTimeout() {
	u.mu.Lock()
	if u.state != StateAwaitingAck {
		u.mu.Unlock()
		return
	}
	u.state = StateTerminated
	carry := u.carry
	u.mu.Unlock()
	u.onAbandoned(carry)
}

// Handle implements router.Exchange.
func (u *Unsubscriber[A]) Handle(evt packet.Packet) bool {
	u.mu.Lock()
	if u.state != StateAwaitingAck {
		u.mu.Unlock()
		return false
	}

	if _, ok := evt.(*packet.UnsubAck); !ok {
		u.mu.Unlock()
		return false
	}

	u.state = StateTerminated
	u.timer.Stop()
	carry := u.carry
	u.mu.Unlock()
	u.onAck(carry)
	return true
}
