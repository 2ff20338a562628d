// Package exchange implements the per-packet-identifier sub-protocols
// of the QoS 1/2 publish, subscribe, and unsubscribe round-trips:
// Producer, Consumer, Subscriber, Unsubscriber, Publisher and
// Unpublisher. Each in-flight packet id gets its own small state
// machine with its own retry timer.
package exchange

import (
	"sync"
	"time"

	"github.com/axmq/mqttsession/packet"
)

// State is a stage of an exchange's lifecycle.
type State int

const (
	StatePending State = iota
	StateAwaitingPubAck
	StateAwaitingPubRec
	StateAwaitingPubRel
	StateAwaitingPubComp
	StateAwaitingAck
	StateTerminated
)

// Config bounds an exchange's retry behavior. Zero value timeouts fall
// back to DefaultConfig's values.
type Config struct {
	AckTimeout  time.Duration
	MaxAttempts int
}

// DefaultConfig returns the stock retry policy.
func DefaultConfig() Config {
	return Config{AckTimeout: 20 * time.Second, MaxAttempts: 5}
}

func (c Config) withDefaults() Config {
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultConfig().AckTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return c
}

// Producer drives an outgoing QoS 1 or QoS 2 PUBLISH:
// Pending -> AwaitingPubAck -> Terminated for QoS 1, or
// Pending -> AwaitingPubRec -> AwaitingPubComp -> Terminated for QoS 2.
type Producer[A any] struct {
	mu    sync.Mutex
	id    uint16
	carry A
	pub   *packet.Publish
	cfg   Config
	state State

	attempts int
	timer    *time.Timer

	send        func(packet.Packet)
	onAck       func(carry A, terminal packet.Packet)
	onAbandoned func(carry A)
}

// NewProducer starts a producer for pub (whose ID must already be
// allocated by the caller's LocalPacketRouter). send is called once
// immediately with the initial PUBLISH and again, with DUP set, on
// every retransmit. onAck fires exactly once, with the final PUBACK
// (QoS 1) or PUBCOMP (QoS 2), when the exchange completes normally.
// onAbandoned fires instead if MaxAttempts is exhausted.
func NewProducer[A any](id uint16, carry A, pub *packet.Publish, cfg Config, send func(packet.Packet), onAck func(A, packet.Packet), onAbandoned func(A)) *Producer[A] {
	cfg = cfg.withDefaults()
	pub.ID = id

	p := &Producer[A]{
		id: id, carry: carry, pub: pub, cfg: cfg,
		send: send, onAck: onAck, onAbandoned: onAbandoned,
	}

	p.mu.Lock()
	p.transmit()
	if pub.QoS == packet.QoS1 {
		p.state = StateAwaitingPubAck
	} else {
		p.state = StateAwaitingPubRec
	}
	p.armTimer()
	p.mu.Unlock()

	return p
}

// transmit must be called with mu held.
func (p *Producer[A]) transmit() {
	p.attempts++
	pub := *p.pub
	pub.DUP = p.attempts > 1
	p.send(&pub)
}

// armTimer must be called with mu held.
func (p *Producer[A]) armTimer() {
	p.timer = time.AfterFunc(p.cfg.AckTimeout, p.onTimeout)
}

func (p *Producer[A]) onTimeout() {
	p.mu.Lock()
	if p.state == StateTerminated {
		p.mu.Unlock()
		return
	}

	if p.attempts >= p.cfg.MaxAttempts {
		p.state = StateTerminated
		carry := p.carry
		p.mu.Unlock()
		p.onAbandoned(carry)
		return
	}

	if p.state == StateAwaitingPubComp {
		p.attempts++
		p.send(&packet.PubRel{ID: p.id})
	} else {
		p.transmit()
	}
	p.armTimer()
	p.mu.Unlock()
}

// Handle implements router.Exchange. It is called by the owning
// LocalPacketRouter when a PUBACK, PUBREC, or PUBCOMP arrives for this
// producer's packet id.
func (p *Producer[A]) Handle(evt packet.Packet) bool {
	p.mu.Lock()

	switch e := evt.(type) {
	case *packet.PubAck:
		if p.state != StateAwaitingPubAck {
			p.mu.Unlock()
			return false
		}
		p.terminate()
		carry := p.carry
		p.mu.Unlock()
		p.onAck(carry, e)
		return true

	case *packet.PubRec:
		if p.state != StateAwaitingPubRec {
			p.mu.Unlock()
			return false
		}
		p.timer.Stop()
		p.state = StateAwaitingPubComp
		p.attempts = 0
		id := p.id
		p.armTimer()
		p.mu.Unlock()
		p.send(&packet.PubRel{ID: id})
		return false

	case *packet.PubComp:
		if p.state != StateAwaitingPubComp {
			p.mu.Unlock()
			return false
		}
		p.terminate()
		carry := p.carry
		p.mu.Unlock()
		p.onAck(carry, e)
		return true

	default:
		p.mu.Unlock()
		return false
	}
}

// terminate must be called with mu held.
func (p *Producer[A]) terminate() {
	p.state = StateTerminated
	if p.timer != nil {
		p.timer.Stop()
	}
}

// Resume restarts retransmission after a clean-session=false reconnect,
// sending the pending PUBLISH again with DUP=1, or the PUBREL if PUBREC
// has already arrived.
func (p *Producer[A]) Resume(send func(packet.Packet)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.send = send
	switch p.state {
	case StateAwaitingPubAck, StateAwaitingPubRec:
		p.transmit()
	case StateAwaitingPubComp:
		p.send(&packet.PubRel{ID: p.id})
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.armTimer()
}

// Abandon forcibly terminates the producer without an ack, used when
// the session discards exchanges on a clean-session reconnect.
func (p *Producer[A]) Abandon() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminate()
}

// State returns the producer's current state.
func (p *Producer[A]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
