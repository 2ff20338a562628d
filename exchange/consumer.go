package exchange

import (
	"container/list"
	"sync"
	"time"

	"github.com/axmq/mqttsession/packet"
)

// AckQoS1 delivers a QoS 1 PUBLISH to the application exactly once per
// received packet and returns the PUBACK to send in reply. QoS 1 makes
// no at-most-once guarantee, so duplicate deliveries on retransmitted
// DUP publishes are expected and handled by the application, not here.
func AckQoS1(pub *packet.Publish, onDeliver func(*packet.Publish)) *packet.PubAck {
	onDeliver(pub)
	return &packet.PubAck{ID: pub.ID}
}

// Consumer drives an incoming QoS 2 PUBLISH:
// AwaitingPubRel -> Terminated. It delivers the payload to the
// application exactly once, on the first PUBREL, even if the initial
// PUBLISH is retransmitted with DUP=1 before the PUBREL arrives.
type Consumer[A any] struct {
	mu       sync.Mutex
	id       uint16
	carry    A
	state    State
	delivery *packet.Publish

	send  func(packet.Packet)
	onAck func(carry A, delivery *packet.Publish)
}

// NewConsumer registers a fresh QoS 2 receive and immediately sends the
// PUBREC acknowledging it.
func NewConsumer[A any](id uint16, carry A, pub *packet.Publish, send func(packet.Packet), onAck func(A, *packet.Publish)) *Consumer[A] {
	c := &Consumer[A]{id: id, carry: carry, state: StateAwaitingPubRel, delivery: pub, send: send, onAck: onAck}
	send(&packet.PubRec{ID: id})
	return c
}

// Handle implements router.Exchange. A duplicate PUBLISH (DUP=1, same
// id) while still awaiting PUBREL simply re-sends PUBREC without a
// second delivery; a PUBREL delivers the payload once and terminates.
func (c *Consumer[A]) Handle(evt packet.Packet) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAwaitingPubRel {
		return false
	}

	switch evt.(type) {
	case *packet.Publish:
		c.send(&packet.PubRec{ID: c.id})
		return false

	case *packet.PubRel:
		c.state = StateTerminated
		c.send(&packet.PubComp{ID: c.id})
		c.onAck(c.carry, c.delivery)
		return true

	default:
		return false
	}
}

// Delivery returns the PUBLISH payload this consumer is holding.
func (c *Consumer[A]) Delivery() *packet.Publish {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivery
}

// dedupEntry records that id was already processed to completion,
// independent of whether its Consumer is still registered, so a very
// late PUBLISH retransmit is still recognized as a duplicate.
type dedupEntry struct {
	id   uint16
	seen time.Time
}

// DedupCache bounds how long a completed QoS 2 packet id is remembered
// after its Consumer has already terminated.
type DedupCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	order   *list.List
	index   map[uint16]*list.Element
}

// NewDedupCache returns a cache remembering up to maxSize ids for ttl.
func NewDedupCache(maxSize int, ttl time.Duration) *DedupCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &DedupCache{ttl: ttl, maxSize: maxSize, order: list.New(), index: make(map[uint16]*list.Element)}
}

// Seen records id as processed and reports whether it had already been
// recorded (and not yet expired).
func (d *DedupCache) Seen(id uint16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[id]; ok {
		entry := el.Value.(*dedupEntry)
		if time.Since(entry.seen) < d.ttl {
			return true
		}
		d.order.Remove(el)
		delete(d.index, id)
	}

	if d.order.Len() >= d.maxSize {
		d.evictOldest()
	}

	el := d.order.PushBack(&dedupEntry{id: id, seen: time.Now()})
	d.index[id] = el
	return false
}

// evictOldest must be called with mu held.
func (d *DedupCache) evictOldest() {
	el := d.order.Front()
	if el == nil {
		return
	}
	d.order.Remove(el)
	delete(d.index, el.Value.(*dedupEntry).id)
}

// Remove forgets id. The sessions call it when a PUBLISH without DUP
// arrives for id, since the peer is then reusing the id for a new
// message.
func (d *DedupCache) Remove(id uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.index[id]; ok {
		d.order.Remove(el)
		delete(d.index, id)
	}
}
