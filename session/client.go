package session

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/axmq/mqttsession/codec"
	"github.com/axmq/mqttsession/connector"
	"github.com/axmq/mqttsession/exchange"
	"github.com/axmq/mqttsession/mqttlog"
	"github.com/axmq/mqttsession/packet"
	"github.com/axmq/mqttsession/router"
)

// Client is the client-role session engine: one instance per
// transport, binding a ClientConnector, the local and remote packet-id
// routers, and the live exchanges to the application-facing
// CommandFlow/EventFlow pipes. A is the carry type: an opaque
// correlation value attached to each Command and echoed back on the
// Event that completes it.
type Client[A any] struct {
	mu  sync.Mutex
	cfg Settings
	log mqttlog.Logger

	conn   *connector.ClientConnector
	local  *router.LocalPacketRouter
	remote *router.RemotePacketRouter
	dedup  *exchange.DedupCache

	producers     map[uint16]*exchange.Producer[A]
	consumers     map[uint16]*exchange.Consumer[A]
	subscribers   map[uint16]*exchange.Subscriber[A]
	unsubscribers map[uint16]*exchange.Unsubscriber[A]

	connectCarry A
	cleanSession bool

	out     chan []byte
	events  chan Event[A]
	sem     *semaphore.Weighted
	closed  bool
	closeCh chan struct{}
}

// NewClient builds a Client ready to have its CommandFlow and
// EventFlow driven by an external transport.
func NewClient[A any](cfg Settings) *Client[A] {
	cfg = cfg.withDefaults()
	c := &Client[A]{
		cfg:           cfg,
		log:           cfg.Logger,
		local:         router.NewLocalPacketRouter(),
		remote:        router.NewRemotePacketRouter(),
		dedup:         exchange.NewDedupCache(0, 0),
		producers:     make(map[uint16]*exchange.Producer[A]),
		consumers:     make(map[uint16]*exchange.Consumer[A]),
		subscribers:   make(map[uint16]*exchange.Subscriber[A]),
		unsubscribers: make(map[uint16]*exchange.Unsubscriber[A]),
		out:           make(chan []byte, cfg.ClientSendBufferSize),
		events:        make(chan Event[A], cfg.ClientSendBufferSize),
		sem:           semaphore.NewWeighted(int64(cfg.CommandParallelism)),
		closeCh:       make(chan struct{}),
	}
	c.conn = connector.NewClientConnector(cfg.clientConnectorConfig(), c.sendPacket, c.handleConnAck, c.handleConnectionLost)
	return c
}

func (c *Client[A]) sendPacket(p packet.Packet) error {
	b, err := codec.Encode(p)
	if err != nil {
		c.log.Error("encode failed", mqttlog.PacketType(p.Type()), mqttlog.Err(err))
		return err
	}
	select {
	case c.out <- b:
		return nil
	case <-c.closeCh:
		return ErrSessionClosed
	}
}

func (c *Client[A]) emit(evt Event[A]) {
	select {
	case c.events <- evt:
	case <-c.closeCh:
	}
}

func (c *Client[A]) handleConnAck(ack *packet.ConnAck) {
	c.mu.Lock()
	carry := c.connectCarry
	clean := c.cleanSession
	c.mu.Unlock()
	c.log.Debug("connack received", "return_code", ack.ReturnCode, "session_present", ack.SessionPresent)
	if ack.ReturnCode == packet.Accepted {
		if clean {
			c.discardExchanges()
		} else {
			c.resumeProducers()
		}
	}
	c.emit(Event[A]{Carry: carry, Body: ConnAckEvent{SessionPresent: ack.SessionPresent, ReturnCode: ack.ReturnCode}})
}

// discardExchanges drops every unresolved publish exchange and frees
// its packet id, for a session (re)established with CleanSession=true.
func (c *Client[A]) discardExchanges() {
	c.mu.Lock()
	producers := c.producers
	consumers := c.consumers
	c.producers = make(map[uint16]*exchange.Producer[A])
	c.consumers = make(map[uint16]*exchange.Consumer[A])
	c.mu.Unlock()

	for id, p := range producers {
		p.Abandon()
		c.local.Release(id)
	}
	for id := range consumers {
		c.remote.Release(id)
	}
}

// resumeProducers retransmits every unresolved outgoing publish with
// DUP set, for a session resumed with CleanSession=false.
func (c *Client[A]) resumeProducers() {
	c.mu.Lock()
	producers := make([]*exchange.Producer[A], 0, len(c.producers))
	for _, p := range c.producers {
		producers = append(producers, p)
	}
	c.mu.Unlock()

	for _, p := range producers {
		p.Resume(func(pk packet.Packet) { _ = c.sendPacket(pk) })
	}
}

func (c *Client[A]) handleConnectionLost(err error) {
	c.log.Warn("connection lost", mqttlog.Err(err))
	var zero A
	c.emit(Event[A]{Carry: zero, Body: ConnectionLostEvent{Err: err}})
}

// CommandFlow returns the pipe the application submits Commands into.
func (c *Client[A]) CommandFlow() *ClientCommandFlow[A] { return &ClientCommandFlow[A]{c: c} }

// EventFlow returns the pipe that turns inbound bytes into application
// Events.
func (c *Client[A]) EventFlow() *ClientEventFlow[A] { return &ClientEventFlow[A]{c: c} }

// Close shuts the session down: it stops accepting commands and
// unblocks any flow waiting to send or receive.
func (c *Client[A]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.closeCh)
	return nil
}

// ClientCommandFlow is the consumer-of-Commands, producer-of-bytes
// pipe of a client session.
type ClientCommandFlow[A any] struct{ c *Client[A] }

// Out yields the encoded bytes to write to the transport, in the order
// Submit accepted the Commands that produced them.
func (f *ClientCommandFlow[A]) Out() <-chan []byte { return f.c.out }

// Submit dispatches one Command, bounded by
// Settings.CommandParallelism concurrent in-flight calls.
func (f *ClientCommandFlow[A]) Submit(ctx context.Context, cmd Command[A]) error {
	c := f.c
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	switch body := cmd.Body.(type) {
	case ConnectCommand:
		return c.submitConnect(body, cmd.Carry)
	case PublishCommand:
		return c.submitPublish(body, cmd.Carry)
	case SubscribeCommand:
		return c.submitSubscribe(body, cmd.Carry)
	case UnsubscribeCommand:
		return c.submitUnsubscribe(body, cmd.Carry)
	case DisconnectCommand:
		return c.submitDisconnect()
	default:
		return ErrIllegalCommand
	}
}

func (c *Client[A]) submitConnect(cmd ConnectCommand, carry A) error {
	c.mu.Lock()
	c.connectCarry = carry
	c.cleanSession = cmd.CleanSession
	c.mu.Unlock()

	connect := &packet.Connect{
		ProtocolName: "MQTT", ProtocolLevel: 4,
		CleanSession: cmd.CleanSession, KeepAlive: cmd.KeepAlive, ClientID: cmd.ClientID,
		UsernameFlag: cmd.Username != "", Username: cmd.Username,
		PasswordFlag: len(cmd.Password) > 0, Password: cmd.Password,
	}
	if cmd.Will != nil {
		connect.WillFlag = true
		connect.WillTopic = cmd.Will.Topic
		connect.WillPayload = cmd.Will.Payload
		connect.WillQoS = cmd.Will.QoS
		connect.WillRetain = cmd.Will.Retain
	}
	return c.conn.Connect(connect)
}

func (c *Client[A]) submitPublish(cmd PublishCommand, carry A) error {
	if cmd.QoS == packet.QoS0 {
		return c.sendPacket(&packet.Publish{QoS: packet.QoS0, Retain: cmd.Retain, Topic: cmd.Topic, Payload: cmd.Payload})
	}

	id, err := c.local.Reserve()
	if err != nil {
		return err
	}

	pub := &packet.Publish{QoS: cmd.QoS, Retain: cmd.Retain, Topic: cmd.Topic, Payload: cmd.Payload}
	prod := exchange.NewProducer(id, carry, pub, c.cfg.producerConfig(), func(p packet.Packet) { _ = c.sendPacket(p) },
		func(carry A, terminal packet.Packet) { c.onProducerAck(id, carry, terminal) },
		func(carry A) { c.onProducerAbandoned(id, carry) })
	c.local.Bind(id, prod)

	c.mu.Lock()
	c.producers[id] = prod
	c.mu.Unlock()
	return nil
}

func (c *Client[A]) onProducerAck(id uint16, carry A, terminal packet.Packet) {
	c.mu.Lock()
	delete(c.producers, id)
	c.mu.Unlock()
	c.emit(Event[A]{Carry: carry, Body: PublishAckEvent{}})
}

func (c *Client[A]) onProducerAbandoned(id uint16, carry A) {
	c.mu.Lock()
	delete(c.producers, id)
	c.mu.Unlock()
	c.local.Release(id)
	c.log.Warn("producer abandoned", mqttlog.PacketID(id), mqttlog.Err(exchange.ErrExchangeAbandoned))
	c.emit(Event[A]{Carry: carry, Body: PublishAckEvent{Abandoned: true}})
}

func (c *Client[A]) submitSubscribe(cmd SubscribeCommand, carry A) error {
	id, err := c.local.Reserve()
	if err != nil {
		return err
	}
	sub := &packet.Subscribe{Filters: cmd.Filters}
	s := exchange.NewSubscriber(id, carry, sub, c.cfg.SubscribeAckTimeout, func(p packet.Packet) { _ = c.sendPacket(p) },
		func(carry A, codes []byte) { c.onSubscribeAck(id, carry, codes) },
		func(carry A) { c.onSubscribeAbandoned(id, carry) })
	c.local.Bind(id, s)

	c.mu.Lock()
	c.subscribers[id] = s
	c.mu.Unlock()
	return nil
}

func (c *Client[A]) onSubscribeAck(id uint16, carry A, codes []byte) {
	c.mu.Lock()
	delete(c.subscribers, id)
	c.mu.Unlock()
	c.emit(Event[A]{Carry: carry, Body: SubAckEvent{ReturnCodes: codes}})
}

func (c *Client[A]) onSubscribeAbandoned(id uint16, carry A) {
	c.mu.Lock()
	delete(c.subscribers, id)
	c.mu.Unlock()
	c.local.Release(id)
	c.emit(Event[A]{Carry: carry, Body: SubAckEvent{Abandoned: true}})
}

func (c *Client[A]) submitUnsubscribe(cmd UnsubscribeCommand, carry A) error {
	id, err := c.local.Reserve()
	if err != nil {
		return err
	}
	uns := &packet.Unsubscribe{Filters: cmd.Filters}
	u := exchange.NewUnsubscriber(id, carry, uns, c.cfg.UnsubscribeAckTimeout, func(p packet.Packet) { _ = c.sendPacket(p) },
		func(carry A) { c.onUnsubscribeAck(id, carry) },
		func(carry A) { c.onUnsubscribeAbandoned(id, carry) })
	c.local.Bind(id, u)

	c.mu.Lock()
	c.unsubscribers[id] = u
	c.mu.Unlock()
	return nil
}

func (c *Client[A]) onUnsubscribeAck(id uint16, carry A) {
	c.mu.Lock()
	delete(c.unsubscribers, id)
	c.mu.Unlock()
	c.emit(Event[A]{Carry: carry, Body: UnsubAckEvent{}})
}

func (c *Client[A]) onUnsubscribeAbandoned(id uint16, carry A) {
	c.mu.Lock()
	delete(c.unsubscribers, id)
	c.mu.Unlock()
	c.local.Release(id)
	c.emit(Event[A]{Carry: carry, Body: UnsubAckEvent{Abandoned: true}})
}

// submitDisconnect is idempotent:
// submitting Disconnect twice yields one Disconnect on the wire,
// because the second call finds the connector already outside the
// Connected state and returns ErrNotConnected without writing again.
func (c *Client[A]) submitDisconnect() error {
	return c.conn.Disconnect()
}

// ClientEventFlow is the consumer-of-bytes, producer-of-Events pipe of
// a client session.
type ClientEventFlow[A any] struct{ c *Client[A] }

// In yields decoded application Events in wire-arrival order.
func (f *ClientEventFlow[A]) In() <-chan Event[A] { return f.c.events }

// ConnectionLost tells the session its transport failed. Either pipe
// end completing abnormally should call this, so the keep-alive timer
// stops and a ConnectionLostEvent is surfaced; exchange state is kept
// for a CleanSession=false reconnect to resume.
func (f *ClientEventFlow[A]) ConnectionLost(err error) { f.c.conn.ConnectionLost(err) }

// HandleFrame dispatches one already-framed inbound packet, the
// receive-side dual of Submit. A non-nil error is surfaced to the
// caller for it to forward on the event boundary; the caller is
// responsible for closing the connection afterward.
func (f *ClientEventFlow[A]) HandleFrame(p packet.Packet) error {
	c := f.c
	if err := c.conn.HandlePacket(p); err != nil {
		c.log.Warn("illegal protocol event", mqttlog.PacketType(p.Type()), mqttlog.Err(err))
		return ErrIllegalProtocolEvent
	}

	switch pk := p.(type) {
	case *packet.ConnAck:
		return nil // already surfaced by the connector's onConnAck callback

	case *packet.Publish:
		return c.handleInboundPublish(pk)

	case *packet.PubAck, *packet.PubRec, *packet.PubComp:
		id, _ := p.PacketID()
		if err := c.local.Route(id, p); err != nil {
			c.log.Debug("route miss", mqttlog.PacketID(id), mqttlog.Err(err)) // unmatched ack: log and drop
		}
		return nil

	case *packet.SubAck:
		id, _ := p.PacketID()
		if err := c.local.Route(id, p); err != nil {
			c.log.Debug("route miss", mqttlog.PacketID(id), mqttlog.Err(err))
		}
		return nil

	case *packet.UnsubAck:
		id, _ := p.PacketID()
		if err := c.local.Route(id, p); err != nil {
			c.log.Debug("route miss", mqttlog.PacketID(id), mqttlog.Err(err))
		}
		return nil

	case *packet.PubRel:
		id, _ := p.PacketID()
		if err := c.remote.Route(id, p); err != nil {
			c.log.Debug("route miss", mqttlog.PacketID(id), mqttlog.Err(err))
		}
		return nil

	case packet.PingResp, *packet.PingResp:
		return nil

	case packet.Disconnect, *packet.Disconnect:
		return ErrIllegalProtocolEvent

	case *packet.Connect, *packet.Subscribe, *packet.Unsubscribe, packet.PingReq, *packet.PingReq:
		// A client never legally receives these.
		return ErrIllegalProtocolEvent

	default:
		return nil
	}
}

// handleInboundPublish routes a server-originated PUBLISH: QoS 0 and
// QoS 1 deliver straight to the application; QoS 2 registers a
// Consumer exchange under the peer-chosen packet id, so a DUP
// retransmit of the same id never reaches the application twice.
func (c *Client[A]) handleInboundPublish(pub *packet.Publish) error {
	var zero A
	switch pub.QoS {
	case packet.QoS0:
		c.emit(Event[A]{Carry: zero, Body: MessageEvent{Topic: pub.Topic, QoS: pub.QoS, Retain: pub.Retain, Payload: pub.Payload}})
		return nil

	case packet.QoS1:
		ack := exchange.AckQoS1(pub, func(p *packet.Publish) {
			c.emit(Event[A]{Carry: zero, Body: MessageEvent{Topic: p.Topic, QoS: p.QoS, Retain: p.Retain, Payload: p.Payload}})
		})
		return c.sendPacket(ack)

	default: // QoS2
		id := pub.ID
		if err := c.remote.Route(id, pub); err == nil {
			return nil // duplicate DUP=1 retransmit: existing Consumer already re-sent PUBREC
		}
		if pub.DUP && c.dedup.Seen(id) {
			// the exchange already completed; our PUBCOMP was lost
			return c.sendPacket(&packet.PubComp{ID: id})
		}
		if !pub.DUP {
			c.dedup.Remove(id) // peer is reusing the id for a new message
		}
		consumer := exchange.NewConsumer(id, zero, pub, func(p packet.Packet) { _ = c.sendPacket(p) },
			func(carry A, delivery *packet.Publish) {
				c.mu.Lock()
				delete(c.consumers, id)
				c.mu.Unlock()
				c.dedup.Seen(id)
				c.emit(Event[A]{Carry: carry, Body: MessageEvent{Topic: delivery.Topic, QoS: delivery.QoS, Retain: delivery.Retain, Payload: delivery.Payload}})
			})
		if err := c.remote.Register(id, consumer); err != nil {
			c.log.Debug("duplicate remote packet id", mqttlog.PacketID(id))
			return nil
		}
		c.mu.Lock()
		c.consumers[id] = consumer
		c.mu.Unlock()
		return nil
	}
}
