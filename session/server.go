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

// Server is the server-role session engine: one instance multiplexes
// every client connection a broker process holds, each identified by a
// caller-supplied connection id. It owns the shared ServerConnector
// (session takeover) and the Manager (session records, will delivery,
// client-id assignment), and hands out a CommandFlow/EventFlow pair
// per connection via Accept.
type Server[A any] struct {
	mu  sync.Mutex
	cfg Settings
	log mqttlog.Logger

	conn    *connector.ServerConnector
	manager *Manager

	conns map[string]*serverConn[A]
	sem   *semaphore.Weighted

	termCh  chan SessionTerminatedEvent
	closed  bool
	closeCh chan struct{}
}

// serverConn is the per-connection state a Server multiplexes: its own
// packet-id routers, in-flight exchanges, and byte/event pipes, mirroring
// Client's fields one-for-one but scoped to a single connection id.
type serverConn[A any] struct {
	id  string
	sc  *connector.ServerClientConnection
	log mqttlog.Logger

	local  *router.LocalPacketRouter
	remote *router.RemotePacketRouter
	dedup  *exchange.DedupCache

	producers    map[uint16]*exchange.Producer[A]
	consumers    map[uint16]*exchange.Consumer[A]
	publishers   map[uint16]*exchange.Publisher[A]
	unpublishers map[uint16]*exchange.Unpublisher[A]

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}

	out    chan []byte
	events chan Event[A]
}

// NewServer builds a Server backed by manager, ready to Accept
// connections.
func NewServer[A any](cfg Settings, manager *Manager) *Server[A] {
	cfg = cfg.withDefaults()
	s := &Server[A]{
		cfg:     cfg,
		log:     cfg.Logger,
		manager: manager,
		conns:   make(map[string]*serverConn[A]),
		sem:     semaphore.NewWeighted(int64(cfg.CommandParallelism)),
		termCh:  make(chan SessionTerminatedEvent, cfg.ClientTerminationWatcherBufferSize),
		closeCh: make(chan struct{}),
	}
	s.conn = connector.NewServerConnector(s.onTerminated)
	return s
}

// Accept registers a new transport-level connection under connectionID
// and returns its CommandFlow/EventFlow pair. The caller owns pumping
// CommandFlow.Out() to the socket and decoded frames into
// EventFlow.HandleFrame.
func (s *Server[A]) Accept(connectionID string) (*ServerCommandFlow[A], *ServerEventFlow[A]) {
	sc := &serverConn[A]{
		id:           connectionID,
		log:          s.log.With(mqttlog.ConnectionID(connectionID)),
		local:        router.NewLocalPacketRouter(),
		remote:       router.NewRemotePacketRouter(),
		dedup:        exchange.NewDedupCache(0, 0),
		producers:    make(map[uint16]*exchange.Producer[A]),
		consumers:    make(map[uint16]*exchange.Consumer[A]),
		publishers:   make(map[uint16]*exchange.Publisher[A]),
		unpublishers: make(map[uint16]*exchange.Unpublisher[A]),
		closeCh:      make(chan struct{}),
		out:          make(chan []byte, s.cfg.ServerSendBufferSize),
		events:       make(chan Event[A], s.cfg.ServerSendBufferSize),
	}
	sc.sc = s.conn.Accept(connectionID, func(p packet.Packet) error { return s.sendPacket(sc, p) })

	s.mu.Lock()
	s.conns[connectionID] = sc
	s.mu.Unlock()

	return &ServerCommandFlow[A]{s: s, sc: sc}, &ServerEventFlow[A]{s: s, sc: sc}
}

func (s *Server[A]) sendPacket(sc *serverConn[A], p packet.Packet) error {
	b, err := codec.Encode(p)
	if err != nil {
		sc.log.Error("encode failed", mqttlog.PacketType(p.Type()), mqttlog.Err(err))
		return err
	}
	select {
	case sc.out <- b:
		return nil
	case <-sc.closeCh:
		return ErrSessionClosed
	}
}

func (s *Server[A]) emit(sc *serverConn[A], evt Event[A]) {
	select {
	case sc.events <- evt:
	case <-sc.closeCh:
	}
}

// onTerminated is the ServerConnector's onTerminated callback (shared
// across every connection): it updates the session record, surfaces
// the stored will message as a WillEvent unless reason is nil (a
// graceful DISCONNECT never fires the will), tears down the
// connection's pipes, and reports the termination on the
// watchClientSessions stream.
func (s *Server[A]) onTerminated(connectionID, clientID string, reason error) {
	s.mu.Lock()
	sc, ok := s.conns[connectionID]
	delete(s.conns, connectionID)
	s.mu.Unlock()

	var will *WillMessage
	if clientID != "" {
		w, err := s.manager.Disconnect(context.Background(), clientID, reason != nil)
		if err != nil {
			s.log.Warn("session disconnect bookkeeping failed", mqttlog.ClientID(clientID), mqttlog.Err(err))
		}
		will = w
	}

	if ok {
		if will != nil {
			// before the pipes close, so the application still reading
			// this connection's EventFlow observes the will; a full
			// buffer drops it rather than stalling the connector
			select {
			case sc.events <- Event[A]{Body: WillEvent{ClientID: clientID, Will: will}}:
			default:
				sc.log.Warn("event buffer full, dropping will event", mqttlog.ClientID(clientID))
			}
		}
		sc.mu.Lock()
		if !sc.closed {
			sc.closed = true
			close(sc.closeCh)
		}
		sc.mu.Unlock()
	}

	s.publishTerminated(SessionTerminatedEvent{ClientID: clientID, Reason: reason})
}

// publishTerminated implements the bounded broadcast of
// watchClientSessions: a full buffer drops the newest notice rather
// than blocking the connector.
func (s *Server[A]) publishTerminated(evt SessionTerminatedEvent) {
	select {
	case s.termCh <- evt:
	default:
		s.log.Warn("client termination watcher buffer full, dropping notice", mqttlog.ClientID(evt.ClientID))
	}
}

// WatchClientSessions returns the broadcast stream of session
// terminations.
func (s *Server[A]) WatchClientSessions() <-chan SessionTerminatedEvent { return s.termCh }

// Close stops accepting new work on every connection currently
// registered; it does not itself disconnect them — callers still own
// their transports.
func (s *Server[A]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.closeCh)
	return s.manager.Close()
}

// ServerCommandFlow is one connection's consumer-of-Commands,
// producer-of-bytes pipe.
type ServerCommandFlow[A any] struct {
	s  *Server[A]
	sc *serverConn[A]
}

// Out yields the encoded bytes to write to this connection's
// transport, in Submit-acceptance order.
func (f *ServerCommandFlow[A]) Out() <-chan []byte { return f.sc.out }

// Submit dispatches one Command for this connection, bounded by
// Settings.CommandParallelism concurrent in-flight calls across the
// whole Server.
func (f *ServerCommandFlow[A]) Submit(ctx context.Context, cmd Command[A]) error {
	s, sc := f.s, f.sc
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	sc.mu.Lock()
	closed = closed || sc.closed
	sc.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	switch body := cmd.Body.(type) {
	case ConnAckCommand:
		return s.submitConnAck(sc, body)
	case PublishCommand:
		return s.submitPublish(sc, body, cmd.Carry)
	case SubAckCommand:
		return s.submitSubAck(sc, body)
	case UnsubAckCommand:
		return s.submitUnsubAck(sc, body)
	case DisconnectCommand:
		return s.submitDisconnect(sc)
	default:
		return ErrIllegalCommand
	}
}

func (s *Server[A]) submitConnAck(sc *serverConn[A], cmd ConnAckCommand) error {
	return s.sendPacket(sc, &packet.ConnAck{SessionPresent: cmd.SessionPresent, ReturnCode: cmd.ReturnCode})
}

func (s *Server[A]) submitPublish(sc *serverConn[A], cmd PublishCommand, carry A) error {
	if cmd.QoS == packet.QoS0 {
		return s.sendPacket(sc, &packet.Publish{QoS: packet.QoS0, Retain: cmd.Retain, Topic: cmd.Topic, Payload: cmd.Payload})
	}

	id, err := sc.local.Reserve()
	if err != nil {
		return err
	}

	pub := &packet.Publish{QoS: cmd.QoS, Retain: cmd.Retain, Topic: cmd.Topic, Payload: cmd.Payload}
	prod := exchange.NewProducer(id, carry, pub, s.cfg.producerConfig(), func(p packet.Packet) { _ = s.sendPacket(sc, p) },
		func(carry A, terminal packet.Packet) { s.onProducerAck(sc, id, carry, terminal) },
		func(carry A) { s.onProducerAbandoned(sc, id, carry) })
	sc.local.Bind(id, prod)

	sc.mu.Lock()
	sc.producers[id] = prod
	sc.mu.Unlock()
	return nil
}

func (s *Server[A]) onProducerAck(sc *serverConn[A], id uint16, carry A, terminal packet.Packet) {
	sc.mu.Lock()
	delete(sc.producers, id)
	sc.mu.Unlock()
	s.emit(sc, Event[A]{Carry: carry, Body: PublishAckEvent{}})
}

func (s *Server[A]) onProducerAbandoned(sc *serverConn[A], id uint16, carry A) {
	sc.mu.Lock()
	delete(sc.producers, id)
	sc.mu.Unlock()
	sc.local.Release(id)
	sc.log.Warn("producer abandoned", mqttlog.PacketID(id), mqttlog.Err(exchange.ErrExchangeAbandoned))
	s.emit(sc, Event[A]{Carry: carry, Body: PublishAckEvent{Abandoned: true}})
}

func (s *Server[A]) submitSubAck(sc *serverConn[A], cmd SubAckCommand) error {
	sc.mu.Lock()
	pub, ok := sc.publishers[cmd.ID]
	delete(sc.publishers, cmd.ID)
	sc.mu.Unlock()
	if !ok {
		sc.log.Debug("suback for unknown reservation", mqttlog.PacketID(cmd.ID))
		return ErrUnknownConnection
	}
	pub.Complete(cmd.ReturnCodes)
	sc.remote.Release(cmd.ID)
	return nil
}

func (s *Server[A]) submitUnsubAck(sc *serverConn[A], cmd UnsubAckCommand) error {
	sc.mu.Lock()
	unpub, ok := sc.unpublishers[cmd.ID]
	delete(sc.unpublishers, cmd.ID)
	sc.mu.Unlock()
	if !ok {
		sc.log.Debug("unsuback for unknown reservation", mqttlog.PacketID(cmd.ID))
		return ErrUnknownConnection
	}
	unpub.Complete()
	sc.remote.Release(cmd.ID)
	return nil
}

// submitDisconnect closes connection sc from the server side, e.g. for
// an administrative kick; it reports no will, matching a cooperative
// DISCONNECT.
func (s *Server[A]) submitDisconnect(sc *serverConn[A]) error {
	s.conn.Disconnect(sc.sc, nil)
	return nil
}

// ServerEventFlow is one connection's consumer-of-bytes,
// producer-of-Events pipe.
type ServerEventFlow[A any] struct {
	s  *Server[A]
	sc *serverConn[A]
}

// In yields decoded application Events for this connection, in
// wire-arrival order.
func (f *ServerEventFlow[A]) In() <-chan Event[A] { return f.sc.events }

// ConnectionLost tells the session this connection's transport failed.
// The session record is updated and the client's will message, if any,
// is emitted as a WillEvent on this flow and handed to the Manager's
// WillPublisher when one is configured, unlike on a graceful DISCONNECT.
func (f *ServerEventFlow[A]) ConnectionLost(err error) { f.s.conn.Disconnect(f.sc.sc, err) }

// HandleFrame dispatches one already-framed inbound packet, the dual
// of HandleFrame on the client side.
func (f *ServerEventFlow[A]) HandleFrame(p packet.Packet) error {
	s, sc := f.s, f.sc
	s.conn.Touch(sc.sc)

	switch pk := p.(type) {
	case *packet.Connect:
		return s.handleInboundConnect(sc, pk)

	case *packet.Publish:
		return s.handleInboundPublish(sc, pk)

	case *packet.PubAck, *packet.PubRec, *packet.PubComp:
		id, _ := p.PacketID()
		if err := sc.local.Route(id, p); err != nil {
			sc.log.Debug("route miss", mqttlog.PacketID(id), mqttlog.Err(err))
		}
		return nil

	case *packet.PubRel:
		id, _ := p.PacketID()
		if err := sc.remote.Route(id, p); err != nil {
			sc.log.Debug("route miss", mqttlog.PacketID(id), mqttlog.Err(err))
		}
		return nil

	case *packet.Subscribe:
		return s.handleInboundSubscribe(sc, pk)

	case *packet.Unsubscribe:
		return s.handleInboundUnsubscribe(sc, pk)

	case packet.PingReq, *packet.PingReq:
		return s.sendPacket(sc, packet.PingResp{})

	case packet.Disconnect, *packet.Disconnect:
		// surfaced before the teardown closes this connection's pipes
		var zero A
		s.emit(sc, Event[A]{Carry: zero, Body: DisconnectEvent{}})
		s.conn.Disconnect(sc.sc, nil)
		return nil

	case *packet.ConnAck, *packet.SubAck, *packet.UnsubAck, packet.PingResp, *packet.PingResp:
		// A server never legally receives these.
		s.conn.Disconnect(sc.sc, ErrIllegalProtocolEvent)
		return ErrIllegalProtocolEvent

	default:
		return nil
	}
}

// handleInboundConnect vets the CONNECT against the shared
// ServerConnector (session takeover) and the Manager
// (clean/resume, client-id assignment), then surfaces a ConnectEvent
// for the application to answer with a ConnAckCommand. The application
// is never asked to compute SessionPresent itself: it is filled in
// from the Manager's CreateOrResume result.
func (s *Server[A]) handleInboundConnect(sc *serverConn[A], connect *packet.Connect) error {
	ctx := context.Background()

	clientID := connect.ClientID
	if clientID == "" {
		id, err := s.manager.GenerateClientID(ctx)
		if err != nil {
			sc.log.Error("client id generation failed", mqttlog.Err(err))
			return s.sendPacket(sc, &packet.ConnAck{ReturnCode: packet.RefusedServerUnavailable})
		}
		clientID = id
	}

	if err := s.manager.Takeover(ctx, clientID); err != nil {
		sc.log.Warn("takeover bookkeeping failed", mqttlog.ClientID(clientID), mqttlog.Err(err))
	}
	s.conn.HandleConnect(sc.sc, &packet.Connect{ClientID: clientID, CleanSession: connect.CleanSession, KeepAlive: connect.KeepAlive})

	rec, sessionPresent, err := s.manager.CreateOrResume(ctx, clientID, connect.CleanSession)
	if err != nil {
		sc.log.Error("session create/resume failed", mqttlog.ClientID(clientID), mqttlog.Err(err))
		return s.sendPacket(sc, &packet.ConnAck{ReturnCode: packet.RefusedServerUnavailable})
	}

	if connect.WillFlag {
		rec.Will = &WillMessage{Topic: connect.WillTopic, Payload: connect.WillPayload, QoS: connect.WillQoS, Retain: connect.WillRetain}
	}

	var zero A
	s.emit(sc, Event[A]{Carry: zero, Body: ConnectEvent{
		ClientID: clientID, CleanSession: connect.CleanSession, KeepAlive: connect.KeepAlive,
		Username: connect.Username, Password: connect.Password, Will: rec.Will,
		SessionPresent: sessionPresent,
	}})
	return nil
}

// handleInboundPublish is the server-side mirror of Client's
// handleInboundPublish: QoS 0/1 deliver straight through, QoS 2 drives
// a Consumer exchange keyed by the client-chosen packet id, with the
// same DUP-retransmit idempotence.
func (s *Server[A]) handleInboundPublish(sc *serverConn[A], pub *packet.Publish) error {
	var zero A
	switch pub.QoS {
	case packet.QoS0:
		s.emit(sc, Event[A]{Carry: zero, Body: MessageEvent{Topic: pub.Topic, QoS: pub.QoS, Retain: pub.Retain, Payload: pub.Payload}})
		return nil

	case packet.QoS1:
		ack := exchange.AckQoS1(pub, func(p *packet.Publish) {
			s.emit(sc, Event[A]{Carry: zero, Body: MessageEvent{Topic: p.Topic, QoS: p.QoS, Retain: p.Retain, Payload: p.Payload}})
		})
		return s.sendPacket(sc, ack)

	default: // QoS2
		id := pub.ID
		if err := sc.remote.Route(id, pub); err == nil {
			return nil // duplicate DUP=1 retransmit of an in-flight consumer
		}
		if pub.DUP && sc.dedup.Seen(id) {
			// the exchange already completed; our PUBCOMP was lost
			return s.sendPacket(sc, &packet.PubComp{ID: id})
		}
		if !pub.DUP {
			sc.dedup.Remove(id) // client is reusing the id for a new message
		}
		consumer := exchange.NewConsumer(id, zero, pub, func(p packet.Packet) { _ = s.sendPacket(sc, p) },
			func(carry A, delivery *packet.Publish) {
				sc.mu.Lock()
				delete(sc.consumers, id)
				sc.mu.Unlock()
				sc.dedup.Seen(id)
				s.emit(sc, Event[A]{Carry: carry, Body: MessageEvent{Topic: delivery.Topic, QoS: delivery.QoS, Retain: delivery.Retain, Payload: delivery.Payload}})
			})
		if err := sc.remote.Register(id, consumer); err != nil {
			sc.log.Debug("duplicate remote packet id", mqttlog.PacketID(id))
			return nil
		}
		sc.mu.Lock()
		sc.consumers[id] = consumer
		sc.mu.Unlock()
		return nil
	}
}

// handleInboundSubscribe reserves id against a duplicate SUBSCRIBE
// arriving before the application's SubAckCommand, and surfaces a
// SubscribeEvent for the application to answer.
func (s *Server[A]) handleInboundSubscribe(sc *serverConn[A], sub *packet.Subscribe) error {
	var zero A
	pub := exchange.NewPublisher[A](sub.ID, zero, func(p packet.Packet) { _ = s.sendPacket(sc, p) })
	if err := sc.remote.Register(sub.ID, pub); err != nil {
		sc.log.Debug("duplicate subscribe packet id", mqttlog.PacketID(sub.ID))
		return nil
	}

	sc.mu.Lock()
	sc.publishers[sub.ID] = pub
	sc.mu.Unlock()

	s.emit(sc, Event[A]{Carry: zero, Body: SubscribeEvent{ID: sub.ID, Filters: sub.Filters}})
	return nil
}

// handleInboundUnsubscribe is handleInboundSubscribe's UNSUBSCRIBE
// counterpart.
func (s *Server[A]) handleInboundUnsubscribe(sc *serverConn[A], uns *packet.Unsubscribe) error {
	var zero A
	unpub := exchange.NewUnpublisher[A](uns.ID, zero, func(p packet.Packet) { _ = s.sendPacket(sc, p) })
	if err := sc.remote.Register(uns.ID, unpub); err != nil {
		sc.log.Debug("duplicate unsubscribe packet id", mqttlog.PacketID(uns.ID))
		return nil
	}

	sc.mu.Lock()
	sc.unpublishers[uns.ID] = unpub
	sc.mu.Unlock()

	s.emit(sc, Event[A]{Carry: zero, Body: UnsubscribeEvent{ID: uns.ID, Filters: uns.Filters}})
	return nil
}
