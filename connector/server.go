package connector

import (
	"sync"
	"time"

	"github.com/axmq/mqttsession/packet"
)

// ServerConnectionState is a stage of one client connection as seen
// from the server side of a ServerConnector.
type ServerConnectionState int

const (
	ServerAwaitingConnect ServerConnectionState = iota
	ServerConnected
	ServerDisconnected
)

// ServerClientConnection is one client's slot in a ServerConnector. ID
// identifies the underlying transport (the connector has no socket of
// its own; ID is supplied by the external collaborator that owns it).
type ServerClientConnection struct {
	ID       string
	ClientID string
	state    ServerConnectionState

	keepAlive *KeepAlive
	send      func(packet.Packet) error
}

// State returns the connection's current state.
func (c *ServerClientConnection) State() ServerConnectionState {
	return c.state
}

// ServerConnector multiplexes many client connections and implements
// session takeover: a second CONNECT for a ClientID already connected
// terminates the first connection before accepting the second.
type ServerConnector struct {
	mu           sync.Mutex
	byConnection map[string]*ServerClientConnection
	byClientID   map[string]*ServerClientConnection

	onTerminated func(connectionID, clientID string, reason error)
}

// NewServerConnector returns an empty connector.
func NewServerConnector(onTerminated func(connectionID, clientID string, reason error)) *ServerConnector {
	return &ServerConnector{
		byConnection: make(map[string]*ServerClientConnection),
		byClientID:   make(map[string]*ServerClientConnection),
		onTerminated: onTerminated,
	}
}

// Accept registers a new transport-level connection in the
// AwaitingConnect state, before any CONNECT has been read.
func (s *ServerConnector) Accept(connectionID string, send func(packet.Packet) error) *ServerClientConnection {
	conn := &ServerClientConnection{ID: connectionID, state: ServerAwaitingConnect, send: send}
	s.mu.Lock()
	s.byConnection[connectionID] = conn
	s.mu.Unlock()
	return conn
}

// HandleConnect processes a CONNECT on conn. If a prior connection is
// already registered under the same client id, it is terminated first
// (ErrDuplicateClientID is the reason reported to onTerminated for
// it) and the new one takes its place. Keep-alive tracking for a
// non-zero KeepAlive starts here, before any CONNACK is sent.
func (s *ServerConnector) HandleConnect(conn *ServerClientConnection, connect *packet.Connect) (takeover bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.byClientID[connect.ClientID]; ok && prior != conn {
		takeover = true
		s.terminateLocked(prior, ErrDuplicateClientID)
	}

	conn.ClientID = connect.ClientID
	conn.state = ServerConnected
	s.byClientID[connect.ClientID] = conn

	interval := time.Duration(connect.KeepAlive) * time.Second
	if interval > 0 {
		conn.keepAlive = NewKeepAlive(interval, func() {}, func() {
			s.Disconnect(conn, ErrKeepAliveTimeout)
		})
	}
	return takeover
}

// Touch resets conn's keep-alive deadline; called on every inbound
// packet.
func (s *ServerConnector) Touch(conn *ServerClientConnection) {
	if conn.keepAlive != nil {
		conn.keepAlive.Reset()
	}
}

// Disconnect tears conn down, whether the cause is a received
// DISCONNECT (reason nil), a transport failure, or a keep-alive
// timeout, and reports it via onTerminated.
func (s *ServerConnector) Disconnect(conn *ServerClientConnection, reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateLocked(conn, reason)
}

// terminateLocked must be called with mu held.
func (s *ServerConnector) terminateLocked(conn *ServerClientConnection, reason error) {
	if conn.state == ServerDisconnected {
		return
	}
	conn.state = ServerDisconnected
	if conn.keepAlive != nil {
		conn.keepAlive.Stop()
	}
	delete(s.byConnection, conn.ID)
	if s.byClientID[conn.ClientID] == conn {
		delete(s.byClientID, conn.ClientID)
	}
	if s.onTerminated != nil {
		s.onTerminated(conn.ID, conn.ClientID, reason)
	}
}

// Lookup returns the connection registered under connectionID, if any.
func (s *ServerConnector) Lookup(connectionID string) (*ServerClientConnection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byConnection[connectionID]
	return c, ok
}

// Count returns the number of connections currently tracked, awaiting
// CONNECT or connected; terminated connections are no longer counted.
func (s *ServerConnector) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byConnection)
}
