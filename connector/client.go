package connector

import (
	"sync"
	"time"

	"github.com/axmq/mqttsession/packet"
)

// ClientState is a stage of the client connector's lifecycle:
// Disconnected -> ConnectSent -> Connected -> Disconnecting ->
// Disconnected.
type ClientState int

const (
	ClientDisconnected ClientState = iota
	ClientConnectSent
	ClientConnected
	ClientDisconnecting
)

func (s ClientState) String() string {
	switch s {
	case ClientDisconnected:
		return "disconnected"
	case ClientConnectSent:
		return "connect_sent"
	case ClientConnected:
		return "connected"
	case ClientDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// ClientConnectorConfig configures a ClientConnector.
type ClientConnectorConfig struct {
	ConnAckTimeout time.Duration
}

// DefaultClientConnectorConfig returns the stock handshake deadline.
func DefaultClientConnectorConfig() ClientConnectorConfig {
	return ClientConnectorConfig{ConnAckTimeout: 20 * time.Second}
}

// ClientConnector drives the client half of the MQTT connection
// handshake and keep-alive contract. It owns no
// transport: Send is supplied by the caller and simply encodes and
// writes bytes, or enqueues them, depending on the collaborator.
type ClientConnector struct {
	mu    sync.Mutex
	state ClientState
	cfg   ClientConnectorConfig

	send func(packet.Packet) error

	connAckTimer *time.Timer
	keepAlive    *KeepAlive

	onConnAck        func(*packet.ConnAck)
	onConnectionLost func(error)
}

// NewClientConnector returns a connector in the Disconnected state.
func NewClientConnector(cfg ClientConnectorConfig, send func(packet.Packet) error, onConnAck func(*packet.ConnAck), onConnectionLost func(error)) *ClientConnector {
	if cfg.ConnAckTimeout <= 0 {
		cfg.ConnAckTimeout = DefaultClientConnectorConfig().ConnAckTimeout
	}
	return &ClientConnector{state: ClientDisconnected, cfg: cfg, send: send, onConnAck: onConnAck, onConnectionLost: onConnectionLost}
}

// Connect sends connect and transitions to ConnectSent, starting the
// CONNACK deadline.
func (c *ClientConnector) Connect(connect *packet.Connect) error {
	c.mu.Lock()
	if c.state != ClientDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnecting
	}
	c.state = ClientConnectSent
	c.mu.Unlock()

	if err := c.send(connect); err != nil {
		c.mu.Lock()
		c.state = ClientDisconnected
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.connAckTimer = time.AfterFunc(c.cfg.ConnAckTimeout, c.connAckExpired)
	keepAliveInterval := time.Duration(connect.KeepAlive) * time.Second
	c.mu.Unlock()

	c.keepAlive = NewKeepAlive(keepAliveInterval, c.sendPing, c.keepAliveExpired)
	return nil
}

func (c *ClientConnector) connAckExpired() {
	c.mu.Lock()
	if c.state != ClientConnectSent {
		c.mu.Unlock()
		return
	}
	c.state = ClientDisconnected
	c.mu.Unlock()
	c.fail(ErrConnAckTimeout)
}

func (c *ClientConnector) sendPing() {
	c.mu.Lock()
	connected := c.state == ClientConnected
	c.mu.Unlock()
	if !connected {
		return
	}
	_ = c.send(packet.PingReq{})
}

func (c *ClientConnector) keepAliveExpired() {
	c.mu.Lock()
	c.state = ClientDisconnected
	c.mu.Unlock()
	c.fail(ErrKeepAliveTimeout)
}

func (c *ClientConnector) fail(err error) {
	if c.keepAlive != nil {
		c.keepAlive.Stop()
	}
	c.onConnectionLost(err)
}

// HandlePacket processes an inbound packet arriving on the connection.
// Every packet resets the keep-alive deadline.
func (c *ClientConnector) HandlePacket(p packet.Packet) error {
	if c.keepAlive != nil {
		c.keepAlive.Reset()
	}

	switch pk := p.(type) {
	case *packet.ConnAck:
		c.mu.Lock()
		if c.state != ClientConnectSent {
			c.mu.Unlock()
			return ErrUnexpectedPacket
		}
		if pk.ReturnCode == packet.Accepted {
			c.state = ClientConnected
		} else {
			// refused: the server will close the transport (MQTT 3.1.1
			// §3.2.2.3); do not treat this connector as connected
			c.state = ClientDisconnected
		}
		if c.connAckTimer != nil {
			c.connAckTimer.Stop()
		}
		c.mu.Unlock()
		c.onConnAck(pk)
		if pk.ReturnCode != packet.Accepted {
			if c.keepAlive != nil {
				c.keepAlive.Stop()
			}
			c.onConnectionLost(&ConnectionRefusedError{Err: ErrConnectionRefused, Code: pk.ReturnCode})
		}
		return nil

	case packet.PingResp:
		return nil
	case *packet.PingResp:
		return nil

	default:
		c.mu.Lock()
		connected := c.state == ClientConnected
		c.mu.Unlock()
		if !connected {
			return ErrUnexpectedPacket
		}
		return nil
	}
}

// Disconnect sends DISCONNECT and transitions straight to
// Disconnected: MQTT 3.1.1 defines no acknowledgement for it.
func (c *ClientConnector) Disconnect() error {
	c.mu.Lock()
	if c.state != ClientConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.state = ClientDisconnecting
	c.mu.Unlock()

	err := c.send(packet.Disconnect{})

	c.mu.Lock()
	c.state = ClientDisconnected
	c.mu.Unlock()
	if c.keepAlive != nil {
		c.keepAlive.Stop()
	}
	return err
}

// ConnectionLost reports an abrupt transport failure: the state
// machine returns to Disconnected without sending DISCONNECT, allowing
// the broker to publish any will message.
func (c *ClientConnector) ConnectionLost(err error) {
	c.mu.Lock()
	c.state = ClientDisconnected
	c.mu.Unlock()
	if c.keepAlive != nil {
		c.keepAlive.Stop()
	}
	c.onConnectionLost(err)
}

// State returns the connector's current state.
func (c *ClientConnector) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
