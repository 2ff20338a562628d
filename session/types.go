// Package session implements the top-level per-client and per-server
// state machines of the MQTT session engine: it owns a
// connector, the local and remote packet-id routers, and the set of
// live exchanges, and exposes the application-facing Command/Event
// pipes. Both roles are generic over the caller-supplied correlation
// value that rides along every command and its eventual event.
package session

import (
	"github.com/axmq/mqttsession/packet"
)

// Command is one request the application makes of a Session: connect,
// publish, subscribe, unsubscribe, or disconnect. Carry is opaque to
// the session and is echoed back on the Event that eventually
// completes the command, so the application can correlate without
// maintaining its own side table.
type Command[A any] struct {
	Carry A
	Body  CommandBody
}

// CommandBody is implemented by every concrete command payload.
type CommandBody interface{ commandBody() }

type ConnectCommand struct {
	ClientID     string
	CleanSession bool
	KeepAlive    uint16
	Username     string
	Password     []byte
	Will         *WillMessage
}

type PublishCommand struct {
	Topic   string
	QoS     packet.QoS
	Retain  bool
	Payload []byte
}

type SubscribeCommand struct {
	Filters []packet.TopicFilter
}

type UnsubscribeCommand struct {
	Filters []string
}

type DisconnectCommand struct{}

func (ConnectCommand) commandBody() {}
func (PublishCommand) commandBody() {}
func (SubscribeCommand) commandBody() {}
func (UnsubscribeCommand) commandBody() {}
func (DisconnectCommand) commandBody() {}

// WillMessage is the will a CONNECT registers for delivery on abrupt
// connection loss.
type WillMessage struct {
	Topic   string
	Payload []byte
	QoS     packet.QoS
	Retain  bool
}

// Event is one notification a Session emits: the answer to a command,
// or an unsolicited occurrence such as an inbound message or
// connection loss.
type Event[A any] struct {
	Carry A
	Body  EventBody
}

// EventBody is implemented by every concrete event payload.
type EventBody interface{ eventBody() }

type ConnAckEvent struct {
	SessionPresent bool
	ReturnCode     packet.ReturnCode
}

type MessageEvent struct {
	Topic   string
	QoS     packet.QoS
	Retain  bool
	Payload []byte
}

type PublishAckEvent struct{ Abandoned bool }

type SubAckEvent struct {
	ReturnCodes []byte
	Abandoned   bool
}

type UnsubAckEvent struct{ Abandoned bool }

type ConnectionLostEvent struct{ Err error }

// SessionTerminatedEvent is broadcast on a server's watch stream
// whenever a client session ends, whether by clean disconnect,
// keep-alive timeout, or takeover.
type SessionTerminatedEvent struct {
	ClientID string
	Reason   error
}

func (ConnAckEvent) eventBody() {}
func (MessageEvent) eventBody() {}
func (PublishAckEvent) eventBody() {}
func (SubAckEvent) eventBody() {}
func (UnsubAckEvent) eventBody() {}
func (ConnectionLostEvent) eventBody() {}
func (SessionTerminatedEvent) eventBody() {}
