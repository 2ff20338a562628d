package session

import "github.com/axmq/mqttsession/packet"

// Server-role command and event bodies: every command the application
// issues in reply to one client connection, and every event the wire
// surfaces for it. Both are addressed by connection id, not carried in
// the flow itself, because one Server multiplexes many connections

// ConnAckCommand answers an inbound ConnectEvent.
type ConnAckCommand struct {
	SessionPresent bool
	ReturnCode     packet.ReturnCode
}

// SubAckCommand answers an inbound SubscribeEvent with the return code
// computed for each filter, in the same order. ID must be copied from
// the SubscribeEvent it answers, since a connection can have more than
// one SUBSCRIBE outstanding at once.
type SubAckCommand struct {
	ID          uint16
	ReturnCodes []byte
}

// UnsubAckCommand answers an inbound UnsubscribeEvent; ID must be
// copied from it.
type UnsubAckCommand struct{ ID uint16 }

func (ConnAckCommand) commandBody() {}
func (SubAckCommand) commandBody() {}
func (UnsubAckCommand) commandBody() {}

// ConnectEvent is the server-side dual of ConnectCommand: a client's
// CONNECT, already vetted by the ServerConnector for session takeover.
// SessionPresent is filled in by the Session from the Manager's
// CreateOrResume result before being handed to the application, which
// only needs to decide the ConnAckCommand's ReturnCode.
type ConnectEvent struct {
	ClientID       string
	CleanSession   bool
	KeepAlive      uint16
	Username       string
	Password       []byte
	Will           *WillMessage
	SessionPresent bool
}

// SubscribeEvent is the server-side dual of SubscribeCommand. ID
// identifies the pending reservation the answering SubAckCommand must
// echo back.
type SubscribeEvent struct {
	ID      uint16
	Filters []packet.TopicFilter
}

// UnsubscribeEvent is the server-side dual of UnsubscribeCommand.
type UnsubscribeEvent struct {
	ID      uint16
	Filters []string
}

// DisconnectEvent reports a client's graceful DISCONNECT: no will
// message follows.
type DisconnectEvent struct{}

// WillEvent hands a disconnected client's stored will message to the
// application for routing to its subscribers. It follows an abrupt
// connection loss, never a graceful DISCONNECT, and carries no
// correlation value, like any other peer-initiated event.
type WillEvent struct {
	ClientID string
	Will     *WillMessage
}

func (ConnectEvent) eventBody() {}
func (SubscribeEvent) eventBody() {}
func (UnsubscribeEvent) eventBody() {}
func (DisconnectEvent) eventBody() {}
func (WillEvent) eventBody() {}
