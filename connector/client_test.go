package connector

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmq/mqttsession/packet"
)

type packetSink struct {
	mu      sync.Mutex
	packets []packet.Packet
	err     error
}

func (s *packetSink) send(p packet.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, p)
	return nil
}

func (s *packetSink) all() []packet.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]packet.Packet, len(s.packets))
	copy(out, s.packets)
	return out
}

func newTestClientConnector(sink *packetSink, timeout time.Duration) (*ClientConnector, chan *packet.ConnAck, chan error) {
	acks := make(chan *packet.ConnAck, 1)
	lost := make(chan error, 1)
	c := NewClientConnector(ClientConnectorConfig{ConnAckTimeout: timeout}, sink.send,
		func(a *packet.ConnAck) { acks <- a },
		func(err error) { lost <- err })
	return c, acks, lost
}

func TestClientConnectorHandshake(t *testing.T) {
	sink := &packetSink{}
	c, acks, _ := newTestClientConnector(sink, time.Minute)

	require.NoError(t, c.Connect(&packet.Connect{ClientID: "c", CleanSession: true}))
	assert.Equal(t, ClientConnectSent, c.State())
	require.Len(t, sink.all(), 1)
	assert.Equal(t, packet.CONNECT, sink.all()[0].Type())

	require.NoError(t, c.HandlePacket(&packet.ConnAck{ReturnCode: packet.Accepted}))
	assert.Equal(t, ClientConnected, c.State())

	ack := <-acks
	assert.Equal(t, packet.Accepted, ack.ReturnCode)
}

func TestClientConnectorRefusedConnAck(t *testing.T) {
	sink := &packetSink{}
	c, acks, lost := newTestClientConnector(sink, time.Minute)

	require.NoError(t, c.Connect(&packet.Connect{ClientID: "c"}))
	require.NoError(t, c.HandlePacket(&packet.ConnAck{ReturnCode: packet.RefusedNotAuthorized}))

	ack := <-acks
	assert.Equal(t, packet.RefusedNotAuthorized, ack.ReturnCode)
	assert.Equal(t, ClientDisconnected, c.State())

	err := <-lost
	assert.ErrorIs(t, err, ErrConnectionRefused)
	var refused *ConnectionRefusedError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, packet.RefusedNotAuthorized, refused.Code)
}

func TestClientConnectorRejectsDoubleConnect(t *testing.T) {
	sink := &packetSink{}
	c, _, _ := newTestClientConnector(sink, time.Minute)

	require.NoError(t, c.Connect(&packet.Connect{ClientID: "c"}))
	assert.ErrorIs(t, c.Connect(&packet.Connect{ClientID: "c"}), ErrAlreadyConnecting)
}

func TestClientConnectorConnAckTimeout(t *testing.T) {
	sink := &packetSink{}
	c, _, lost := newTestClientConnector(sink, 20*time.Millisecond)

	require.NoError(t, c.Connect(&packet.Connect{ClientID: "c"}))

	select {
	case err := <-lost:
		assert.ErrorIs(t, err, ErrConnAckTimeout)
	case <-time.After(time.Second):
		t.Fatal("connack deadline never fired")
	}
	assert.Equal(t, ClientDisconnected, c.State())
}

func TestClientConnectorUnexpectedConnAck(t *testing.T) {
	sink := &packetSink{}
	c, _, _ := newTestClientConnector(sink, time.Minute)

	err := c.HandlePacket(&packet.ConnAck{ReturnCode: packet.Accepted})
	assert.ErrorIs(t, err, ErrUnexpectedPacket)
}

func TestClientConnectorRejectsDataBeforeConnected(t *testing.T) {
	sink := &packetSink{}
	c, _, _ := newTestClientConnector(sink, time.Minute)

	err := c.HandlePacket(&packet.Publish{QoS: packet.QoS0, Topic: "t"})
	assert.ErrorIs(t, err, ErrUnexpectedPacket)
}

func TestClientConnectorDisconnectOnce(t *testing.T) {
	sink := &packetSink{}
	c, _, _ := newTestClientConnector(sink, time.Minute)

	require.NoError(t, c.Connect(&packet.Connect{ClientID: "c"}))
	require.NoError(t, c.HandlePacket(&packet.ConnAck{ReturnCode: packet.Accepted}))

	require.NoError(t, c.Disconnect())
	assert.Equal(t, ClientDisconnected, c.State())

	// second disconnect writes nothing further
	assert.ErrorIs(t, c.Disconnect(), ErrNotConnected)

	var disconnects int
	for _, p := range sink.all() {
		if p.Type() == packet.DISCONNECT {
			disconnects++
		}
	}
	assert.Equal(t, 1, disconnects)
}

func TestClientConnectorConnectionLost(t *testing.T) {
	sink := &packetSink{}
	c, _, lost := newTestClientConnector(sink, time.Minute)

	require.NoError(t, c.Connect(&packet.Connect{ClientID: "c"}))
	require.NoError(t, c.HandlePacket(&packet.ConnAck{ReturnCode: packet.Accepted}))

	c.ConnectionLost(assert.AnError)
	assert.Equal(t, ClientDisconnected, c.State())
	assert.Equal(t, assert.AnError, <-lost)

	// a fresh connect is allowed after the loss
	require.NoError(t, c.Connect(&packet.Connect{ClientID: "c"}))
}
