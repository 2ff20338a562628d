package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmq/mqttsession/packet"
)

func TestSubscriberFlow(t *testing.T) {
	rec := &sendRecorder{}
	acked := make(chan []byte, 1)

	sub := &packet.Subscribe{Filters: []packet.TopicFilter{{Filter: "a/+", QoS: packet.QoS1}}}
	s := NewSubscriber(11, "sub-carry", sub, time.Minute, rec.send,
		func(carry string, codes []byte) {
			assert.Equal(t, "sub-carry", carry)
			acked <- codes
		},
		func(string) { t.Error("unexpected abandonment") })

	require.Equal(t, 1, rec.count())
	assert.Equal(t, uint16(11), rec.all()[0].(*packet.Subscribe).ID)

	terminal := s.Handle(&packet.SubAck{ID: 11, ReturnCodes: []byte{0x01}})
	assert.True(t, terminal)
	assert.Equal(t, []byte{0x01}, <-acked)
}

func TestSubscriberIgnoresWrongPacket(t *testing.T) {
	rec := &sendRecorder{}
	s := NewSubscriber(12, "x", &packet.Subscribe{}, time.Minute, rec.send,
		func(string, []byte) {}, func(string) {})

	assert.False(t, s.Handle(&packet.PubAck{ID: 12}))
	assert.True(t, s.Handle(&packet.SubAck{ID: 12}))
}

func TestSubscriberTimesOut(t *testing.T) {
	rec := &sendRecorder{}
	abandoned := make(chan string, 1)

	NewSubscriber(13, "gone", &packet.Subscribe{}, 10*time.Millisecond, rec.send,
		func(string, []byte) { t.Error("unexpected ack") },
		func(carry string) { abandoned <- carry })

	select {
	case carry := <-abandoned:
		assert.Equal(t, "gone", carry)
	case <-time.After(time.Second):
		t.Fatal("subscriber never abandoned")
	}
}

func TestUnsubscriberFlow(t *testing.T) {
	rec := &sendRecorder{}
	acked := make(chan string, 1)

	u := NewUnsubscriber(14, "uns-carry", &packet.Unsubscribe{Filters: []string{"a/+"}}, time.Minute, rec.send,
		func(carry string) { acked <- carry },
		func(string) { t.Error("unexpected abandonment") })

	require.Equal(t, 1, rec.count())
	assert.Equal(t, uint16(14), rec.all()[0].(*packet.Unsubscribe).ID)

	terminal := u.Handle(&packet.UnsubAck{ID: 14})
	assert.True(t, terminal)
	assert.Equal(t, "uns-carry", <-acked)
}

func TestUnsubscriberTimesOut(t *testing.T) {
	abandoned := make(chan string, 1)

	NewUnsubscriber(15, "gone", &packet.Unsubscribe{}, 10*time.Millisecond, (&sendRecorder{}).send,
		func(string) { t.Error("unexpected ack") },
		func(carry string) { abandoned <- carry })

	select {
	case carry := <-abandoned:
		assert.Equal(t, "gone", carry)
	case <-time.After(time.Second):
		t.Fatal("unsubscriber never abandoned")
	}
}
