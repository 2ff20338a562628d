package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmq/mqttsession/packet"
)

func TestPublisherCompleteSendsSubAck(t *testing.T) {
	rec := &sendRecorder{}
	p := NewPublisher(21, "carry", rec.send)

	// reservation is live until Complete
	assert.False(t, p.Handle(&packet.Subscribe{ID: 21}))

	p.Complete([]byte{0x00, 0x80})
	require.Equal(t, 1, rec.count())
	assert.Equal(t, &packet.SubAck{ID: 21, ReturnCodes: []byte{0x00, 0x80}}, rec.all()[0])

	assert.True(t, p.Handle(&packet.Subscribe{ID: 21}))
	assert.Equal(t, "carry", p.Carry())
}

func TestPublisherCompleteIsIdempotent(t *testing.T) {
	rec := &sendRecorder{}
	p := NewPublisher(22, "x", rec.send)

	p.Complete([]byte{0x00})
	p.Complete([]byte{0x00})
	assert.Equal(t, 1, rec.count())
}

func TestUnpublisherCompleteSendsUnsubAck(t *testing.T) {
	rec := &sendRecorder{}
	u := NewUnpublisher(23, "carry", rec.send)

	assert.False(t, u.Handle(&packet.Unsubscribe{ID: 23}))

	u.Complete()
	require.Equal(t, 1, rec.count())
	assert.Equal(t, &packet.UnsubAck{ID: 23}, rec.all()[0])

	assert.True(t, u.Handle(&packet.Unsubscribe{ID: 23}))
	assert.Equal(t, "carry", u.Carry())
}

func TestUnpublisherCompleteIsIdempotent(t *testing.T) {
	rec := &sendRecorder{}
	u := NewUnpublisher(24, "x", rec.send)

	u.Complete()
	u.Complete()
	assert.Equal(t, 1, rec.count())
}
