package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, uint32(256*1024*1024), s.MaxPacketSize)
	assert.Equal(t, 64, s.ClientSendBufferSize)
	assert.Equal(t, 64, s.ServerSendBufferSize)
	assert.GreaterOrEqual(t, s.CommandParallelism, 2)
	assert.Positive(t, s.EventParallelism)
	assert.Equal(t, 20*time.Second, s.ProducerPubAckRecTimeout)
	assert.Equal(t, 64, s.ClientTerminationWatcherBufferSize)
	assert.NotNil(t, s.Logger)
}

func TestWithDefaultsFillsZeroValues(t *testing.T) {
	s := Settings{}.withDefaults()
	assert.Equal(t, DefaultSettings().ClientSendBufferSize, s.ClientSendBufferSize)
	assert.Equal(t, DefaultSettings().CommandParallelism, s.CommandParallelism)
	assert.NotNil(t, s.Logger)
}

func TestWithDefaultsKeepsExplicitValues(t *testing.T) {
	s := Settings{
		ClientSendBufferSize: 7,
		CommandParallelism:   3,
		SubscribeAckTimeout:  time.Minute,
	}.withDefaults()

	assert.Equal(t, 7, s.ClientSendBufferSize)
	assert.Equal(t, 3, s.CommandParallelism)
	assert.Equal(t, time.Minute, s.SubscribeAckTimeout)
}

func TestWithDefaultsEnforcesMinimumParallelism(t *testing.T) {
	s := Settings{CommandParallelism: 1}.withDefaults()
	assert.Equal(t, DefaultSettings().CommandParallelism, s.CommandParallelism)
}
