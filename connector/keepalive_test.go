package connector

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepAliveFiresPing(t *testing.T) {
	pings := make(chan struct{}, 1)
	ka := NewKeepAlive(20*time.Millisecond, func() { pings <- struct{}{} }, func() {})
	defer ka.Stop()

	select {
	case <-pings:
	case <-time.After(time.Second):
		t.Fatal("ping never fired")
	}
}

func TestKeepAliveExpiresWithoutReset(t *testing.T) {
	expired := make(chan struct{}, 1)
	ka := NewKeepAlive(20*time.Millisecond, func() {}, func() { expired <- struct{}{} })
	defer ka.Stop()

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("keep-alive never expired")
	}
}

func TestKeepAliveResetDefersPing(t *testing.T) {
	var pings atomic.Int32
	ka := NewKeepAlive(50*time.Millisecond, func() { pings.Add(1) }, func() {})
	defer ka.Stop()

	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		ka.Reset()
	}
	assert.Equal(t, int32(0), pings.Load())
}

func TestKeepAliveStopPreventsCallbacks(t *testing.T) {
	var fired atomic.Int32
	ka := NewKeepAlive(20*time.Millisecond, func() { fired.Add(1) }, func() { fired.Add(1) })
	ka.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestKeepAliveZeroIntervalDisabled(t *testing.T) {
	var fired atomic.Int32
	ka := NewKeepAlive(0, func() { fired.Add(1) }, func() { fired.Add(1) })
	require.NotNil(t, ka)

	ka.Reset()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	ka.Stop()
}
