package router

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmq/mqttsession/packet"
)

// stubExchange records delivered packets and reports a configurable
// terminal result.
type stubExchange struct {
	mu       sync.Mutex
	received []packet.Packet
	terminal bool
}

func (s *stubExchange) Handle(p packet.Packet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, p)
	return s.terminal
}

func (s *stubExchange) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func TestLocalRegisterAllocatesSequentially(t *testing.T) {
	r := NewLocalPacketRouter()

	for want := uint16(1); want <= 5; want++ {
		id, err := r.Register(&stubExchange{})
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, 5, r.InFlight())
}

func TestLocalRegisterNeverAllocatesZero(t *testing.T) {
	r := NewLocalPacketRouter()
	for i := 0; i < 1000; i++ {
		id, err := r.Register(&stubExchange{})
		require.NoError(t, err)
		assert.NotZero(t, id)
	}
}

func TestLocalRouteDeliversAndRemovesTerminal(t *testing.T) {
	r := NewLocalPacketRouter()
	ex := &stubExchange{terminal: true}
	id, err := r.Register(ex)
	require.NoError(t, err)

	require.NoError(t, r.Route(id, &packet.PubAck{ID: id}))
	assert.Equal(t, 1, ex.count())
	assert.Equal(t, 0, r.InFlight())

	// terminal exchange is gone; a second route is a miss
	assert.ErrorIs(t, r.Route(id, &packet.PubAck{ID: id}), ErrUnknownPacketId)
}

func TestLocalRouteKeepsNonTerminal(t *testing.T) {
	r := NewLocalPacketRouter()
	ex := &stubExchange{terminal: false}
	id, err := r.Register(ex)
	require.NoError(t, err)

	require.NoError(t, r.Route(id, &packet.PubRec{ID: id}))
	require.NoError(t, r.Route(id, &packet.PubComp{ID: id}))
	assert.Equal(t, 2, ex.count())
	assert.Equal(t, 1, r.InFlight())
}

func TestLocalRouteUnknownId(t *testing.T) {
	r := NewLocalPacketRouter()
	assert.ErrorIs(t, r.Route(42, &packet.PubAck{ID: 42}), ErrUnknownPacketId)
}

func TestLocalExhaustion(t *testing.T) {
	r := NewLocalPacketRouter()

	for i := 0; i < 65535; i++ {
		_, err := r.Register(&stubExchange{})
		require.NoError(t, err)
	}
	assert.Equal(t, 65535, r.InFlight())

	_, err := r.Register(&stubExchange{})
	assert.ErrorIs(t, err, ErrNoPacketIdsAvailable)

	// releasing any id makes it allocatable again
	r.Release(100)
	id, err := r.Register(&stubExchange{})
	require.NoError(t, err)
	assert.Equal(t, uint16(100), id)
}

func TestLocalReleaseFreesId(t *testing.T) {
	r := NewLocalPacketRouter()
	id, err := r.Register(&stubExchange{})
	require.NoError(t, err)

	r.Release(id)
	assert.Equal(t, 0, r.InFlight())
	assert.ErrorIs(t, r.Route(id, &packet.PubAck{ID: id}), ErrUnknownPacketId)
}

func TestLocalReserveBind(t *testing.T) {
	r := NewLocalPacketRouter()
	id, err := r.Reserve()
	require.NoError(t, err)

	ex := &stubExchange{terminal: true}
	r.Bind(id, ex)

	require.NoError(t, r.Route(id, &packet.PubAck{ID: id}))
	assert.Equal(t, 1, ex.count())
	assert.Equal(t, 0, r.InFlight())
}

func TestLocalConcurrentRegistrationsUnique(t *testing.T) {
	r := NewLocalPacketRouter()
	const n = 500

	ids := make(chan uint16, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := r.Register(&stubExchange{})
			if err == nil {
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint16]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d allocated twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}
