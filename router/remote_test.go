package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmq/mqttsession/packet"
)

func TestRemoteRegisterAndRoute(t *testing.T) {
	r := NewRemotePacketRouter()
	ex := &stubExchange{terminal: true}
	require.NoError(t, r.Register(7, ex))
	assert.Equal(t, 1, r.InFlight())

	require.NoError(t, r.Route(7, &packet.PubRel{ID: 7}))
	assert.Equal(t, 1, ex.count())
	assert.Equal(t, 0, r.InFlight())
}

func TestRemoteDuplicateRegistration(t *testing.T) {
	r := NewRemotePacketRouter()
	require.NoError(t, r.Register(7, &stubExchange{}))

	err := r.Register(7, &stubExchange{})
	assert.ErrorIs(t, err, ErrDuplicateRemotePacketId)
}

func TestRemoteIdReusableAfterTerminal(t *testing.T) {
	r := NewRemotePacketRouter()
	require.NoError(t, r.Register(7, &stubExchange{terminal: true}))
	require.NoError(t, r.Route(7, &packet.PubRel{ID: 7}))

	// first exchange completed, peer may reuse the id
	require.NoError(t, r.Register(7, &stubExchange{}))
}

func TestRemoteRouteUnknownId(t *testing.T) {
	r := NewRemotePacketRouter()
	assert.ErrorIs(t, r.Route(99, &packet.PubRel{ID: 99}), ErrUnknownPacketId)
}

func TestRemoteRelease(t *testing.T) {
	r := NewRemotePacketRouter()
	require.NoError(t, r.Register(5, &stubExchange{}))
	r.Release(5)
	assert.Equal(t, 0, r.InFlight())
	require.NoError(t, r.Register(5, &stubExchange{}))
}
