package router

import "errors"

var (
	// ErrNoPacketIdsAvailable is returned by LocalPacketRouter.Register
	// when all 65,535 ids are already in flight.
	ErrNoPacketIdsAvailable = errors.New("router: no packet ids available")
	// ErrDuplicateRemotePacketId is returned by RemotePacketRouter.Register
	// when the peer reuses an id that is still in flight.
	ErrDuplicateRemotePacketId = errors.New("router: duplicate remote packet id")
	// ErrUnknownPacketId is returned by Route when no exchange is
	// registered for the given id.
	ErrUnknownPacketId = errors.New("router: unknown packet id")
)
