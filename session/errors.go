package session

import (
	"errors"

	"github.com/axmq/mqttsession/store"
)

var (
	// ErrSessionNotFound is returned by a server Manager when no
	// session is registered under the requested client id. It is the
	// same sentinel the Store returns for a missing key, so a Manager
	// caller can use errors.Is against either.
	ErrSessionNotFound = store.ErrNotFound
	// ErrStoreClosed is returned by Store operations after Close.
	ErrStoreClosed = store.ErrStoreClosed
	// ErrSessionClosed is returned by CommandFlow operations after
	// Close has been called.
	ErrSessionClosed = errors.New("session: closed")
	// ErrUnknownConnection is returned by a server's SubAck and
	// UnsubAck commands when no SUBSCRIBE or UNSUBSCRIBE is pending
	// under the given packet id.
	ErrUnknownConnection = errors.New("session: unknown connection id")
	// ErrSessionAlreadyExists is returned by Manager.GenerateClientID
	// on the vanishingly unlikely event of repeated collisions.
	ErrSessionAlreadyExists = errors.New("session: client id already exists")
	// ErrIllegalCommand is returned when a Command's Body does not
	// match any entry in the role's command dispatch table.
	ErrIllegalCommand = errors.New("session: illegal command for this role")
	// ErrIllegalProtocolEvent is returned when an inbound packet is
	// well-formed but illegal for the local role to receive, e.g. a
	// client receiving a SUBSCRIBE. The server also disconnects the
	// connection; the client only returns the error.
	ErrIllegalProtocolEvent = errors.New("session: illegal packet direction")
)
