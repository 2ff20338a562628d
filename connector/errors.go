package connector

import (
	"errors"
	"fmt"

	"github.com/axmq/mqttsession/packet"
)

var (
	// ErrNotConnected is returned when an operation that requires an
	// established connection is attempted outside the Connected state
	ErrNotConnected = errors.New("connector: not connected")
	// ErrAlreadyConnecting is returned by Connect when a CONNECT is
	// already outstanding.
	ErrAlreadyConnecting = errors.New("connector: connect already in progress")
	// ErrConnAckTimeout is reported when the server does not answer a
	// CONNECT within the configured deadline.
	ErrConnAckTimeout = errors.New("connector: timed out waiting for connack")
	// ErrKeepAliveTimeout is reported when no packet, including a
	// PINGRESP, is seen from the peer within one and a half keep-alive
	// intervals.
	ErrKeepAliveTimeout = errors.New("connector: keep-alive timeout")
	// ErrUnexpectedPacket is reported when a packet arrives that the
	// current connector state does not permit.
	ErrUnexpectedPacket = errors.New("connector: unexpected packet for current state")
	// ErrDuplicateClientID is used internally by ServerConnector when a
	// second CONNECT for an already-connected client id arrives and
	// takes the session over.
	ErrDuplicateClientID = errors.New("connector: client id already connected")
	// ErrConnectionRefused is the sentinel every ConnectionRefusedError
	// wraps.
	ErrConnectionRefused = errors.New("connector: connection refused")
)

// ConnectionRefusedError reports a CONNACK that rejected the CONNECT,
// carrying the broker's return code. It wraps ErrConnectionRefused so
// callers can match the class with errors.Is and recover the code with
// errors.As.
type ConnectionRefusedError struct {
	Err  error
	Code packet.ReturnCode
}

func (e *ConnectionRefusedError) Error() string {
	return fmt.Sprintf("connector: connection refused: %s", e.Code)
}

func (e *ConnectionRefusedError) Unwrap() error { return e.Err }
