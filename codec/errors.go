package codec

import (
	"errors"
	"fmt"

	"github.com/axmq/mqttsession/packet"
)

// Wire-level decode failures. Every value is a distinct sentinel so
// callers can discriminate with errors.Is.
var (
	ErrBadProtocolName          = errors.New("mqtt: bad protocol name")
	ErrUnknownProtocolLevel     = errors.New("mqtt: unknown protocol level")
	ErrInvalidConnectFlag       = errors.New("mqtt: invalid CONNECT flags")
	ErrInvalidQoS               = errors.New("mqtt: invalid QoS level")
	ErrInvalidTopicName         = errors.New("mqtt: invalid topic name")
	ErrBufferUnderflow          = errors.New("mqtt: buffer underflow")
	ErrUnknownPacketType        = errors.New("mqtt: unknown packet type")
	ErrRemainingLengthExceeded  = errors.New("mqtt: remaining length exceeds maximum")
	ErrInvalidConnAckFlags      = errors.New("mqtt: invalid CONNACK flags")
	ErrInvalidConnectReturnCode = errors.New("mqtt: invalid CONNACK return code")

	// EncodeError variants.
	ErrReservedFlagsUsed = errors.New("mqtt: reserved flag bits set")
	ErrPayloadTooLong    = errors.New("mqtt: payload too long to encode")

	ErrEmptySubscriptionList = errors.New("mqtt: SUBSCRIBE must contain at least one topic filter")
	ErrEmptyUnsubscribeList  = errors.New("mqtt: UNSUBSCRIBE must contain at least one topic filter")
)

// PacketError reports a decode failure together with the packet type
// being parsed and the byte offset into the frame at which parsing
// stopped. It wraps one of the sentinels above, so callers keep
// discriminating with errors.Is while diagnostics get the position.
type PacketError struct {
	Err    error
	Type   packet.Type
	Offset int64
}

func (e *PacketError) Error() string {
	return fmt.Sprintf("mqtt: decode %s failed at byte %d: %v", e.Type, e.Offset, e.Err)
}

func (e *PacketError) Unwrap() error { return e.Err }
