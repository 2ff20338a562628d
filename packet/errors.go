package packet

import "errors"

var (
	// ErrInvalidReservedType is returned when the fixed header's type
	// nibble is 0, which MQTT 3.1.1 never assigns.
	ErrInvalidReservedType = errors.New("mqtt: reserved packet type (0) not allowed")
	// ErrInvalidFlags is returned when a packet's reserved flag bits
	// don't match the fixed value MQTT 3.1.1 requires for its type.
	ErrInvalidFlags = errors.New("mqtt: invalid flags for packet type")
	// ErrInvalidQoS names a QoS nibble outside {0,1,2}. The codec
	// reports that case with its own codec.ErrInvalidQoS; nothing in
	// this module returns this value.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")
)
