package codec

import (
	"io"

	"github.com/axmq/mqttsession/packet"
)

// expectedFlags gives the fixed reserved-flag nibble MQTT 3.1.1 requires
// for packet types whose flags carry no information (§2.2.2). PUBLISH is
// handled separately since its flags encode DUP/QoS/Retain.
var expectedFlags = map[packet.Type]byte{
	packet.CONNECT:     0x00,
	packet.CONNACK:     0x00,
	packet.PUBACK:      0x00,
	packet.PUBREC:      0x00,
	packet.PUBREL:      0x02,
	packet.PUBCOMP:     0x00,
	packet.SUBSCRIBE:   0x02,
	packet.SUBACK:      0x00,
	packet.UNSUBSCRIBE: 0x02,
	packet.UNSUBACK:    0x00,
	packet.PINGREQ:     0x00,
	packet.PINGRESP:    0x00,
	packet.DISCONNECT:  0x00,
}

// parseFixedHeader reads the fixed header (first byte + remaining
// length) from r, per MQTT 3.1.1 §2.2.
func parseFixedHeader(r io.Reader) (packet.FixedHeader, error) {
	var fh packet.FixedHeader

	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		if err == io.EOF {
			return fh, ErrBufferUnderflow
		}
		return fh, err
	}

	fh.Type = packet.Type(first[0] >> 4)
	if fh.Type == packet.Reserved {
		return fh, packet.ErrInvalidReservedType
	}
	if fh.Type > packet.DISCONNECT {
		return fh, ErrUnknownPacketType
	}

	flags := first[0] & 0x0F
	if fh.Type == packet.PUBLISH {
		fh.DUP = flags&0x08 != 0
		fh.QoS = packet.QoS((flags & 0x06) >> 1)
		fh.Retain = flags&0x01 != 0
		if !fh.QoS.IsValid() {
			return fh, ErrInvalidQoS
		}
	} else if expected, ok := expectedFlags[fh.Type]; ok && flags != expected {
		return fh, packet.ErrInvalidFlags
	}

	remaining, err := decodeRemainingLength(r)
	if err != nil {
		return fh, err
	}
	fh.RemainingLength = remaining

	return fh, nil
}

func encodeFixedHeader(w io.Writer, fh packet.FixedHeader) error {
	var flags byte
	if fh.Type == packet.PUBLISH {
		if fh.DUP {
			flags |= 0x08
		}
		flags |= byte(fh.QoS) << 1
		if fh.Retain {
			flags |= 0x01
		}
	} else {
		flags = expectedFlags[fh.Type]
	}

	if _, err := w.Write([]byte{byte(fh.Type)<<4 | flags}); err != nil {
		return err
	}

	rl, err := encodeRemainingLength(fh.RemainingLength)
	if err != nil {
		return err
	}
	_, err = w.Write(rl)
	return err
}
