package codec

import (
	"bytes"
	"fmt"

	"github.com/axmq/mqttsession/packet"
)

// Encode serializes p to its MQTT 3.1.1 wire representation. It fails with ErrReservedFlagsUsed or ErrPayloadTooLong rather
// than ever emitting a malformed frame.
func Encode(p packet.Packet) ([]byte, error) {
	var buf bytes.Buffer

	switch pkt := p.(type) {
	case *packet.Connect:
		if err := encodeConnect(&buf, pkt); err != nil {
			return nil, err
		}
	case *packet.ConnAck:
		encodeConnAck(&buf, pkt)
	case *packet.Publish:
		if err := encodePublish(&buf, pkt); err != nil {
			return nil, err
		}
	case *packet.PubAck:
		encodeIDOnly(&buf, packet.PUBACK, pkt.ID)
	case *packet.PubRec:
		encodeIDOnly(&buf, packet.PUBREC, pkt.ID)
	case *packet.PubRel:
		encodeIDOnly(&buf, packet.PUBREL, pkt.ID)
	case *packet.PubComp:
		encodeIDOnly(&buf, packet.PUBCOMP, pkt.ID)
	case *packet.Subscribe:
		if err := encodeSubscribe(&buf, pkt); err != nil {
			return nil, err
		}
	case *packet.SubAck:
		encodeSubAck(&buf, pkt)
	case *packet.Unsubscribe:
		if err := encodeUnsubscribe(&buf, pkt); err != nil {
			return nil, err
		}
	case *packet.UnsubAck:
		encodeIDOnly(&buf, packet.UNSUBACK, pkt.ID)
	case packet.PingReq, *packet.PingReq:
		encodeHeaderOnly(&buf, packet.PINGREQ)
	case packet.PingResp, *packet.PingResp:
		encodeHeaderOnly(&buf, packet.PINGRESP)
	case packet.Disconnect, *packet.Disconnect:
		encodeHeaderOnly(&buf, packet.DISCONNECT)
	default:
		return nil, fmt.Errorf("codec: unsupported packet %T", p)
	}

	return buf.Bytes(), nil
}

func encodeConnect(buf *bytes.Buffer, p *packet.Connect) error {
	var body bytes.Buffer
	protocolName := p.ProtocolName
	if protocolName == "" {
		protocolName = "MQTT"
	}
	if err := writeUTF8String(&body, protocolName); err != nil {
		return err
	}
	level := p.ProtocolLevel
	if level == 0 {
		level = 4
	}
	if err := writeByte(&body, level); err != nil {
		return err
	}

	var flags byte
	if p.CleanSession {
		flags |= 0x02
	}
	if p.WillFlag {
		flags |= 0x04
		flags |= byte(p.WillQoS) << 3
		if p.WillRetain {
			flags |= 0x20
		}
	}
	if p.PasswordFlag {
		flags |= 0x40
	}
	if p.UsernameFlag {
		flags |= 0x80
	}
	if err := writeByte(&body, flags); err != nil {
		return err
	}
	if err := writeTwoByteInt(&body, p.KeepAlive); err != nil {
		return err
	}
	if err := writeUTF8String(&body, p.ClientID); err != nil {
		return err
	}
	if p.WillFlag {
		if err := writeUTF8String(&body, p.WillTopic); err != nil {
			return err
		}
		if err := writeBinaryData(&body, p.WillPayload); err != nil {
			return err
		}
	}
	if p.UsernameFlag {
		if err := writeUTF8String(&body, p.Username); err != nil {
			return err
		}
	}
	if p.PasswordFlag {
		if err := writeBinaryData(&body, p.Password); err != nil {
			return err
		}
	}

	return writeFramed(buf, packet.FixedHeader{Type: packet.CONNECT, RemainingLength: uint32(body.Len())}, body.Bytes())
}

func encodeConnAck(buf *bytes.Buffer, p *packet.ConnAck) {
	var ackFlags byte
	if p.SessionPresent {
		ackFlags = 0x01
	}
	body := []byte{ackFlags, byte(p.ReturnCode)}
	_ = writeFramed(buf, packet.FixedHeader{Type: packet.CONNACK, RemainingLength: uint32(len(body))}, body)
}

func encodePublish(buf *bytes.Buffer, p *packet.Publish) error {
	if !p.QoS.IsValid() {
		return ErrReservedFlagsUsed
	}
	var body bytes.Buffer
	if err := writeUTF8String(&body, p.Topic); err != nil {
		return err
	}
	if p.QoS != packet.QoS0 {
		if err := writeTwoByteInt(&body, p.ID); err != nil {
			return err
		}
	}
	body.Write(p.Payload)

	return writeFramed(buf, packet.FixedHeader{
		Type:            packet.PUBLISH,
		DUP:             p.DUP,
		QoS:             p.QoS,
		Retain:          p.Retain,
		RemainingLength: uint32(body.Len()),
	}, body.Bytes())
}

func encodeIDOnly(buf *bytes.Buffer, t packet.Type, id uint16) {
	body := []byte{byte(id >> 8), byte(id)}
	_ = writeFramed(buf, packet.FixedHeader{Type: t, RemainingLength: uint32(len(body))}, body)
}

func encodeHeaderOnly(buf *bytes.Buffer, t packet.Type) {
	_ = writeFramed(buf, packet.FixedHeader{Type: t, RemainingLength: 0}, nil)
}

func encodeSubscribe(buf *bytes.Buffer, p *packet.Subscribe) error {
	var body bytes.Buffer
	if err := writeTwoByteInt(&body, p.ID); err != nil {
		return err
	}
	for _, f := range p.Filters {
		if err := writeUTF8String(&body, f.Filter); err != nil {
			return err
		}
		if err := writeByte(&body, byte(f.QoS)); err != nil {
			return err
		}
	}
	return writeFramed(buf, packet.FixedHeader{Type: packet.SUBSCRIBE, RemainingLength: uint32(body.Len())}, body.Bytes())
}

func encodeSubAck(buf *bytes.Buffer, p *packet.SubAck) {
	var body bytes.Buffer
	_ = writeTwoByteInt(&body, p.ID)
	body.Write(p.ReturnCodes)
	_ = writeFramed(buf, packet.FixedHeader{Type: packet.SUBACK, RemainingLength: uint32(body.Len())}, body.Bytes())
}

func encodeUnsubscribe(buf *bytes.Buffer, p *packet.Unsubscribe) error {
	var body bytes.Buffer
	if err := writeTwoByteInt(&body, p.ID); err != nil {
		return err
	}
	for _, f := range p.Filters {
		if err := writeUTF8String(&body, f); err != nil {
			return err
		}
	}
	return writeFramed(buf, packet.FixedHeader{Type: packet.UNSUBSCRIBE, RemainingLength: uint32(body.Len())}, body.Bytes())
}

func writeFramed(buf *bytes.Buffer, fh packet.FixedHeader, body []byte) error {
	if err := encodeFixedHeader(buf, fh); err != nil {
		return err
	}
	_, err := buf.Write(body)
	return err
}
