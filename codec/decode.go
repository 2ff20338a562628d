package codec

import (
	"io"

	"github.com/axmq/mqttsession/packet"
)

// Decode reads one MQTT 3.1.1 control packet from r. maxPacketSize
// bounds the fixed header's remaining-length field; a
// frame whose declared size exceeds it fails with
// ErrRemainingLengthExceeded before any body bytes are read.
func Decode(r io.Reader, maxPacketSize uint32) (packet.Packet, error) {
	cr := &countingReader{r: r}
	fh, err := parseFixedHeader(cr)
	if err != nil {
		return nil, &PacketError{Err: err, Type: fh.Type, Offset: cr.n}
	}
	if maxPacketSize > 0 && fh.RemainingLength > maxPacketSize {
		return nil, &PacketError{Err: ErrRemainingLengthExceeded, Type: fh.Type, Offset: cr.n}
	}

	body := io.LimitReader(cr, int64(fh.RemainingLength))
	p, err := decodeBody(fh, body)
	if err != nil {
		return nil, &PacketError{Err: err, Type: fh.Type, Offset: cr.n}
	}
	return p, nil
}

// countingReader tracks how many bytes Decode has consumed, so a
// PacketError can report where parsing stopped.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func decodeBody(fh packet.FixedHeader, r io.Reader) (packet.Packet, error) {
	switch fh.Type {
	case packet.CONNECT:
		return decodeConnect(r)
	case packet.CONNACK:
		return decodeConnAck(r)
	case packet.PUBLISH:
		return decodePublish(fh, r)
	case packet.PUBACK:
		id, err := readTwoByteInt(r)
		return &packet.PubAck{ID: id}, err
	case packet.PUBREC:
		id, err := readTwoByteInt(r)
		return &packet.PubRec{ID: id}, err
	case packet.PUBREL:
		id, err := readTwoByteInt(r)
		return &packet.PubRel{ID: id}, err
	case packet.PUBCOMP:
		id, err := readTwoByteInt(r)
		return &packet.PubComp{ID: id}, err
	case packet.SUBSCRIBE:
		return decodeSubscribe(r)
	case packet.SUBACK:
		return decodeSubAck(r)
	case packet.UNSUBSCRIBE:
		return decodeUnsubscribe(r)
	case packet.UNSUBACK:
		id, err := readTwoByteInt(r)
		return &packet.UnsubAck{ID: id}, err
	case packet.PINGREQ:
		return packet.PingReq{}, nil
	case packet.PINGRESP:
		return packet.PingResp{}, nil
	case packet.DISCONNECT:
		return packet.Disconnect{}, nil
	default:
		return nil, ErrUnknownPacketType
	}
}

func decodeConnect(r io.Reader) (*packet.Connect, error) {
	name, err := readUTF8String(r)
	if err != nil {
		return nil, ErrBadProtocolName
	}
	if name != "MQTT" && name != "MQIsdp" {
		return nil, ErrBadProtocolName
	}

	level, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if level != 3 && level != 4 {
		return nil, ErrUnknownProtocolLevel
	}

	flags, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if flags&0x01 != 0 {
		return nil, ErrInvalidConnectFlag
	}

	p := &packet.Connect{
		ProtocolName:  name,
		ProtocolLevel: level,
		CleanSession:  flags&0x02 != 0,
		WillFlag:      flags&0x04 != 0,
		WillQoS:       packet.QoS((flags & 0x18) >> 3),
		WillRetain:    flags&0x20 != 0,
		PasswordFlag:  flags&0x40 != 0,
		UsernameFlag:  flags&0x80 != 0,
	}
	if !p.WillQoS.IsValid() {
		return nil, ErrInvalidQoS
	}
	if p.PasswordFlag && !p.UsernameFlag {
		return nil, ErrInvalidConnectFlag
	}
	if !p.WillFlag && (p.WillQoS != packet.QoS0 || p.WillRetain) {
		return nil, ErrInvalidConnectFlag
	}

	if p.KeepAlive, err = readTwoByteInt(r); err != nil {
		return nil, err
	}
	if p.ClientID, err = readUTF8String(r); err != nil {
		return nil, err
	}

	if p.WillFlag {
		if p.WillTopic, err = readUTF8String(r); err != nil {
			return nil, err
		}
		if p.WillPayload, err = readBinaryData(r); err != nil {
			return nil, err
		}
	}
	if p.UsernameFlag {
		if p.Username, err = readUTF8String(r); err != nil {
			return nil, err
		}
	}
	if p.PasswordFlag {
		if p.Password, err = readBinaryData(r); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func decodeConnAck(r io.Reader) (*packet.ConnAck, error) {
	flags, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if flags&0xFE != 0 {
		return nil, ErrInvalidConnAckFlags
	}
	code, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if code > byte(packet.RefusedNotAuthorized) {
		return nil, ErrInvalidConnectReturnCode
	}
	return &packet.ConnAck{SessionPresent: flags&0x01 != 0, ReturnCode: packet.ReturnCode(code)}, nil
}

func decodePublish(fh packet.FixedHeader, r io.Reader) (*packet.Publish, error) {
	topic, err := readUTF8String(r)
	if err != nil {
		return nil, err
	}
	p := &packet.Publish{DUP: fh.DUP, QoS: fh.QoS, Retain: fh.Retain, Topic: topic}

	if fh.QoS != packet.QoS0 {
		if p.ID, err = readTwoByteInt(r); err != nil {
			return nil, err
		}
		if p.ID == 0 {
			return nil, ErrBufferUnderflow
		}
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	p.Payload = payload
	return p, nil
}

func decodeSubscribe(r io.Reader) (*packet.Subscribe, error) {
	id, err := readTwoByteInt(r)
	if err != nil {
		return nil, err
	}
	p := &packet.Subscribe{ID: id}

	for {
		filter, err := readUTF8String(r)
		if err == ErrBufferUnderflow {
			if len(p.Filters) == 0 {
				return nil, ErrEmptySubscriptionList
			}
			break
		}
		if err != nil {
			return nil, err
		}
		qosByte, err := readByte(r)
		if err != nil {
			return nil, err
		}
		qos := packet.QoS(qosByte & 0x03)
		if !qos.IsValid() || qosByte&0xFC != 0 {
			return nil, ErrInvalidQoS
		}
		p.Filters = append(p.Filters, packet.TopicFilter{Filter: filter, QoS: qos})
	}

	return p, nil
}

func decodeSubAck(r io.Reader) (*packet.SubAck, error) {
	id, err := readTwoByteInt(r)
	if err != nil {
		return nil, err
	}
	codes, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &packet.SubAck{ID: id, ReturnCodes: codes}, nil
}

func decodeUnsubscribe(r io.Reader) (*packet.Unsubscribe, error) {
	id, err := readTwoByteInt(r)
	if err != nil {
		return nil, err
	}
	p := &packet.Unsubscribe{ID: id}

	for {
		filter, err := readUTF8String(r)
		if err == ErrBufferUnderflow {
			if len(p.Filters) == 0 {
				return nil, ErrEmptyUnsubscribeList
			}
			break
		}
		if err != nil {
			return nil, err
		}
		p.Filters = append(p.Filters, filter)
	}

	return p, nil
}
