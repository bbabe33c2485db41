package mqtt

import (
	"encoding/binary"

	"github.com/juju/errors"
)

var (
	ErrNotConnected      = errors.New("mqtt: not connected")
	ErrMalformedLength   = errors.New("mqtt: malformed remaining length")
	ErrPacketTooLarge    = errors.New("mqtt: packet exceeds read limit")
	ErrStringTooLong     = errors.New("mqtt: string longer than 65535 bytes")
	ErrUnexpectedPacket  = errors.New("mqtt: unexpected packet type")
	ErrConnectionRefused = errors.New("mqtt: connection refused by broker")
	ErrPacketIDMismatch  = errors.New("mqtt: acknowledged packet id mismatch")
)

// Fixed header first byte, flags included where they are fixed by protocol.
const (
	TypeConnect    byte = 0x10
	TypeConnack    byte = 0x20
	TypePublish    byte = 0x30
	TypePuback     byte = 0x40
	TypeSubscribe  byte = 0x82
	TypeSuback     byte = 0x90
	TypePingreq    byte = 0xc0
	TypePingresp   byte = 0xd0
	TypeDisconnect byte = 0xe0

	typeMask byte = 0xf0
)

const (
	ProtocolLevel       byte = 0x04
	connectCleanSession byte = 0x02
	ConnackAccepted     byte = 0x00
)

type QOS byte

const (
	QOS0 QOS = 0
	QOS1 QOS = 1
)

var protocolName = "MQTT"

var (
	pingreqPacket    = []byte{TypePingreq, 0x00}
	disconnectPacket = []byte{TypeDisconnect, 0x00}
)

func packetQOS(header byte) QOS { return QOS(header>>1) & 3 }

// appendPacket writes header, remaining length and body parts.
func appendPacket(dst []byte, header byte, body []byte) ([]byte, error) {
	dst = append(dst, header)
	dst, err := AppendLength(dst, len(body))
	if err != nil {
		return dst, err
	}
	return append(dst, body...), nil
}

func ConnectPacket(clientID string, keepaliveSec uint16) ([]byte, error) {
	body := make([]byte, 0, 12+len(clientID))
	body, _ = AppendString(body, protocolName)
	body = append(body, ProtocolLevel, connectCleanSession, byte(keepaliveSec>>8), byte(keepaliveSec))
	body, err := AppendString(body, clientID)
	if err != nil {
		return nil, errors.Annotate(err, "client id")
	}
	return appendPacket(nil, TypeConnect, body)
}

// PublishPacket id is written only when qos>0.
func PublishPacket(topic string, payload []byte, qos QOS, id uint16) ([]byte, error) {
	body := make([]byte, 0, 4+len(topic)+len(payload))
	body, err := AppendString(body, topic)
	if err != nil {
		return nil, errors.Annotate(err, "topic")
	}
	header := TypePublish
	if qos > QOS0 {
		header |= byte(qos) << 1
		body = append(body, byte(id>>8), byte(id))
	}
	body = append(body, payload...)
	return appendPacket(nil, header, body)
}

func SubscribePacket(id uint16, topic string, qos QOS) ([]byte, error) {
	body := make([]byte, 0, 5+len(topic))
	body = append(body, byte(id>>8), byte(id))
	body, err := AppendString(body, topic)
	if err != nil {
		return nil, errors.Annotate(err, "topic")
	}
	body = append(body, byte(qos))
	return appendPacket(nil, TypeSubscribe, body)
}

func PubackPacket(id uint16) []byte {
	b := []byte{TypePuback, 0x02, 0, 0}
	binary.BigEndian.PutUint16(b[2:], id)
	return b
}

func ConnackCodeString(code byte) string {
	switch code {
	case 0:
		return "accepted"
	case 1:
		return "unacceptable protocol version"
	case 2:
		return "identifier rejected"
	case 3:
		return "server unavailable"
	case 4:
		return "bad user name or password"
	case 5:
		return "not authorized"
	}
	return "unknown"
}
