package mqtt

import "fmt"

const debugDumpMax = 48

func PacketTypeString(header byte) string {
	switch header & typeMask {
	case TypeConnect:
		return "CONNECT"
	case TypeConnack:
		return "CONNACK"
	case TypePublish:
		return "PUBLISH"
	case TypePuback:
		return "PUBACK"
	case TypeSubscribe & typeMask:
		return "SUBSCRIBE"
	case TypeSuback:
		return "SUBACK"
	case TypePingreq:
		return "PINGREQ"
	case TypePingresp:
		return "PINGRESP"
	case TypeDisconnect:
		return "DISCONNECT"
	}
	return fmt.Sprintf("type=%02x", header)
}

// PacketString formats raw packet for debug log, long tail elided.
func PacketString(b []byte) string {
	if len(b) == 0 {
		return "(empty)"
	}
	if len(b) > debugDumpMax {
		return fmt.Sprintf("<%s len=%d %x...>", PacketTypeString(b[0]), len(b), b[:debugDumpMax])
	}
	return fmt.Sprintf("<%s len=%d %x>", PacketTypeString(b[0]), len(b), b)
}
