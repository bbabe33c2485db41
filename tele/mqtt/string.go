package mqtt

import (
	"encoding/binary"

	"github.com/juju/errors"
)

const MaxStringLength = 65535

// AppendString appends 2 byte big endian length and raw bytes of s.
func AppendString(dst []byte, s string) ([]byte, error) {
	if len(s) > MaxStringLength {
		return dst, errors.Annotatef(ErrStringTooLong, "length=%d", len(s))
	}
	dst = append(dst, byte(len(s)>>8), byte(len(s)))
	return append(dst, s...), nil
}

// DecodeString returns string at start of b and the rest.
// ok=false when b is shorter than the declared length.
func DecodeString(b []byte) (s string, rest []byte, ok bool) {
	if len(b) < 2 {
		return "", b, false
	}
	n := int(binary.BigEndian.Uint16(b))
	if n+2 > len(b) {
		return "", b, false
	}
	return string(b[2 : 2+n]), b[2+n:], true
}
