package mqtt

import (
	"io"

	"github.com/juju/errors"
)

// MaxRemainingLength is the largest value representable in 4 length bytes.
const MaxRemainingLength = 268435455

const maxLengthBytes = 4

// AppendLength appends n in MQTT remaining length encoding:
// 7 value bits per byte, least significant group first, bit 7 set on all but the last byte.
func AppendLength(dst []byte, n int) ([]byte, error) {
	if n < 0 || n > MaxRemainingLength {
		return dst, errors.Annotatef(ErrMalformedLength, "encode length=%d", n)
	}
	for {
		b := byte(n % 128)
		n /= 128
		if n > 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if n == 0 {
			return dst, nil
		}
	}
}

// LengthSize returns number of bytes AppendLength would produce for valid n.
func LengthSize(n int) int {
	switch {
	case n < 128:
		return 1
	case n < 16384:
		return 2
	case n < 2097152:
		return 3
	}
	return 4
}

// DecodeLength reads remaining length. Consumes at most 4 bytes;
// a 4th byte with continuation bit set is ErrMalformedLength.
func DecodeLength(r io.ByteReader) (int, error) {
	value := 0
	multiplier := 1
	for i := 0; i < maxLengthBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, errors.Annotate(err, "decode length")
		}
		value += int(b&0x7f) * multiplier
		if b&0x80 == 0 {
			return value, nil
		}
		multiplier *= 128
	}
	return 0, errors.Annotatef(ErrMalformedLength, "continuation after %d bytes", maxLengthBytes)
}
