// Package crc implements CRC-16/CCITT-FALSE used by telemetry frames:
// poly=0x1021 init=0xffff, no reflection, no final xor.
package crc

const (
	CRC16_CCITT_POLY uint16 = 0x1021
	CRC16_CCITT_INIT uint16 = 0xffff
)

var crc16Table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc16Table[i] = CRC16_ccitt_reference(0, byte(i))
	}
}

// Bit at a time, MSB first. Slow, kept as source of truth for the table.
func CRC16_ccitt_reference(crc uint16, data byte) uint16 {
	crc ^= uint16(data) << 8
	for i := 0; i < 8; i++ {
		if (crc & 0x8000) != 0 {
			crc = (crc << 1) ^ CRC16_CCITT_POLY
		} else {
			crc <<= 1
		}
	}
	return crc
}

func CRC16_ccitt_next(crc uint16, data byte) uint16 {
	return (crc << 8) ^ crc16Table[byte(crc>>8)^data]
}

func CRC16_ccitt_n(crc uint16, bs []byte) uint16 {
	for _, b := range bs {
		crc = CRC16_ccitt_next(crc, b)
	}
	return crc
}

// CRC16_CCITT_FALSE returns checksum of bs starting from initial register 0xffff.
func CRC16_CCITT_FALSE(bs []byte) uint16 {
	return CRC16_ccitt_n(CRC16_CCITT_INIT, bs)
}
