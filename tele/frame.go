package tele

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/desmo/fleet/crc"
	"github.com/juju/errors"
)

var (
	ErrFrameSize  = fmt.Errorf("frame size is invalid")
	ErrFrameMagic = fmt.Errorf("frame magic is invalid")
	ErrChecksum   = fmt.Errorf("frame checksum mismatch")
)

const (
	FrameMagic   = uint16(0xd350)
	FrameSize    = 32
	FrameVersion = 1
)

// Frame binary representation, big endian, offset:size
// magic:0:2 vehicle:2:2 seq:4:4 timestamp:8:8 rpm:16:2 speed:18:2 jerk:20:2
// temp:22:1 battery:23:1 gear:24:1 flags:25:1 version:26:1 cpu:27:1
// checksum:28:2 reserved:30:2
// Checksum covers [0,28), reserved bytes are not covered and always written as zero.
const (
	offMagic     = 0
	offVehicleID = 2
	offSeq       = 4
	offTimestamp = 8
	offRPM       = 16
	offSpeed     = 18
	offJerk      = 20
	offTemp      = 22
	offBattery   = 23
	offGear      = 24
	offFlags     = 25
	offVersion   = 26
	offCPULoad   = 27
	offChecksum  = 28
	offReserved  = 30
)

type Frame struct {
	Timestamp uint64 // milliseconds since epoch
	Seq       uint32
	Magic     uint16
	VehicleID uint16
	RPM       uint16
	Speed     uint16
	Jerk      int16
	Checksum  uint16 // written by Marshal, read by Unmarshal
	Temp      uint8
	Battery   uint8
	Gear      uint8
	Flags     Flags
	Version   uint8
	CPULoad   uint8
}

// Checksum of serialized frame prefix. len(b) must be at least 28.
func Checksum(b []byte) uint16 {
	return crc.CRC16_CCITT_FALSE(b[:offChecksum])
}

func (f *Frame) Marshal() []byte {
	b := make([]byte, FrameSize)
	_ = f.MarshalTo(b)
	return b
}

// MarshalTo writes exactly FrameSize bytes into b.
// Zero Magic is replaced with FrameMagic.
func (f *Frame) MarshalTo(b []byte) error {
	if len(b) < FrameSize {
		return errors.Annotatef(ErrFrameSize, "buffer=%d", len(b))
	}
	b = b[:FrameSize]
	if f.Magic == 0 {
		f.Magic = FrameMagic
	}
	binary.BigEndian.PutUint16(b[offMagic:], f.Magic)
	binary.BigEndian.PutUint16(b[offVehicleID:], f.VehicleID)
	binary.BigEndian.PutUint32(b[offSeq:], f.Seq)
	binary.BigEndian.PutUint64(b[offTimestamp:], f.Timestamp)
	binary.BigEndian.PutUint16(b[offRPM:], f.RPM)
	binary.BigEndian.PutUint16(b[offSpeed:], f.Speed)
	binary.BigEndian.PutUint16(b[offJerk:], uint16(f.Jerk))
	b[offTemp] = f.Temp
	b[offBattery] = f.Battery
	b[offGear] = f.Gear
	b[offFlags] = byte(f.Flags)
	b[offVersion] = f.Version
	b[offCPULoad] = f.CPULoad
	b[offChecksum], b[offChecksum+1] = 0, 0
	b[offReserved], b[offReserved+1] = 0, 0

	f.Checksum = Checksum(b)
	binary.BigEndian.PutUint16(b[offChecksum:], f.Checksum)
	return nil
}

// If error != nil, frame is likely in broken state.
// Checksum mismatch is reported with errors.Cause(err) == ErrChecksum.
func (f *Frame) Unmarshal(b []byte) error {
	if len(b) != FrameSize {
		return errors.Annotatef(ErrFrameSize, "length=%d", len(b))
	}
	f.Magic = binary.BigEndian.Uint16(b[offMagic:])
	if f.Magic != FrameMagic {
		return errors.Annotatef(ErrFrameMagic, "magic=%04x", f.Magic)
	}
	f.VehicleID = binary.BigEndian.Uint16(b[offVehicleID:])
	f.Seq = binary.BigEndian.Uint32(b[offSeq:])
	f.Timestamp = binary.BigEndian.Uint64(b[offTimestamp:])
	f.RPM = binary.BigEndian.Uint16(b[offRPM:])
	f.Speed = binary.BigEndian.Uint16(b[offSpeed:])
	f.Jerk = int16(binary.BigEndian.Uint16(b[offJerk:]))
	f.Temp = b[offTemp]
	f.Battery = b[offBattery]
	f.Gear = b[offGear]
	f.Flags = Flags(b[offFlags])
	f.Version = b[offVersion]
	f.CPULoad = b[offCPULoad]
	f.Checksum = binary.BigEndian.Uint16(b[offChecksum:])

	if actual := Checksum(b); actual != f.Checksum {
		return errors.Annotatef(ErrChecksum, "vehicle=%d seq=%d declared=%04x actual=%04x", f.VehicleID, f.Seq, f.Checksum, actual)
	}
	return nil
}

func (f *Frame) Time() time.Time {
	return time.Unix(0, int64(f.Timestamp)*int64(time.Millisecond))
}

func (f *Frame) String() string {
	return fmt.Sprintf("(vehicle=%d seq=%d ts=%d rpm=%d speed=%d jerk=%d temp=%d battery=%d gear=%d flags=%s version=%d cpu=%d crc=%04x)",
		f.VehicleID, f.Seq, f.Timestamp, f.RPM, f.Speed, f.Jerk, f.Temp, f.Battery, f.Gear, f.Flags, f.Version, f.CPULoad, f.Checksum)
}
