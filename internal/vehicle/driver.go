package vehicle

import (
	"math"
	"math/rand"
)

type Mode uint8

const (
	ModeCityCruise Mode = iota
	ModeHighwaySprint
	ModePanicStop
	ModeIdle
)

const DriverModeSteps = 100

func (m Mode) String() string {
	switch m {
	case ModeCityCruise:
		return "city"
	case ModeHighwaySprint:
		return "sprint"
	case ModePanicStop:
		return "braking"
	case ModeIdle:
		return "idle"
	}
	return "unknown"
}

// Driver picks throttle input. Every DriverModeSteps it may switch mode:
// 2% panic stop, 20% highway, 40% city, 9% idle, otherwise keep current.
type Driver struct {
	rnd   *rand.Rand
	mode  Mode
	timer int
	step  uint64
}

func NewDriver(seed int64) *Driver {
	return &Driver{rnd: rand.New(rand.NewSource(seed))}
}

func (d *Driver) Mode() Mode { return d.mode }

func (d *Driver) Step() float64 {
	d.timer++
	if d.timer > DriverModeSteps {
		d.timer = 0
		d.mode = rollMode(d.rnd.Intn(100), d.mode)
	}
	d.step++
	return d.Throttle()
}

func (d *Driver) Throttle() float64 {
	switch d.mode {
	case ModeHighwaySprint:
		return 1
	case ModeCityCruise:
		return (math.Sin(float64(d.step)*0.05) + 1) / 2 * 0.6
	case ModePanicStop:
		return -1
	}
	return 0
}

func rollMode(roll int, current Mode) Mode {
	switch {
	case roll < 2:
		return ModePanicStop
	case roll < 22:
		return ModeHighwaySprint
	case roll < 62:
		return ModeCityCruise
	case roll > 90:
		return ModeIdle
	}
	return current
}
