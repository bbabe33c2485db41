package vehicle

import (
	"testing"

	"github.com/desmo/fleet/log2"
	"github.com/desmo/fleet/tele"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = 0.1

func TestVehicleAccelerates(t *testing.T) {
	t.Parallel()
	v := New(101, log2.NewTest(t, log2.LDebug))
	var f tele.Frame
	v.Snapshot(&f, dt)
	assert.Equal(t, uint16(101), f.VehicleID)
	assert.Equal(t, uint8(tele.FrameVersion), f.Version)
	assert.Equal(t, uint16(0), f.Speed)
	assert.Equal(t, uint8(1), f.Gear)
	assert.Equal(t, uint8(100), f.Battery)

	v.SetThrottle(1)
	for i := 0; i < 300; i++ {
		v.Tick(dt)
	}
	v.Snapshot(&f, dt)
	assert.Greater(t, f.Speed, uint16(50))
	assert.Greater(t, f.Gear, uint8(1))
	assert.Greater(t, f.Temp, uint8(25))
	assert.Less(t, f.Battery, uint8(100))
	assert.GreaterOrEqual(t, f.CPULoad, uint8(10))
	assert.Less(t, f.CPULoad, uint8(40))
}

func TestVehicleCommands(t *testing.T) {
	t.Parallel()
	v := New(7, log2.NewTest(t, log2.LDebug))
	v.SetThrottle(1)
	for i := 0; i < 200; i++ {
		v.Tick(dt)
	}
	require.Greater(t, v.Speed(), 40.0)

	v.OnCommand(tele.CommandKill)
	assert.True(t, v.Killed())
	v.Tick(dt)
	var f tele.Frame
	v.Snapshot(&f, dt)
	assert.True(t, f.Flags.Has(tele.FlagRemoteKill))
	assert.True(t, f.Flags.Has(tele.FlagABS), "flags=%s", f.Flags)
	assert.Less(t, f.RPM, uint16(10))
	for i := 0; i < 1000 && v.Speed() > 0; i++ {
		v.Tick(dt)
	}
	assert.Equal(t, 0.0, v.Speed())

	v.OnCommand(tele.CommandNormal)
	assert.False(t, v.Killed())
	v.OnCommand(tele.CommandLimp)
	assert.True(t, v.Limp())
	v.SetThrottle(1)
	for i := 0; i < 600; i++ {
		v.Tick(dt)
	}
	assert.LessOrEqual(t, v.Speed(), 45.0)

	v.OnCommand(tele.Command(0x7f))
	assert.True(t, v.Limp(), "unknown opcode must not change mode")
}

func TestSnapshotFlags(t *testing.T) {
	t.Parallel()
	v := New(1, nil)
	v.temp = 120
	v.battery = 10
	var f tele.Frame
	v.Snapshot(&f, dt)
	assert.Equal(t, tele.FlagOverheat|tele.FlagLowBattery, f.Flags)
}

func TestThrottleClamp(t *testing.T) {
	t.Parallel()
	v := New(1, nil)
	v.SetThrottle(5)
	assert.Equal(t, 1.0, v.throttle)
	v.SetThrottle(-5)
	assert.Equal(t, -1.0, v.throttle)
}

func TestDriverModes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		roll   int
		expect Mode
	}{
		{0, ModePanicStop},
		{1, ModePanicStop},
		{2, ModeHighwaySprint},
		{21, ModeHighwaySprint},
		{22, ModeCityCruise},
		{61, ModeCityCruise},
		{62, ModeHighwaySprint}, // keep
		{90, ModeHighwaySprint},
		{91, ModeIdle},
		{99, ModeIdle},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, rollMode(c.roll, ModeHighwaySprint), "roll=%d", c.roll)
	}

	d := NewDriver(42)
	assert.Equal(t, ModeCityCruise, d.Mode())
	for i := 0; i < DriverModeSteps; i++ {
		x := d.Step()
		assert.GreaterOrEqual(t, x, 0.0)
		assert.LessOrEqual(t, x, 0.6)
	}
	d.mode = ModePanicStop
	assert.Equal(t, -1.0, d.Throttle())
	d.mode = ModeIdle
	assert.Equal(t, 0.0, d.Throttle())
}
