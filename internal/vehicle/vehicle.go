// Package vehicle is a simple longitudinal model of a car: throttle in,
// speed, rpm, gear, coolant temperature and battery level out.
package vehicle

import (
	"math"
	"math/rand"

	"github.com/desmo/fleet/log2"
	"github.com/desmo/fleet/tele"
)

const (
	idleRPM      = 800
	redlineRPM   = 16000
	peakRPM      = 4500
	maxTorque    = 100
	ambientTemp  = 25
	maxTemp      = 150
	maxGear      = 6
	upshiftRPM   = 7500
	downshiftRPM = 2500

	overheatTemp   = 115
	lowBattery     = 20
	absDecel       = -5
	rpmNoiseStddev = 2.5
)

type Vehicle struct {
	log *log2.Log
	id  uint16
	rnd *rand.Rand

	speed     float64 // km/h
	rpm       float64
	temp      float64 // Celsius
	battery   float64 // percent
	accel     float64
	prevAccel float64
	gear      int
	target    float64 // cruise speed when throttle is not pressed
	throttle  float64
	killed    bool
	limp      bool
}

func New(id uint16, log *log2.Log) *Vehicle {
	return &Vehicle{
		log:     log,
		id:      id,
		rnd:     rand.New(rand.NewSource(int64(id))),
		rpm:     idleRPM,
		temp:    ambientTemp,
		battery: 100,
		gear:    1,
		target:  110 + float64(id%50),
	}
}

func (v *Vehicle) ID() uint16 { return v.id }
func (v *Vehicle) Killed() bool { return v.killed }
func (v *Vehicle) Limp() bool { return v.limp }
func (v *Vehicle) Speed() float64 { return v.speed }

// SetThrottle accepts -1 (full brake) to 1 (full throttle).
func (v *Vehicle) SetThrottle(x float64) { v.throttle = clamp(x, -1, 1) }

func (v *Vehicle) OnCommand(cmd tele.Command) {
	switch cmd {
	case tele.CommandKill:
		v.killed = true
		v.log.Errorf("vehicle=%d remote kill switch active", v.id)
	case tele.CommandLimp:
		v.limp = true
		v.log.Infof("vehicle=%d limp mode active", v.id)
	case tele.CommandNormal:
		v.killed, v.limp = false, false
		v.log.Infof("vehicle=%d regular mode", v.id)
	default:
		v.log.Errorf("vehicle=%d unknown command opcode=%02x", v.id, byte(cmd))
	}
}

// Tick advances model by dt seconds.
func (v *Vehicle) Tick(dt float64) {
	demand := clamp((v.target-v.speed)*0.1, 0, 1)
	throttle := demand
	if v.throttle > 0 {
		throttle = v.throttle
	}
	switch {
	case v.killed:
		throttle = -1
		v.rpm = 0
	case v.limp:
		if v.speed > 40 {
			throttle = -0.5
		} else if throttle > 0.3 {
			throttle = 0.3
		}
	}

	force := throttle * torqueCurve(v.rpm) * maxTorque
	if v.speed > 0 {
		force -= 5 // rolling friction
	}
	force -= 0.0035 * v.speed * v.speed
	if throttle < -0.1 {
		force -= math.Abs(throttle) * 15
	}
	if throttle < 0.05 && v.speed > 0 {
		force -= 2
	}

	v.prevAccel = v.accel
	v.accel = force
	v.speed = math.Max(0, v.speed+v.accel*dt)

	v.updateRPM()
	if v.rpm > upshiftRPM && v.gear < maxGear {
		v.gear++
		v.updateRPM()
	} else if v.rpm < downshiftRPM && v.gear > 1 {
		v.gear--
		v.updateRPM()
	}

	heatIn := v.rpm / 3000 * 15 * dt
	heatOut := (v.temp - ambientTemp) * 0.2 * dt
	v.temp = clamp(v.temp+heatIn-heatOut, ambientTemp, maxTemp)

	if v.speed > 0 {
		v.battery = math.Max(0, v.battery-0.05*dt)
	}
}

// Snapshot fills vehicle fields of f. Sequence, timestamp and checksum are left to caller.
func (v *Vehicle) Snapshot(f *tele.Frame, dt float64) {
	f.VehicleID = v.id
	f.Version = tele.FrameVersion
	f.RPM = uint16(clamp(v.rpm+v.rnd.NormFloat64()*rpmNoiseStddev, 0, redlineRPM))
	f.Speed = uint16(v.speed)
	f.Gear = uint8(v.gear)
	f.Temp = uint8(v.temp)
	f.Battery = uint8(v.battery)
	f.Jerk = 0
	if dt > 0 {
		jerk := (v.accel - v.prevAccel) / dt * 100
		f.Jerk = int16(clamp(jerk, math.MinInt16, math.MaxInt16))
	}
	f.Flags = 0
	if f.Temp > overheatTemp {
		f.Flags |= tele.FlagOverheat
	}
	if f.Battery < lowBattery {
		f.Flags |= tele.FlagLowBattery
	}
	if v.accel < absDecel {
		f.Flags |= tele.FlagABS
	}
	if v.killed {
		f.Flags |= tele.FlagRemoteKill
	}
	f.CPULoad = uint8(10 + v.rnd.Intn(30))
}

func (v *Vehicle) updateRPM() {
	if v.killed {
		v.rpm = 0
		return
	}
	ratio := math.Max(0.8, 4.8-float64(v.gear)*0.65)
	v.rpm = clamp(v.speed*ratio*25, idleRPM, redlineRPM)
}

// torqueCurve peaks at peakRPM, never below 30%.
func torqueCurve(rpm float64) float64 {
	d := (rpm - peakRPM) / peakRPM
	return clamp(1-d*d, 0.3, 1)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
