package tele

import "strings"

type Flags byte

const (
	FlagCheckEngine Flags = 1 << iota
	FlagOverheat
	FlagLowBattery
	FlagABS
	FlagTCS
	FlagRemoteKill
)

var flagNames = []struct {
	f    Flags
	name string
}{
	{FlagCheckEngine, "check_engine"},
	{FlagOverheat, "overheat"},
	{FlagLowBattery, "low_battery"},
	{FlagABS, "abs"},
	{FlagTCS, "tcs"},
	{FlagRemoteKill, "remote_kill"},
}

func (f Flags) Has(x Flags) bool { return f&x != 0 }

func (f Flags) String() string {
	if f == 0 {
		return "-"
	}
	parts := make([]string, 0, len(flagNames))
	for _, fn := range flagNames {
		if f.Has(fn.f) {
			parts = append(parts, fn.name)
		}
	}
	if rest := f &^ (FlagRemoteKill<<1 - 1); rest != 0 {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, "|")
}
