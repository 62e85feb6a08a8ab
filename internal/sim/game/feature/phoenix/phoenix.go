package phoenix

import (
	"math"

	"thecore.gg/internal/sim/game/model"
)

// Phase is the lifecycle stage of the live generation, derived purely from how long
// it has been held.
type Phase string

const (
	PhaseStable  Phase = "STABLE"
	PhaseMelting Phase = "MELTING"
	// PhaseDeadPending: abandoned past the cooldown. Anyone may respawn a new generation,
	// but the old one is only retired when that respawn commits.
	PhaseDeadPending Phase = "DEAD_PENDING"
)

func Melting(held uint64, p model.Params) bool {
	return held > p.SafeLimitTicks
}

// RespawnReady is the two-stage gate: meltdown alone is not enough, the cooldown must
// also have elapsed.
func RespawnReady(held uint64, p model.Params) bool {
	return held > deathThreshold(p)
}

func PhaseOf(held uint64, p model.Params) Phase {
	switch {
	case RespawnReady(held, p):
		return PhaseDeadPending
	case Melting(held, p):
		return PhaseMelting
	default:
		return PhaseStable
	}
}

// TicksUntilMeltdown returns how many ticks remain before the holder melts (0 once melting).
func TicksUntilMeltdown(held uint64, p model.Params) uint64 {
	if held >= p.SafeLimitTicks {
		return 0
	}
	return p.SafeLimitTicks - held
}

func deathThreshold(p model.Params) uint64 {
	if p.SafeLimitTicks > math.MaxUint64-p.PhoenixCooldownTicks {
		return math.MaxUint64
	}
	return p.SafeLimitTicks + p.PhoenixCooldownTicks
}
