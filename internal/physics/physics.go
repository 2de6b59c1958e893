// Package physics advances the simulated cooker's temperatures and timer
// over virtual time. It is pure: callers pass the relevant slice of device
// state in and apply the returned values under their own lock.
package physics

import "math/rand"

// Rand is the randomness source for thermostat oscillation. It is an
// interface so tests can inject a deterministic sequence.
type Rand interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
}

// NewRand returns a seeded math/rand source.
func NewRand(seed int64) Rand {
	return rand.New(rand.NewSource(seed))
}

// Params are the tuning constants. Rates are degrees C per minute, matching
// the configuration file.
type Params struct {
	AmbientTemp     float64
	HeatingRate     float64
	CoolingRate     float64
	TempTolerance   float64
	TempOscillation float64
}

// Phase is the subset of device state the physics step distinguishes.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePreheating
	PhaseCooking
	PhaseDone
)

// Input is one step's view of the device.
type Input struct {
	Phase            Phase
	WaterTemp        float64
	TargetTemp       float64
	RemainingSeconds int
}

// Result is the state produced by one step. ReachedTarget and TimerExpired
// signal the PREHEATING→COOKING and COOKING→DONE transitions; the caller
// owns the actual state change.
type Result struct {
	WaterTemp        float64
	RemainingSeconds int
	ReachedTarget    bool
	TimerExpired     bool
}

// Step advances the device by dt virtual seconds.
//
// PREHEATING ramps toward the target and clamps to it exactly once within
// tolerance, so floating-point drift can never leave the device one tick
// short of COOKING forever. COOKING holds the target with bounded random
// oscillation and counts the timer down, clamping at zero. DONE keeps the
// oscillation without a countdown. IDLE decays toward ambient and never
// undershoots it.
func Step(in Input, p Params, dt float64, rng Rand) Result {
	out := Result{
		WaterTemp:        in.WaterTemp,
		RemainingSeconds: in.RemainingSeconds,
	}

	switch in.Phase {
	case PhasePreheating:
		rate := p.HeatingRate / 60.0
		heated := in.WaterTemp + rate*dt
		if heated > in.TargetTemp {
			heated = in.TargetTemp
		}
		out.WaterTemp = heated
		if heated >= in.TargetTemp-p.TempTolerance {
			out.WaterTemp = in.TargetTemp
			out.ReachedTarget = true
		}

	case PhaseCooking:
		out.WaterTemp = in.TargetTemp + oscillate(p.TempOscillation, rng)
		remaining := float64(in.RemainingSeconds) - dt
		if remaining <= 0 {
			out.RemainingSeconds = 0
			out.TimerExpired = true
		} else {
			out.RemainingSeconds = int(remaining)
		}

	case PhaseDone:
		out.WaterTemp = in.TargetTemp + oscillate(p.TempOscillation, rng)

	case PhaseIdle:
		if in.WaterTemp > p.AmbientTemp {
			rate := p.CoolingRate / 60.0
			cooled := in.WaterTemp - rate*dt
			if cooled < p.AmbientTemp {
				cooled = p.AmbientTemp
			}
			out.WaterTemp = cooled
		}
	}

	return out
}

// oscillate samples a uniform value in [-amplitude, +amplitude].
func oscillate(amplitude float64, rng Rand) float64 {
	if amplitude == 0 || rng == nil {
		return 0
	}
	return (rng.Float64()*2 - 1) * amplitude
}
