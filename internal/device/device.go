// Package device owns the single simulated cooker's mutable state. All
// reads and writes go through atomic operations on Device; the raw record
// is never shared across goroutines.
package device

import (
	"fmt"
	"sync"
	"time"

	"sousvide_simulator/internal/models"
	"sousvide_simulator/internal/physics"
)

const (
	// Nominal circulation pump speed while a cook is running.
	RunningRPM = 1200
	// Duty cycle applied to heater and motor when a cook starts.
	fullDuty = 100.0
)

// Limits are the validation bounds for start/set commands, in Celsius and
// seconds.
type Limits struct {
	MinTempCelsius  float64
	MaxTempCelsius  float64
	MinTimerSeconds int
	MaxTimerSeconds int
}

// Device is the cooker state machine. One writer lock guards the state;
// every exported operation is a single atomic update, released before any
// network I/O happens in the caller.
type Device struct {
	mu        sync.Mutex
	state     models.CookerState
	limits    Limits
	params    physics.Params
	rng       physics.Rand
	timeScale float64
}

// Option tweaks Device construction.
type Option func(*Device)

// WithRand replaces the oscillation randomness source, for deterministic
// tests.
func WithRand(rng physics.Rand) Option {
	return func(d *Device) { d.rng = rng }
}

// New builds an IDLE device at ambient temperature.
func New(state models.CookerState, limits Limits, params physics.Params, timeScale float64, opts ...Option) *Device {
	d := &Device{
		state:     state,
		limits:    limits,
		params:    params,
		rng:       physics.NewRand(time.Now().UnixNano()),
		timeScale: timeScale,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Snapshot returns a copy of the full state, safe to use without the lock.
func (d *Device) Snapshot() models.CookerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// State returns the current job state.
func (d *Device) State() models.DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.JobStatus.State
}

// systick is the device's millisecond uptime counter.
func (d *Device) systick() int64 {
	return time.Since(d.state.CreatedAt).Milliseconds()
}

// setState moves the machine to st and mirrors job.mode in the same update.
// Callers must hold d.mu. This is the only place either field is written,
// so readers can never observe the pair out of sync.
func setState(s *models.CookerState, st models.DeviceState, systick int64) {
	s.JobStatus.State = st
	s.Job.Mode = string(st)
	s.JobStatus.StateChangeSystick = systick
}

// normalizeCelsius converts temp to Celsius when unit is "F".
func normalizeCelsius(temp float64, unit string) float64 {
	if unit == models.UnitFahrenheit {
		return (temp - 32) * 5 / 9
	}
	return temp
}

func (d *Device) validateTemp(tempC float64) error {
	if tempC < d.limits.MinTempCelsius {
		return &CommandError{
			Code:    CodeInvalidTemperature,
			Message: fmt.Sprintf("temperature %.1fC is below minimum %.1fC", tempC, d.limits.MinTempCelsius),
		}
	}
	if tempC > d.limits.MaxTempCelsius {
		return &CommandError{
			Code:    CodeInvalidTemperature,
			Message: fmt.Sprintf("temperature %.1fC is above maximum %.1fC", tempC, d.limits.MaxTempCelsius),
		}
	}
	return nil
}

func (d *Device) validateTimer(seconds int) error {
	if seconds < d.limits.MinTimerSeconds {
		return &CommandError{
			Code:    CodeInvalidTimer,
			Message: fmt.Sprintf("timer %ds is below minimum %ds", seconds, d.limits.MinTimerSeconds),
		}
	}
	if seconds > d.limits.MaxTimerSeconds {
		return &CommandError{
			Code:    CodeInvalidTimer,
			Message: fmt.Sprintf("timer %ds is above maximum %ds", seconds, d.limits.MaxTimerSeconds),
		}
	}
	return nil
}

// Start begins a cook: validates the Celsius-normalized target and the
// timer, then moves to PREHEATING with heater and pump at full duty.
func (d *Device) Start(targetTemp float64, unit string, timerSeconds int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.JobStatus.State.Active() {
		return &CommandError{Code: CodeDeviceBusy, Message: "device is already cooking"}
	}

	tempC := normalizeCelsius(targetTemp, unit)
	if err := d.validateTemp(tempC); err != nil {
		return err
	}
	if err := d.validateTimer(timerSeconds); err != nil {
		return err
	}

	tick := d.systick()
	d.state.Job.ID = models.GenerateCookID()
	d.state.Job.TargetTemperature = tempC
	d.state.Job.TemperatureUnit = unit
	d.state.Job.CookTimeSeconds = timerSeconds
	d.state.JobStatus.CookTimeRemaining = timerSeconds
	d.state.JobStatus.JobStartSystick = tick
	d.state.HeaterControl.DutyCycle = fullDuty
	d.state.MotorControl.DutyCycle = fullDuty
	d.state.MotorInfo.RPM = RunningRPM
	setState(&d.state, models.StatePreheating, tick)
	return nil
}

// Stop ends the current cook. Water temperature is left alone; it decays
// naturally through the physics loop.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.JobStatus.State == models.StateIdle {
		return &CommandError{Code: CodeNoActiveCook, Message: "no active cook to stop"}
	}

	d.state.HeaterControl.DutyCycle = 0
	d.state.MotorControl.DutyCycle = 0
	d.state.MotorInfo.RPM = 0
	setState(&d.state, models.StateIdle, d.systick())
	return nil
}

// SetTargetTemperature updates the target without touching the machine
// state; the device accepts it in any state.
func (d *Device) SetTargetTemperature(temp float64, unit string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tempC := normalizeCelsius(temp, unit)
	if err := d.validateTemp(tempC); err != nil {
		return err
	}
	d.state.Job.TargetTemperature = tempC
	d.state.Job.TemperatureUnit = unit
	return nil
}

// SetTimer updates the cook duration and the remaining time together,
// accepted in any state.
func (d *Device) SetTimer(seconds int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.validateTimer(seconds); err != nil {
		return err
	}
	d.state.Job.CookTimeSeconds = seconds
	d.state.JobStatus.CookTimeRemaining = seconds
	return nil
}

// Reset returns the device to a pristine IDLE state: ambient water, zeroed
// job and controls, all safety flags cleared. Test harnesses call this
// between scenarios.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.Job.TargetTemperature = 0
	d.state.Job.CookTimeSeconds = 0
	d.state.JobStatus.CookTimeRemaining = 0
	d.state.TemperatureInfo.WaterTemperature = d.params.AmbientTemp
	d.state.HeaterControl.DutyCycle = 0
	d.state.MotorControl.DutyCycle = 0
	d.state.MotorInfo.RPM = 0
	d.state.PinInfo = models.PinInfo{DeviceSafe: true}
	setState(&d.state, models.StateIdle, d.systick())
}

// Tick advances the physics by dt virtual seconds and applies any state
// transition the step produced. It reports whether the machine changed
// state so the caller can log the transition.
func (d *Device) Tick(dt float64) (transitioned bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	in := physics.Input{
		WaterTemp:        d.state.TemperatureInfo.WaterTemperature,
		TargetTemp:       d.state.Job.TargetTemperature,
		RemainingSeconds: d.state.JobStatus.CookTimeRemaining,
	}
	switch d.state.JobStatus.State {
	case models.StatePreheating:
		in.Phase = physics.PhasePreheating
	case models.StateCooking:
		in.Phase = physics.PhaseCooking
	case models.StateDone:
		in.Phase = physics.PhaseDone
	default:
		in.Phase = physics.PhaseIdle
	}

	out := physics.Step(in, d.params, dt, d.rng)
	d.state.TemperatureInfo.WaterTemperature = out.WaterTemp
	d.state.JobStatus.CookTimeRemaining = out.RemainingSeconds

	switch {
	case out.ReachedTarget && d.state.JobStatus.State == models.StatePreheating:
		setState(&d.state, models.StateCooking, d.systick())
		return true
	case out.TimerExpired && d.state.JobStatus.State == models.StateCooking:
		setState(&d.state, models.StateDone, d.systick())
		return true
	}
	return false
}

// TimeScale returns the current virtual-time acceleration factor.
func (d *Device) TimeScale() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeScale
}

// SetTimeScale changes the acceleration factor; it must be positive.
func (d *Device) SetTimeScale(scale float64) error {
	if scale <= 0 {
		return fmt.Errorf("time scale must be positive, got %v", scale)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeScale = scale
	return nil
}

// Online reports whether the simulated device accepts connections.
func (d *Device) Online() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Online
}

// SetOnline flips connection acceptance.
func (d *Device) SetOnline(online bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Online = online
}

// Apply runs fn as one atomic update against the state record. The fault
// injector and control server use it for composite mutations that must
// never be visible half-applied; fn must not block or do I/O.
func (d *Device) Apply(fn func(s *models.CookerState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.state)
}

// ForceState is Apply's counterpart for the control server's partial
// updates. Nil fields are left untouched; State enforces the mirror rule.
func (d *Device) ForceState(u ForceUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u.State != nil {
		st, ok := models.ParseDeviceState(*u.State)
		if !ok {
			return fmt.Errorf("invalid state: %q", *u.State)
		}
		setState(&d.state, st, d.systick())
	}
	if u.Temperature != nil {
		d.state.TemperatureInfo.WaterTemperature = *u.Temperature
	}
	if u.TargetTemperature != nil {
		d.state.Job.TargetTemperature = *u.TargetTemperature
	}
	if u.Timer != nil {
		d.state.Job.CookTimeSeconds = *u.Timer
	}
	if u.TimerRemaining != nil {
		d.state.JobStatus.CookTimeRemaining = *u.TimerRemaining
	}
	return nil
}

// ForceIdle aborts any active cook inside an Apply closure with the atomic
// state/mode flip and reports whether a cook was aborted. Duty-cycle
// effects differ per safety fault and stay with the caller.
func ForceIdle(s *models.CookerState, systick int64) bool {
	if !s.JobStatus.State.Active() {
		return false
	}
	setState(s, models.StateIdle, systick)
	return true
}

// Systick exposes the uptime counter for Apply closures that force state
// transitions.
func (d *Device) Systick() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.systick()
}

// ForceUpdate is a partial state override from the control server.
type ForceUpdate struct {
	State             *string
	Temperature       *float64
	TargetTemperature *float64
	Timer             *int
	TimerRemaining    *int
}
