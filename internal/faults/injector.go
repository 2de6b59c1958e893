// Package faults injects simulated hardware and network malfunctions into
// the device state, with optional timed auto-clear.
package faults

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"sousvide_simulator/internal/device"
	"sousvide_simulator/internal/logger"
	"sousvide_simulator/internal/models"
)

// Kind names one injectable fault, as used on the control API.
type Kind string

const (
	DeviceOffline       Kind = "device_offline"
	WaterLevelLow       Kind = "water_level_low"
	WaterLevelCritical  Kind = "water_level_critical"
	MotorStuck          Kind = "motor_stuck"
	NetworkLatency      Kind = "network_latency"
	IntermittentFailure Kind = "intermittent_failure"
	HeaterOvertemp      Kind = "heater_overtemp"
	TriacOvertemp       Kind = "triac_overtemp"
	WaterLeak           Kind = "water_leak"
)

// Kinds lists every fault kind, in control-API order.
func Kinds() []Kind {
	return []Kind{
		DeviceOffline, WaterLevelLow, WaterLevelCritical, MotorStuck,
		NetworkLatency, IntermittentFailure, HeaterOvertemp, TriacOvertemp,
		WaterLeak,
	}
}

// ParseKind validates a fault name from the control API.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// CloseOffline is the close code sent to sessions when the device goes
// offline. 1006 is what a real dropped device looks like to the client,
// but RFC 6455 forbids sending it, so the nearest sendable code is used.
const CloseOffline = 1013

// Sensor temperatures applied and restored by the overtemp faults.
const (
	heaterCriticalTemp = 150.0
	heaterNominalTemp  = 65.0
	triacCriticalTemp  = 100.0
	triacNominalTemp   = 40.0
)

// Network is the slice of the protocol server the injector needs: pushing
// state to sessions and force-closing them.
type Network interface {
	BroadcastState()
	DisconnectAll(code int, reason string)
}

// record tracks one fault kind's live configuration.
type record struct {
	enabled     bool
	duration    float64 // auto-clear delay in real seconds, 0 = permanent
	latencyMS   int
	failureRate float64
}

// Status is the externally visible view of an active fault.
type Status struct {
	Kind        Kind     `json:"error_type"`
	Duration    *float64 `json:"duration,omitempty"`
	LatencyMS   int      `json:"latency_ms,omitempty"`
	FailureRate float64  `json:"failure_rate,omitempty"`
}

// Params carries kind-specific trigger parameters.
type Params struct {
	LatencyMS   *int
	FailureRate *float64
}

// Injector owns the fault records. One lock guards them, independent of
// the device lock; device mutations go through Device.Apply so each fault
// effect lands as a single atomic state update.
type Injector struct {
	dev *device.Device
	net Network
	log *logger.Logger

	mu      sync.Mutex
	records map[Kind]*record
	timers  map[Kind]*time.Timer
	sample  func() float64
}

// Option tweaks Injector construction.
type Option func(*Injector)

// WithSampler replaces the failure-rate sampler, for deterministic tests.
func WithSampler(sample func() float64) Option {
	return func(i *Injector) { i.sample = sample }
}

// New builds an injector with every fault disabled.
func New(dev *device.Device, net Network, log *logger.Logger, opts ...Option) *Injector {
	inj := &Injector{
		dev:     dev,
		net:     net,
		log:     log,
		records: make(map[Kind]*record, len(Kinds())),
		timers:  make(map[Kind]*time.Timer),
		sample:  rand.Float64,
	}
	for _, k := range Kinds() {
		inj.records[k] = &record{}
	}
	for _, o := range opts {
		o(inj)
	}
	return inj
}

// Trigger enables a fault, applies its state effect, and when duration is
// positive schedules an auto-clear after that many real seconds. Triggering
// a kind that already has a pending auto-clear replaces the old timer.
func (i *Injector) Trigger(kind Kind, duration float64, p Params) (Status, error) {
	i.mu.Lock()
	rec, ok := i.records[kind]
	if !ok {
		i.mu.Unlock()
		return Status{}, fmt.Errorf("unknown fault kind: %q", kind)
	}
	rec.enabled = true
	rec.duration = duration
	switch kind {
	case NetworkLatency:
		rec.latencyMS = 1000
		if p.LatencyMS != nil {
			rec.latencyMS = *p.LatencyMS
		}
	case IntermittentFailure:
		rec.failureRate = 0.3
		if p.FailureRate != nil {
			rec.failureRate = *p.FailureRate
		}
	}
	if t, exists := i.timers[kind]; exists {
		t.Stop()
		delete(i.timers, kind)
	}
	if duration > 0 {
		i.timers[kind] = time.AfterFunc(
			time.Duration(duration*float64(time.Second)),
			func() { _ = i.Clear(kind) },
		)
	}
	status := i.statusLocked(kind)
	i.mu.Unlock()

	i.apply(kind)
	if i.log != nil {
		i.log.Infow("fault_triggered", "kind", kind, "duration", duration)
	}
	return status, nil
}

// Clear disables a fault, reverses its state effect, and cancels any
// pending auto-clear.
func (i *Injector) Clear(kind Kind) error {
	i.mu.Lock()
	rec, ok := i.records[kind]
	if !ok {
		i.mu.Unlock()
		return fmt.Errorf("unknown fault kind: %q", kind)
	}
	rec.enabled = false
	rec.duration = 0
	rec.latencyMS = 0
	rec.failureRate = 0
	if t, exists := i.timers[kind]; exists {
		t.Stop()
		delete(i.timers, kind)
	}
	i.mu.Unlock()

	i.revert(kind)
	if i.log != nil {
		i.log.Infow("fault_cleared", "kind", kind)
	}
	return nil
}

// Active returns the currently enabled faults.
func (i *Injector) Active() []Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Status, 0, len(i.records))
	for _, k := range Kinds() {
		if i.records[k].enabled {
			out = append(out, i.statusLocked(k))
		}
	}
	return out
}

// IsActive reports whether a fault is currently enabled.
func (i *Injector) IsActive(kind Kind) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec, ok := i.records[kind]
	return ok && rec.enabled
}

// ShouldFailCommand samples the intermittent-failure probability. The
// protocol layer consults it before executing any command.
func (i *Injector) ShouldFailCommand() bool {
	i.mu.Lock()
	rec := i.records[IntermittentFailure]
	enabled, rate := rec.enabled, rec.failureRate
	i.mu.Unlock()
	if !enabled {
		return false
	}
	return i.sample() < rate
}

// Latency returns the injected response delay, zero when inactive.
func (i *Injector) Latency() time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec := i.records[NetworkLatency]
	if !rec.enabled {
		return 0
	}
	return time.Duration(rec.latencyMS) * time.Millisecond
}

func (i *Injector) statusLocked(kind Kind) Status {
	rec := i.records[kind]
	s := Status{Kind: kind, LatencyMS: rec.latencyMS, FailureRate: rec.failureRate}
	if rec.duration > 0 {
		d := rec.duration
		s.Duration = &d
	}
	return s
}

// apply mutates device state for the fault's onset. The device lock is
// released before any broadcast goes out.
func (i *Injector) apply(kind Kind) {
	tick := i.dev.Systick()
	switch kind {
	case DeviceOffline:
		i.net.DisconnectAll(CloseOffline, "Device offline")
		i.dev.SetOnline(false)

	case WaterLevelLow:
		i.dev.Apply(func(s *models.CookerState) {
			s.PinInfo.WaterLevelLow = true
		})
		i.net.BroadcastState()

	case WaterLevelCritical:
		i.dev.Apply(func(s *models.CookerState) {
			s.PinInfo.WaterLevelCritical = true
			s.PinInfo.DeviceSafe = false
			if device.ForceIdle(s, tick) {
				s.HeaterControl.DutyCycle = 0
				s.MotorControl.DutyCycle = 0
			}
		})
		i.net.BroadcastState()

	case MotorStuck:
		i.dev.Apply(func(s *models.CookerState) {
			s.PinInfo.MotorStuck = true
			s.MotorInfo.RPM = 0
		})
		i.net.BroadcastState()

	case HeaterOvertemp:
		// Overtemp stops heating only; the pump keeps circulating.
		i.dev.Apply(func(s *models.CookerState) {
			s.TemperatureInfo.HeaterTemperature = heaterCriticalTemp
			s.HeaterControl.DutyCycle = 0
			s.PinInfo.DeviceSafe = false
			device.ForceIdle(s, tick)
		})
		i.net.BroadcastState()

	case TriacOvertemp:
		i.dev.Apply(func(s *models.CookerState) {
			s.TemperatureInfo.TriacTemperature = triacCriticalTemp
			s.HeaterControl.DutyCycle = 0
			s.PinInfo.DeviceSafe = false
			device.ForceIdle(s, tick)
		})
		i.net.BroadcastState()

	case WaterLeak:
		i.dev.Apply(func(s *models.CookerState) {
			s.PinInfo.WaterLeak = true
			s.PinInfo.DeviceSafe = false
			if device.ForceIdle(s, tick) {
				s.HeaterControl.DutyCycle = 0
				s.MotorControl.DutyCycle = 0
			}
		})
		i.net.BroadcastState()

	case NetworkLatency, IntermittentFailure:
		// Consumed by the protocol layer; no state mutation.
	}
}

// revert undoes the fault's state effect.
func (i *Injector) revert(kind Kind) {
	switch kind {
	case DeviceOffline:
		i.dev.SetOnline(true)

	case WaterLevelLow:
		i.dev.Apply(func(s *models.CookerState) {
			s.PinInfo.WaterLevelLow = false
		})
		i.net.BroadcastState()

	case WaterLevelCritical:
		i.dev.Apply(func(s *models.CookerState) {
			s.PinInfo.WaterLevelCritical = false
			s.PinInfo.DeviceSafe = true
		})
		i.net.BroadcastState()

	case MotorStuck:
		i.dev.Apply(func(s *models.CookerState) {
			s.PinInfo.MotorStuck = false
			if s.JobStatus.State.Active() {
				s.MotorInfo.RPM = device.RunningRPM
			}
		})
		i.net.BroadcastState()

	case HeaterOvertemp:
		i.dev.Apply(func(s *models.CookerState) {
			s.TemperatureInfo.HeaterTemperature = heaterNominalTemp
			s.PinInfo.DeviceSafe = true
		})
		i.net.BroadcastState()

	case TriacOvertemp:
		i.dev.Apply(func(s *models.CookerState) {
			s.TemperatureInfo.TriacTemperature = triacNominalTemp
			s.PinInfo.DeviceSafe = true
		})
		i.net.BroadcastState()

	case WaterLeak:
		i.dev.Apply(func(s *models.CookerState) {
			s.PinInfo.WaterLeak = false
			s.PinInfo.DeviceSafe = true
		})
		i.net.BroadcastState()

	case NetworkLatency, IntermittentFailure:
		// Record fields already zeroed in Clear.
	}
}

// Shutdown stops all pending auto-clear timers.
func (i *Injector) Shutdown() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for k, t := range i.timers {
		t.Stop()
		delete(i.timers, k)
	}
}
