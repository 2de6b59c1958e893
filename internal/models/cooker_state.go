package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// DeviceState is the cooker's job state as reported by the real cloud API.
type DeviceState string

const (
	StateIdle       DeviceState = "IDLE"
	StatePreheating DeviceState = "PREHEATING"
	StateCooking    DeviceState = "COOKING"
	StateDone       DeviceState = "DONE"
)

// ParseDeviceState maps a state name to a DeviceState, reporting whether
// the name is one of the four known states.
func ParseDeviceState(s string) (DeviceState, bool) {
	switch DeviceState(s) {
	case StateIdle, StatePreheating, StateCooking, StateDone:
		return DeviceState(s), true
	}
	return "", false
}

// Temperature units accepted on the wire.
const (
	UnitCelsius    = "C"
	UnitFahrenheit = "F"
)

// Active reports whether the device is heating toward or holding a cook.
func (s DeviceState) Active() bool {
	return s == StatePreheating || s == StateCooking
}

// JobInfo describes the requested cook. Maps to payload.state.job.
type JobInfo struct {
	ID                string  `json:"id"`
	Mode              string  `json:"mode"`
	TargetTemperature float64 `json:"target_temperature"`
	TemperatureUnit   string  `json:"temperature_unit"`
	CookTimeSeconds   int     `json:"cook_time_seconds"`
}

// JobStatus describes cook progress. Maps to payload.state.job-status.
type JobStatus struct {
	State              DeviceState `json:"state"`
	CookTimeRemaining  int         `json:"cook_time_remaining"`
	JobStartSystick    int64       `json:"job_start_systick"`
	StateChangeSystick int64       `json:"state_change_systick"`
}

// TemperatureInfo holds the three temperature sensors.
type TemperatureInfo struct {
	WaterTemperature  float64 `json:"water_temperature"`
	HeaterTemperature float64 `json:"heater_temperature"`
	TriacTemperature  float64 `json:"triac_temperature"`
}

// PinInfo holds the safety flags. The wire format encodes these as 0/1.
type PinInfo struct {
	DeviceSafe         bool `json:"device_safe"`
	WaterLeak          bool `json:"water_leak"`
	WaterLevelLow      bool `json:"water_level_low"`
	WaterLevelCritical bool `json:"water_level_critical"`
	MotorStuck         bool `json:"motor_stuck"`
}

// HeaterControl is the heater duty cycle, 0-100.
type HeaterControl struct {
	DutyCycle float64 `json:"duty_cycle"`
}

// MotorControl is the circulation pump duty cycle, 0-100.
type MotorControl struct {
	DutyCycle float64 `json:"duty_cycle"`
}

// MotorInfo is the pump telemetry.
type MotorInfo struct {
	RPM int `json:"rpm"`
}

// NetworkInfo is static, cosmetic network metadata.
type NetworkInfo struct {
	ConnectionStatus string `json:"connection_status"`
	MACAddress       string `json:"mac_address"`
	SSID             string `json:"ssid"`
	SecurityType     string `json:"security_type"`
}

// CookerState is the full device record. Exactly one instance exists; it is
// owned by the device state machine and must only be read or written while
// holding its lock. Copies returned by Snapshot are safe to use freely.
type CookerState struct {
	// Identity, immutable after creation.
	CookerID        string `json:"cooker_id"`
	DeviceType      string `json:"device_type"`
	FirmwareVersion string `json:"firmware_version"`

	Job             JobInfo         `json:"job"`
	JobStatus       JobStatus       `json:"job_status"`
	TemperatureInfo TemperatureInfo `json:"temperature_info"`
	HeaterControl   HeaterControl   `json:"heater_control"`
	MotorControl    MotorControl    `json:"motor_control"`
	MotorInfo       MotorInfo       `json:"motor_info"`
	PinInfo         PinInfo         `json:"pin_info"`
	NetworkInfo     NetworkInfo     `json:"network_info"`

	// Online governs whether the protocol server accepts and serves
	// connections. Not part of the wire state block.
	Online bool `json:"online"`

	CreatedAt time.Time `json:"created_at"`
}

// NewCookerState builds the initial IDLE state at the given ambient
// temperature.
func NewCookerState(cookerID, deviceType, firmware string, ambientTemp float64) CookerState {
	return CookerState{
		CookerID:        cookerID,
		DeviceType:      deviceType,
		FirmwareVersion: firmware,
		Job: JobInfo{
			Mode:            string(StateIdle),
			TemperatureUnit: UnitCelsius,
		},
		JobStatus: JobStatus{State: StateIdle},
		TemperatureInfo: TemperatureInfo{
			WaterTemperature:  ambientTemp,
			HeaterTemperature: ambientTemp,
			TriacTemperature:  25,
		},
		PinInfo: PinInfo{DeviceSafe: true},
		NetworkInfo: NetworkInfo{
			ConnectionStatus: "connected-station",
			MACAddress:       "AA:BB:CC:DD:EE:FF",
			SSID:             "SimulatorNetwork",
			SecurityType:     "WPA2",
		},
		Online:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func pinFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EventPayload renders the state block of EVENT_APC_STATE in the real API's
// nested kebab-case shape, filler sections included.
func (s CookerState) EventPayload() map[string]any {
	return map[string]any{
		"cookerId": s.CookerID,
		"type":     s.DeviceType,
		"state": map[string]any{
			"audio": map[string]any{
				"file-name": "",
				"volume":    50,
			},
			"cap-touch": map[string]any{
				"minus-button":              0,
				"play-button":               0,
				"plus-button":               0,
				"target-temperature-button": 0,
				"timer-button":              0,
				"water-temperature-button":  0,
			},
			"firmware-info": map[string]any{
				"firmware-version":          s.FirmwareVersion,
				"firmware-update-available": false,
			},
			"heater-control": map[string]any{
				"duty-cycle": s.HeaterControl.DutyCycle,
			},
			"job": map[string]any{
				"id":                 s.Job.ID,
				"mode":               s.Job.Mode,
				"target-temperature": s.Job.TargetTemperature,
				"temperature-unit":   s.Job.TemperatureUnit,
				"cook-time-seconds":  s.Job.CookTimeSeconds,
			},
			"job-status": map[string]any{
				"state":                string(s.JobStatus.State),
				"cook-time-remaining":  s.JobStatus.CookTimeRemaining,
				"job-start-systick":    s.JobStatus.JobStartSystick,
				"state-change-systick": s.JobStatus.StateChangeSystick,
			},
			"motor-control": map[string]any{
				"duty-cycle": s.MotorControl.DutyCycle,
			},
			"motor-info": map[string]any{
				"rpm": s.MotorInfo.RPM,
			},
			"network-info": map[string]any{
				"connection-status": s.NetworkInfo.ConnectionStatus,
				"mac-address":       s.NetworkInfo.MACAddress,
				"ssid":              s.NetworkInfo.SSID,
				"security-type":     s.NetworkInfo.SecurityType,
			},
			"pin-info": map[string]any{
				"device-safe":          pinFlag(s.PinInfo.DeviceSafe),
				"water-leak":           pinFlag(s.PinInfo.WaterLeak),
				"water-level-low":      pinFlag(s.PinInfo.WaterLevelLow),
				"water-level-critical": pinFlag(s.PinInfo.WaterLevelCritical),
				"motor-stuck":          pinFlag(s.PinInfo.MotorStuck),
			},
			"system-info": map[string]any{
				"firmware-version": s.FirmwareVersion,
				"mcu-temperature":  35,
				"heap-size":        102400,
			},
			"temperature-info": map[string]any{
				"water-temperature":  s.TemperatureInfo.WaterTemperature,
				"heater-temperature": s.TemperatureInfo.HeaterTemperature,
				"triac-temperature":  s.TemperatureInfo.TriacTemperature,
			},
		},
	}
}

// GenerateRequestID returns a 22-digit hex request id matching the format
// the real API uses.
func GenerateRequestID() string {
	b := make([]byte, 11)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateCookID returns a unique cook id, "cook-" plus 16 hex digits.
func GenerateCookID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "cook-" + hex.EncodeToString(b)
}
