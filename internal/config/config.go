package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all simulator settings. Values come from
// configs/simulator.yml with SIM_-prefixed environment overrides
// (SIM_WS_PORT, SIM_TIME_SCALE, ...); defaults match the real device's
// published limits.
type Config struct {
	// Listening ports.
	WSPort      int `mapstructure:"ws_port"`
	AuthPort    int `mapstructure:"auth_port"`
	ControlPort int `mapstructure:"control_port"`

	// Physics parameters. Rates are degrees C per minute.
	AmbientTemp     float64 `mapstructure:"ambient_temp"`
	HeatingRate     float64 `mapstructure:"heating_rate"`
	CoolingRate     float64 `mapstructure:"cooling_rate"`
	TempTolerance   float64 `mapstructure:"temp_tolerance"`
	TempOscillation float64 `mapstructure:"temp_oscillation"`

	// Timing.
	TimeScale                float64 `mapstructure:"time_scale"`
	BroadcastIntervalIdle    float64 `mapstructure:"broadcast_interval_idle"`
	BroadcastIntervalCooking float64 `mapstructure:"broadcast_interval_cooking"`

	// Device identity.
	CookerID        string `mapstructure:"cooker_id"`
	DeviceType      string `mapstructure:"device_type"`
	FirmwareVersion string `mapstructure:"firmware_version"`

	// Authentication.
	ValidTokens   []string          `mapstructure:"valid_tokens"`
	ExpiredTokens []string          `mapstructure:"expired_tokens"`
	Credentials   map[string]string `mapstructure:"credentials"`
	TokenExpiry   int               `mapstructure:"token_expiry"`

	// Validation limits (food safety rules).
	MinTempCelsius  float64 `mapstructure:"min_temp_celsius"`
	MaxTempCelsius  float64 `mapstructure:"max_temp_celsius"`
	MinTimerSeconds int     `mapstructure:"min_timer_seconds"`
	MaxTimerSeconds int     `mapstructure:"max_timer_seconds"`

	// Message log.
	MessageLogCap int `mapstructure:"message_log_cap"`

	LogLevel string `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ws_port", 8765)
	v.SetDefault("auth_port", 8764)
	v.SetDefault("control_port", 8766)

	v.SetDefault("ambient_temp", 22.0)
	v.SetDefault("heating_rate", 1.0)
	v.SetDefault("cooling_rate", 0.5)
	v.SetDefault("temp_tolerance", 0.5)
	v.SetDefault("temp_oscillation", 0.2)

	v.SetDefault("time_scale", 1.0)
	v.SetDefault("broadcast_interval_idle", 30.0)
	v.SetDefault("broadcast_interval_cooking", 2.0)

	v.SetDefault("cooker_id", "anova sim-0000000000")
	v.SetDefault("device_type", "pro")
	v.SetDefault("firmware_version", "3.3.01")

	v.SetDefault("valid_tokens", []string{"valid-test-token"})
	v.SetDefault("expired_tokens", []string{"expired-test-token"})
	v.SetDefault("credentials", map[string]string{"test@example.com": "testpassword123"})
	v.SetDefault("token_expiry", 3600)

	v.SetDefault("min_temp_celsius", 40.0)
	v.SetDefault("max_temp_celsius", 100.0)
	v.SetDefault("min_timer_seconds", 60)
	v.SetDefault("max_timer_seconds", 359940)

	v.SetDefault("message_log_cap", 1000)
	v.SetDefault("log_level", "info")
}

// Load reads the configuration. The config file is optional; environment
// variables always win over file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("simulator")
		v.SetConfigType("yml")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file in the default location is fine; defaults plus
		// env cover everything. An explicit path must exist and parse.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TimeScale <= 0 {
		return fmt.Errorf("time_scale must be positive, got %v", c.TimeScale)
	}
	if c.MinTempCelsius >= c.MaxTempCelsius {
		return fmt.Errorf("temperature bounds inverted: [%v, %v]", c.MinTempCelsius, c.MaxTempCelsius)
	}
	if c.MinTimerSeconds >= c.MaxTimerSeconds {
		return fmt.Errorf("timer bounds inverted: [%d, %d]", c.MinTimerSeconds, c.MaxTimerSeconds)
	}
	if c.MessageLogCap <= 0 {
		return fmt.Errorf("message_log_cap must be positive, got %d", c.MessageLogCap)
	}
	return nil
}
