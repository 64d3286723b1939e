// Package config loads and validates the znp driver's configuration: a
// nested struct with mapstructure/yaml/validate tags, loaded through viper
// with file + ZNP_* environment-variable + default support, validated with
// github.com/go-playground/validator/v10.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FlowControl selects the UART flow-control mode (§6).
type FlowControl string

const (
	FlowControlNone     FlowControl = "none"
	FlowControlHardware FlowControl = "hardware"
	FlowControlSoftware FlowControl = "software"
)

// LEDMode selects the coprocessor's LED behavior, set via UTIL.LEDControl
// during startup (§4.7 step 7).
type LEDMode string

const (
	LEDModeOff  LEDMode = "off"
	LEDModeOn   LEDMode = "on"
	LEDModeAuto LEDMode = "auto"
)

// LoggingConfig configures the logging package.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// MetricsConfig configures the metrics package's HTTP exposition.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen" validate:"required_if=Enabled true"`
}

// Config is the complete, validated configuration surface for the znp
// module (§6).
type Config struct {
	Device      string      `mapstructure:"device" yaml:"device" validate:"required"`
	Baud        int         `mapstructure:"baud" yaml:"baud" validate:"required,gt=0"`
	FlowControl FlowControl `mapstructure:"flow_control" yaml:"flow_control" validate:"oneof=none hardware software"`

	SkipBootloader bool  `mapstructure:"skip_bootloader" yaml:"skip_bootloader"`
	TXPower        int8  `mapstructure:"tx_power" yaml:"tx_power"`
	LEDMode        LEDMode `mapstructure:"led_mode" yaml:"led_mode" validate:"oneof=off on auto"`

	AutoReconnect       bool          `mapstructure:"auto_reconnect" yaml:"auto_reconnect"`
	ReconnectBackoffMin time.Duration `mapstructure:"reconnect_backoff_min" yaml:"reconnect_backoff_min" validate:"gt=0"`
	ReconnectBackoffMax time.Duration `mapstructure:"reconnect_backoff_max" yaml:"reconnect_backoff_max" validate:"gtefield=ReconnectBackoffMin"`

	SREQTimeout        time.Duration `mapstructure:"sreq_timeout" yaml:"sreq_timeout" validate:"gt=0"`
	ARSPTimeout        time.Duration `mapstructure:"arsp_timeout" yaml:"arsp_timeout" validate:"gt=0"`
	DataConfirmTimeout time.Duration `mapstructure:"data_confirm_timeout" yaml:"data_confirm_timeout" validate:"gt=0,ltefield=ARSPTimeout"`

	DataRequestLimit int           `mapstructure:"data_request_limit" yaml:"data_request_limit" validate:"gt=0"`
	WatchdogPeriod   time.Duration `mapstructure:"watchdog_period" yaml:"watchdog_period" validate:"gt=0"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// DefaultConfig returns a Config populated with the driver's documented
// defaults (§5, §6), suitable as a base before file/env overrides are
// applied.
func DefaultConfig() Config {
	return Config{
		Baud:                115200,
		FlowControl:         FlowControlNone,
		LEDMode:             LEDModeAuto,
		AutoReconnect:       true,
		ReconnectBackoffMin: time.Second,
		ReconnectBackoffMax: 30 * time.Second,
		SREQTimeout:         5 * time.Second,
		ARSPTimeout:         30 * time.Second,
		DataConfirmTimeout:  3 * time.Second,
		DataRequestLimit:    16,
		WatchdogPeriod:      30 * time.Second,
		Logging:             LoggingConfig{Level: "info"},
		Metrics:             MetricsConfig{Enabled: false},
	}
}

var validate = validator.New()

// Valid checks c against its struct tags and the cross-field timeout
// ordering rule (DataConfirmTimeout <= ARSPTimeout). It reports errors
// instead of silently clamping, since a misconfigured serial device or
// timeout is an operator error worth surfacing rather than papering over.
func (c Config) Valid() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

const envPrefix = "ZNP"

// Load reads configuration from configPath (if non-empty), environment
// variables prefixed ZNP_, and DefaultConfig()'s defaults, with env
// overriding file and file overriding defaults, then validates the result.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setupViper(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding: %w", err)
	}

	if err := cfg.Valid(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setupViper(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("baud", defaults.Baud)
	v.SetDefault("flow_control", string(defaults.FlowControl))
	v.SetDefault("led_mode", string(defaults.LEDMode))
	v.SetDefault("auto_reconnect", defaults.AutoReconnect)
	v.SetDefault("reconnect_backoff_min", defaults.ReconnectBackoffMin)
	v.SetDefault("reconnect_backoff_max", defaults.ReconnectBackoffMax)
	v.SetDefault("sreq_timeout", defaults.SREQTimeout)
	v.SetDefault("arsp_timeout", defaults.ARSPTimeout)
	v.SetDefault("data_confirm_timeout", defaults.DataConfirmTimeout)
	v.SetDefault("data_request_limit", defaults.DataRequestLimit)
	v.SetDefault("watchdog_period", defaults.WatchdogPeriod)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
}
