// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package config loads the gateway's device list from a YAML/TOML/JSON
// file and/or CLI flags, per spec.md §6.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/modbusgw/bridge/modbus"
)

// DefaultAttempts is the retry budget per exchange when a device entry
// does not set one (spec.md §3).
const DefaultAttempts = 2

// ModbusConfig describes the upstream device a bridge connects to.
type ModbusConfig struct {
	URL            string        `mapstructure:"url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ConnectionTime time.Duration `mapstructure:"connection_time"`
	Attempts       int           `mapstructure:"attempts"`
}

// ListenConfig describes the TCP endpoint a bridge accepts clients on.
type ListenConfig struct {
	Bind string `mapstructure:"bind"`
}

// DeviceConfig is the immutable configuration for one bridge (spec.md §3).
type DeviceConfig struct {
	Modbus ModbusConfig `mapstructure:"modbus"`
	Listen ListenConfig `mapstructure:"listen"`
}

// LogConfig configures the shared structured logger (ambient, §4.7).
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Config is the top-level configuration: a list of devices plus logging.
type Config struct {
	Devices []DeviceConfig `mapstructure:"devices"`
	Log     LogConfig      `mapstructure:"log"`
}

// Options carries the parsed CLI flags that either select a config file
// or describe a single ad hoc device (spec.md §6).
type Options struct {
	ConfigFile     string
	Bind           string
	Modbus         string
	ModbusConnTime time.Duration
	Timeout        time.Duration
	LogConfigFile  string
}

// ParseFlags parses argv (excluding the program name) into Options using
// spf13/pflag, the same flag library the teacher binds its own CLI with.
func ParseFlags(argv []string) (Options, error) {
	fs := pflag.NewFlagSet("proxy", pflag.ContinueOnError)
	configFile := fs.StringP("config-file", "c", "", "path to YAML/TOML/JSON config file")
	bind := fs.StringP("bind", "b", "", "listen address for the --modbus device")
	modbusURL := fs.String("modbus", "", "modbus device address (ex: tcp://plc.acme.org:502)")
	connTime := fs.Duration("modbus-connection-time", 0, "delay after connect before the first request")
	timeout := fs.Duration("timeout", 10*time.Second, "modbus connection and exchange timeout")
	logConfigFile := fs.String("log-config-file", "", "log configuration file")

	if err := fs.Parse(argv); err != nil {
		return Options{}, err
	}

	opts := Options{
		ConfigFile:     *configFile,
		Bind:           *bind,
		Modbus:         *modbusURL,
		ModbusConnTime: *connTime,
		Timeout:        *timeout,
		LogConfigFile:  *logConfigFile,
	}
	if opts.ConfigFile == "" && opts.Modbus == "" {
		return Options{}, &modbus.ConfigError{Reason: "must give a config-file (-c) or/and a --modbus device"}
	}
	return opts, nil
}

// Load reads the config file named by opts (if any), appends the
// --modbus device described by opts (if any), and fills in defaults.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	v.SetDefault("log.level", "info")

	cfg := &Config{}
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, &modbus.ConfigError{Reason: fmt.Sprintf("failed to read config file %s: %v", opts.ConfigFile, err)}
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, &modbus.ConfigError{Reason: fmt.Sprintf("failed to unmarshal config: %v", err)}
		}
	}

	if opts.LogConfigFile != "" {
		lv := viper.New()
		lv.SetConfigFile(opts.LogConfigFile)
		if err := lv.ReadInConfig(); err != nil {
			return nil, &modbus.ConfigError{Reason: fmt.Sprintf("failed to read log config file %s: %v", opts.LogConfigFile, err)}
		}
		if err := lv.Unmarshal(&cfg.Log); err != nil {
			return nil, &modbus.ConfigError{Reason: fmt.Sprintf("failed to unmarshal log config: %v", err)}
		}
	}

	if opts.Modbus != "" {
		bind := opts.Bind
		if bind == "" {
			bind = ":502"
		}
		cfg.Devices = append(cfg.Devices, DeviceConfig{
			Modbus: ModbusConfig{
				URL:            opts.Modbus,
				Timeout:        opts.Timeout,
				ConnectionTime: opts.ModbusConnTime,
			},
			Listen: ListenConfig{Bind: bind},
		})
	}

	if len(cfg.Devices) == 0 {
		return nil, &modbus.ConfigError{Reason: "no devices configured"}
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Modbus.URL == "" {
			return nil, &modbus.ConfigError{Reason: "device missing modbus.url"}
		}
		if d.Listen.Bind == "" {
			return nil, &modbus.ConfigError{Reason: "device missing listen.bind"}
		}
		if d.Modbus.Attempts <= 0 {
			d.Modbus.Attempts = DefaultAttempts
		}
	}

	return cfg, nil
}
