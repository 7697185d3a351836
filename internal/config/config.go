package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "KUMA_BEACON_CONFIG"
	DefaultConfigPath = "/etc/kuma-beacon/config.yaml"
)

const (
	DefaultIntervalSec           = 10
	DefaultTimeoutSec            = 5
	DefaultRegistryRefreshMinSec = 60
	DefaultMonitoringAddr        = "127.0.0.1:9410"
)

type Config struct {
	StatusPage StatusPageConfig `yaml:"status_page"`
	Poll       PollConfig       `yaml:"poll"`
	GPIO       GPIOConfig       `yaml:"gpio"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Services   []ServiceConfig  `yaml:"services"`
}

type StatusPageConfig struct {
	URL  string `yaml:"url"`
	Slug string `yaml:"slug"`
}

type PollConfig struct {
	IntervalSec           int `yaml:"interval_sec"`
	TimeoutSec            int `yaml:"timeout_sec"`
	RegistryRefreshMinSec int `yaml:"registry_refresh_min_sec"`
}

type GPIOConfig struct {
	PinMode string `yaml:"pin_mode"`
	Driver  string `yaml:"driver"`
}

type MonitoringConfig struct {
	Addr *string `yaml:"addr"`
}

// ServiceConfig binds one monitored service to an output pin. Either a
// monitor name or an explicit id must be given; an explicit id wins over
// the name lookup.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	ID      int64  `yaml:"id"`
	Pin     int    `yaml:"pin"`
	Enabled *bool  `yaml:"enabled"`
}

// ServiceEnabled reports whether the binding is active. Unset means enabled.
func (s ServiceConfig) ServiceEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// MonitoringAddr returns the local monitoring listen address, or "" when
// the endpoint has been explicitly disabled with an empty addr.
func (c Config) MonitoringAddr() string {
	if c.Monitoring.Addr == nil {
		return DefaultMonitoringAddr
	}
	return *c.Monitoring.Addr
}

func Load(ctx context.Context, path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func LoadFromEnv(ctx context.Context) (Config, error) {
	return Load(ctx, PathFromEnv())
}

// PathFromEnv resolves the config path the way the systemd unit does:
// KUMA_BEACON_CONFIG first, then the packaged default.
func PathFromEnv() string {
	if path := os.Getenv(envConfigPath); path != "" {
		return path
	}
	return DefaultConfigPath
}

func applyDefaults(cfg *Config) {
	if cfg.Poll.IntervalSec == 0 {
		cfg.Poll.IntervalSec = DefaultIntervalSec
	}
	if cfg.Poll.TimeoutSec == 0 {
		cfg.Poll.TimeoutSec = DefaultTimeoutSec
	}
	if cfg.Poll.RegistryRefreshMinSec == 0 {
		cfg.Poll.RegistryRefreshMinSec = DefaultRegistryRefreshMinSec
	}
	if cfg.GPIO.PinMode == "" {
		cfg.GPIO.PinMode = "BCM"
	}
	if cfg.GPIO.Driver == "" {
		cfg.GPIO.Driver = "rpio"
	}
}
