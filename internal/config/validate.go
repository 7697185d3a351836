package config

import (
	"fmt"
	"strings"
)

// Validate checks a loaded configuration for mistakes that would make the
// daemon misbehave at runtime. It assumes defaults have been applied.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.StatusPage.URL) == "" {
		return fmt.Errorf("status_page.url is required")
	}
	if strings.TrimSpace(cfg.StatusPage.Slug) == "" {
		return fmt.Errorf("status_page.slug is required")
	}
	if cfg.Poll.IntervalSec <= 0 {
		return fmt.Errorf("poll.interval_sec must be > 0, got %d", cfg.Poll.IntervalSec)
	}
	if cfg.Poll.TimeoutSec <= 0 {
		return fmt.Errorf("poll.timeout_sec must be > 0, got %d", cfg.Poll.TimeoutSec)
	}
	if cfg.Poll.RegistryRefreshMinSec < 0 {
		return fmt.Errorf("poll.registry_refresh_min_sec must be >= 0, got %d", cfg.Poll.RegistryRefreshMinSec)
	}

	switch strings.ToUpper(cfg.GPIO.PinMode) {
	case "BCM", "BOARD":
	default:
		return fmt.Errorf("gpio.pin_mode must be BCM or BOARD, got %q", cfg.GPIO.PinMode)
	}
	switch cfg.GPIO.Driver {
	case "rpio", "sim":
	default:
		return fmt.Errorf("gpio.driver must be rpio or sim, got %q", cfg.GPIO.Driver)
	}

	if len(cfg.Services) == 0 {
		return fmt.Errorf("at least one service binding is required")
	}
	for i, svc := range cfg.Services {
		if svc.Pin <= 0 {
			return fmt.Errorf("services[%d]: pin must be > 0, got %d", i, svc.Pin)
		}
		if strings.TrimSpace(svc.Name) == "" && svc.ID <= 0 {
			return fmt.Errorf("services[%d]: either name or id is required", i)
		}
		if svc.ID < 0 {
			return fmt.Errorf("services[%d]: id must be positive, got %d", i, svc.ID)
		}
	}

	return nil
}

// DuplicatePins reports pins that appear in more than one enabled binding.
// Sharing a pin is legal (the later binding wins each cycle) but worth a
// startup log line.
func DuplicatePins(cfg Config) []int {
	seen := make(map[int]int)
	for _, svc := range cfg.Services {
		if !svc.ServiceEnabled() {
			continue
		}
		seen[svc.Pin]++
	}
	var dups []int
	for _, svc := range cfg.Services {
		if seen[svc.Pin] > 1 {
			dups = append(dups, svc.Pin)
			seen[svc.Pin] = 0
		}
	}
	return dups
}
