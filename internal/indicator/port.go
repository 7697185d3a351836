// Package indicator drives physical or simulated output pins from monitor
// verdicts. The hardware implementation uses the Raspberry Pi memory-mapped
// GPIO; the simulated implementation allows running and testing the daemon
// on machines without pins.
package indicator

import "fmt"

// PinMode selects the pin numbering scheme. BCM uses the SoC channel
// numbers; BOARD uses the physical positions on the 40-pin header.
type PinMode string

const (
	ModeBCM   PinMode = "BCM"
	ModeBOARD PinMode = "BOARD"
)

// ParsePinMode normalizes a configured pin mode string.
func ParsePinMode(s string) (PinMode, error) {
	switch s {
	case "BCM", "bcm":
		return ModeBCM, nil
	case "BOARD", "board":
		return ModeBOARD, nil
	default:
		return "", fmt.Errorf("unknown pin mode %q", s)
	}
}

// Port is the output-pin capability the sync engine drives. Pin numbers
// are interpreted according to the mode set with SetMode, which must be
// called before any other method.
type Port interface {
	SetMode(mode PinMode) error
	SetupOutput(pin int) error
	SetHigh(pin int) error
	SetLow(pin int) error

	// Cleanup forces every configured pin low and releases the backend.
	// Safe to call from shutdown paths while a cycle may be mid-flight;
	// last writer wins on pin state, and pins end low.
	Cleanup() error
}

// PinError wraps a failure to drive a single pin. The engine logs it and
// keeps the remaining indicators alive rather than failing the cycle.
type PinError struct {
	Pin int
	Op  string
	Err error
}

func (e *PinError) Error() string {
	return fmt.Sprintf("indicator pin %d: %s: %v", e.Pin, e.Op, e.Err)
}

func (e *PinError) Unwrap() error { return e.Err }
