package indicator

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// SimPort is the no-hardware stand-in. It implements the exact Port
// contract, records pin levels in memory, and logs transitions so a
// desktop run of the daemon stays observable.
type SimPort struct {
	logger *log.Logger

	mu         sync.Mutex
	mode       PinMode
	configured map[int]bool
	levels     map[int]bool
}

func NewSimPort(logger *log.Logger) *SimPort {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &SimPort{
		logger:     logger,
		configured: make(map[int]bool),
		levels:     make(map[int]bool),
	}
}

func (p *SimPort) SetMode(mode PinMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch mode {
	case ModeBCM, ModeBOARD:
	default:
		return fmt.Errorf("unknown pin mode %q", mode)
	}
	p.mode = mode
	p.logger.Printf("sim gpio: mode set to %s", mode)
	return nil
}

func (p *SimPort) SetupOutput(pin int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode == "" {
		return &PinError{Pin: pin, Op: "setup", Err: fmt.Errorf("pin mode not set")}
	}
	p.configured[pin] = true
	p.levels[pin] = false
	p.logger.Printf("sim gpio: pin %d configured for output", pin)
	return nil
}

func (p *SimPort) SetHigh(pin int) error {
	return p.write(pin, true)
}

func (p *SimPort) SetLow(pin int) error {
	return p.write(pin, false)
}

func (p *SimPort) write(pin int, high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.configured[pin] {
		return &PinError{Pin: pin, Op: "write", Err: fmt.Errorf("pin not configured for output")}
	}
	if p.levels[pin] != high {
		p.logger.Printf("sim gpio: pin %d -> %s", pin, levelName(high))
	}
	p.levels[pin] = high
	return nil
}

func (p *SimPort) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for pin := range p.configured {
		if p.levels[pin] {
			p.logger.Printf("sim gpio: pin %d -> low", pin)
		}
		p.levels[pin] = false
	}
	p.configured = make(map[int]bool)
	p.logger.Printf("sim gpio: cleanup complete")
	return nil
}

// Pins returns a copy of the last-driven level per configured pin.
func (p *SimPort) Pins() map[int]bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[int]bool, len(p.levels))
	for pin, high := range p.levels {
		out[pin] = high
	}
	return out
}

func levelName(high bool) string {
	if high {
		return "high"
	}
	return "low"
}
