package indicator

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// boardToBCM maps physical 40-pin header positions to BCM channels.
// Power and ground positions are absent on purpose.
var boardToBCM = map[int]int{
	3: 2, 5: 3, 7: 4, 8: 14, 10: 15,
	11: 17, 12: 18, 13: 27, 15: 22, 16: 23,
	18: 24, 19: 10, 21: 9, 22: 25, 23: 11,
	24: 8, 26: 7, 27: 0, 28: 1, 29: 5,
	31: 6, 32: 12, 33: 13, 35: 19, 36: 16,
	37: 26, 38: 20, 40: 21,
}

// RPiPort drives Raspberry Pi GPIO through the memory-mapped interface.
// go-rpio only speaks BCM numbers, so BOARD mode translates through the
// header table.
type RPiPort struct {
	mu         sync.Mutex
	mode       PinMode
	opened     bool
	configured map[int]rpio.Pin
}

func NewRPiPort() *RPiPort {
	return &RPiPort{configured: make(map[int]rpio.Pin)}
}

func (p *RPiPort) SetMode(mode PinMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch mode {
	case ModeBCM, ModeBOARD:
	default:
		return fmt.Errorf("unknown pin mode %q", mode)
	}
	if !p.opened {
		if err := rpio.Open(); err != nil {
			return fmt.Errorf("open gpio device: %w", err)
		}
		p.opened = true
	}
	p.mode = mode
	return nil
}

func (p *RPiPort) SetupOutput(pin int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	hw, err := p.resolve(pin)
	if err != nil {
		return &PinError{Pin: pin, Op: "setup", Err: err}
	}
	hw.Output()
	p.configured[pin] = hw
	return nil
}

func (p *RPiPort) SetHigh(pin int) error {
	return p.write(pin, true)
}

func (p *RPiPort) SetLow(pin int) error {
	return p.write(pin, false)
}

func (p *RPiPort) write(pin int, high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	hw, ok := p.configured[pin]
	if !ok {
		return &PinError{Pin: pin, Op: "write", Err: fmt.Errorf("pin not configured for output")}
	}
	if high {
		hw.High()
	} else {
		hw.Low()
	}
	return nil
}

// Cleanup drives every configured pin low, then unmaps the GPIO range.
// Indicators going dark on shutdown is the documented behavior: a stale
// "up" LED after the daemon exits would defeat its purpose.
func (p *RPiPort) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.opened {
		return nil
	}
	for _, hw := range p.configured {
		hw.Low()
	}
	p.configured = make(map[int]rpio.Pin)
	p.opened = false
	return rpio.Close()
}

func (p *RPiPort) resolve(pin int) (rpio.Pin, error) {
	if !p.opened {
		return 0, fmt.Errorf("pin mode not set")
	}
	bcm := pin
	if p.mode == ModeBOARD {
		mapped, ok := boardToBCM[pin]
		if !ok {
			return 0, fmt.Errorf("physical pin %d is not a GPIO position", pin)
		}
		bcm = mapped
	}
	if bcm < 0 || bcm > 27 {
		return 0, fmt.Errorf("BCM channel %d out of range", bcm)
	}
	return rpio.Pin(bcm), nil
}
