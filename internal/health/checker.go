package health

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kumabeaconhq/beacon/internal/metrics"
)

const defaultStaleAfter = 30 * time.Second

// Checker evaluates readiness conditions for the beacon. It is fed by the
// engine's cycle observations and consulted by the /readyz handler.
type Checker struct {
	metrics    *metrics.Store
	staleAfter time.Duration

	mu          sync.RWMutex
	running     bool
	lastSuccess time.Time
	lastErr     string
	lastErrAt   time.Time
}

// NewChecker constructs a readiness checker bound to the provided metrics
// store. staleAfter should be a small multiple of the poll interval.
func NewChecker(store *metrics.Store, staleAfter time.Duration) *Checker {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Checker{
		metrics:    store,
		staleAfter: staleAfter,
	}
}

// ObserveCycle records the outcome of a poll cycle's heartbeat fetch.
func (c *Checker) ObserveCycle(ts time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastErr = err.Error()
		c.lastErrAt = ts
		return
	}
	c.lastSuccess = ts
	c.lastErr = ""
	c.lastErrAt = time.Time{}
}

// SetRunning records whether the engine loop is active.
func (c *Checker) SetRunning(running bool) {
	c.mu.Lock()
	c.running = running
	c.mu.Unlock()
}

// Ready evaluates all readiness conditions and returns the overall status
// and the reasons for failure.
func (c *Checker) Ready(now time.Time) (bool, []string) {
	c.mu.RLock()
	running := c.running
	lastSuccess := c.lastSuccess
	lastErr := c.lastErr
	lastErrAt := c.lastErrAt
	staleAfter := c.staleAfter
	c.mu.RUnlock()

	reasons := make([]string, 0, 3)

	if !running {
		reasons = append(reasons, "sync engine not running")
	}

	if lastSuccess.IsZero() {
		reasons = append(reasons, "no successful heartbeat fetch yet")
	} else if now.Sub(lastSuccess) > staleAfter {
		reasons = append(reasons, fmt.Sprintf("heartbeat data stale (%s)", now.Sub(lastSuccess).Round(time.Second)))
	}

	if lastErr != "" && now.Sub(lastErrAt) <= staleAfter {
		reasons = append(reasons, fmt.Sprintf("heartbeat fetch failing: %s", lastErr))
	}

	ready := len(reasons) == 0
	if c.metrics != nil {
		c.metrics.ObserveReadiness(ready, strings.Join(reasons, "; "))
	}
	if !ready {
		return false, reasons
	}
	return true, nil
}
