// Package engine owns the status-synchronization loop: poll the status
// page heartbeats on a fixed interval, evaluate every binding, and drive
// the indicator port to match.
package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kumabeaconhq/beacon/internal/events"
	"github.com/kumabeaconhq/beacon/internal/indicator"
	"github.com/kumabeaconhq/beacon/internal/metrics"
	"github.com/kumabeaconhq/beacon/internal/statuspage"
)

const (
	defaultInterval     = 10 * time.Second
	defaultFetchTimeout = 5 * time.Second
)

// State is the engine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Source provides the remote registry and heartbeat snapshots. Satisfied
// by *statuspage.Client and by stubs in tests.
type Source interface {
	FetchRegistry(ctx context.Context) (statuspage.Registry, error)
	FetchHeartbeats(ctx context.Context) (statuspage.HeartbeatSnapshot, error)
}

// Config holds the static configuration for an engine instance.
type Config struct {
	Interval      time.Duration
	FetchTimeout  time.Duration
	RefreshMinGap time.Duration
	PinMode       indicator.PinMode
	Bindings      []indicator.Binding
}

// Dependencies carry the engine's collaborators and test overrides.
type Dependencies struct {
	Source  Source
	Port    indicator.Port
	Logger  *log.Logger
	Metrics metrics.CycleRecorder
	Events  events.Recorder

	// OnCycle is invoked after every poll cycle's heartbeat fetch with
	// its timestamp and error (nil on success). OnRunning is invoked
	// when the loop starts and when it exits. Both feed the readiness
	// checker and may be nil.
	OnCycle   func(time.Time, error)
	OnRunning func(bool)

	Now func() time.Time
}

// Engine synchronizes status page verdicts to indicator pins. The registry
// is fetched once at construction; heartbeats are re-fetched every cycle.
// Start and Stop are idempotent and safe from any goroutine.
type Engine struct {
	id      string
	cfg     Config
	source  Source
	port    indicator.Port
	logger  *log.Logger
	metrics metrics.CycleRecorder
	events  events.Recorder
	onCycle func(time.Time, error)
	onRun   func(bool)
	now     func() time.Time
	limiter *rate.Limiter

	mu         sync.Mutex
	state      State
	registry   statuspage.Registry
	heartbeats statuspage.HeartbeatSnapshot
	cancel     context.CancelFunc
	done       chan struct{}
}

// New builds an engine, fetches the initial registry and prepares every
// bound pin for output. A registry fetch failure is fatal: without the
// name→id mapping the engine cannot resolve bindings.
func New(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("status page source is required")
	}
	if deps.Port == nil {
		return nil, fmt.Errorf("indicator port is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.PinMode == "" {
		cfg.PinMode = indicator.ModeBCM
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.NoopCycleRecorder{}
	}
	evs := deps.Events
	if evs == nil {
		evs = events.NoopRecorder{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	limit := rate.Inf
	if cfg.RefreshMinGap > 0 {
		limit = rate.Every(cfg.RefreshMinGap)
	}

	e := &Engine{
		id:      uuid.NewString(),
		cfg:     cfg,
		source:  deps.Source,
		port:    deps.Port,
		logger:  logger,
		metrics: rec,
		events:  evs,
		onCycle: deps.OnCycle,
		onRun:   deps.OnRunning,
		now:     now,
		limiter: rate.NewLimiter(limit, 1),
		state:   StateIdle,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
	defer cancel()
	registry, err := e.source.FetchRegistry(ctx)
	if err != nil {
		return nil, err
	}
	e.registry = registry
	logger.Printf("engine %s: registry loaded, %d names", e.id, len(registry))

	if err := e.port.SetMode(cfg.PinMode); err != nil {
		return nil, fmt.Errorf("set pin mode %s: %w", cfg.PinMode, err)
	}
	for _, b := range cfg.Bindings {
		if !b.Enabled {
			continue
		}
		if err := e.port.SetupOutput(b.Pin); err != nil {
			return nil, fmt.Errorf("setup pin %d for %q: %w", b.Pin, b.Label(), err)
		}
	}

	return e, nil
}

// ID returns the engine instance identifier used in logs and events.
func (e *Engine) ID() string { return e.id }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start spawns the background polling loop. A non-positive interval falls
// back to the configured one. Calling Start while the loop is already
// running (or still winding down) is a no-op.
func (e *Engine) Start(interval time.Duration) {
	if interval <= 0 {
		interval = e.cfg.Interval
	}

	e.mu.Lock()
	if e.state == StateRunning || e.state == StateStopping {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.state = StateRunning
	e.mu.Unlock()

	go e.run(ctx, done, interval)
}

// Stop signals the polling loop and blocks until it has exited. A no-op
// before the first Start and after the loop has stopped. Pins keep their
// last-driven state; forcing them low is Cleanup's job.
func (e *Engine) Stop() {
	e.mu.Lock()
	switch e.state {
	case StateIdle, StateStopped:
		e.mu.Unlock()
		return
	case StateStopping:
		done := e.done
		e.mu.Unlock()
		<-done
		return
	}
	e.state = StateStopping
	e.cancel()
	done := e.done
	e.mu.Unlock()

	<-done

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context, done chan struct{}, interval time.Duration) {
	defer close(done)

	if e.onRun != nil {
		e.onRun(true)
	}
	defer func() {
		if e.onRun != nil {
			e.onRun(false)
		}
	}()

	ev := events.New(events.EventEngineStarted)
	ev.Details = map[string]any{"engine": e.id, "interval": interval.String()}
	e.events.Record(ev)
	e.logger.Printf("engine %s: polling every %s", e.id, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			ev := events.New(events.EventEngineStopped)
			ev.Details = map[string]any{"engine": e.id}
			e.events.Record(ev)
			e.logger.Printf("engine %s: stopped", e.id)
			return
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

// cycle fetches a fresh heartbeat snapshot and applies every binding. A
// fetch failure keeps the previous snapshot in place: stale verdicts beat
// dark guesses, and the next tick retries anyway.
func (e *Engine) cycle(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	snapshot, err := e.source.FetchHeartbeats(fetchCtx)
	cancel()

	if ctx.Err() != nil {
		return
	}

	at := e.now().UTC()
	e.metrics.ObserveCycle(at, err)
	if e.onCycle != nil {
		e.onCycle(at, err)
	}

	if err != nil {
		e.logger.Printf("engine %s: heartbeat fetch failed, keeping previous snapshot: %v", e.id, err)
		ev := events.New(events.EventHeartbeatFetchFail)
		ev.Details = map[string]any{"engine": e.id, "error": err.Error()}
		e.events.Record(ev)
	} else {
		e.mu.Lock()
		e.heartbeats = snapshot
		e.mu.Unlock()
	}

	e.mu.Lock()
	registry := e.registry
	heartbeats := e.heartbeats
	e.mu.Unlock()

	res := indicator.Apply(e.cfg.Bindings, registry, heartbeats, e.port, indicator.ApplyDeps{
		Logger: e.logger,
		Events: e.events,
	})
	e.metrics.ObserveBindings(res.Applied, res.Up, res.Unresolved, res.PinErrors)
}

// RefreshRegistry re-fetches the name→id registry on demand, throttled so
// bursts of callers cannot hammer the backend. On failure the previous
// registry stays in place and the error is returned.
func (e *Engine) RefreshRegistry(ctx context.Context) error {
	if !e.limiter.Allow() {
		return fmt.Errorf("registry refresh throttled, try again later")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()
	registry, err := e.source.FetchRegistry(fetchCtx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.registry = registry
	e.mu.Unlock()

	ev := events.New(events.EventRegistryRefreshed)
	ev.Details = map[string]any{"engine": e.id, "names": len(registry)}
	e.events.Record(ev)
	e.logger.Printf("engine %s: registry refreshed, %d names", e.id, len(registry))
	return nil
}

// Registry returns a copy of the current name→id mapping.
func (e *Engine) Registry() statuspage.Registry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(statuspage.Registry, len(e.registry))
	for name, id := range e.registry {
		out[name] = id
	}
	return out
}
