package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kumabeaconhq/beacon/internal/indicator"
	"github.com/kumabeaconhq/beacon/internal/statuspage"
)

type hbResult struct {
	snap statuspage.HeartbeatSnapshot
	err  error
}

// stubSource serves a fixed registry and a scripted sequence of heartbeat
// results (the last one repeats). Every heartbeat fetch pulses cycles.
type stubSource struct {
	mu       sync.Mutex
	registry statuspage.Registry
	regErr   error
	regCalls int
	script   []hbResult
	hbCalls  int
	cycles   chan struct{}
}

func newStubSource(registry statuspage.Registry, script ...hbResult) *stubSource {
	return &stubSource{
		registry: registry,
		script:   script,
		cycles:   make(chan struct{}, 128),
	}
}

func (s *stubSource) FetchRegistry(ctx context.Context) (statuspage.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regCalls++
	if s.regErr != nil {
		return nil, s.regErr
	}
	out := make(statuspage.Registry, len(s.registry))
	for name, id := range s.registry {
		out[name] = id
	}
	return out, nil
}

func (s *stubSource) FetchHeartbeats(ctx context.Context) (statuspage.HeartbeatSnapshot, error) {
	s.mu.Lock()
	idx := s.hbCalls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	res := s.script[idx]
	s.hbCalls++
	s.mu.Unlock()

	select {
	case s.cycles <- struct{}{}:
	default:
	}
	return res.snap, res.err
}

func (s *stubSource) registryCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regCalls
}

func waitCycles(t *testing.T, s *stubSource, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.cycles:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for cycle %d of %d", i+1, n)
		}
	}
}

func testPort(t *testing.T) *indicator.SimPort {
	t.Helper()
	return indicator.NewSimPort(nil)
}

func upSnapshot(ids ...statuspage.MonitorID) statuspage.HeartbeatSnapshot {
	snap := make(statuspage.HeartbeatSnapshot)
	for _, id := range ids {
		snap[id.String()] = []statuspage.HeartbeatEntry{{Status: statuspage.StatusUp}}
	}
	return snap
}

func defaultBindings() []indicator.Binding {
	return []indicator.Binding{{Name: "svc-x", Pin: 5, Enabled: true}}
}

func TestNewFailsWhenRegistryUnavailable(t *testing.T) {
	source := newStubSource(nil, hbResult{})
	source.regErr = &statuspage.RegistryError{Slug: "main", Err: fmt.Errorf("connection refused")}

	_, err := New(
		Config{Bindings: defaultBindings()},
		Dependencies{Source: source, Port: testPort(t)},
	)
	if err == nil {
		t.Fatalf("expected construction to fail without a registry")
	}
	var regErr *statuspage.RegistryError
	if !errors.As(err, &regErr) {
		t.Fatalf("expected *RegistryError, got %T: %v", err, err)
	}
}

func TestNewConfiguresEnabledPins(t *testing.T) {
	source := newStubSource(statuspage.Registry{"svc-x": 2}, hbResult{snap: upSnapshot(2)})
	port := testPort(t)

	_, err := New(
		Config{Bindings: []indicator.Binding{
			{Name: "svc-x", Pin: 5, Enabled: true},
			{Name: "svc-y", Pin: 6, Enabled: false},
		}},
		Dependencies{Source: source, Port: port},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pins := port.Pins()
	if _, ok := pins[5]; !ok {
		t.Fatalf("expected pin 5 configured")
	}
	if _, ok := pins[6]; ok {
		t.Fatalf("expected disabled binding's pin not configured")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	source := newStubSource(statuspage.Registry{"svc-x": 2}, hbResult{snap: upSnapshot(2)})
	var loopStarts atomic.Int64

	eng, err := New(
		Config{Bindings: defaultBindings()},
		Dependencies{
			Source: source,
			Port:   testPort(t),
			OnRunning: func(running bool) {
				if running {
					loopStarts.Add(1)
				}
			},
		},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	eng.Start(10 * time.Millisecond)
	eng.Start(10 * time.Millisecond)
	waitCycles(t, source, 2)

	if got := loopStarts.Load(); got != 1 {
		t.Fatalf("expected exactly one loop, got %d", got)
	}
	if state := eng.State(); state != StateRunning {
		t.Fatalf("expected running, got %s", state)
	}

	eng.Stop()
	if state := eng.State(); state != StateStopped {
		t.Fatalf("expected stopped, got %s", state)
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	source := newStubSource(statuspage.Registry{"svc-x": 2}, hbResult{snap: upSnapshot(2)})
	eng, err := New(
		Config{Bindings: defaultBindings()},
		Dependencies{Source: source, Port: testPort(t)},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan struct{})
	go func() {
		eng.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Stop before Start must return immediately")
	}
	if state := eng.State(); state != StateIdle {
		t.Fatalf("expected idle, got %s", state)
	}
}

func TestStopStartResumesWithSameRegistry(t *testing.T) {
	source := newStubSource(statuspage.Registry{"svc-x": 2}, hbResult{snap: upSnapshot(2)})
	port := testPort(t)
	eng, err := New(
		Config{Bindings: defaultBindings()},
		Dependencies{Source: source, Port: port},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	eng.Start(10 * time.Millisecond)
	waitCycles(t, source, 1)
	eng.Stop()

	eng.Start(10 * time.Millisecond)
	waitCycles(t, source, 1)
	eng.Stop()

	if !port.Pins()[5] {
		t.Fatalf("expected binding applied after restart")
	}
	if got := source.registryCalls(); got != 1 {
		t.Fatalf("expected registry fetched once at construction, got %d", got)
	}
}

func TestFetchErrorKeepsPreviousIndicatorState(t *testing.T) {
	fetchErr := &statuspage.HeartbeatError{Slug: "main", Err: fmt.Errorf("timeout")}
	source := newStubSource(
		statuspage.Registry{"svc-x": 2},
		hbResult{snap: upSnapshot(2)},
		hbResult{err: fetchErr},
	)
	port := testPort(t)
	var fetchErrs atomic.Int64

	eng, err := New(
		Config{Bindings: defaultBindings()},
		Dependencies{
			Source: source,
			Port:   port,
			OnCycle: func(_ time.Time, err error) {
				if err != nil {
					fetchErrs.Add(1)
				}
			},
		},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	eng.Start(10 * time.Millisecond)
	waitCycles(t, source, 3)
	eng.Stop()

	if fetchErrs.Load() == 0 {
		t.Fatalf("expected at least one observed fetch error")
	}
	if !port.Pins()[5] {
		t.Fatalf("expected stale snapshot to keep pin 5 high across fetch failures")
	}
}

func TestRefreshRegistrySwapsAndThrottles(t *testing.T) {
	source := newStubSource(statuspage.Registry{"svc-x": 2}, hbResult{snap: upSnapshot(2)})
	eng, err := New(
		Config{Bindings: defaultBindings(), RefreshMinGap: time.Hour},
		Dependencies{Source: source, Port: testPort(t)},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	source.mu.Lock()
	source.registry = statuspage.Registry{"svc-x": 9}
	source.mu.Unlock()

	if err := eng.RefreshRegistry(context.Background()); err != nil {
		t.Fatalf("RefreshRegistry: %v", err)
	}
	if got := eng.Registry()["svc-x"]; got != 9 {
		t.Fatalf("expected refreshed mapping, got %d", got)
	}

	if err := eng.RefreshRegistry(context.Background()); err == nil {
		t.Fatalf("expected second refresh inside the minimum gap to be throttled")
	}
}

func TestRefreshRegistryFailureKeepsOldMapping(t *testing.T) {
	source := newStubSource(statuspage.Registry{"svc-x": 2}, hbResult{snap: upSnapshot(2)})
	eng, err := New(
		Config{Bindings: defaultBindings()},
		Dependencies{Source: source, Port: testPort(t)},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	source.mu.Lock()
	source.regErr = &statuspage.RegistryError{Slug: "main", Err: fmt.Errorf("boom")}
	source.mu.Unlock()

	if err := eng.RefreshRegistry(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if got := eng.Registry()["svc-x"]; got != 2 {
		t.Fatalf("expected old mapping retained, got %d", got)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateIdle:     "idle",
		StateRunning:  "running",
		StateStopping: "stopping",
		StateStopped:  "stopped",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
