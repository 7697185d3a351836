package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Store maintains in-memory gauges and counters for beacon telemetry.
type Store struct {
	cyclesTotal          atomic.Uint64
	heartbeatErrorsTotal atomic.Uint64
	staleCyclesTotal     atomic.Uint64
	bindingWarningsTotal atomic.Uint64
	pinErrorsTotal       atomic.Uint64
	monitorsBound        atomic.Int64
	monitorsUp           atomic.Int64
	lastCycleUnix        atomic.Int64
	lastSuccessUnix      atomic.Int64
	readinessState       atomic.Int64
	readinessReason      atomic.Value
}

// NewStore constructs a Store with zeroed metrics.
func NewStore() *Store {
	store := &Store{}
	store.readinessReason.Store("")
	return store
}

// Snapshot captures the current metric values in a plain struct.
type Snapshot struct {
	CyclesTotal          uint64
	HeartbeatErrorsTotal uint64
	StaleCyclesTotal     uint64
	BindingWarningsTotal uint64
	PinErrorsTotal       uint64
	MonitorsBound        int64
	MonitorsUp           int64
	LastCycle            time.Time
	LastSuccess          time.Time
	Ready                bool
	ReadyReason          string
}

// Snapshot returns a point-in-time copy of the metrics.
func (s *Store) Snapshot() Snapshot {
	readyReason, _ := s.readinessReason.Load().(string)
	return Snapshot{
		CyclesTotal:          s.cyclesTotal.Load(),
		HeartbeatErrorsTotal: s.heartbeatErrorsTotal.Load(),
		StaleCyclesTotal:     s.staleCyclesTotal.Load(),
		BindingWarningsTotal: s.bindingWarningsTotal.Load(),
		PinErrorsTotal:       s.pinErrorsTotal.Load(),
		MonitorsBound:        s.monitorsBound.Load(),
		MonitorsUp:           s.monitorsUp.Load(),
		LastCycle:            unixOrZero(s.lastCycleUnix.Load()),
		LastSuccess:          unixOrZero(s.lastSuccessUnix.Load()),
		Ready:                s.readinessState.Load() == 1,
		ReadyReason:          readyReason,
	}
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// CycleRecorder receives per-cycle observations from the sync engine.
type CycleRecorder interface {
	ObserveCycle(at time.Time, fetchErr error)
	ObserveBindings(bound, up, warnings, pinErrors int)
}

type NoopCycleRecorder struct{}

func (NoopCycleRecorder) ObserveCycle(at time.Time, fetchErr error)          {}
func (NoopCycleRecorder) ObserveBindings(bound, up, warnings, pinErrors int) {}

// CycleRecorder returns an implementation of CycleRecorder backed by the store.
func (s *Store) CycleRecorder() CycleRecorder {
	return cycleRecorder{store: s}
}

type cycleRecorder struct {
	store *Store
}

func (r cycleRecorder) ObserveCycle(at time.Time, fetchErr error) {
	r.store.cyclesTotal.Add(1)
	r.store.lastCycleUnix.Store(at.Unix())
	if fetchErr != nil {
		r.store.heartbeatErrorsTotal.Add(1)
		r.store.staleCyclesTotal.Add(1)
		return
	}
	r.store.lastSuccessUnix.Store(at.Unix())
}

func (r cycleRecorder) ObserveBindings(bound, up, warnings, pinErrors int) {
	r.store.monitorsBound.Store(int64(bound))
	r.store.monitorsUp.Store(int64(up))
	r.store.bindingWarningsTotal.Add(uint64(warnings))
	r.store.pinErrorsTotal.Add(uint64(pinErrors))
}

// ObserveReadiness records the most recent readiness verdict.
func (s *Store) ObserveReadiness(ready bool, reason string) {
	if ready {
		s.readinessState.Store(1)
		s.readinessReason.Store("")
		return
	}
	s.readinessState.Store(0)
	s.readinessReason.Store(reason)
}

// WritePrometheus renders the current metrics using the Prometheus text format.
func (s *Store) WritePrometheus(w io.Writer) error {
	snap := s.Snapshot()
	readyValue := 0
	if snap.Ready {
		readyValue = 1
	}
	reason := snap.ReadyReason
	if snap.Ready && reason == "" {
		reason = "ready"
	}
	if !snap.Ready && reason == "" {
		reason = "unknown"
	}
	lastCycle := int64(0)
	if !snap.LastCycle.IsZero() {
		lastCycle = snap.LastCycle.Unix()
	}
	lastSuccess := int64(0)
	if !snap.LastSuccess.IsZero() {
		lastSuccess = snap.LastSuccess.Unix()
	}
	lines := []string{
		"# HELP kuma_beacon_cycles_total Total poll cycles executed.",
		"# TYPE kuma_beacon_cycles_total counter",
		fmt.Sprintf("kuma_beacon_cycles_total %d", snap.CyclesTotal),
		"# HELP kuma_beacon_heartbeat_errors_total Total heartbeat fetches that failed.",
		"# TYPE kuma_beacon_heartbeat_errors_total counter",
		fmt.Sprintf("kuma_beacon_heartbeat_errors_total %d", snap.HeartbeatErrorsTotal),
		"# HELP kuma_beacon_stale_cycles_total Total cycles applied with a stale heartbeat snapshot.",
		"# TYPE kuma_beacon_stale_cycles_total counter",
		fmt.Sprintf("kuma_beacon_stale_cycles_total %d", snap.StaleCyclesTotal),
		"# HELP kuma_beacon_binding_warnings_total Total bindings skipped because the monitor could not be resolved.",
		"# TYPE kuma_beacon_binding_warnings_total counter",
		fmt.Sprintf("kuma_beacon_binding_warnings_total %d", snap.BindingWarningsTotal),
		"# HELP kuma_beacon_pin_errors_total Total failures driving an output pin.",
		"# TYPE kuma_beacon_pin_errors_total counter",
		fmt.Sprintf("kuma_beacon_pin_errors_total %d", snap.PinErrorsTotal),
		"# HELP kuma_beacon_monitors_bound Enabled bindings applied in the latest cycle.",
		"# TYPE kuma_beacon_monitors_bound gauge",
		fmt.Sprintf("kuma_beacon_monitors_bound %d", snap.MonitorsBound),
		"# HELP kuma_beacon_monitors_up Bindings whose monitor evaluated up in the latest cycle.",
		"# TYPE kuma_beacon_monitors_up gauge",
		fmt.Sprintf("kuma_beacon_monitors_up %d", snap.MonitorsUp),
		"# HELP kuma_beacon_last_cycle_timestamp_seconds Unix time of the latest completed cycle.",
		"# TYPE kuma_beacon_last_cycle_timestamp_seconds gauge",
		fmt.Sprintf("kuma_beacon_last_cycle_timestamp_seconds %d", lastCycle),
		"# HELP kuma_beacon_last_success_timestamp_seconds Unix time of the latest successful heartbeat fetch.",
		"# TYPE kuma_beacon_last_success_timestamp_seconds gauge",
		fmt.Sprintf("kuma_beacon_last_success_timestamp_seconds %d", lastSuccess),
		"# HELP kuma_beacon_ready Whether the beacon considers itself ready (1=ready).",
		"# TYPE kuma_beacon_ready gauge",
		fmt.Sprintf("kuma_beacon_ready %d", readyValue),
		"# HELP kuma_beacon_ready_info Reason associated with the most recent readiness evaluation.",
		"# TYPE kuma_beacon_ready_info gauge",
		fmt.Sprintf("kuma_beacon_ready_info{reason=%q} 1", reason),
	}
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// NewHTTPHandler returns an http.Handler that serves Prometheus formatted metrics.
func NewHTTPHandler(store *Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if r.Method == http.MethodHead {
			return
		}
		if err := store.WritePrometheus(w); err != nil {
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
		}
	})
}
