package indicator

import (
	"io"
	"log"

	"github.com/kumabeaconhq/beacon/internal/config"
	"github.com/kumabeaconhq/beacon/internal/events"
	"github.com/kumabeaconhq/beacon/internal/statuspage"
)

// Binding associates one monitored service with an output pin. An explicit
// ID takes precedence over the name lookup in the registry. Bindings may
// legitimately share a pin; the binding applied later in list order wins
// that cycle.
type Binding struct {
	Name    string
	ID      statuspage.MonitorID
	Pin     int
	Enabled bool
}

// FromConfig converts the configured service list into bindings.
func FromConfig(services []config.ServiceConfig) []Binding {
	bindings := make([]Binding, 0, len(services))
	for _, svc := range services {
		bindings = append(bindings, Binding{
			Name:    svc.Name,
			ID:      statuspage.MonitorID(svc.ID),
			Pin:     svc.Pin,
			Enabled: svc.ServiceEnabled(),
		})
	}
	return bindings
}

// Label names the binding for logs and events.
func (b Binding) Label() string {
	if b.Name != "" {
		return b.Name
	}
	return "id:" + b.ID.String()
}

// Resolve returns the monitor id the binding refers to under the given
// registry snapshot, or false when neither the explicit id nor the name
// resolves.
func (b Binding) Resolve(registry statuspage.Registry) (statuspage.MonitorID, bool) {
	if b.ID > 0 {
		return b.ID, true
	}
	if b.Name == "" {
		return 0, false
	}
	id, ok := registry[b.Name]
	return id, ok
}

// ApplyDeps carries the optional collaborators for an apply pass.
type ApplyDeps struct {
	Logger *log.Logger
	Events events.Recorder
}

// ApplyResult summarizes one apply pass for metrics.
type ApplyResult struct {
	Applied    int
	Up         int
	Unresolved int
	PinErrors  int
}

// Apply drives every enabled binding from the current snapshots: resolve
// the monitor id, evaluate the verdict, set the pin high (up) or low
// (down). An unresolvable binding is skipped with a warning and a
// failing pin write is logged; neither stops the remaining bindings.
// Applying the same inputs twice leaves pin state unchanged.
func Apply(bindings []Binding, registry statuspage.Registry, heartbeats statuspage.HeartbeatSnapshot, port Port, deps ApplyDeps) ApplyResult {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	recorder := deps.Events
	if recorder == nil {
		recorder = events.NoopRecorder{}
	}

	var res ApplyResult
	for _, b := range bindings {
		if !b.Enabled {
			continue
		}

		id, ok := b.Resolve(registry)
		if !ok {
			res.Unresolved++
			logger.Printf("binding %q: monitor not found in registry, pin %d left untouched", b.Label(), b.Pin)
			ev := events.New(events.EventBindingUnresolved)
			ev.Monitor = b.Label()
			ev.Pin = b.Pin
			recorder.Record(ev)
			continue
		}

		up := heartbeats.IsUp(id)
		var err error
		if up {
			err = port.SetHigh(b.Pin)
		} else {
			err = port.SetLow(b.Pin)
		}
		if err != nil {
			res.PinErrors++
			logger.Printf("binding %q: drive pin %d failed: %v", b.Label(), b.Pin, err)
			ev := events.New(events.EventPinDriveFail)
			ev.Monitor = b.Label()
			ev.Pin = b.Pin
			ev.Details = map[string]any{"error": err.Error()}
			recorder.Record(ev)
			continue
		}

		res.Applied++
		if up {
			res.Up++
		}
	}
	return res
}
