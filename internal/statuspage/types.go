package statuspage

import "strconv"

// MonitorID is the numeric identifier Uptime Kuma assigns to a monitor or
// monitor group. Unique within one status page.
type MonitorID int64

func (id MonitorID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// StatusCode is the wire encoding of a heartbeat verdict.
type StatusCode int

const (
	StatusDown        StatusCode = 0
	StatusUp          StatusCode = 1
	StatusPending     StatusCode = 2
	StatusMaintenance StatusCode = 3
)

// Registry maps monitor and group names to their ids, flattened from the
// status page's group tree. Names are only unique per snapshot; when a
// group and a monitor (or two monitors) share a name, the entry inserted
// last wins. That matches the backend's own dashboard behavior and is
// deliberate, not a bug to fix here.
type Registry map[string]MonitorID

// HeartbeatEntry is one health sample for a monitor, oldest-first in the
// wire payload. Time is carried verbatim; only Status of the newest entry
// matters to the beacon.
type HeartbeatEntry struct {
	Status StatusCode `json:"status"`
	Time   string     `json:"time"`
	Msg    string     `json:"msg"`
	Ping   float64    `json:"ping"`
}

// HeartbeatSnapshot holds the per-monitor heartbeat sequences keyed by the
// wire format's stringified monitor id. Keys are normalized at lookup, not
// at decode time, so a key that fails to parse is kept rather than
// silently dropped.
type HeartbeatSnapshot map[string][]HeartbeatEntry

// IsUp reports whether the newest heartbeat for id is an explicit "up".
// A missing monitor, an empty sequence, or any non-up code (down, pending,
// maintenance) evaluates to false: on ambiguous data the indicator should
// read down, never falsely reassuring.
func (s HeartbeatSnapshot) IsUp(id MonitorID) bool {
	entries := s[strconv.FormatInt(int64(id), 10)]
	if len(entries) == 0 {
		return false
	}
	return entries[len(entries)-1].Status == StatusUp
}
