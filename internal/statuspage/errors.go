package statuspage

import "fmt"

// RegistryError wraps any failure to fetch or parse the name→id registry.
// It is fatal when it happens at engine construction and is returned to
// the caller from an on-demand refresh.
type RegistryError struct {
	Slug string
	Err  error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("status page registry fetch (slug=%s): %v", e.Slug, e.Err)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// HeartbeatError wraps any failure to fetch or parse heartbeat data during
// a poll cycle. It never escapes the cycle: the engine logs it and keeps
// the previous snapshot.
type HeartbeatError struct {
	Slug string
	Err  error
}

func (e *HeartbeatError) Error() string {
	return fmt.Sprintf("status page heartbeat fetch (slug=%s): %v", e.Slug, e.Err)
}

func (e *HeartbeatError) Unwrap() error { return e.Err }
