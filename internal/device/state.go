package device

import "sync"

// Values is an unguarded copy of the device's process data.
//
// Values are float32 because the float register pair publishes the exact
// IEEE-754 single-precision bit pattern of the process value.
type Values struct {
	// ProcessValue is the simulated measurement (°C). Only the physics
	// updater changes it.
	ProcessValue float32 `json:"process_value"`

	// Setpoint is the target value (°C). Only validated register writes
	// change it.
	Setpoint float32 `json:"setpoint"`

	// Ambient is the floor for passive cooling. Constant after start-up.
	Ambient float32 `json:"ambient"`
}

// State is the authoritative record of the simulated device.
//
// There is exactly one State per process. It is shared by reference between
// the physics updater and the request handler.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Do holds the lock for the entire callback, never across I/O.
type State struct {
	mu     sync.Mutex
	values Values
}

// NewState creates a State seeded with the given initial values.
func NewState(initial Values) *State {
	return &State{values: initial}
}

// Do runs fn with exclusive access to the device values.
//
// fn may read and modify v freely; the changes are visible to the next
// caller once fn returns. fn must not block or perform I/O.
func (s *State) Do(fn func(v *Values)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.values)
}

// Snapshot returns a consistent copy of the current values.
func (s *State) Snapshot() Values {
	var out Values
	s.Do(func(v *Values) {
		out = *v
	})
	return out
}
