package device

import "time"

// Channel is a named actuator channel (input or output) with its current value.
type Channel struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Record is the registry's view of one device.
//
// Temperature and Humidity stay nil until the first reading arrives.
// LastSeenAt is nil for devices that were registered by a client but never
// heard from on the bus; those are exempt from liveness eviction.
type Record struct {
	// Identity
	ID    string `json:"id"`
	Local string `json:"local"`

	// Actuator channels
	Input  Channel `json:"input"`
	Output Channel `json:"output"`

	// Measurements
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`

	// Lifecycle
	IsPending  bool       `json:"isPending"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`

	// Extra carries announcement fields the registry does not interpret.
	Extra map[string]any `json:"extra,omitempty"`
}

// Clone returns an independent copy of the record.
// Pointer fields and the Extra map are duplicated so that mutating the copy
// never touches registry-owned memory.
func (r Record) Clone() Record {
	cpy := r

	if r.Temperature != nil {
		t := *r.Temperature
		cpy.Temperature = &t
	}
	if r.Humidity != nil {
		h := *r.Humidity
		cpy.Humidity = &h
	}
	if r.LastSeenAt != nil {
		ts := *r.LastSeenAt
		cpy.LastSeenAt = &ts
	}
	cpy.Extra = deepCopyMap(r.Extra)

	return cpy
}

// Touch sets LastSeenAt to t (normalised to UTC).
func (r *Record) Touch(t time.Time) {
	ts := t.UTC()
	r.LastSeenAt = &ts
}

// IsStale reports whether the record has been silent on the bus for longer
// than threshold at time now. Records never seen on the bus are never stale.
func (r Record) IsStale(now time.Time, threshold time.Duration) bool {
	if r.LastSeenAt == nil {
		return false
	}
	return now.Sub(*r.LastSeenAt) > threshold
}

// NewActive builds the record stored when a client registers a device:
// channel values zeroed, no measurements, never seen on the bus.
func NewActive(id, local, inputName, outputName string) Record {
	return Record{
		ID:     id,
		Local:  local,
		Input:  Channel{Name: inputName},
		Output: Channel{Name: outputName},
	}
}

// NewPending builds the record stored when a device announces itself on the bus.
func NewPending(id string, seenAt time.Time) Record {
	r := Record{
		ID:        id,
		IsPending: true,
	}
	r.Touch(seenAt)
	return r
}

// Float returns a pointer to v, for populating measurement fields.
func Float(v float64) *float64 {
	return &v
}

// deepCopyMap creates a deep copy of a map[string]any.
// Handles nested maps and slices recursively.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// JSON-decoded scalars (string, float64, bool, nil) are immutable
		return val
	}
}
