package device

// State is the partitioned fleet snapshot pushed to clients.
// Active is always listed before Pending on the wire.
type State struct {
	Active  []Record `json:"active"`
	Pending []Record `json:"pending"`
}

// Split divides records by IsPending, preserving their order.
// Both result slices are non-nil so they encode as [] rather than null.
func Split(records []Record) (active, pending []Record) {
	active = make([]Record, 0, len(records))
	pending = make([]Record, 0)
	for _, rec := range records {
		if rec.IsPending {
			pending = append(pending, rec)
		} else {
			active = append(active, rec)
		}
	}
	return active, pending
}

// Partition splits a consistent snapshot of the registry into active and
// pending records, each sorted by ID.
func (r *Registry) Partition() (active, pending []Record) {
	return Split(r.Values())
}

// Snapshot returns the current partition as a State.
func (r *Registry) Snapshot() State {
	active, pending := r.Partition()
	return State{Active: active, Pending: pending}
}
