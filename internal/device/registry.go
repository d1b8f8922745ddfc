package device

import (
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ChangeFunc is invoked after every committed registry mutation.
type ChangeFunc func()

// Registry is the authoritative in-memory store of device records.
//
// Records are stored and returned by value (deep-copied), so callers can
// never observe a partially written record. A single RWMutex guards the
// whole map; read-modify-write sequences go through Update and UpdateZone
// so they execute under one write lock.
//
// The change callback runs after the lock is released, once per committed
// mutation, and may itself read the registry.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record

	cbMu     sync.RWMutex
	onChange ChangeFunc

	logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]Record),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetChangeCallback registers the single change listener.
// It replaces any previously registered listener; nil disables notification.
func (r *Registry) SetChangeCallback(fn ChangeFunc) {
	r.cbMu.Lock()
	r.onChange = fn
	r.cbMu.Unlock()
}

// notify invokes the change listener, if any.
func (r *Registry) notify() {
	r.cbMu.RLock()
	fn := r.onChange
	r.cbMu.RUnlock()

	if fn != nil {
		fn()
	}
}

// Get returns a copy of the record stored under id.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()

	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// Has reports whether a record exists for id.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[id]
	return ok
}

// Set stores rec under id, replacing any existing record entirely.
// An empty rec.ID is filled from id; a different non-empty ID is rejected.
func (r *Registry) Set(id string, rec Record) error {
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.ID != id {
		return fmt.Errorf("%w: key %q, record %q", ErrIDMismatch, id, rec.ID)
	}
	if err := ValidateRecord(rec); err != nil {
		return err
	}

	r.mu.Lock()
	r.records[id] = rec.Clone()
	r.mu.Unlock()

	r.logger.Debug("device record set", "id", id, "pending", rec.IsPending)
	r.notify()
	return nil
}

// Delete removes the record for id if present.
// The change listener is notified either way, matching Set.
// Returns true if a record was removed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	_, existed := r.records[id]
	delete(r.records, id)
	r.mu.Unlock()

	if existed {
		r.logger.Debug("device record deleted", "id", id)
	}
	r.notify()
	return existed
}

// DeleteIf removes the record for id only if pred holds for its current value.
// The check and the removal happen under one lock. The listener is notified
// only when a record was removed.
func (r *Registry) DeleteIf(id string, pred func(Record) bool) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || !pred(rec.Clone()) {
		r.mu.Unlock()
		return false
	}
	delete(r.records, id)
	r.mu.Unlock()

	r.logger.Debug("device record deleted", "id", id)
	r.notify()
	return true
}

// Update applies fn to the record stored under id and commits the result.
// The record's ID cannot be changed by fn.
//
// Returns the committed record, or ErrDeviceNotFound.
func (r *Registry) Update(id string, fn func(*Record)) (Record, error) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return Record{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	updated := rec.Clone()
	fn(&updated)
	updated.ID = id
	r.records[id] = updated
	r.mu.Unlock()

	r.logger.Debug("device record updated", "id", id)
	r.notify()
	return updated.Clone(), nil
}

// UpdateZone applies fn to every record whose Local equals zone.
// All matching records are modified under one write lock; the listener is
// then notified once per modified record. Returns the number modified.
func (r *Registry) UpdateZone(zone string, fn func(*Record)) int {
	r.mu.Lock()
	count := 0
	for id, rec := range r.records {
		if rec.Local != zone {
			continue
		}
		updated := rec.Clone()
		fn(&updated)
		updated.ID = id
		r.records[id] = updated
		count++
	}
	r.mu.Unlock()

	for i := 0; i < count; i++ {
		r.notify()
	}
	if count > 0 {
		r.logger.Debug("zone records updated", "zone", zone, "count", count)
	}
	return count
}

// Values returns a snapshot of every record, sorted by ID.
// The returned records are deep copies; callers can safely modify them.
func (r *Registry) Values() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ZoneMembers returns the IDs of records in zone, sorted.
func (r *Registry) ZoneMembers(zone string) []string {
	r.mu.RLock()
	var ids []string
	for id, rec := range r.records {
		if rec.Local == zone {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	Total   int            `json:"total"`
	Active  int            `json:"active"`
	Pending int            `json:"pending"`
	ByZone  map[string]int `json:"by_zone"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:  len(r.records),
		ByZone: make(map[string]int),
	}
	for _, rec := range r.records {
		if rec.IsPending {
			stats.Pending++
		} else {
			stats.Active++
		}
		if rec.Local != "" {
			stats.ByZone[rec.Local]++
		}
	}
	return stats
}
