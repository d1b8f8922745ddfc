package fleet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/FSE-2021-1/central-server/internal/device"
)

// Liveness defaults.
const (
	DefaultStaleThreshold = 60 * time.Second
	DefaultSweepInterval  = 5 * time.Second
)

// MonitorConfig holds the liveness monitor's settings and collaborators.
type MonitorConfig struct {
	Registry *device.Registry
	Bus      Bus
	Zones    *ZoneSubscriptions
	Topics   Topics

	// StaleThreshold is the silence after which a device is evicted.
	StaleThreshold time.Duration

	// SweepInterval is the time between sweeps.
	SweepInterval time.Duration

	Clock  Clock
	Audit  AuditRecorder
	Logger Logger
}

// Monitor evicts devices that have stopped reporting on the bus.
//
// Devices that were never seen on the bus (LastSeenAt nil) are never
// evicted. Sweeps are serialised: Run's ticks and direct Sweep calls never
// overlap.
type Monitor struct {
	registry  *device.Registry
	bus       Bus
	zones     *ZoneSubscriptions
	topics    Topics
	threshold time.Duration
	interval  time.Duration
	clock     Clock
	audit     AuditRecorder
	logger    Logger

	sweepMu sync.Mutex
}

// NewMonitor creates a liveness monitor. Zero durations take the defaults;
// the sweep interval may not exceed the stale threshold.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	m := &Monitor{
		registry:  cfg.Registry,
		bus:       cfg.Bus,
		zones:     cfg.Zones,
		topics:    cfg.Topics,
		threshold: cfg.StaleThreshold,
		interval:  cfg.SweepInterval,
		clock:     cfg.Clock,
		audit:     cfg.Audit,
		logger:    cfg.Logger,
	}
	if m.threshold == 0 {
		m.threshold = DefaultStaleThreshold
	}
	if m.interval == 0 {
		m.interval = DefaultSweepInterval
	}
	if m.threshold < 0 || m.interval < 0 {
		return nil, errors.New("fleet: liveness durations must be positive")
	}
	if m.interval > m.threshold {
		return nil, errors.New("fleet: sweep interval must not exceed stale threshold")
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.audit == nil {
		m.audit = noopAudit{}
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	return m, nil
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("liveness monitor started",
		"interval", m.interval.String(),
		"threshold", m.threshold.String(),
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("liveness monitor stopped")
			return
		case <-ticker.C:
			m.sweep(ctx, m.clock())
		}
	}
}

// Sweep runs one pass at time now and returns the evicted ids, sorted.
func (m *Monitor) Sweep(now time.Time) []string {
	return m.sweep(context.Background(), now)
}

func (m *Monitor) sweep(ctx context.Context, now time.Time) []string {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	var stale []device.Record
	for _, rec := range m.registry.Values() {
		if rec.IsStale(now, m.threshold) {
			stale = append(stale, rec)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	// A device refreshed since the scan is no longer stale and survives.
	evicted := make([]string, 0, len(stale))
	var torn []device.Record
	for _, rec := range stale {
		var removed device.Record
		if !m.registry.DeleteIf(rec.ID, func(cur device.Record) bool {
			removed = cur
			return cur.IsStale(now, m.threshold)
		}) {
			continue
		}
		evicted = append(evicted, rec.ID)
		// Pending devices were torn down when they were marked.
		if !removed.IsPending {
			torn = append(torn, removed)
		}
	}

	for _, rec := range torn {
		if m.zones != nil && rec.Local != "" {
			_ = m.zones.Release(rec.Local, rec.ID)
		}
		m.publishUnregister(rec.ID)
	}
	if len(evicted) == 0 {
		return nil
	}

	m.logger.Info("stale devices evicted", "count", len(evicted), "ids", evicted)
	m.audit.Record(ctx, ActionEvict, "", map[string]any{"ids": evicted})
	return evicted
}

func (m *Monitor) publishUnregister(id string) {
	if m.bus == nil {
		return
	}
	topic := m.topics.Announce(id)
	if err := m.bus.Publish(topic, mustMarshal(directive{Type: directiveUnregister})); err != nil {
		m.logger.Warn("bus publish failed", "topic", topic, "error", err)
	}
}

// Threshold returns the configured stale threshold.
func (m *Monitor) Threshold() time.Duration {
	return m.threshold
}

// Interval returns the configured sweep interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}
