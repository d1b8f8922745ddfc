package fleet

import (
	"sync/atomic"
	"time"

	"github.com/FSE-2021-1/central-server/internal/device"
)

// RouterConfig holds the Router's collaborators.
type RouterConfig struct {
	Registry  *device.Registry
	Bus       Bus
	Namespace string

	// Metrics receives temperature and humidity readings. Optional.
	Metrics MetricWriter

	// Clock defaults to time.Now.
	Clock Clock

	Logger Logger
}

// RouterStats counts routed bus messages for monitoring.
type RouterStats struct {
	Announcements uint64 `json:"announcements"`
	Measurements  uint64 `json:"measurements"`
	Unmatched     uint64 `json:"unmatched"`
	Dropped       uint64 `json:"dropped"`
}

// Router applies inbound bus messages to the registry.
//
// HandleMessage is called from MQTT client goroutines and never panics on
// bad input: undecodable payloads are dropped with a debug log.
type Router struct {
	registry *device.Registry
	bus      Bus
	matcher  Matcher
	topics   Topics
	metrics  MetricWriter
	clock    Clock
	logger   Logger

	announcements atomic.Uint64
	measurements  atomic.Uint64
	unmatched     atomic.Uint64
	dropped       atomic.Uint64
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if err := ValidateNamespace(cfg.Namespace); err != nil {
		return nil, err
	}

	r := &Router{
		registry: cfg.Registry,
		bus:      cfg.Bus,
		matcher:  NewMatcher(cfg.Namespace),
		topics:   NewTopics(cfg.Namespace),
		metrics:  cfg.Metrics,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r, nil
}

// Start subscribes to every device announcement.
func (r *Router) Start() error {
	return r.bus.Subscribe(r.topics.AllAnnouncements(), r.HandleMessage)
}

// Topics returns the topic builders for the router's namespace.
func (r *Router) Topics() Topics {
	return r.topics
}

// HandleMessage classifies topic and applies payload to the registry.
func (r *Router) HandleMessage(topic string, payload []byte) {
	route := r.matcher.Match(topic)

	switch route.Kind {
	case RouteAnnounce:
		r.handleAnnounce(topic, route, payload)
	case RouteMeasurement:
		r.handleMeasurement(topic, route, payload)
	default:
		r.unmatched.Add(1)
	}
}

// handleAnnounce stores a fresh pending record for the announcing device.
// Nothing from a previous record with the same id survives.
func (r *Router) handleAnnounce(topic string, route Route, payload []byte) {
	ann, err := decodeAnnouncement(payload)
	if err != nil {
		r.dropped.Add(1)
		r.logger.Debug("announcement dropped", "topic", topic, "error", err)
		return
	}

	rec := device.NewPending(ann.ID, r.clock())
	rec.Local = ann.Local
	rec.Extra = ann.Extra

	if err := r.registry.Set(ann.ID, rec); err != nil {
		r.dropped.Add(1)
		r.logger.Debug("announcement dropped", "topic", topic, "id", ann.ID, "error", err)
		return
	}

	r.announcements.Add(1)
	if ann.ID != route.MACAddress {
		r.logger.Debug("announcement id differs from topic", "topic_id", route.MACAddress, "id", ann.ID)
	}
	r.logger.Info("device announced", "id", ann.ID, "local", ann.Local)
}

// handleMeasurement updates every record in the zone and refreshes its
// LastSeenAt. A temperature or humidity message without a numeric "value"
// is dropped; an actuator echo without "in" still counts as activity.
func (r *Router) handleMeasurement(topic string, route Route, payload []byte) {
	rd, err := decodeReading(payload)
	if err == nil && route.Measurement != MeasurementActuatorEcho && rd.Value == nil {
		err = ErrMalformedPayload
	}
	if err != nil {
		r.dropped.Add(1)
		r.logger.Debug("measurement dropped", "topic", topic, "error", err)
		return
	}

	now := r.clock()
	var updated []string

	r.registry.UpdateZone(route.Zone, func(rec *device.Record) {
		switch route.Measurement {
		case MeasurementActuatorEcho:
			if rd.In != nil {
				rec.Input.Value = *rd.In
			}
		case MeasurementTemperature:
			rec.Temperature = device.Float(*rd.Value)
		case MeasurementHumidity:
			rec.Humidity = device.Float(*rd.Value)
		}
		rec.Touch(now)
		updated = append(updated, rec.ID)
	})

	r.measurements.Add(1)
	r.logger.Debug("measurement routed",
		"zone", route.Zone,
		"measurement", route.Measurement.String(),
		"devices", len(updated),
	)

	if r.metrics == nil || rd.Value == nil || route.Measurement == MeasurementActuatorEcho {
		return
	}
	for _, id := range updated {
		r.metrics.WriteDeviceMetric(id, route.Measurement.String(), *rd.Value)
	}
}

// Stats returns message counters.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		Announcements: r.announcements.Load(),
		Measurements:  r.measurements.Load(),
		Unmatched:     r.unmatched.Load(),
		Dropped:       r.dropped.Load(),
	}
}
