package fleet

import (
	"sort"
	"sync"
)

// ZoneSubscriptions tracks which devices hold a zone's measurement
// subscription and drives Subscribe/Unsubscribe on the bus.
//
// In exclusive mode (shared=false) every Acquire subscribes and every
// Release unsubscribes the zone pattern, so deleting one device silences
// the whole zone. In shared mode the pattern is subscribed when the first
// device acquires it and unsubscribed when the last holder releases it.
//
// Bus errors are logged and the bookkeeping is kept regardless. The mqtt
// client tracks a subscription even when the broker is down and restores
// it on reconnect.
type ZoneSubscriptions struct {
	bus     Bus
	topics  Topics
	handler func(topic string, payload []byte)
	shared  bool
	logger  Logger

	mu      sync.Mutex
	holders map[string]map[string]struct{}
}

// NewZoneSubscriptions creates the subscription book. handler receives every
// message on acquired zone patterns (normally Router.HandleMessage).
func NewZoneSubscriptions(bus Bus, topics Topics, handler func(topic string, payload []byte), shared bool) *ZoneSubscriptions {
	return &ZoneSubscriptions{
		bus:     bus,
		topics:  topics,
		handler: handler,
		shared:  shared,
		logger:  noopLogger{},
		holders: make(map[string]map[string]struct{}),
	}
}

// SetLogger sets the logger.
func (z *ZoneSubscriptions) SetLogger(logger Logger) {
	z.logger = logger
}

// Acquire records deviceID as a holder of zone and subscribes the zone
// pattern when required.
func (z *ZoneSubscriptions) Acquire(zone, deviceID string) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	set, ok := z.holders[zone]
	if !ok {
		set = make(map[string]struct{})
		z.holders[zone] = set
	}
	first := len(set) == 0
	set[deviceID] = struct{}{}

	if z.shared && !first {
		return nil
	}

	topic := z.topics.ZoneMeasurements(zone)
	if err := z.bus.Subscribe(topic, z.handler); err != nil {
		z.logger.Warn("zone subscribe failed", "zone", zone, "topic", topic, "error", err)
		return err
	}
	z.logger.Debug("zone subscribed", "zone", zone, "device_id", deviceID)
	return nil
}

// Release drops deviceID as a holder of zone and unsubscribes the zone
// pattern when required.
func (z *ZoneSubscriptions) Release(zone, deviceID string) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	set := z.holders[zone]
	_, held := set[deviceID]

	if z.shared {
		if !held {
			return nil
		}
		delete(set, deviceID)
		if len(set) > 0 {
			return nil
		}
	}
	delete(z.holders, zone)

	topic := z.topics.ZoneMeasurements(zone)
	if err := z.bus.Unsubscribe(topic); err != nil {
		z.logger.Warn("zone unsubscribe failed", "zone", zone, "topic", topic, "error", err)
		return err
	}
	z.logger.Debug("zone unsubscribed", "zone", zone, "device_id", deviceID)
	return nil
}

// Zones returns the currently subscribed zones, sorted.
func (z *ZoneSubscriptions) Zones() []string {
	z.mu.Lock()
	defer z.mu.Unlock()

	zones := make([]string, 0, len(z.holders))
	for zone := range z.holders {
		zones = append(zones, zone)
	}
	sort.Strings(zones)
	return zones
}

// Shared reports whether zone subscriptions are reference-counted.
func (z *ZoneSubscriptions) Shared() bool {
	return z.shared
}
