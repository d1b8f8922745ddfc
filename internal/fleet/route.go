package fleet

import (
	"fmt"
	"strings"

	"github.com/FSE-2021-1/central-server/internal/device"
)

// Topic levels under the namespace.
const (
	levelDevices     = "devices"
	levelTemperature = "temperature"
	levelHumidity    = "humidity"
	levelState       = "state"
	levelCommand     = "command"
)

// RouteKind tags the variant held by a Route.
type RouteKind int

// Route kinds.
const (
	RouteUnmatched RouteKind = iota
	RouteAnnounce
	RouteMeasurement
)

// String returns the route kind name for logging.
func (k RouteKind) String() string {
	switch k {
	case RouteAnnounce:
		return "announce"
	case RouteMeasurement:
		return "measurement"
	default:
		return "unmatched"
	}
}

// Measurement identifies which record field a zone message updates.
type Measurement int

// Measurement kinds.
const (
	MeasurementNone Measurement = iota
	MeasurementTemperature
	MeasurementHumidity
	MeasurementActuatorEcho
)

// String returns the measurement name as used in topics and metrics.
func (m Measurement) String() string {
	switch m {
	case MeasurementTemperature:
		return levelTemperature
	case MeasurementHumidity:
		return levelHumidity
	case MeasurementActuatorEcho:
		return levelState
	default:
		return "none"
	}
}

// measurementLevels maps the last topic level to its measurement kind.
var measurementLevels = map[string]Measurement{
	levelTemperature: MeasurementTemperature,
	levelHumidity:    MeasurementHumidity,
	levelState:       MeasurementActuatorEcho,
}

// Route is the classification of one bus topic.
//
// MACAddress is set for RouteAnnounce; Zone and Measurement for
// RouteMeasurement. An Unmatched route carries no fields.
type Route struct {
	Kind        RouteKind
	MACAddress  string
	Zone        string
	Measurement Measurement
}

// Matcher classifies topics under one namespace.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	prefix string
}

// NewMatcher creates a matcher for namespace (e.g. "fse2021/200012345").
func NewMatcher(namespace string) Matcher {
	return Matcher{prefix: strings.TrimSuffix(namespace, "/") + "/"}
}

// Match classifies topic. Anything that is not exactly an announcement or a
// known zone measurement is Unmatched, including topics with empty levels,
// wildcard characters or extra levels.
func (m Matcher) Match(topic string) Route {
	rest, ok := strings.CutPrefix(topic, m.prefix)
	if !ok || strings.ContainsAny(rest, "+#") {
		return Route{}
	}

	first, second, ok := strings.Cut(rest, "/")
	if !ok || first == "" || second == "" || strings.Contains(second, "/") {
		return Route{}
	}

	if first == levelDevices {
		if !device.IsMACAddress(second) {
			return Route{}
		}
		return Route{Kind: RouteAnnounce, MACAddress: second}
	}

	kind, known := measurementLevels[second]
	if !known {
		return Route{}
	}
	return Route{Kind: RouteMeasurement, Zone: first, Measurement: kind}
}

// Topics builds the topics the server publishes and subscribes to.
//
//	topics := fleet.NewTopics("fse2021/200012345")
//	topics.Command("kitchen") // "fse2021/200012345/kitchen/command"
type Topics struct {
	Namespace string
}

// NewTopics returns topic builders for namespace.
func NewTopics(namespace string) Topics {
	return Topics{Namespace: strings.TrimSuffix(namespace, "/")}
}

// Announce returns the announcement topic for one device.
//
// Example: fse2021/200012345/devices/AA:BB:CC:DD:EE:FF
func (t Topics) Announce(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", t.Namespace, levelDevices, deviceID)
}

// AllAnnouncements returns the pattern matching every device announcement.
//
// Pattern: fse2021/200012345/devices/+
func (t Topics) AllAnnouncements() string {
	return fmt.Sprintf("%s/%s/+", t.Namespace, levelDevices)
}

// ZoneMeasurements returns the pattern matching every message for a zone.
//
// Pattern: fse2021/200012345/kitchen/+
func (t Topics) ZoneMeasurements(zone string) string {
	return fmt.Sprintf("%s/%s/+", t.Namespace, zone)
}

// Command returns the actuator command topic for a zone.
//
// Example: fse2021/200012345/kitchen/command
func (t Topics) Command(zone string) string {
	return fmt.Sprintf("%s/%s/%s", t.Namespace, zone, levelCommand)
}

// Measurement returns the topic a device publishes one reading on.
//
// Example: fse2021/200012345/kitchen/temperature
func (t Topics) Measurement(zone string, m Measurement) string {
	return fmt.Sprintf("%s/%s/%s", t.Namespace, zone, m)
}

// ValidateNamespace checks that namespace can prefix topic templates.
func ValidateNamespace(namespace string) error {
	switch {
	case strings.TrimSpace(namespace) == "":
		return fmt.Errorf("%w: empty", ErrInvalidNamespace)
	case strings.ContainsAny(namespace, "+#"):
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidNamespace, namespace)
	case strings.HasPrefix(namespace, "/") || strings.HasSuffix(namespace, "/"):
		return fmt.Errorf("%w: %q has a leading or trailing '/'", ErrInvalidNamespace, namespace)
	case strings.Contains(namespace, "//"):
		return fmt.Errorf("%w: %q has an empty level", ErrInvalidNamespace, namespace)
	}
	return nil
}
