package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatcher_Match(t *testing.T) {
	m := NewMatcher(testNamespace)

	tests := []struct {
		name  string
		topic string
		want  Route
	}{
		{
			name:  "announce colon mac",
			topic: "fse2021/200012345/devices/AA:BB:CC:DD:EE:FF",
			want:  Route{Kind: RouteAnnounce, MACAddress: "AA:BB:CC:DD:EE:FF"},
		},
		{
			name:  "announce hyphen mac",
			topic: "fse2021/200012345/devices/aa-bb-cc-dd-ee-ff",
			want:  Route{Kind: RouteAnnounce, MACAddress: "aa-bb-cc-dd-ee-ff"},
		},
		{
			name:  "temperature",
			topic: "fse2021/200012345/kitchen/temperature",
			want:  Route{Kind: RouteMeasurement, Zone: "kitchen", Measurement: MeasurementTemperature},
		},
		{
			name:  "humidity",
			topic: "fse2021/200012345/kitchen/humidity",
			want:  Route{Kind: RouteMeasurement, Zone: "kitchen", Measurement: MeasurementHumidity},
		},
		{
			name:  "actuator echo",
			topic: "fse2021/200012345/garage/state",
			want:  Route{Kind: RouteMeasurement, Zone: "garage", Measurement: MeasurementActuatorEcho},
		},
		{name: "own command topic", topic: "fse2021/200012345/kitchen/command"},
		{name: "unknown kind", topic: "fse2021/200012345/kitchen/pressure"},
		{name: "invalid mac", topic: "fse2021/200012345/devices/not-a-mac"},
		{name: "mixed separators", topic: "fse2021/200012345/devices/AA:BB-CC:DD:EE:FF"},
		{name: "devices level is reserved", topic: "fse2021/200012345/devices/temperature"},
		{name: "other namespace", topic: "fse2021/999/kitchen/temperature"},
		{name: "namespace prefix only", topic: "fse2021/2000123456/kitchen/temperature"},
		{name: "extra level", topic: "fse2021/200012345/kitchen/temperature/extra"},
		{name: "missing level", topic: "fse2021/200012345/kitchen"},
		{name: "empty zone", topic: "fse2021/200012345//temperature"},
		{name: "wildcard", topic: "fse2021/200012345/+/temperature"},
		{name: "hash", topic: "fse2021/200012345/#"},
		{name: "empty", topic: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.topic))
		})
	}
}

func TestMatcher_TrailingSlashNamespace(t *testing.T) {
	m := NewMatcher(testNamespace + "/")
	got := m.Match("fse2021/200012345/kitchen/humidity")
	assert.Equal(t, RouteMeasurement, got.Kind)
}

func TestTopics(t *testing.T) {
	topics := NewTopics(testNamespace)

	assert.Equal(t, "fse2021/200012345/devices/AA:BB:CC:DD:EE:FF", topics.Announce("AA:BB:CC:DD:EE:FF"))
	assert.Equal(t, "fse2021/200012345/devices/+", topics.AllAnnouncements())
	assert.Equal(t, "fse2021/200012345/kitchen/+", topics.ZoneMeasurements("kitchen"))
	assert.Equal(t, "fse2021/200012345/kitchen/command", topics.Command("kitchen"))
	assert.Equal(t, "fse2021/200012345/kitchen/temperature", topics.Measurement("kitchen", MeasurementTemperature))
	assert.Equal(t, "fse2021/200012345/kitchen/state", topics.Measurement("kitchen", MeasurementActuatorEcho))
}

func TestTopics_RoundTripThroughMatcher(t *testing.T) {
	topics := NewTopics(testNamespace)
	m := NewMatcher(testNamespace)

	for _, kind := range []Measurement{MeasurementTemperature, MeasurementHumidity, MeasurementActuatorEcho} {
		route := m.Match(topics.Measurement("office", kind))
		assert.Equal(t, Route{Kind: RouteMeasurement, Zone: "office", Measurement: kind}, route)
	}

	route := m.Match(topics.Announce("01:23:45:67:89:AB"))
	assert.Equal(t, RouteAnnounce, route.Kind)
}

func TestValidateNamespace(t *testing.T) {
	valid := []string{"fse2021/200012345", "central"}
	invalid := []string{"", "  ", "a/+/b", "a/#", "/a", "a/", "a//b"}

	for _, ns := range valid {
		assert.NoError(t, ValidateNamespace(ns), ns)
	}
	for _, ns := range invalid {
		assert.ErrorIs(t, ValidateNamespace(ns), ErrInvalidNamespace, ns)
	}
}

func TestRouteKind_String(t *testing.T) {
	assert.Equal(t, "announce", RouteAnnounce.String())
	assert.Equal(t, "measurement", RouteMeasurement.String())
	assert.Equal(t, "unmatched", RouteUnmatched.String())
	assert.Equal(t, "temperature", MeasurementTemperature.String())
	assert.Equal(t, "state", MeasurementActuatorEcho.String())
}
