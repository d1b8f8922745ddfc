package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneSubscriptions_Exclusive(t *testing.T) {
	bus := newFakeBus()
	z := NewZoneSubscriptions(bus, NewTopics(testNamespace), func(string, []byte) {}, false)

	require.NoError(t, z.Acquire("kitchen", "a"))
	require.NoError(t, z.Acquire("kitchen", "b"))
	assert.Len(t, bus.subscribed, 2, "every acquire subscribes")

	require.NoError(t, z.Release("kitchen", "a"))
	assert.Equal(t, []string{"fse2021/200012345/kitchen/+"}, bus.unsubscribed)
	assert.Empty(t, z.Zones(), "release drops the whole zone")
	assert.False(t, z.Shared())
}

func TestZoneSubscriptions_Shared(t *testing.T) {
	bus := newFakeBus()
	z := NewZoneSubscriptions(bus, NewTopics(testNamespace), func(string, []byte) {}, true)

	require.NoError(t, z.Acquire("kitchen", "a"))
	require.NoError(t, z.Acquire("kitchen", "b"))
	require.NoError(t, z.Acquire("kitchen", "a"))
	require.NoError(t, z.Acquire("garage", "c"))
	assert.Equal(t, []string{
		"fse2021/200012345/kitchen/+",
		"fse2021/200012345/garage/+",
	}, bus.subscribed)
	assert.Equal(t, []string{"garage", "kitchen"}, z.Zones())

	require.NoError(t, z.Release("kitchen", "a"))
	require.NoError(t, z.Release("kitchen", "a"))
	require.NoError(t, z.Release("kitchen", "unknown"))
	assert.Empty(t, bus.unsubscribed)

	require.NoError(t, z.Release("kitchen", "b"))
	assert.Equal(t, []string{"fse2021/200012345/kitchen/+"}, bus.unsubscribed)
	assert.Equal(t, []string{"garage"}, z.Zones())
}

func TestZoneSubscriptions_HandlerReceivesMessages(t *testing.T) {
	bus := newFakeBus()
	var got []string
	z := NewZoneSubscriptions(bus, NewTopics(testNamespace), func(topic string, _ []byte) {
		got = append(got, topic)
	}, true)

	require.NoError(t, z.Acquire("kitchen", "a"))
	bus.handlers["fse2021/200012345/kitchen/+"]("fse2021/200012345/kitchen/temperature", []byte(`{"value":1}`))

	assert.Equal(t, []string{"fse2021/200012345/kitchen/temperature"}, got)
}

func TestZoneSubscriptions_BusError(t *testing.T) {
	bus := newFakeBus()
	bus.err = errBusDown
	z := NewZoneSubscriptions(bus, NewTopics(testNamespace), func(string, []byte) {}, true)

	assert.ErrorIs(t, z.Acquire("kitchen", "a"), errBusDown)
	assert.Equal(t, []string{"kitchen"}, z.Zones(), "bookkeeping survives transport errors")
}
