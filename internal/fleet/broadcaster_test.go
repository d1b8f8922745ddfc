package fleet

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FSE-2021-1/central-server/internal/device"
)

func TestBroadcaster_OneStatePerMutation(t *testing.T) {
	reg := device.NewRegistry()
	pusher := newFakePusher()
	b := NewBroadcaster(pusher)
	b.Attach(reg)

	require.NoError(t, reg.Set(macKitchen, device.NewActive(macKitchen, "kitchen", "lamp", "switch")))
	_, err := reg.Update(macKitchen, func(r *device.Record) { r.Output.Value = 1 })
	require.NoError(t, err)
	reg.Delete(macKitchen)

	casts := pusher.Broadcasts()
	require.Len(t, casts, 3)
	assert.Equal(t, uint64(3), b.Sent())

	// Each frame carries the post-mutation state.
	first := casts[0].Payload.(StateEvent)
	require.Len(t, first.Active, 1)
	assert.Zero(t, first.Active[0].Output.Value)

	second := casts[1].Payload.(StateEvent)
	assert.Equal(t, 1.0, second.Active[0].Output.Value)

	third := casts[2].Payload.(StateEvent)
	assert.Empty(t, third.Active)
	assert.Empty(t, third.Pending)
}

func TestBroadcaster_LastFrameIsLatestState(t *testing.T) {
	reg := device.NewRegistry()
	pusher := newFakePusher()
	NewBroadcaster(pusher).Attach(reg)
	require.NoError(t, reg.Set(macKitchen, device.NewActive(macKitchen, "kitchen", "lamp", "switch")))

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			_, _ = reg.Update(macKitchen, func(r *device.Record) { r.Output.Value = v })
		}(float64(i))
	}
	wg.Wait()

	casts := pusher.Broadcasts()
	require.Len(t, casts, 51)

	final, _ := reg.Get(macKitchen)
	last := casts[len(casts)-1].Payload.(StateEvent)
	assert.Equal(t, final.Output.Value, last.Active[0].Output.Value)
}

func TestBroadcaster_NotAttached(t *testing.T) {
	pusher := newFakePusher()
	NewBroadcaster(pusher).Publish()
	assert.Empty(t, pusher.Broadcasts())
}

func TestStateEvent_Golden(t *testing.T) {
	reg := device.NewRegistry()
	pusher := newFakePusher()
	NewBroadcaster(pusher).Attach(reg)

	require.NoError(t, reg.Set(macKitchen, device.NewActive(macKitchen, "kitchen", "lamp", "switch")))
	_, err := reg.Update(macKitchen, func(r *device.Record) {
		r.Input.Value = 1
		r.Temperature = device.Float(21.5)
	})
	require.NoError(t, err)

	pending := device.NewPending(macKitchen2, testNow)
	pending.Extra = map[string]any{"fw": "1.0"}
	require.NoError(t, reg.Set(macKitchen2, pending))

	casts := pusher.Broadcasts()
	require.NotEmpty(t, casts)
	data, err := json.MarshalIndent(casts[len(casts)-1].Payload, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "state_event", append(data, '\n'))
}
