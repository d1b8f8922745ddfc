package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FSE-2021-1/central-server/internal/device"
)

type commandsFixture struct {
	reg      *device.Registry
	bus      *fakeBus
	pusher   *fakePusher
	audit    *fakeAudit
	zones    *ZoneSubscriptions
	commands *Commands
	topics   Topics
}

func newCommandsFixture(t *testing.T, shared bool) *commandsFixture {
	t.Helper()

	f := &commandsFixture{
		reg:    device.NewRegistry(),
		bus:    newFakeBus(),
		pusher: newFakePusher(),
		audit:  &fakeAudit{},
		topics: NewTopics(testNamespace),
	}
	f.zones = NewZoneSubscriptions(f.bus, f.topics, func(string, []byte) {}, shared)
	NewBroadcaster(f.pusher).Attach(f.reg)

	f.commands = NewCommands(CommandsConfig{
		Registry: f.reg,
		Bus:      f.bus,
		Pusher:   f.pusher,
		Zones:    f.zones,
		Topics:   f.topics,
		Audit:    f.audit,
	})
	return f
}

var kitchenLamp = Registration{ID: macKitchen, Local: "kitchen", Input: "lamp", Output: "switch"}

func TestCommands_Register(t *testing.T) {
	f := newCommandsFixture(t, false)

	rec, err := f.commands.Register(context.Background(), kitchenLamp)
	require.NoError(t, err)

	want := device.NewActive(macKitchen, "kitchen", "lamp", "switch")
	assert.Equal(t, want, rec)

	stored, ok := f.reg.Get(macKitchen)
	require.True(t, ok)
	assert.False(t, stored.IsPending)
	assert.Nil(t, stored.LastSeenAt)
	assert.Nil(t, stored.Temperature)

	assert.Equal(t, 1, f.pusher.countEvent(EventRegistered))
	assert.Equal(t, 1, f.pusher.countEvent(EventState))

	pubs := f.bus.Published()
	require.Len(t, pubs, 1)
	assert.Equal(t, "fse2021/200012345/devices/AA:BB:CC:DD:EE:01", pubs[0].Topic)
	assert.JSONEq(t, `{"type":"register","local":"kitchen"}`, string(pubs[0].Payload))

	assert.Equal(t, []string{"fse2021/200012345/kitchen/+"}, f.bus.subscribed)

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionRegister, entries[0].Action)
	assert.Equal(t, macKitchen, entries[0].DeviceID)
}

func TestCommands_RegisterPromotesPending(t *testing.T) {
	f := newCommandsFixture(t, false)
	require.NoError(t, f.reg.Set(macKitchen, device.NewPending(macKitchen, testNow)))

	_, err := f.commands.Register(context.Background(), kitchenLamp)
	require.NoError(t, err)

	rec, _ := f.reg.Get(macKitchen)
	assert.False(t, rec.IsPending)
	assert.Nil(t, rec.LastSeenAt)
}

func TestCommands_RegisterInvalid(t *testing.T) {
	tests := []struct {
		name string
		reg  Registration
	}{
		{"missing id", Registration{Local: "kitchen", Input: "a", Output: "b"}},
		{"missing local", Registration{ID: macKitchen, Input: "a", Output: "b"}},
		{"missing input", Registration{ID: macKitchen, Local: "kitchen", Output: "b"}},
		{"missing output", Registration{ID: macKitchen, Local: "kitchen", Input: "a"}},
		{"wildcard zone", Registration{ID: macKitchen, Local: "+", Input: "a", Output: "b"}},
		{"slash in id", Registration{ID: "a/b", Local: "kitchen", Input: "a", Output: "b"}},
		{"blank input", Registration{ID: macKitchen, Local: "kitchen", Input: " ", Output: "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCommandsFixture(t, false)

			_, err := f.commands.Register(context.Background(), tt.reg)
			assert.ErrorIs(t, err, ErrInvalidRegistration)
			assert.Zero(t, f.reg.Len())
			assert.Empty(t, f.pusher.Broadcasts())
			assert.Empty(t, f.bus.Published())
		})
	}
}

func TestCommands_RegisterMovesZone(t *testing.T) {
	f := newCommandsFixture(t, true)

	_, err := f.commands.Register(context.Background(), kitchenLamp)
	require.NoError(t, err)

	moved := kitchenLamp
	moved.Local = "office"
	_, err = f.commands.Register(context.Background(), moved)
	require.NoError(t, err)

	assert.Equal(t, []string{"fse2021/200012345/kitchen/+"}, f.bus.unsubscribed)
	assert.Equal(t, []string{"office"}, f.zones.Zones())
}

func TestCommands_RegisterSurvivesBusFailure(t *testing.T) {
	f := newCommandsFixture(t, false)
	f.bus.err = errBusDown

	_, err := f.commands.Register(context.Background(), kitchenLamp)
	require.NoError(t, err)
	assert.True(t, f.reg.Has(macKitchen), "transport failures never roll back")
}

func TestCommands_RequestState(t *testing.T) {
	f := newCommandsFixture(t, false)
	require.NoError(t, f.reg.Set(macKitchen, device.NewActive(macKitchen, "kitchen", "lamp", "switch")))
	require.NoError(t, f.reg.Set(macGarage, device.NewPending(macGarage, testNow)))
	before := len(f.pusher.Broadcasts())

	require.NoError(t, f.commands.RequestState(context.Background(), "session-1"))

	sent := f.pusher.sent["session-1"]
	require.Len(t, sent, 1)
	assert.Equal(t, EventState, sent[0].Event)

	state, ok := sent[0].Payload.(StateEvent)
	require.True(t, ok)
	require.Len(t, state.Active, 1)
	require.Len(t, state.Pending, 1)
	assert.Equal(t, macKitchen, state.Active[0].ID)
	assert.Equal(t, macGarage, state.Pending[0].ID)

	assert.Len(t, f.pusher.Broadcasts(), before, "state requests are not broadcast")
}

func TestCommands_RequestStateSendError(t *testing.T) {
	f := newCommandsFixture(t, false)
	f.pusher.sendErr = errors.New("session gone")

	assert.Error(t, f.commands.RequestState(context.Background(), "ghost"))
}

func TestCommands_PushOutputState(t *testing.T) {
	f := newCommandsFixture(t, false)
	_, err := f.commands.Register(context.Background(), kitchenLamp)
	require.NoError(t, err)
	f.bus.published = nil

	rec, err := f.commands.PushOutputState(context.Background(), macKitchen, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.Output.Value)

	stored, _ := f.reg.Get(macKitchen)
	assert.Equal(t, 1.0, stored.Output.Value)

	pubs := f.bus.Published()
	require.Len(t, pubs, 1)
	assert.Equal(t, "fse2021/200012345/kitchen/command", pubs[0].Topic)
	assert.JSONEq(t, `{"out":1}`, string(pubs[0].Payload))

	entries := f.audit.Entries()
	assert.Equal(t, ActionOutput, entries[len(entries)-1].Action)
}

func TestCommands_PushOutputStateUnknown(t *testing.T) {
	f := newCommandsFixture(t, false)

	_, err := f.commands.PushOutputState(context.Background(), "X", 1)
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)

	assert.Zero(t, f.reg.Len())
	assert.Empty(t, f.pusher.Broadcasts())
	assert.Empty(t, f.bus.Published())
	assert.Empty(t, f.audit.Entries())
}

func TestCommands_PushOutputStateWithoutZone(t *testing.T) {
	f := newCommandsFixture(t, false)
	require.NoError(t, f.reg.Set(macGarage, device.NewPending(macGarage, testNow)))

	rec, err := f.commands.PushOutputState(context.Background(), macGarage, 3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, rec.Output.Value)
	assert.Empty(t, f.bus.Published())
}

func TestCommands_Delete(t *testing.T) {
	f := newCommandsFixture(t, false)
	_, err := f.commands.Register(context.Background(), kitchenLamp)
	require.NoError(t, err)
	f.bus.published = nil

	rec, err := f.commands.Delete(context.Background(), macKitchen)
	require.NoError(t, err)
	assert.True(t, rec.IsPending)

	stored, ok := f.reg.Get(macKitchen)
	require.True(t, ok, "delete is soft until the sweep evicts")
	assert.True(t, stored.IsPending)

	assert.Equal(t, []string{"fse2021/200012345/kitchen/+"}, f.bus.unsubscribed)
	pubs := f.bus.Published()
	require.Len(t, pubs, 1)
	assert.Equal(t, "fse2021/200012345/devices/AA:BB:CC:DD:EE:01", pubs[0].Topic)
	assert.Equal(t, map[string]any{"type": "unregister"}, f.bus.publishedJSON(0))

	entries := f.audit.Entries()
	assert.Equal(t, ActionDelete, entries[len(entries)-1].Action)
}

func TestCommands_DeleteUnknown(t *testing.T) {
	f := newCommandsFixture(t, false)

	_, err := f.commands.Delete(context.Background(), "X")
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
	assert.Empty(t, f.bus.Published())
	assert.Empty(t, f.bus.unsubscribed)
	assert.Empty(t, f.pusher.Broadcasts())
}

func TestCommands_DeleteSharedZoneKeepsNeighbours(t *testing.T) {
	f := newCommandsFixture(t, true)
	ctx := context.Background()

	_, err := f.commands.Register(ctx, kitchenLamp)
	require.NoError(t, err)
	_, err = f.commands.Register(ctx, Registration{ID: macKitchen2, Local: "kitchen", Input: "fan", Output: "relay"})
	require.NoError(t, err)

	_, err = f.commands.Delete(ctx, macKitchen)
	require.NoError(t, err)
	assert.Empty(t, f.bus.unsubscribed, "zone stays subscribed for the other device")

	_, err = f.commands.Delete(ctx, macKitchen2)
	require.NoError(t, err)
	assert.Equal(t, []string{"fse2021/200012345/kitchen/+"}, f.bus.unsubscribed)
}

func TestCommands_Relay(t *testing.T) {
	f := newCommandsFixture(t, false)

	f.commands.Relay(context.Background(), json.RawMessage(`{"text":"hi"}`))

	b := f.pusher.Broadcasts()
	require.Len(t, b, 1)
	assert.Equal(t, EventMessage, b[0].Event)
	assert.Equal(t, json.RawMessage(`{"text":"hi"}`), b[0].Payload)
}
