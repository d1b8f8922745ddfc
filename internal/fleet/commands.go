package fleet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FSE-2021-1/central-server/internal/device"
)

// CommandsConfig holds the collaborators of the client command handler.
type CommandsConfig struct {
	Registry *device.Registry
	Bus      Bus
	Pusher   Pusher
	Zones    *ZoneSubscriptions
	Topics   Topics

	// Audit defaults to a recorder that discards everything.
	Audit  AuditRecorder
	Logger Logger
}

// Commands applies client intents to the registry and mirrors them on the bus.
//
// Bus failures are logged and never undo the registry change: devices
// converge by re-announcing themselves.
type Commands struct {
	registry *device.Registry
	bus      Bus
	pusher   Pusher
	zones    *ZoneSubscriptions
	topics   Topics
	audit    AuditRecorder
	logger   Logger
}

// NewCommands creates the command handler.
func NewCommands(cfg CommandsConfig) *Commands {
	c := &Commands{
		registry: cfg.Registry,
		bus:      cfg.Bus,
		pusher:   cfg.Pusher,
		zones:    cfg.Zones,
		topics:   cfg.Topics,
		audit:    cfg.Audit,
		logger:   cfg.Logger,
	}
	if c.audit == nil {
		c.audit = noopAudit{}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c
}

// SetPusher sets the session pusher. The WebSocket hub is built after the
// command handler, so it is attached late.
func (c *Commands) SetPusher(p Pusher) {
	c.pusher = p
}

// Register stores an active record for reg, announces it to all clients,
// tells the device its zone and starts listening to that zone.
func (c *Commands) Register(ctx context.Context, reg Registration) (device.Record, error) {
	if err := reg.Validate(); err != nil {
		return device.Record{}, err
	}

	// A re-registration into another zone gives up the old zone first.
	if prev, ok := c.registry.Get(reg.ID); ok && !prev.IsPending && prev.Local != "" && prev.Local != reg.Local {
		c.releaseZone(prev)
	}

	rec := device.NewActive(reg.ID, reg.Local, reg.Input, reg.Output)
	if err := c.registry.Set(reg.ID, rec); err != nil {
		return device.Record{}, fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
	}

	if c.pusher != nil {
		c.pusher.Broadcast(EventRegistered, rec)
	}

	c.publish(c.topics.Announce(reg.ID), directive{Type: directiveRegister, Local: reg.Local})

	if c.zones != nil {
		// Acquire logs its own failures.
		_ = c.zones.Acquire(reg.Local, reg.ID)
	}

	c.logger.Info("device registered", "id", reg.ID, "local", reg.Local)
	c.audit.Record(ctx, ActionRegister, reg.ID, map[string]any{
		"local":  reg.Local,
		"input":  reg.Input,
		"output": reg.Output,
	})
	return rec, nil
}

// State returns the current partitioned state.
func (c *Commands) State() StateEvent {
	return c.registry.Snapshot()
}

// RequestState sends the current state to one session only.
func (c *Commands) RequestState(_ context.Context, sessionID string) error {
	if c.pusher == nil {
		return nil
	}
	return c.pusher.SendTo(sessionID, EventState, c.State())
}

// PushOutputState sets the output channel value of device id and sends it
// to the device's zone command topic.
//
// Returns device.ErrDeviceNotFound, with no other effect, for unknown ids.
func (c *Commands) PushOutputState(ctx context.Context, id string, value float64) (device.Record, error) {
	rec, err := c.registry.Update(id, func(r *device.Record) {
		r.Output.Value = value
	})
	if err != nil {
		return device.Record{}, err
	}

	if rec.Local == "" {
		c.logger.Warn("output not published: device has no zone", "id", id)
	} else {
		c.publish(c.topics.Command(rec.Local), outputCommand{Out: value})
	}

	c.logger.Debug("output pushed", "id", id, "value", value)
	c.audit.Record(ctx, ActionOutput, id, map[string]any{"value": value})
	return rec, nil
}

// Delete soft-deletes device id: its zone subscription is released, the
// device is told to unregister and the record is marked pending. The
// liveness sweep evicts it later.
//
// Returns device.ErrDeviceNotFound for unknown ids.
func (c *Commands) Delete(ctx context.Context, id string) (device.Record, error) {
	prev, ok := c.registry.Get(id)
	if !ok {
		return device.Record{}, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}

	c.releaseZone(prev)
	c.publish(c.topics.Announce(id), directive{Type: directiveUnregister})

	rec, err := c.registry.Update(id, func(r *device.Record) {
		r.IsPending = true
	})
	if err != nil {
		// Evicted between Get and Update.
		return device.Record{}, err
	}

	c.logger.Info("device deleted", "id", id, "local", rec.Local)
	c.audit.Record(ctx, ActionDelete, id, map[string]any{"local": rec.Local})
	return rec, nil
}

// Relay rebroadcasts a free-form client message to every session.
func (c *Commands) Relay(_ context.Context, data json.RawMessage) {
	if c.pusher == nil {
		return
	}
	c.pusher.Broadcast(EventMessage, data)
}

// releaseZone gives up rec's zone subscription if it has one.
func (c *Commands) releaseZone(rec device.Record) {
	if c.zones == nil || rec.Local == "" {
		return
	}
	// Release logs its own failures.
	_ = c.zones.Release(rec.Local, rec.ID)
}

// publish sends v as JSON on topic, logging transport failures.
func (c *Commands) publish(topic string, v any) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(topic, mustMarshal(v)); err != nil {
		c.logger.Warn("bus publish failed", "topic", topic, "error", err)
	}
}
