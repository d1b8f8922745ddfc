package fleet

import (
	"context"
	"time"
)

// Bus is the publish/subscribe transport connecting the server to devices.
// Implemented over *mqtt.Client in cmd/central.
type Bus interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
}

// Pusher delivers events to connected client sessions.
// Implementations must not block: slow sessions drop frames.
type Pusher interface {
	// Broadcast sends an event to every connected session.
	Broadcast(event string, payload any)

	// SendTo sends an event to a single session.
	SendTo(sessionID, event string, payload any) error
}

// MetricWriter receives numeric device readings for long-term storage.
type MetricWriter interface {
	WriteDeviceMetric(deviceID, measurement string, value float64)
}

// AuditRecorder records lifecycle actions. Implementations must not fail
// the caller; errors are theirs to log.
type AuditRecorder interface {
	Record(ctx context.Context, action, deviceID string, details map[string]any)
}

// Logger defines the logging interface used by fleet components.
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

// noopAudit discards audit records.
type noopAudit struct{}

func (noopAudit) Record(context.Context, string, string, map[string]any) {}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Audit actions.
const (
	ActionRegister = "register"
	ActionOutput   = "output"
	ActionDelete   = "delete"
	ActionEvict    = "evict"
)

// Client event names.
const (
	EventState      = "state"
	EventRegistered = "registered"
	EventMessage    = "message"
)
