package audit

import (
	"context"
	"time"

	"github.com/FSE-2021-1/central-server/internal/fleet"
)

// writeTimeout bounds a single audit insert.
const writeTimeout = 2 * time.Second

// Logger defines the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder adapts a Repository to fleet.AuditRecorder. Write failures
// are logged and never reach the caller.
type Recorder struct {
	repo   Repository
	logger Logger
	now    func() time.Time
}

var _ fleet.AuditRecorder = (*Recorder)(nil)

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for write failures.
func (r *Recorder) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Record stores one lifecycle entry. Evictions are attributed to the
// liveness monitor, everything else to a client.
func (r *Recorder) Record(ctx context.Context, action, deviceID string, details map[string]any) {
	source := SourceClient
	if action == fleet.ActionEvict {
		source = SourceMonitor
	}

	// The entry outlives a cancelled request or a stopping monitor.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	err := r.repo.Create(ctx, &AuditLog{
		Action:     action,
		EntityType: EntityDevice,
		EntityID:   deviceID,
		Source:     source,
		Details:    details,
		CreatedAt:  r.now(),
	})
	if err != nil {
		r.logger.Warn("audit write failed", "action", action, "device_id", deviceID, "error", err)
	}
}
