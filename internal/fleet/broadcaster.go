package fleet

import (
	"sync"
	"sync/atomic"

	"github.com/FSE-2021-1/central-server/internal/device"
)

// Broadcaster pushes the partitioned registry state to every session after
// each registry change.
//
// Publishing is serialised so the last frame a session receives always
// reflects the latest committed state, even when mutations race.
type Broadcaster struct {
	pusher Pusher

	mu       sync.Mutex
	registry *device.Registry

	sent atomic.Uint64
}

// NewBroadcaster creates a broadcaster delivering through pusher.
func NewBroadcaster(pusher Pusher) *Broadcaster {
	return &Broadcaster{pusher: pusher}
}

// Attach installs the broadcaster as reg's change listener.
func (b *Broadcaster) Attach(reg *device.Registry) {
	b.mu.Lock()
	b.registry = reg
	b.mu.Unlock()

	reg.SetChangeCallback(b.Publish)
}

// Publish broadcasts the current state. It is the registry change callback.
func (b *Broadcaster) Publish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.registry == nil || b.pusher == nil {
		return
	}
	b.pusher.Broadcast(EventState, b.registry.Snapshot())
	b.sent.Add(1)
}

// Sent returns the number of state broadcasts so far.
func (b *Broadcaster) Sent() uint64 {
	return b.sent.Load()
}
