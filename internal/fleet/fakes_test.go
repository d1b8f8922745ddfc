package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var errBusDown = errors.New("bus down")

type published struct {
	Topic   string
	Payload []byte
}

// fakeBus records every bus interaction.
type fakeBus struct {
	mu           sync.Mutex
	published    []published
	subscribed   []string
	unsubscribed []string
	handlers     map[string]func(string, []byte)
	err          error

	// onPublish, when set, runs after each publish is recorded.
	onPublish func(topic string)
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]func(string, []byte))}
}

func (b *fakeBus) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	b.published = append(b.published, published{Topic: topic, Payload: payload})
	hook, err := b.onPublish, b.err
	b.mu.Unlock()

	if hook != nil {
		hook(topic)
	}
	return err
}

func (b *fakeBus) Subscribe(topic string, handler func(string, []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = append(b.subscribed, topic)
	b.handlers[topic] = handler
	return b.err
}

func (b *fakeBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribed = append(b.unsubscribed, topic)
	delete(b.handlers, topic)
	return b.err
}

func (b *fakeBus) Published() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.published...)
}

// publishedJSON decodes the payload published at index i.
func (b *fakeBus) publishedJSON(i int) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(b.Published()[i].Payload, &m)
	return m
}

type pushed struct {
	Event   string
	Payload any
}

// fakePusher records broadcasts and targeted sends.
type fakePusher struct {
	mu         sync.Mutex
	broadcasts []pushed
	sent       map[string][]pushed
	sendErr    error
}

func newFakePusher() *fakePusher {
	return &fakePusher{sent: make(map[string][]pushed)}
}

func (p *fakePusher) Broadcast(event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasts = append(p.broadcasts, pushed{Event: event, Payload: payload})
}

func (p *fakePusher) SendTo(sessionID, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent[sessionID] = append(p.sent[sessionID], pushed{Event: event, Payload: payload})
	return nil
}

func (p *fakePusher) Broadcasts() []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushed(nil), p.broadcasts...)
}

// countEvent returns how many broadcasts carried event.
func (p *fakePusher) countEvent(event string) int {
	n := 0
	for _, b := range p.Broadcasts() {
		if b.Event == event {
			n++
		}
	}
	return n
}

type auditEntry struct {
	Action   string
	DeviceID string
	Details  map[string]any
}

// fakeAudit records audit entries.
type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *fakeAudit) Record(_ context.Context, action, deviceID string, details map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{Action: action, DeviceID: deviceID, Details: details})
}

func (a *fakeAudit) Entries() []auditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]auditEntry(nil), a.entries...)
}

type metricPoint struct {
	DeviceID    string
	Measurement string
	Value       float64
}

// fakeMetrics records device metrics.
type fakeMetrics struct {
	mu     sync.Mutex
	points []metricPoint
}

func (m *fakeMetrics) WriteDeviceMetric(deviceID, measurement string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, metricPoint{deviceID, measurement, value})
}

// fixedClock returns a clock stuck at t.
func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

const testNamespace = "fse2021/200012345"

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
