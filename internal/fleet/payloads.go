package fleet

import (
	"encoding/json"
	"fmt"

	"github.com/FSE-2021-1/central-server/internal/device"
)

// StateEvent is the payload of the "state" event: active devices, then pending.
type StateEvent = device.State

// Registration is the register intent sent by a client.
// Input and Output are channel names, not channel objects.
type Registration struct {
	ID     string `json:"id"`
	Local  string `json:"local"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Validate checks that every field of the registration is usable.
func (r Registration) Validate() error {
	if err := device.ValidateID(r.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
	}
	if err := device.ValidateZone(r.Local); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
	}
	if err := device.ValidateChannel("input", r.Input); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
	}
	if err := device.ValidateChannel("output", r.Output); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
	}
	return nil
}

// Directive types sent on a device's announcement topic.
const (
	directiveRegister   = "register"
	directiveUnregister = "unregister"
)

// directive is published by the server on a device's announcement topic.
// It carries no "id" field, so the router drops it when it loops back.
type directive struct {
	Type  string `json:"type"`
	Local string `json:"local,omitempty"`
}

// outputCommand is published on a zone's command topic.
type outputCommand struct {
	Out float64 `json:"out"`
}

// reading is the body of a zone measurement message.
type reading struct {
	Value *float64 `json:"value"`
	In    *float64 `json:"in"`
}

// announcement is a decoded device announcement.
type announcement struct {
	ID    string
	Local string
	Extra map[string]any
}

// decodeAnnouncement parses an announcement payload. The payload must be a
// JSON object with a non-empty string "id"; an optional string "local"
// becomes the zone and every other field is kept in Extra.
func decodeAnnouncement(payload []byte) (announcement, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return announcement{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if fields == nil {
		return announcement{}, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}

	id, ok := fields["id"].(string)
	if !ok || id == "" {
		return announcement{}, fmt.Errorf("%w: missing string id", ErrMalformedPayload)
	}
	delete(fields, "id")

	a := announcement{ID: id}
	if local, ok := fields["local"].(string); ok {
		a.Local = local
		delete(fields, "local")
	}
	if len(fields) > 0 {
		a.Extra = fields
	}
	return a, nil
}

// decodeReading parses a measurement payload.
func decodeReading(payload []byte) (reading, error) {
	var r reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return reading{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return r, nil
}

// mustMarshal encodes the fixed directive and command shapes, which cannot fail.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("fleet: marshal %T: %v", v, err))
	}
	return data
}
