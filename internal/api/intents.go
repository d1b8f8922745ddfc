package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/FSE-2021-1/central-server/internal/device"
	"github.com/FSE-2021-1/central-server/internal/fleet"
)

// intentTimeout bounds the work done for a single WebSocket intent.
const intentTimeout = 5 * time.Second

// outputPayload is the body of a push_output intent and of PUT /output.
type outputPayload struct {
	ID    string   `json:"id,omitempty"`
	Value *float64 `json:"value"`
}

// deletePayload is the body of a delete intent.
type deletePayload struct {
	ID string `json:"id"`
}

// handleIntent applies one client intent. Results go back to the issuing
// session as a response frame; failures as an error frame. request_state
// is answered by the state event alone.
func (s *Server) handleIntent(sess *Session, in WSIntent) {
	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()

	switch in.Type {
	case IntentRegister:
		var reg fleet.Registration
		if !decodeIntent(sess, in, &reg) {
			return
		}
		rec, err := s.commands.Register(ctx, reg)
		s.replyIntent(sess, in, rec, err)

	case IntentPushOutput:
		var p outputPayload
		if !decodeIntent(sess, in, &p) {
			return
		}
		if p.Value == nil {
			sess.sendError(in.ID, ErrCodeValidation, "value is required")
			return
		}
		rec, err := s.commands.PushOutputState(ctx, p.ID, *p.Value)
		s.replyIntent(sess, in, rec, err)

	case IntentDelete:
		var p deletePayload
		if !decodeIntent(sess, in, &p) {
			return
		}
		rec, err := s.commands.Delete(ctx, p.ID)
		s.replyIntent(sess, in, rec, err)

	case IntentRequestState:
		if err := s.commands.RequestState(ctx, sess.ID()); err != nil {
			s.logger.Warn("state request not delivered", "session_id", sess.ID(), "error", err)
		}

	case IntentMessage:
		s.commands.Relay(ctx, in.Payload)

	default:
		sess.sendError(in.ID, ErrCodeBadRequest, "unknown message type: "+in.Type)
	}
}

// decodeIntent unmarshals the intent payload into v, answering the
// session with an error frame on failure.
func decodeIntent(sess *Session, in WSIntent, v any) bool {
	if len(in.Payload) == 0 {
		sess.sendError(in.ID, ErrCodeBadRequest, "payload is required")
		return false
	}
	if err := json.Unmarshal(in.Payload, v); err != nil {
		sess.sendError(in.ID, ErrCodeBadRequest, "invalid payload")
		return false
	}
	return true
}

func (s *Server) replyIntent(sess *Session, in WSIntent, rec device.Record, err error) {
	if err != nil {
		code, msg := classifyError(err)
		if code == ErrCodeInternal {
			s.logger.Error("intent failed", "type", in.Type, "session_id", sess.ID(), "error", err)
		}
		sess.sendError(in.ID, code, msg)
		return
	}
	sess.sendResponse(in.ID, WSTypeResponse, rec)
}

// classifyError maps core errors to an error code and client message.
func classifyError(err error) (code, message string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return ErrCodeNotFound, "device not found"
	case errors.Is(err, fleet.ErrInvalidRegistration),
		errors.Is(err, device.ErrInvalidRecord),
		errors.Is(err, device.ErrInvalidID):
		return ErrCodeValidation, err.Error()
	default:
		return ErrCodeInternal, "internal server error"
	}
}
