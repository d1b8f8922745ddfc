package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FSE-2021-1/central-server/internal/fleet"
)

// handleListDevices returns the current partition: active devices, then pending.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

// handleDeviceStats returns registry counts.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStats())
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, ErrCodeNotFound, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRegisterDevice is the REST form of the register intent.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var reg fleet.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	rec, err := s.commands.Register(r.Context(), reg)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handlePushOutput is the REST form of the push_output intent.
func (s *Server) handlePushOutput(w http.ResponseWriter, r *http.Request) {
	var body outputPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Value == nil {
		writeError(w, ErrCodeValidation, "value is required")
		return
	}

	rec, err := s.commands.PushOutputState(r.Context(), chi.URLParam(r, "id"), *body.Value)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteDevice is the REST form of the delete intent. The record is
// marked pending and removed later by the liveness sweep, hence 202.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	rec, err := s.commands.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

// handleListZones returns the device ids in each zone.
func (s *Server) handleListZones(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()
	zones := make(map[string][]string, len(stats.ByZone))
	for zone := range stats.ByZone {
		zones[zone] = s.registry.ZoneMembers(zone)
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones, "count": len(zones)})
}

func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := classifyError(err)
	if code == ErrCodeInternal {
		s.logger.Error("command failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, code, msg)
}
