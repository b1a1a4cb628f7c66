package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-valves/internal/queue"
	"github.com/nerrad567/gray-logic-valves/internal/valve"
)

// PositionRequest is the body of PUT /valves/{id}/position.
type PositionRequest struct {
	Position *int `json:"position"`
}

// QueueResponse describes the actuation queue.
type QueueResponse struct {
	Depth        int             `json:"depth"`
	InFlight     bool            `json:"in_flight"`
	LastDispatch time.Time       `json:"last_dispatch"`
	Pending      []queue.Pending `json:"pending"`
}

// handleListValves returns the latest diagnostics of every valve.
func (s *Server) handleListValves(w http.ResponseWriter, _ *http.Request) {
	diags := s.valves.AllDiagnostics()
	writeJSON(w, http.StatusOK, map[string]any{
		"valves": diags,
		"count":  len(diags),
	})
}

// handleGetValve returns one valve's diagnostics. A registered valve that
// has not ticked yet reads its diagnostics directly.
func (s *Server) handleGetValve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.valves.Get(id)
	if err != nil {
		writeNotFound(w, "valve not found")
		return
	}
	d, ok := s.valves.Diagnostics(id)
	if !ok {
		d = c.Diagnostics()
	}
	writeJSON(w, http.StatusOK, d)
}

// handleSetPosition queues a manual position for a valve.
func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.valves.Get(id)
	if err != nil {
		writeNotFound(w, "valve not found")
		return
	}

	var req PositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Position == nil {
		writeBadRequest(w, "position is required")
		return
	}

	if err := c.SetManualPosition(r.Context(), *req.Position); err != nil {
		if errors.Is(err, valve.ErrInvalidPosition) {
			writeError(w, http.StatusUnprocessableEntity, "position must be between 0 and 100")
			return
		}
		writeInternalError(w, "queueing position failed")
		return
	}

	s.logger.Info("manual valve position queued", "valve", id, "position", *req.Position)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"valve":    id,
		"position": *req.Position,
		"status":   "queued",
	})
}

// handleQueue returns the pending actuation requests.
func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	pending := s.queue.Pending()
	writeJSON(w, http.StatusOK, QueueResponse{
		Depth:        len(pending),
		InFlight:     s.queue.InFlight(),
		LastDispatch: s.queue.LastDispatch().UTC(),
		Pending:      pending,
	})
}

// handleCalibration lists persisted controller state.
func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	if s.states == nil {
		writeUnavailable(w, "state store not configured")
		return
	}

	records, err := s.states.List(r.Context())
	if err != nil {
		s.logger.Error("listing valve state failed", "error", err)
		writeInternalError(w, "listing valve state failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}
