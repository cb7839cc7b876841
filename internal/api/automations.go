package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/irbridge/core/internal/automation"
)

// handleListAutomations returns all automations.
func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	automations, err := s.automations.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list automations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"automations": automations, "count": len(automations)})
}

// handleGetAutomation returns a single automation by ID.
func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	auto, err := s.automations.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, automation.ErrAutomationNotFound) {
			writeNotFound(w, "automation not found")
			return
		}
		writeInternalError(w, "failed to get automation")
		return
	}
	writeJSON(w, http.StatusOK, auto)
}

// handleCreateAutomation creates a new automation. The repository
// assigns the ID and derives the step count.
func (s *Server) handleCreateAutomation(w http.ResponseWriter, r *http.Request) {
	var auto automation.Automation
	if err := json.NewDecoder(r.Body).Decode(&auto); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.automations.Create(r.Context(), &auto); err != nil {
		writeAutomationError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, auto)
}

// handleUpdateAutomation replaces an automation's definition. The ID in
// the URL wins over any ID in the body.
func (s *Server) handleUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	var auto automation.Automation
	if err := json.NewDecoder(r.Body).Decode(&auto); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	auto.ID = chi.URLParam(r, "id")

	if err := s.automations.Update(r.Context(), &auto); err != nil {
		writeAutomationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, auto)
}

// handleDeleteAutomation removes an automation.
func (s *Server) handleDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	if err := s.automations.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, automation.ErrAutomationNotFound) {
			writeNotFound(w, "automation not found")
			return
		}
		writeInternalError(w, "failed to delete automation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTriggerAutomation fires the automation's next step immediately,
// outside its schedule. Useful when commissioning a sequence.
func (s *Server) handleTriggerAutomation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Trigger treats an unknown ID as a no-op, so resolve it first to
	// give the caller a proper 404.
	auto, err := s.automations.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrAutomationNotFound) {
			writeNotFound(w, "automation not found")
			return
		}
		writeInternalError(w, "failed to get automation")
		return
	}

	if err := s.engine.Trigger(r.Context(), auto.ID); err != nil {
		writeInternalError(w, "failed to trigger automation")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"triggered": auto.ID})
}

// writeAutomationError maps automation repository failures to HTTP responses.
func writeAutomationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, automation.ErrAutomationNotFound):
		writeNotFound(w, "automation not found")
	case errors.Is(err, automation.ErrAutomationExists):
		writeConflict(w, "automation already exists")
	case errors.Is(err, automation.ErrInvalidName),
		errors.Is(err, automation.ErrInvalidSchedule),
		errors.Is(err, automation.ErrNoSteps):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, "failed to store automation")
	}
}
