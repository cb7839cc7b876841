package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/irbridge/core/internal/device"
	"github.com/irbridge/core/internal/remote"
)

// handleListRemotes returns all remotes, optionally filtered by device.
func (s *Server) handleListRemotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if deviceID := r.URL.Query().Get("device"); deviceID != "" {
		normalized, err := device.NormalizeMAC(deviceID)
		if err != nil {
			writeBadRequest(w, "invalid MAC address")
			return
		}
		remotes, err := s.remotes.ListByDevice(ctx, normalized)
		if err != nil {
			writeInternalError(w, "failed to list remotes")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"remotes": remotes, "count": len(remotes)})
		return
	}

	remotes, err := s.remotes.List(ctx)
	if err != nil {
		writeInternalError(w, "failed to list remotes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"remotes": remotes, "count": len(remotes)})
}

// handleGetRemote returns a single remote by name.
func (s *Server) handleGetRemote(w http.ResponseWriter, r *http.Request) {
	rem, err := s.remotes.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, remote.ErrRemoteNotFound) {
			writeNotFound(w, "remote not found")
			return
		}
		writeInternalError(w, "failed to get remote")
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

// handleCreateRemote creates a new remote bound to a device.
func (s *Server) handleCreateRemote(w http.ResponseWriter, r *http.Request) {
	var rem remote.Remote
	if err := json.NewDecoder(r.Body).Decode(&rem); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	normalized, err := device.NormalizeMAC(rem.DeviceID)
	if err != nil {
		writeBadRequest(w, "invalid device MAC address")
		return
	}
	rem.DeviceID = normalized

	// The bound device must exist; the schema enforces it too, but a
	// clean 400 beats a constraint error.
	if _, err := s.devices.GetByID(r.Context(), rem.DeviceID); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeBadRequest(w, "device is not registered")
			return
		}
		writeInternalError(w, "failed to resolve device")
		return
	}

	if err := s.remotes.Create(r.Context(), &rem); err != nil {
		writeRemoteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rem)
}

// handleUpdateRemote replaces a remote's definition. The name in the
// URL wins over any name in the body.
func (s *Server) handleUpdateRemote(w http.ResponseWriter, r *http.Request) {
	var rem remote.Remote
	if err := json.NewDecoder(r.Body).Decode(&rem); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	rem.Name = chi.URLParam(r, "name")

	if err := s.remotes.Update(r.Context(), &rem); err != nil {
		writeRemoteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rem)
}

// handleDeleteRemote removes a remote.
func (s *Server) handleDeleteRemote(w http.ResponseWriter, r *http.Request) {
	if err := s.remotes.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		if errors.Is(err, remote.ErrRemoteNotFound) {
			writeNotFound(w, "remote not found")
			return
		}
		writeInternalError(w, "failed to delete remote")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteButton removes a learned button from a remote. Buttons
// are added by READ commands, never over REST, so deletion is the only
// button mutation here.
func (s *Server) handleDeleteButton(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	button := chi.URLParam(r, "button")

	if err := s.remotes.RemoveButton(r.Context(), name, button); err != nil {
		switch {
		case errors.Is(err, remote.ErrRemoteNotFound):
			writeNotFound(w, "remote not found")
		case errors.Is(err, remote.ErrButtonNotFound):
			writeNotFound(w, "button not found")
		default:
			writeInternalError(w, "failed to remove button")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeRemoteError maps remote repository failures to HTTP responses.
func writeRemoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, remote.ErrRemoteNotFound):
		writeNotFound(w, "remote not found")
	case errors.Is(err, remote.ErrRemoteExists):
		writeConflict(w, "remote already exists")
	case errors.Is(err, remote.ErrInvalidButtonName),
		errors.Is(err, remote.ErrInvalidCommandSize),
		errors.Is(err, remote.ErrInvalidProtocol),
		errors.Is(err, remote.ErrCodeWidthMismatch),
		errors.Is(err, remote.ErrButtonExists):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, "failed to store remote")
	}
}
