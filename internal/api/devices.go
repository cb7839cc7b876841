package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/irbridge/core/internal/device"
)

// createDeviceRequest is the request body for POST /devices. The
// pairing secret is the provisioning token flashed onto the bridge; it
// is hashed before it touches the store and never returned.
type createDeviceRequest struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	SortOrder     int    `json:"sort_order"`
	PairingSecret string `json:"pairing_secret"`
}

// updateDeviceRequest is the request body for PATCH /devices/{id}.
type updateDeviceRequest struct {
	DisplayName *string `json:"display_name"`
	SortOrder   *int    `json:"sort_order"`
}

// handleListDevices returns all devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by MAC address.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.getDevice(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice registers a new bridge device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.PairingSecret == "" {
		writeBadRequest(w, "pairing_secret is required")
		return
	}

	hash, err := device.HashPairingSecret(req.PairingSecret)
	if err != nil {
		writeInternalError(w, "failed to hash pairing secret")
		return
	}

	dev := &device.Device{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		SortOrder:   req.SortOrder,
		PairingHash: hash,
	}
	if err := s.devices.Create(r.Context(), dev); err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidMAC):
			writeBadRequest(w, "invalid MAC address")
		case errors.Is(err, device.ErrDeviceExists):
			writeConflict(w, "device already registered")
		default:
			writeInternalError(w, "failed to create device")
		}
		return
	}

	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice applies a partial update to a device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.getDevice(w, r)
	if err != nil {
		return
	}

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DisplayName != nil {
		dev.DisplayName = *req.DisplayName
	}
	if req.SortOrder != nil {
		dev.SortOrder = *req.SortOrder
	}

	if err := s.devices.Update(r.Context(), dev); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to update device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device and, via the schema's cascade,
// its remotes.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := device.NormalizeMAC(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid MAC address")
		return
	}

	if err := s.devices.Delete(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListDeviceRemotes returns the remotes bound to a device.
func (s *Server) handleListDeviceRemotes(w http.ResponseWriter, r *http.Request) {
	dev, err := s.getDevice(w, r)
	if err != nil {
		return
	}

	remotes, err := s.remotes.ListByDevice(r.Context(), dev.ID)
	if err != nil {
		writeInternalError(w, "failed to list remotes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"remotes": remotes, "count": len(remotes)})
}

// getDevice resolves the {id} URL parameter to a device, writing the
// error response itself on failure.
func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) (*device.Device, error) {
	id, err := device.NormalizeMAC(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid MAC address")
		return nil, err
	}

	dev, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
		} else {
			writeInternalError(w, "failed to get device")
		}
		return nil, err
	}
	return dev, nil
}
