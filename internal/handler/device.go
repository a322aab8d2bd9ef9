package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qrauth/qr-link-server/internal/audit"
	apperrors "github.com/qrauth/qr-link-server/internal/errors"
	"github.com/qrauth/qr-link-server/internal/middleware"
	"github.com/qrauth/qr-link-server/internal/model"
	"github.com/qrauth/qr-link-server/internal/service"
)

type DeviceHandler struct {
	deviceService *service.DeviceService
}

func NewDeviceHandler(deviceService *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
	}
}

func (h *DeviceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Delete("/{deviceID}", h.Revoke)

	return r
}

// GET /devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		writeError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	links, err := h.deviceService.ListActive(r.Context(), account.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if links == nil {
		links = []model.DeviceLink{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": links})
}

// DELETE /devices/{deviceID}
func (h *DeviceHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		writeError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	deviceID := chi.URLParam(r, "deviceID")
	if deviceID == "" {
		writeError(w, apperrors.MissingRequired("deviceID"))
		return
	}

	if err := h.deviceService.Revoke(r.Context(), account.ID, deviceID); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventDeviceRevoke,
		AccountID: account.ID,
		DeviceID:  deviceID,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Device revoked"})
}
