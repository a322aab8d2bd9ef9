package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/qrauth/qr-link-server/internal/audit"
	apperrors "github.com/qrauth/qr-link-server/internal/errors"
	"github.com/qrauth/qr-link-server/internal/middleware"
	"github.com/qrauth/qr-link-server/internal/service"
)

type QRHandler struct {
	pairingService *service.PairingService
}

func NewQRHandler(pairingService *service.PairingService) *QRHandler {
	return &QRHandler{
		pairingService: pairingService,
	}
}

// POST /qr/generate
//
// Unauthenticated: the caller is the not-yet-logged-in viewer. The returned
// session id is the capability for the notification channel.
func (h *QRHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceInfo string `json:"device_info"`
	}
	// body is optional; a missing or empty body means no device descriptor
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.pairingService.StartPairing(req.DeviceInfo)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventPairingCreate,
		SessionID: result.SessionID,
	})

	writeJSON(w, http.StatusOK, result)
}

// POST /qr/scan
func (h *QRHandler) Scan(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		writeError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.SessionID == "" {
		writeError(w, apperrors.MissingRequired("session_id"))
		return
	}

	result, err := h.pairingService.CompletePairing(r.Context(), account, req.SessionID)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:      audit.EventPairingRejected,
			AccountID: account.ID,
			SessionID: req.SessionID,
			Details:   map[string]interface{}{"reason": string(apperrors.GetCode(err))},
		})
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventPairingRedeem,
		AccountID: account.ID,
		DeviceID:  result.DeviceID,
		SessionID: req.SessionID,
	})

	writeJSON(w, http.StatusOK, result)
}

// GET /qr/{sessionID}/status
//
// Read-only lifecycle probe used by the viewer to drive its expiry countdown.
func (h *QRHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.pairingService.GetSession(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"status":     session.State(time.Now()),
		"expires_at": session.ExpiresAt,
	})
}
