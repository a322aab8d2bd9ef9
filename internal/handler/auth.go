package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/qrauth/qr-link-server/internal/audit"
	apperrors "github.com/qrauth/qr-link-server/internal/errors"
	"github.com/qrauth/qr-link-server/internal/middleware"
	"github.com/qrauth/qr-link-server/internal/service"
)

type AuthHandler struct {
	accountService *service.AccountService
}

func NewAuthHandler(accountService *service.AccountService) *AuthHandler {
	return &AuthHandler{
		accountService: accountService,
	}
}

// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	account, err := h.accountService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventRegister,
		AccountID: account.ID,
	})

	writeJSON(w, http.StatusOK, account.Public())
}

// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.Username == "" {
		writeError(w, apperrors.MissingRequired("username"))
		return
	}

	result, err := h.accountService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventLoginFailure,
			Details: map[string]interface{}{"username": req.Username},
		})
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventLoginSuccess,
		AccountID: result.User.ID,
	})

	writeJSON(w, http.StatusOK, result)
}

// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		log.Error().Msg("authenticated route reached without account in context")
		writeError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	writeJSON(w, http.StatusOK, account.Public())
}
