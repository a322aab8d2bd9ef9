package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/qrauth/qr-link-server/internal/audit"
	apperrors "github.com/qrauth/qr-link-server/internal/errors"
	"github.com/qrauth/qr-link-server/internal/httputil"
	"github.com/qrauth/qr-link-server/internal/model"
)

type contextKey string

const AccountContextKey contextKey = "account"

func GetAccount(ctx context.Context) *model.Account {
	if account, ok := ctx.Value(AccountContextKey).(*model.Account); ok {
		return account
	}
	return nil
}

// TokenVerifier resolves a bearer token to the account it asserts.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*model.Account, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		account, err := m.verifier.VerifyToken(r.Context(), token)
		if err != nil {
			log.Warn().Str("code", string(apperrors.GetCode(err))).Msg("auth middleware: token rejected")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"code": string(apperrors.GetCode(err))},
			})
			httputil.WriteError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), AccountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
