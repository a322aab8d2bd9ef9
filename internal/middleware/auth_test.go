package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/qrauth/qr-link-server/internal/errors"
	"github.com/qrauth/qr-link-server/internal/model"
)

type mockVerifier struct {
	verifyFunc func(ctx context.Context, token string) (*model.Account, error)
}

func (m *mockVerifier) VerifyToken(ctx context.Context, token string) (*model.Account, error) {
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, token)
	}
	return nil, apperrors.TokenInvalid()
}

func testAccount() *model.Account {
	return &model.Account{
		ID:        "acct-1",
		Username:  "alice",
		Email:     "alice@example.com",
		IsActive:  true,
		CreatedAt: time.Now(),
	}
}

func runAuth(t *testing.T, verifier TokenVerifier, authHeader string) (*httptest.ResponseRecorder, *model.Account) {
	t.Helper()

	var seen *model.Account
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAccount(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()

	NewAuthMiddleware(verifier).Handler(next).ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("valid bearer token puts account in context", func(t *testing.T) {
		account := testAccount()
		verifier := &mockVerifier{
			verifyFunc: func(ctx context.Context, token string) (*model.Account, error) {
				require.Equal(t, "good-token", token)
				return account, nil
			},
		}

		rec, seen := runAuth(t, verifier, "Bearer good-token")
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, account.ID, seen.ID)
	})

	t.Run("missing header is 401", func(t *testing.T) {
		rec, seen := runAuth(t, &mockVerifier{}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, seen)
	})

	t.Run("non-bearer header is 401", func(t *testing.T) {
		rec, _ := runAuth(t, &mockVerifier{}, "Basic dXNlcjpwYXNz")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token is 401", func(t *testing.T) {
		verifier := &mockVerifier{
			verifyFunc: func(ctx context.Context, token string) (*model.Account, error) {
				return nil, apperrors.TokenInvalid()
			},
		}
		rec, _ := runAuth(t, verifier, "Bearer bad-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeTokenInvalid))
	})

	t.Run("expired token is 401 with TOKEN_EXPIRED", func(t *testing.T) {
		verifier := &mockVerifier{
			verifyFunc: func(ctx context.Context, token string) (*model.Account, error) {
				return nil, apperrors.TokenExpired()
			},
		}
		rec, _ := runAuth(t, verifier, "Bearer stale-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeTokenExpired))
	})
}

func TestGetAccount(t *testing.T) {
	t.Run("returns nil for bare context", func(t *testing.T) {
		assert.Nil(t, GetAccount(context.Background()))
	})
}
