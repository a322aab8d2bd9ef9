package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/qrauth/qr-link-server/internal/model"
	"github.com/qrauth/qr-link-server/internal/repository"
	"github.com/qrauth/qr-link-server/internal/service"
)

type mockDeviceRepo struct {
	mock.Mock
}

func (m *mockDeviceRepo) FindByDeviceID(ctx context.Context, accountID, deviceID string) (*model.DeviceLink, error) {
	args := m.Called(ctx, accountID, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeviceLink), args.Error(1)
}

func (m *mockDeviceRepo) FindActiveByAccountID(ctx context.Context, accountID string) ([]model.DeviceLink, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DeviceLink), args.Error(1)
}

func (m *mockDeviceRepo) Create(ctx context.Context, params model.CreateDeviceLinkParams) (*model.DeviceLink, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeviceLink), args.Error(1)
}

func (m *mockDeviceRepo) Deactivate(ctx context.Context, accountID, deviceID string) error {
	args := m.Called(ctx, accountID, deviceID)
	return args.Error(0)
}

func (m *mockDeviceRepo) TouchLastActive(ctx context.Context, deviceID string) error {
	args := m.Called(ctx, deviceID)
	return args.Error(0)
}

func (m *mockDeviceRepo) WithTx(tx *sqlx.Tx) repository.DeviceLinkRepository {
	return m
}

func newDeviceHandler(repo repository.DeviceLinkRepository) *DeviceHandler {
	return NewDeviceHandler(service.NewDeviceService(repo, testSigningSecret, 7*24*time.Hour))
}

func serveDeviceRoutes(h *DeviceHandler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Mount("/devices", h.Routes())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestDeviceHandler_List(t *testing.T) {
	t.Run("lists active devices", func(t *testing.T) {
		repo := new(mockDeviceRepo)
		repo.On("FindActiveByAccountID", mock.Anything, "acc-1").Return([]model.DeviceLink{
			{DeviceID: "dev-1", AccountID: "acc-1", DeviceName: "Work Laptop", IsActive: true},
		}, nil)

		handler := newDeviceHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/devices/", nil)
		req = req.WithContext(withAccount(req.Context(), &model.Account{ID: "acc-1"}))
		rec := serveDeviceRoutes(handler, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"deviceName":"Work Laptop"`)
		repo.AssertExpectations(t)
	})

	t.Run("returns empty list rather than null", func(t *testing.T) {
		repo := new(mockDeviceRepo)
		repo.On("FindActiveByAccountID", mock.Anything, "acc-1").Return(nil, nil)

		handler := newDeviceHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/devices/", nil)
		req = req.WithContext(withAccount(req.Context(), &model.Account{ID: "acc-1"}))
		rec := serveDeviceRoutes(handler, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"devices":[]`)
	})

	t.Run("returns 401 when no account in context", func(t *testing.T) {
		handler := newDeviceHandler(new(mockDeviceRepo))

		req := httptest.NewRequest(http.MethodGet, "/devices/", nil)
		rec := serveDeviceRoutes(handler, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestDeviceHandler_Revoke(t *testing.T) {
	t.Run("revokes an active device", func(t *testing.T) {
		repo := new(mockDeviceRepo)
		repo.On("FindByDeviceID", mock.Anything, "acc-1", "dev-1").Return(&model.DeviceLink{
			DeviceID: "dev-1", AccountID: "acc-1", IsActive: true,
		}, nil)
		repo.On("Deactivate", mock.Anything, "acc-1", "dev-1").Return(nil)

		handler := newDeviceHandler(repo)

		req := httptest.NewRequest(http.MethodDelete, "/devices/dev-1", nil)
		req = req.WithContext(withAccount(req.Context(), &model.Account{ID: "acc-1"}))
		rec := serveDeviceRoutes(handler, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Device revoked")
		repo.AssertExpectations(t)
	})

	t.Run("revoking an already revoked device succeeds", func(t *testing.T) {
		repo := new(mockDeviceRepo)
		repo.On("FindByDeviceID", mock.Anything, "acc-1", "dev-1").Return(&model.DeviceLink{
			DeviceID: "dev-1", AccountID: "acc-1", IsActive: false,
		}, nil)

		handler := newDeviceHandler(repo)

		req := httptest.NewRequest(http.MethodDelete, "/devices/dev-1", nil)
		req = req.WithContext(withAccount(req.Context(), &model.Account{ID: "acc-1"}))
		rec := serveDeviceRoutes(handler, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "Deactivate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("returns 404 for a device the account does not own", func(t *testing.T) {
		repo := new(mockDeviceRepo)
		repo.On("FindByDeviceID", mock.Anything, "acc-1", "dev-x").Return(nil, nil)

		handler := newDeviceHandler(repo)

		req := httptest.NewRequest(http.MethodDelete, "/devices/dev-x", nil)
		req = req.WithContext(withAccount(req.Context(), &model.Account{ID: "acc-1"}))
		rec := serveDeviceRoutes(handler, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})
}
