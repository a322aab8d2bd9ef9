package service

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/qrauth/qr-link-server/internal/errors"
	"github.com/qrauth/qr-link-server/internal/model"
	"github.com/qrauth/qr-link-server/internal/registry"
	"github.com/qrauth/qr-link-server/internal/util"
	"github.com/qrauth/qr-link-server/internal/ws"
)

func newPairingFixture(t *testing.T, ttl time.Duration) (*PairingService, *mockDeviceRepo, *ws.Hub) {
	t.Helper()
	sessions := registry.NewPairingRegistry(ttl, 10*time.Minute)
	deviceRepo := new(mockDeviceRepo)
	devices := NewDeviceService(deviceRepo, testSigningSecret, 7*24*time.Hour)
	hub := ws.NewHub()
	t.Cleanup(hub.Shutdown)
	return NewPairingService(sessions, devices, hub), deviceRepo, hub
}

// holdChannel opens a live notification channel for sessionID and returns the
// viewer side of it.
func holdChannel(t *testing.T, hub *ws.Hub, sessionID string) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Open(sessionID, conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.Eventually(t, func() bool { return hub.Count() > 0 }, time.Second, 5*time.Millisecond)
	return client
}

func TestStartPairing(t *testing.T) {
	t.Run("returns session id, QR image and expiry", func(t *testing.T) {
		svc, _, _ := newPairingFixture(t, 5*time.Minute)

		result, err := svc.StartPairing("Work Laptop")
		require.NoError(t, err)
		assert.True(t, util.IsValidUUID(result.SessionID))
		assert.WithinDuration(t, time.Now().Add(5*time.Minute), result.ExpiresAt, time.Second)

		raw, err := base64.StdEncoding.DecodeString(result.QRCodeData)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, raw[:4])

		// The session is immediately retrievable for countdown rendering.
		session, err := svc.GetSession(result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "Work Laptop", session.DeviceInfo)

		state, err := svc.SessionState(result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, model.PairingStateCreated, state)
	})
}

func TestCompletePairing(t *testing.T) {
	ctx := context.Background()
	account := activeAccount("s3cret")

	t.Run("redeems, links device, and notifies the waiting viewer", func(t *testing.T) {
		svc, deviceRepo, hub := newPairingFixture(t, 5*time.Minute)

		started, err := svc.StartPairing("Work Laptop")
		require.NoError(t, err)

		viewer := holdChannel(t, hub, started.SessionID)

		deviceRepo.On("Create", ctx, mock.MatchedBy(func(p model.CreateDeviceLinkParams) bool {
			return p.AccountID == account.ID && p.DeviceName == "Work Laptop"
		})).Return(linkFromParams(model.CreateDeviceLinkParams{
			DeviceID: "d-1", AccountID: account.ID, DeviceName: "Work Laptop",
		}), nil)

		result, err := svc.CompletePairing(ctx, account, started.SessionID)
		require.NoError(t, err)
		assert.NotEmpty(t, result.DeviceID)
		assert.NotEmpty(t, result.SessionToken)

		var notification LoginNotification
		viewer.SetReadDeadline(time.Now().Add(time.Second))
		require.NoError(t, viewer.ReadJSON(&notification))
		assert.Equal(t, "login_success", notification.Type)
		assert.Equal(t, account.Username, notification.User.Username)
		assert.Equal(t, result.SessionToken, notification.SessionToken)
		assert.Equal(t, result.DeviceID, notification.DeviceID)

		// The channel is released after successful delivery.
		assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)

		state, err := svc.SessionState(started.SessionID)
		require.NoError(t, err)
		assert.Equal(t, model.PairingStateRedeemed, state)
	})

	t.Run("pairing succeeds even when no viewer is listening", func(t *testing.T) {
		svc, deviceRepo, _ := newPairingFixture(t, 5*time.Minute)

		started, err := svc.StartPairing("")
		require.NoError(t, err)

		deviceRepo.On("Create", ctx, mock.MatchedBy(func(p model.CreateDeviceLinkParams) bool {
			// No descriptor on the session: the link falls back to a
			// generic label.
			return p.DeviceName == "Desktop Device"
		})).Return(linkFromParams(model.CreateDeviceLinkParams{
			DeviceID: "d-2", AccountID: account.ID, DeviceName: "Desktop Device",
		}), nil)

		result, err := svc.CompletePairing(ctx, account, started.SessionID)
		require.NoError(t, err)
		assert.NotEmpty(t, result.DeviceID)
	})

	t.Run("second redemption fails AlreadyUsed and creates no second link", func(t *testing.T) {
		svc, deviceRepo, _ := newPairingFixture(t, 5*time.Minute)
		other := activeAccount("s3cret")
		other.ID = "acct-2"
		other.Username = "bob"

		started, err := svc.StartPairing("Work Laptop")
		require.NoError(t, err)

		deviceRepo.On("Create", ctx, mock.Anything).Return(linkFromParams(model.CreateDeviceLinkParams{
			DeviceID: "d-3", AccountID: account.ID,
		}), nil).Once()

		_, err = svc.CompletePairing(ctx, account, started.SessionID)
		require.NoError(t, err)

		_, err = svc.CompletePairing(ctx, other, started.SessionID)
		assert.Equal(t, apperrors.ErrCodeAlreadyUsed, apperrors.GetCode(err))

		// First account keeps the association.
		session, err := svc.GetSession(started.SessionID)
		require.NoError(t, err)
		require.NotNil(t, session.AccountID)
		assert.Equal(t, account.ID, *session.AccountID)

		deviceRepo.AssertNumberOfCalls(t, "Create", 1)
	})

	t.Run("expired session fails Expired and creates no link", func(t *testing.T) {
		svc, deviceRepo, _ := newPairingFixture(t, -time.Minute)

		started, err := svc.StartPairing("")
		require.NoError(t, err)

		_, err = svc.CompletePairing(ctx, account, started.SessionID)
		assert.Equal(t, apperrors.ErrCodePairingExpired, apperrors.GetCode(err))
		deviceRepo.AssertNotCalled(t, "Create", ctx, mock.Anything)
	})

	t.Run("unknown session fails NotFound", func(t *testing.T) {
		svc, _, _ := newPairingFixture(t, 5*time.Minute)
		_, err := svc.CompletePairing(ctx, account, "8f14e45f-0000-0000-0000-000000000000")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}
