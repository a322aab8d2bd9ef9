package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/qrauth/qr-link-server/internal/errors"
	"github.com/qrauth/qr-link-server/internal/model"
	"github.com/qrauth/qr-link-server/internal/qr"
	"github.com/qrauth/qr-link-server/internal/registry"
	"github.com/qrauth/qr-link-server/internal/util"
	"github.com/qrauth/qr-link-server/internal/ws"
)

const (
	qrImageSize = 256

	// fallbackDeviceName labels a link whose pairing session carried no
	// device descriptor.
	fallbackDeviceName = "Desktop Device"
)

type StartPairingResult struct {
	SessionID  string    `json:"session_id"`
	QRCodeData string    `json:"qr_code_data"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type CompletePairingResult struct {
	Message      string `json:"message"`
	DeviceID     string `json:"device_id"`
	SessionToken string `json:"session_token"`
}

// LoginNotification is the single message pushed to the waiting viewer when
// its pairing session is redeemed.
type LoginNotification struct {
	Type         string              `json:"type"`
	User         model.PublicProfile `json:"user"`
	SessionToken string              `json:"session_token"`
	DeviceID     string              `json:"device_id"`
}

// PairingService is the use-case layer: it owns no state of its own and wires
// the session registry, the device registry and the notification hub.
type PairingService struct {
	sessions *registry.PairingRegistry
	devices  *DeviceService
	hub      *ws.Hub
}

func NewPairingService(
	sessions *registry.PairingRegistry,
	devices *DeviceService,
	hub *ws.Hub,
) *PairingService {
	return &PairingService{
		sessions: sessions,
		devices:  devices,
		hub:      hub,
	}
}

// StartPairing creates a pairing session and renders it as a scannable QR
// payload. The viewer is expected to follow up by holding the notification
// channel for the returned session id.
func (s *PairingService) StartPairing(deviceInfo string) (*StartPairingResult, error) {
	session := s.sessions.Create(deviceInfo)

	encoded, err := qr.RenderPNG(qr.Payload{
		SessionID: session.ID,
		Timestamp: session.CreatedAt.UTC(),
		ExpiresAt: session.ExpiresAt.UTC(),
	}, qrImageSize)
	if err != nil {
		return nil, apperrors.Internal("Failed to generate QR code").WithCause(err)
	}

	return &StartPairingResult{
		SessionID:  session.ID,
		QRCodeData: encoded,
		ExpiresAt:  session.ExpiresAt,
	}, nil
}

// CompletePairing redeems the session for the scanning account, creates the
// device link, and pushes the login result to the waiting viewer. Delivery is
// best-effort: the link is durable whether or not the viewer is still
// listening, so a failed notification is logged and absorbed.
func (s *PairingService) CompletePairing(ctx context.Context, account *model.Account, sessionID string) (*CompletePairingResult, error) {
	session, err := s.sessions.Redeem(sessionID, account.ID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("sessionId", util.MaskSessionID(sessionID)).
			Str("accountId", account.ID).
			Msg("pairing redemption rejected")
		return nil, err
	}

	deviceName := session.DeviceInfo
	if deviceName == "" {
		deviceName = fallbackDeviceName
	}

	linked, err := s.devices.Link(ctx, account, deviceName)
	if err != nil {
		return nil, err
	}

	delivered := s.hub.Send(sessionID, LoginNotification{
		Type:         "login_success",
		User:         account.Public(),
		SessionToken: linked.SessionToken,
		DeviceID:     linked.Link.DeviceID,
	})
	if !delivered {
		// NotificationFailed is non-fatal: the device link must never roll
		// back because the viewer went away.
		log.Warn().
			Err(apperrors.NotificationFailed(nil)).
			Str("sessionId", util.MaskSessionID(sessionID)).
			Msg("pairing succeeded but notification was not delivered")
	} else {
		s.hub.Close(sessionID)
	}

	log.Info().
		Str("sessionId", util.MaskSessionID(sessionID)).
		Str("accountId", account.ID).
		Str("deviceId", linked.Link.DeviceID).
		Bool("notified", delivered).
		Msg("pairing completed")

	return &CompletePairingResult{
		Message:      "Device linked successfully",
		DeviceID:     linked.Link.DeviceID,
		SessionToken: linked.SessionToken,
	}, nil
}

// GetSession exposes a read-only session lookup, used to render expiry
// countdowns.
func (s *PairingService) GetSession(sessionID string) (model.PairingSession, error) {
	return s.sessions.Get(sessionID)
}

// SessionState reports the lifecycle state of a session at the current
// instant.
func (s *PairingService) SessionState(sessionID string) (model.PairingState, error) {
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}
	return session.State(time.Now()), nil
}
