package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/qrauth/qr-link-server/internal/errors"
	"github.com/qrauth/qr-link-server/internal/model"
	"github.com/qrauth/qr-link-server/internal/repository"
	"github.com/qrauth/qr-link-server/internal/util"
)

// LinkResult carries the one-time view of a new device link that includes the
// raw session token. Only its hash is persisted.
type LinkResult struct {
	Link         *model.DeviceLink
	SessionToken string
}

type DeviceService struct {
	deviceRepo     repository.DeviceLinkRepository
	signingSecret  string
	deviceTokenTTL time.Duration
}

func NewDeviceService(
	deviceRepo repository.DeviceLinkRepository,
	signingSecret string,
	deviceTokenTTL time.Duration,
) *DeviceService {
	return &DeviceService{
		deviceRepo:     deviceRepo,
		signingSecret:  signingSecret,
		deviceTokenTTL: deviceTokenTTL,
	}
}

// Link creates a durable device-to-account association with a fresh device id
// and a bearer token scoped to that device and account.
func (s *DeviceService) Link(ctx context.Context, account *model.Account, deviceName string) (*LinkResult, error) {
	deviceID := uuid.NewString()

	now := time.Now()
	token := util.SignToken(s.signingSecret, util.TokenClaims{
		Subject:   account.ID,
		DeviceID:  deviceID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.deviceTokenTTL).Unix(),
	})

	link, err := s.deviceRepo.Create(ctx, model.CreateDeviceLinkParams{
		DeviceID:         deviceID,
		AccountID:        account.ID,
		DeviceName:       deviceName,
		SessionTokenHash: util.HashToken(token),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("accountId", account.ID).
		Str("deviceId", deviceID).
		Str("deviceName", deviceName).
		Msg("device linked")

	return &LinkResult{Link: link, SessionToken: token}, nil
}

// ListActive returns the account's devices whose active flag is still set.
func (s *DeviceService) ListActive(ctx context.Context, accountID string) ([]model.DeviceLink, error) {
	links, err := s.deviceRepo.FindActiveByAccountID(ctx, accountID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return links, nil
}

// Revoke deactivates the device. Revoking an already-revoked device is not an
// error; only a device id that never belonged to the account reports NotFound.
func (s *DeviceService) Revoke(ctx context.Context, accountID, deviceID string) error {
	link, err := s.deviceRepo.FindByDeviceID(ctx, accountID, deviceID)
	if err != nil {
		return apperrors.Database(err)
	}
	if link == nil {
		return apperrors.NotFound("Device")
	}

	if !link.IsActive {
		return nil
	}

	if err := s.deviceRepo.Deactivate(ctx, accountID, deviceID); err != nil {
		return apperrors.Database(err)
	}

	log.Info().
		Str("accountId", accountID).
		Str("deviceId", deviceID).
		Msg("device revoked")

	return nil
}
