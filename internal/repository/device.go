package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qrauth/qr-link-server/internal/model"
)

type DeviceLinkRepository interface {
	FindByDeviceID(ctx context.Context, accountID, deviceID string) (*model.DeviceLink, error)
	FindActiveByAccountID(ctx context.Context, accountID string) ([]model.DeviceLink, error)
	Create(ctx context.Context, params model.CreateDeviceLinkParams) (*model.DeviceLink, error)
	Deactivate(ctx context.Context, accountID, deviceID string) error
	TouchLastActive(ctx context.Context, deviceID string) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) DeviceLinkRepository
}

type deviceLinkRepo struct {
	db sqlxDB
}

func NewDeviceLinkRepository(db *sqlx.DB) DeviceLinkRepository {
	return &deviceLinkRepo{db: db}
}

func (r *deviceLinkRepo) WithTx(tx *sqlx.Tx) DeviceLinkRepository {
	return &deviceLinkRepo{db: tx}
}

func (r *deviceLinkRepo) FindByDeviceID(ctx context.Context, accountID, deviceID string) (*model.DeviceLink, error) {
	var link model.DeviceLink
	err := r.db.GetContext(ctx, &link, `
		SELECT * FROM device_links
		WHERE device_id = $1 AND account_id = $2
	`, deviceID, accountID)
	return HandleNotFound(&link, err)
}

func (r *deviceLinkRepo) FindActiveByAccountID(ctx context.Context, accountID string) ([]model.DeviceLink, error) {
	var links []model.DeviceLink
	err := r.db.SelectContext(ctx, &links, `
		SELECT * FROM device_links
		WHERE account_id = $1 AND is_active = TRUE
		ORDER BY created_at DESC
	`, accountID)
	return links, err
}

func (r *deviceLinkRepo) Create(ctx context.Context, params model.CreateDeviceLinkParams) (*model.DeviceLink, error) {
	var link model.DeviceLink
	err := r.db.GetContext(ctx, &link, `
		INSERT INTO device_links (device_id, account_id, device_name, session_token_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.DeviceID, params.AccountID, params.DeviceName, params.SessionTokenHash)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// Deactivate is a single conditional UPDATE, so the check-then-set on the
// active flag is atomic at the database. Updating an already-inactive row is
// a no-op, which is what makes revocation idempotent.
func (r *deviceLinkRepo) Deactivate(ctx context.Context, accountID, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE device_links SET
			is_active = FALSE,
			last_active_at = $3
		WHERE device_id = $1 AND account_id = $2 AND is_active = TRUE
	`, deviceID, accountID, time.Now())
	return err
}

func (r *deviceLinkRepo) TouchLastActive(ctx context.Context, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE device_links SET
			last_active_at = $2
		WHERE device_id = $1
	`, deviceID, time.Now())
	return err
}
