package model

import (
	"time"
)

type DeviceLink struct {
	DeviceID         string    `db:"device_id" json:"deviceId"`
	AccountID        string    `db:"account_id" json:"accountId"`
	DeviceName       string    `db:"device_name" json:"deviceName"`
	SessionTokenHash string    `db:"session_token_hash" json:"-"`
	IsActive         bool      `db:"is_active" json:"isActive"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	LastActiveAt     time.Time `db:"last_active_at" json:"lastActiveAt"`
}

type CreateDeviceLinkParams struct {
	DeviceID         string
	AccountID        string
	DeviceName       string
	SessionTokenHash string
}
