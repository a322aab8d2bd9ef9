package model

import (
	"time"
)

// PairingSession is one QR-code lifecycle instance. Records live in the
// process-local registry, so there are no db tags here.
type PairingSession struct {
	ID         string     `json:"sessionId"`
	DeviceInfo string     `json:"deviceInfo,omitempty"`
	Redeemed   bool       `json:"redeemed"`
	AccountID  *string    `json:"accountId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	RedeemedAt *time.Time `json:"redeemedAt,omitempty"`
}

// State reports the session's lifecycle state at the given instant.
// Expiry is evaluated lazily; a session redeemed before its expiry instant
// stays Redeemed forever.
func (s *PairingSession) State(now time.Time) PairingState {
	if s.Redeemed && s.RedeemedAt != nil && s.RedeemedAt.Before(s.ExpiresAt) {
		return PairingStateRedeemed
	}
	if now.After(s.ExpiresAt) {
		return PairingStateExpired
	}
	if s.Redeemed {
		return PairingStateRedeemed
	}
	return PairingStateCreated
}
