// Package registry holds the process-local pairing-session store. A pairing
// session is redeemable exactly once inside its validity window; the
// check-then-set in Redeem runs under the registry mutex so concurrent
// redemptions of the same id serialize and exactly one wins.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/qrauth/qr-link-server/internal/errors"
	"github.com/qrauth/qr-link-server/internal/model"
	"github.com/qrauth/qr-link-server/internal/util"
)

type PairingRegistry struct {
	mu       sync.Mutex
	sessions map[string]*model.PairingSession
	ttl      time.Duration
	grace    time.Duration
}

func NewPairingRegistry(ttl, grace time.Duration) *PairingRegistry {
	return &PairingRegistry{
		sessions: make(map[string]*model.PairingSession),
		ttl:      ttl,
		grace:    grace,
	}
}

// Create registers a fresh session keyed by a v4 UUID and returns a copy.
func (r *PairingRegistry) Create(deviceInfo string) model.PairingSession {
	now := time.Now()
	session := &model.PairingSession{
		ID:         uuid.NewString(),
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
		ExpiresAt:  now.Add(r.ttl),
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()

	log.Debug().
		Str("sessionId", util.MaskSessionID(session.ID)).
		Time("expiresAt", session.ExpiresAt).
		Msg("pairing session created")

	return *session
}

// Get returns a read-only snapshot of the session.
func (r *PairingRegistry) Get(sessionID string) (model.PairingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return model.PairingSession{}, apperrors.NotFound("QR session")
	}
	return *session, nil
}

// Redeem consumes the session: existence, expiry and used-flag are checked
// and the used-flag set as one unit under the lock. A session redeemed inside
// its window reports ALREADY_USED forever after; EXPIRED is reported only
// when the expiry instant passed while the session was still unredeemed.
func (r *PairingRegistry) Redeem(sessionID, accountID string) (model.PairingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return model.PairingSession{}, apperrors.NotFound("QR session")
	}

	if session.Redeemed {
		return model.PairingSession{}, apperrors.AlreadyUsed()
	}

	now := time.Now()
	if now.After(session.ExpiresAt) {
		return model.PairingSession{}, apperrors.PairingExpired()
	}

	session.Redeemed = true
	session.AccountID = &accountID
	session.RedeemedAt = &now

	return *session, nil
}

// PurgeDead reclaims memory for sessions that can no longer change state:
// expired-unredeemed past the grace period, and redeemed ones whose result
// has long been delivered. Validity is still enforced at access time; this
// only bounds map growth.
func (r *PairingRegistry) PurgeDead(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-r.grace)

	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for id, session := range r.sessions {
		switch {
		case session.Redeemed && session.RedeemedAt.Before(cutoff):
			delete(r.sessions, id)
			purged++
		case !session.Redeemed && session.ExpiresAt.Before(cutoff):
			delete(r.sessions, id)
			purged++
		}
	}
	return purged, nil
}

// Len reports the number of resident sessions, dead or alive.
func (r *PairingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
