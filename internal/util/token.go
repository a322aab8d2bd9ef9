package util

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/qrauth/qr-link-server/internal/errors"
)

// TokenClaims is the payload carried by a signed bearer token. Subject is the
// account id; DeviceID is set only on tokens issued to linked devices.
type TokenClaims struct {
	Subject   string `json:"sub"`
	DeviceID  string `json:"deviceId,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// SignToken builds a compact signed credential: base64url(JSON claims) + "." +
// hex HMAC-SHA256 over the encoded claims. Opaque to clients, verifiable
// without storage.
func SignToken(secret string, claims TokenClaims) string {
	payload, _ := json.Marshal(claims)
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + HmacSHA256(secret, encoded)
}

// VerifyToken checks the signature and expiry of a token produced by
// SignToken and returns its claims.
func VerifyToken(secret, token string) (*TokenClaims, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return nil, apperrors.TokenInvalid()
	}

	if !ConstantTimeEqual(HmacSHA256(secret, encoded), sig) {
		return nil, apperrors.TokenInvalid()
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperrors.TokenInvalid()
	}

	var claims TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, apperrors.TokenInvalid()
	}

	if claims.Subject == "" {
		return nil, apperrors.TokenInvalid()
	}

	if time.Now().Unix() >= claims.ExpiresAt {
		return nil, apperrors.TokenExpired()
	}

	return &claims, nil
}
