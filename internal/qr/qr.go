// Package qr renders pairing sessions into scannable payloads. The payload is
// a UTF-8 JSON object so any generic QR reader can hand it to the scanner app
// without a custom wire format.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// Payload is the JSON object embedded in the QR image. Timestamps are
// RFC 3339 / ISO-8601 strings.
type Payload struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expires_at"`
}

func EncodePayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode qr payload: %w", err)
	}
	if p.SessionID == "" {
		return Payload{}, fmt.Errorf("decode qr payload: missing session_id")
	}
	return p, nil
}

// RenderPNG encodes the payload as a QR image and returns the PNG bytes
// base64-encoded, ready to embed in a JSON response or data URI.
func RenderPNG(p Payload, size int) (string, error) {
	data, err := EncodePayload(p)
	if err != nil {
		return "", err
	}

	png, err := qrcode.Encode(string(data), qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("render qr png: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}
