package qr

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundTrip(t *testing.T) {
	t.Run("encode then decode yields original session id", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		p := Payload{
			SessionID: "f81d4fae-7dec-11d0-a765-00a0c91e6bf6",
			Timestamp: now,
			ExpiresAt: now.Add(5 * time.Minute),
		}

		data, err := EncodePayload(p)
		require.NoError(t, err)

		got, err := DecodePayload(data)
		require.NoError(t, err)
		assert.Equal(t, p.SessionID, got.SessionID)
		assert.True(t, got.ExpiresAt.Equal(p.ExpiresAt))
	})

	t.Run("payload is ISO-8601 JSON", func(t *testing.T) {
		now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
		data, err := EncodePayload(Payload{SessionID: "abc", Timestamp: now, ExpiresAt: now})
		require.NoError(t, err)
		assert.Contains(t, string(data), `"session_id":"abc"`)
		assert.Contains(t, string(data), "2026-03-14T09:26:53Z")
	})

	t.Run("rejects payload without session id", func(t *testing.T) {
		_, err := DecodePayload([]byte(`{"timestamp":"2026-03-14T09:26:53Z"}`))
		assert.Error(t, err)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := DecodePayload([]byte(`{`))
		assert.Error(t, err)
	})
}

func TestRenderPNG(t *testing.T) {
	t.Run("returns base64 PNG", func(t *testing.T) {
		now := time.Now()
		encoded, err := RenderPNG(Payload{
			SessionID: "f81d4fae-7dec-11d0-a765-00a0c91e6bf6",
			Timestamp: now,
			ExpiresAt: now.Add(5 * time.Minute),
		}, 256)
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)
		// PNG magic bytes
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, raw[:4])
	})
}
