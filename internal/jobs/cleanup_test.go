package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrauth/qr-link-server/internal/registry"
)

func TestCleanupJob(t *testing.T) {
	t.Run("creates job with correct interval", func(t *testing.T) {
		job := NewCleanupJob(registry.NewPairingRegistry(time.Minute, time.Minute), 5*time.Minute)

		assert.NotNil(t, job)
		assert.Equal(t, 5*time.Minute, job.interval)
	})

	t.Run("starts and stops without panic", func(t *testing.T) {
		sessions := registry.NewPairingRegistry(time.Minute, time.Minute)
		job := NewCleanupJob(sessions, 100*time.Millisecond)

		job.Start()
		time.Sleep(50 * time.Millisecond)
		job.Stop()
	})

	t.Run("purges dead sessions on start", func(t *testing.T) {
		// negative TTL and zero grace: sessions are dead as soon as they
		// are created
		sessions := registry.NewPairingRegistry(-time.Minute, 0)
		sessions.Create("ua-1")
		sessions.Create("ua-2")
		require.Equal(t, 2, sessions.Len())

		job := NewCleanupJob(sessions, time.Hour)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return sessions.Len() == 0
		}, time.Second, 10*time.Millisecond)
	})
}
