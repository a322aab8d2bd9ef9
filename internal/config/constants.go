package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Grace period before a dead pairing session may be reclaimed from memory.
// Expiry itself is enforced at access time; this only bounds memory growth.
const PairingReclaimGrace = 10 * time.Minute

// Default rate limiting for authenticated routes
const DefaultRateLimitPerMin = 60
