package httpapi

import (
	"time"

	"golang.org/x/time/rate"
)

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
// Images travel inline, so the default is 8 MiB.
var maxBodyBytes int64 = 8 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 8 << 20
		return
	}
	maxBodyBytes = n
}

// generateTimeout bounds a /generate request. Zero disables it.
var generateTimeout time.Duration

// SetGenerateTimeout sets the /generate deadline (0 disables).
func SetGenerateTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	generateTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

// generateLimiter throttles /generate when set.
var generateLimiter *rate.Limiter

// SetGenerateRateLimit installs a token bucket of rps requests per second
// with the given burst. rps <= 0 removes the limit.
func SetGenerateRateLimit(rps float64, burst int) {
	if rps <= 0 {
		generateLimiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	generateLimiter = rate.NewLimiter(rate.Limit(rps), burst)
}
