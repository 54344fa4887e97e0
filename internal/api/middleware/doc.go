// Package middleware provides the Gin middleware in front of the host's HTTP
// surface.
//
//   - CORS: browser controllers on another origin may read /workers and open
//     the /control websocket
//   - RateLimit: per-client token bucket, idle clients swept lazily
//   - GlobalRateLimit: one bucket shared by every client
//
// Example:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
