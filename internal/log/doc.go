// Package log provides slog-based logging that never writes upstream
// credential material.
//
// The SecureHandler masks:
//   - The bearer token and the ct0/auth_token session cookies, by key and by value shape
//   - Authorization, Cookie and X-Csrf-Token headers
//   - User and password embedded in proxy URLs (the host stays visible)
//
// Credentials are meant to be logged by fingerprint id under the "cred" key.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Warn("route degraded", "route", "http://user:pw@10.0.0.1:8080")
//	// route=http://***REDACTED***@10.0.0.1:8080
package log
