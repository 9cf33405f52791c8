package egress

import "errors"

var (
	// ErrEgressUnhealthy is reported (logged, never returned from Acquire)
	// when every route is unhealthy and a degraded route is handed out.
	ErrEgressUnhealthy = errors.New("all egress routes are unhealthy")

	// ErrInvalidRoute is returned when a proxy URL cannot be parsed.
	ErrInvalidRoute = errors.New("invalid egress route")

	// ErrUnsupportedScheme is returned for proxy URLs other than
	// http, https, socks5 and socks5h.
	ErrUnsupportedScheme = errors.New("unsupported proxy scheme")

	// ErrProbeConnect is returned when the proxy cannot be reached.
	ErrProbeConnect = errors.New("cannot connect to proxy")

	// ErrProbeTimeout is returned when the proxy does not answer in time.
	ErrProbeTimeout = errors.New("timeout probing proxy")

	// ErrNotSOCKS5 is returned when a socks route answers with something
	// other than a SOCKS5 handshake.
	ErrNotSOCKS5 = errors.New("proxy does not speak SOCKS5")

	// ErrTorNotRunning is returned when a route is requested from an
	// embedded Tor daemon that has not been started.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)
