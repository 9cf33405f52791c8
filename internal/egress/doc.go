// Package egress selects the network route each upstream request leaves by.
//
// A route is either a direct connection, an HTTP(S) proxy, or a SOCKS5
// proxy (optionally an embedded Tor daemon started through tornago). The
// Pool tracks an exponentially weighted moving average of each route's
// latency together with its consecutive-failure streak. Routes that fail
// too often are marked unhealthy and sit out a cool-down before they are
// tried again.
//
// Design decision: Acquire never fails. When every route is unhealthy the
// pool hands out the one that has been unhealthy the longest and flags the
// selection as degraded. A crawl that loses all proxies for a few minutes
// slows down instead of aborting.
package egress
