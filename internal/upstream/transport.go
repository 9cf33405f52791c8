package upstream

import (
	"net/http"

	"github.com/nao1215/xspider/internal/credential"
)

// defaultHeaders mimic the web client. Accept-Encoding is left to
// net/http so responses are decompressed transparently.
var defaultHeaders = map[string]string{
	"Accept":                    "*/*",
	"Accept-Language":           "en-US,en;q=0.9",
	"Content-Type":              "application/json",
	"Origin":                    "https://x.com",
	"Referer":                   "https://x.com/",
	"Sec-Fetch-Dest":            "empty",
	"Sec-Fetch-Mode":            "cors",
	"Sec-Fetch-Site":            "same-origin",
	"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"X-Twitter-Active-User":     "yes",
	"X-Twitter-Client-Language": "en",
}

// authTransport wraps a route transport and injects the credential's
// bearer token, CSRF header and session cookies into every request.
//
// Design decision: Injection happens in a RoundTripper rather than at
// request construction so redirects followed by http.Client carry the same
// credential as the original request.
type authTransport struct {
	base  http.RoundTripper
	token credential.Token
}

func newAuthTransport(base http.RoundTripper, token credential.Token) *authTransport {
	return &authTransport{base: base, token: token}
}

// RoundTrip implements http.RoundTripper.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	for k, v := range defaultHeaders {
		if clone.Header.Get(k) == "" {
			clone.Header.Set(k, v)
		}
	}
	clone.Header.Set("Authorization", "Bearer "+t.token.BearerToken)
	clone.Header.Set("X-Csrf-Token", t.token.CSRFToken)
	clone.AddCookie(&http.Cookie{Name: "ct0", Value: t.token.CSRFToken})
	clone.AddCookie(&http.Cookie{Name: "auth_token", Value: t.token.AuthToken})

	return t.base.RoundTrip(clone)
}
