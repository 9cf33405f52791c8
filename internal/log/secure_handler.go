package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// sensitiveKeys contains attribute keys that are always masked.
// The upstream API authenticates with a bearer token plus the ct0/auth_token
// session cookie pair, so all three (and the headers carrying them) are listed.
var sensitiveKeys = map[string]bool{
	// HTTP headers
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-csrf-token":        true,
	"proxy-authorization": true,

	// Upstream credential material
	"bearer":        true,
	"bearer_token":  true,
	"ct0":           true,
	"csrf_token":    true,
	"auth_token":    true,
	"access_token":  true,
	"refresh_token": true,
	"api_key":       true,

	// Generic secrets
	"password": true,
	"passwd":   true,
	"secret":   true,
	"token":    true,
	"tokens":   true,
}

// sensitiveKeywords mask any key that contains them.
// "credential" is intentionally absent: credentials are logged by their
// fingerprint id under the "cred" key, which carries no secret.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "cookie", "bearer", "csrf",
}

// sensitivePatterns match values that look like secrets regardless of key.
var sensitivePatterns = []*regexp.Regexp{
	// Bearer header values
	regexp.MustCompile(`(?i)^bearer\s+.+`),

	// Basic auth
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),

	// Upstream bearer tokens are long URL-escaped strings starting with AAAA
	regexp.MustCompile(`^AAAA[A-Za-z0-9%]{40,}$`),

	// Long hex/alphanumeric strings (ct0 and auth_token values)
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`),

	// Cookie header shape carrying session cookies
	regexp.MustCompile(`(?i)(^|;\s*)(ct0|auth_token)=`),
}

// userinfoPattern finds "scheme://user:pass@" inside a value.
var userinfoPattern = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/@\s]+@`)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// SecureHandler wraps an slog.Handler and masks sensitive attributes before
// they reach the underlying handler.
//
// Design decision: We use a handler wrapper rather than a custom logger
// because every component already accepts a plain *slog.Logger. Wrapping at
// the handler level means no call site can forget to sanitize, including
// proxy URLs that carry credentials in their userinfo.
type SecureHandler struct {
	// handler is the underlying slog handler that receives sanitized records.
	handler slog.Handler
}

// NewSecureHandler creates a new SecureHandler wrapping the given handler.
// If handler is nil, slog.Default().Handler() is used.
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record's attributes and passes it on.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given attributes sanitized and added.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitizedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitizedAttrs[i] = sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitizedAttrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

// sanitizeAttr sanitizes a single attribute, recursing into groups.
func sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitizedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			sanitizedAttrs[i] = sanitizeAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitizedAttrs...)}
	}

	keyLower := strings.ToLower(a.Key)
	if sensitiveKeys[keyLower] || containsSensitiveKeyword(keyLower) {
		return slog.String(a.Key, MaskValue)
	}

	var strVal string
	switch a.Value.Kind() {
	case slog.KindString:
		strVal = a.Value.String()
	case slog.KindAny:
		// url.URL and errors wrapping request URLs end up here.
		switch v := a.Value.Any().(type) {
		case *url.URL:
			if v == nil {
				return a
			}
			strVal = v.String()
		case error:
			strVal = v.Error()
		default:
			return a
		}
	default:
		return a
	}

	if isSensitiveValue(strVal) {
		return slog.String(a.Key, MaskValue)
	}
	if redacted := RedactURLUserinfo(strVal); redacted != strVal {
		return slog.String(a.Key, redacted)
	}
	if a.Value.Kind() == slog.KindAny {
		return slog.String(a.Key, strVal)
	}
	return a
}

// RedactURLUserinfo replaces the userinfo part of every URL in s with
// MaskValue. Proxy URLs commonly embed "user:pass@".
func RedactURLUserinfo(s string) string {
	if !strings.Contains(s, "@") || !strings.Contains(s, "://") {
		return s
	}
	return userinfoPattern.ReplaceAllString(s, "${1}"+MaskValue+"@")
}

func containsSensitiveKeyword(key string) bool {
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

func isSensitiveValue(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// NewSecureLogger creates a text logger whose output is sanitized.
// verbose selects Debug level; otherwise only warnings and errors are shown.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger creates a JSON logger whose output is sanitized.
// Useful when crawl logs are shipped to a log aggregator.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
