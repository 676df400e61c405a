package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces values that cannot be shown even in part.
const RedactedValue = "[REDACTED]"

// identityHint is how many trailing characters of an external id survive.
const identityHint = 4

// Identity logs an external account id linked to a points profile. Only the
// last few characters are kept so operators can correlate support requests.
func Identity(key, externalID string) slog.Attr {
	id := strings.TrimSpace(externalID)
	if id == "" {
		return slog.String(key, "")
	}
	if len(id) <= identityHint {
		return slog.String(key, RedactedValue)
	}
	return slog.String(key, "***"+id[len(id)-identityHint:])
}

// Endpoint logs a settlement endpoint reduced to scheme and host. Paths,
// query strings and userinfo often carry tokens and are dropped.
func Endpoint(key, raw string) slog.Attr {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return slog.String(key, "")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return slog.String(key, RedactedValue)
	}
	return slog.String(key, u.Scheme+"://"+u.Host)
}
