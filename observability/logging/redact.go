package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// minKeySegment is the shortest path segment treated as an embedded API key.
// Hosted RPC providers put keys of 20 characters or more in the path.
const minKeySegment = 20

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskURL redacts credentials from an RPC endpoint: the userinfo password,
// every query value and any path segment long enough to be an API key.
// Unparseable input is masked whole.
func MaskURL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return MaskValue(raw)
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), RedactedValue)
		}
	}
	if u.RawQuery != "" {
		query := u.Query()
		for key, values := range query {
			for i := range values {
				values[i] = MaskValue(values[i])
			}
			query[key] = values
		}
		u.RawQuery = query.Encode()
	}
	segments := strings.Split(u.Path, "/")
	for i, segment := range segments {
		if len(segment) >= minKeySegment {
			segments[i] = RedactedValue
		}
	}
	u.Path = strings.Join(segments, "/")
	u.RawPath = ""
	out, err := url.PathUnescape(u.String())
	if err != nil {
		return u.String()
	}
	return out
}

// URLField returns a slog.Attr carrying the masked endpoint.
func URLField(key, raw string) slog.Attr {
	return slog.String(key, MaskURL(raw))
}
