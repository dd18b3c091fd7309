// Package sanitize strips secrets, bounds payload size and depth, and
// normalizes error snapshots before anything reaches the tracking store.
// Every function here is pure and total: no I/O, never panics, never errors.
package sanitize

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Redacted is the marker substituted for denylisted values.
const Redacted = "[REDACTED]"

// Markers substituted for structurally truncated values.
const (
	depthMarker      = "[MAX_DEPTH_EXCEEDED]"
	arrayMarker      = "[ARRAY_TRUNCATED]"
	stringSuffix     = "...[TRUNCATED]"
	unserializable   = "[UNSERIALIZABLE]"
)

// Default bounds applied by Sanitize.
const (
	DefaultMaxDepth  = 6
	maxArrayElements = 50
	maxStringLength  = 4000
)

// headerDenylist matches header names by case-insensitive substring.
var headerDenylist = []string{
	"authorization",
	"api-key",
	"apikey",
	"cookie",
	"bearer",
	"webhook-signature",
	"x-signature",
	"x-auth",
	"session",
}

// keyDenylist matches object keys by case-insensitive substring.
var keyDenylist = []string{
	"password",
	"token",
	"secret",
	"apikey",
	"api_key",
	"credential",
	"signature",
	"authorization",
	"private",
	"ssn",
}

// SanitizeHeaders returns a copy of headers with denylisted values replaced
// by the redaction marker. Matching is a case-insensitive substring test on
// the header name; non-matching values pass through unchanged.
func SanitizeHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if matchesDenylist(name, headerDenylist) {
			out[name] = Redacted
		} else {
			out[name] = value
		}
	}
	return out
}

// Sanitize recursively walks v, redacting denylisted keys, capping depth,
// array fan-out, and string length, and normalizing non-ASCII key characters
// for storage compatibility. It is idempotent: applying it twice yields the
// same result as applying it once.
func Sanitize(v any, maxDepth int) any {
	return sanitizeValue(v, maxDepth)
}

func sanitizeValue(v any, depth int) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return truncateString(val)
	case map[string]any:
		if depth <= 0 {
			return depthMarker
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			key := normalizeKey(k)
			if matchesDenylist(key, keyDenylist) {
				out[key] = Redacted
				continue
			}
			out[key] = sanitizeValue(item, depth-1)
		}
		return out
	case []any:
		if depth <= 0 {
			return depthMarker
		}
		n := len(val)
		if n > maxArrayElements {
			n = maxArrayElements
		}
		out := make([]any, 0, n+1)
		for _, item := range val[:n] {
			out = append(out, sanitizeValue(item, depth-1))
		}
		if len(val) > maxArrayElements {
			out = append(out, arrayMarker)
		}
		return out
	default:
		// Numbers, bools, and anything else JSON-scalar pass through.
		return val
	}
}

// TruncatePayload serializes v to measure its size. Payloads at or under
// maxBytes are returned as-is; oversized payloads are replaced wholesale
// with a marker object carrying the original size and a bounded preview.
func TruncatePayload(v any, maxBytes int) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"truncated": true, "reason": unserializable}
	}
	if len(data) <= maxBytes {
		return v
	}
	previewLen := maxBytes / 4
	if previewLen > len(data) {
		previewLen = len(data)
	}
	return map[string]any{
		"truncated":     true,
		"original_size": len(data),
		"preview":       cutAtRune(string(data), previewLen) + stringSuffix,
	}
}

func matchesDenylist(name string, denylist []string) bool {
	lower := strings.ToLower(name)
	for _, needle := range denylist {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

func truncateString(s string) string {
	if len(s) <= maxStringLength {
		return s
	}
	// Already-truncated strings stay stable so Sanitize is idempotent.
	if strings.HasSuffix(s, stringSuffix) {
		return s
	}
	return cutAtRune(s, maxStringLength-len(stringSuffix)) + stringSuffix
}

// cutAtRune trims s to at most n bytes, backing up so a multibyte rune is
// never split. The stored string must stay valid UTF-8 for JSON encoding.
func cutAtRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// normalizeKey strips non-ASCII runes from object keys. The tracking store's
// column collation rejects some multibyte sequences in key paths, so keys are
// reduced to their printable-ASCII skeleton.
func normalizeKey(k string) string {
	ascii := true
	for _, r := range k {
		if r > unicode.MaxASCII {
			ascii = false
			break
		}
	}
	if ascii {
		return k
	}
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range k {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}
