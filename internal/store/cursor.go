package store

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const defaultPageSize = 50

// encodeCursor packs a page boundary (the last returned trace's start time
// and ID) into an opaque token. Both parts are needed: traces sharing a
// start timestamp are ordered by ID, and a time-only boundary would skip
// the ties on the next page.
func encodeCursor(t time.Time, traceID string) string {
	raw := t.UTC().Format(time.RFC3339Nano) + "|" + traceID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor unpacks a pagination token produced by encodeCursor.
func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decode cursor: %w", err)
	}
	ts, traceID, ok := strings.Cut(string(raw), "|")
	if !ok {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parse cursor: %w", err)
	}
	return t, traceID, nil
}
