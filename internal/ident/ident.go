// Package ident generates collision-resistant trace, step, and detail
// identifiers with an embedded lineage suffix: step IDs carry the trace's
// random suffix and detail IDs carry the step's, so parentage is recoverable
// from an ID alone without a store lookup.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID prefixes by record level.
const (
	TracePrefix  = "trc"
	StepPrefix   = "stp"
	DetailPrefix = "dtl"
)

// NewTraceID returns a trace ID of the form trc_<unix-ms base36>_<8 hex>.
// The timestamp prefix keeps IDs roughly sortable by start time; the random
// suffix keeps them unique under concurrent starts.
func NewTraceID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return fmt.Sprintf("%s_%s_%s", TracePrefix, ts, randomHex(4))
}

// StepID returns a step ID deterministic in (trace, sequence):
// stp_<trace random suffix>_<sequence>.
func StepID(traceID string, sequence int) string {
	return fmt.Sprintf("%s_%s_%d", StepPrefix, Suffix(traceID), sequence)
}

// DetailID returns a detail ID deterministic in (step, sequence):
// dtl_<step suffix>_<sequence>, where the step suffix itself embeds the
// trace suffix.
func DetailID(stepID string, sequence int) string {
	return fmt.Sprintf("%s_%s_%d", DetailPrefix, trimPrefix(stepID), sequence)
}

// RandomDetailID returns a pure-random detail ID for call sites that have no
// step lineage to embed.
func RandomDetailID() string {
	return DetailPrefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Suffix returns the random component of a trace ID (its final segment).
// For non-trace IDs it falls back to everything after the type prefix.
func Suffix(id string) string {
	parts := strings.Split(id, "_")
	switch {
	case len(parts) >= 3 && parts[0] == TracePrefix:
		return parts[len(parts)-1]
	case len(parts) >= 2:
		return strings.Join(parts[1:], "_")
	default:
		return id
	}
}

func trimPrefix(id string) string {
	if i := strings.IndexByte(id, '_'); i >= 0 {
		return id[i+1:]
	}
	return id
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
