package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const TrackingPrefix = "PH-"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewTrackingCode returns a public, time-sortable parcel identifier.
func NewTrackingCode() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return TrackingPrefix + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NormalizeTrackingCode accepts codes typed by hand (any case, with or without
// the prefix) and returns the canonical form, or "" when it cannot be a code.
func NormalizeTrackingCode(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	code = strings.TrimPrefix(code, TrackingPrefix)

	if _, err := ulid.ParseStrict(code); err != nil {
		return ""
	}
	return TrackingPrefix + code
}
