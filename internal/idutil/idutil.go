// Package idutil provides the monotonic millisecond clock and sortable
// identifiers shared by every domain in the core.
package idutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NowMillis returns the current wall-clock time as epoch milliseconds.
// Every event, record, and cache entry in the core stamps time through
// this function so that tests can substitute a fake clock by wrapping
// the package-level Clock variable.
func NowMillis() int64 {
	return Clock().UnixMilli()
}

// Clock is the time source used by NowMillis and by NewID's fallback
// path. Tests may replace it to produce deterministic timestamps.
var Clock = func() time.Time { return time.Now() }

// seqMu, lastMs and lastSeq hold fallbackID's per-millisecond sequence,
// so two ids generated within the same millisecond do not collide in
// sort order.
var (
	seqMu   sync.Mutex
	lastMs  int64
	lastSeq uint16
)

// NewID returns a time-sortable identifier. It is backed by UUIDv7 when
// the standard library's random source is healthy, falling back to a
// manually constructed sortable value only if uuid generation fails
// (which in practice never happens on a modern OS).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fallbackID()
	}
	return id.String()
}

// fallbackID builds a sortable id out of the millisecond clock plus a
// per-millisecond sequence counter, in case crypto/rand is ever
// unavailable to the uuid package.
func fallbackID() string {
	seqMu.Lock()
	now := NowMillis()
	if now == lastMs {
		lastSeq++
	} else {
		lastMs = now
		lastSeq = 0
	}
	seq := lastSeq
	seqMu.Unlock()

	u := uuid.New()
	return fmt.Sprintf("%013d-%05d-%s", now, seq, u.String())
}

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// FormatRFC3339 renders epoch milliseconds as an RFC3339 timestamp with
// millisecond precision, the canonical wire format for occurred_at_ms
// style fields when surfaced to a human-readable log or envelope.
func FormatRFC3339(epochMs int64) string {
	return time.UnixMilli(epochMs).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
