package midi

import "sync/atomic"

var (
	eventIDCounter atomic.Int64
	serialCounter  atomic.Uint64
)

// NextEventID allocates a process-wide unique event id.
func NextEventID() int64 {
	return eventIDCounter.Add(1)
}

// EnsureEventIDAbove bumps the allocator so ids loaded from saved state are
// never handed out again.
func EnsureEventIDAbove(n int64) {
	for {
		cur := eventIDCounter.Load()
		if cur >= n {
			return
		}
		if eventIDCounter.CompareAndSwap(cur, n) {
			return
		}
	}
}

// serials order events with identical keys by creation.
func nextSerial() uint64 {
	return serialCounter.Add(1)
}
