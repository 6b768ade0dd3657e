package zenoh

import "sync/atomic"

// idAllocator hands out small sequential identifiers for locally declared
// resources, subscribers, and queryables.
//
// Unlike a BFD discriminator, a zenoh resource id has no
// unpredictable-across-restarts requirement to satisfy — it only needs to
// be unique within the session — so a monotonic counter is sufficient.
type idAllocator struct {
	next atomic.Uint64
}

// Next returns the next id, starting at 1 — 0 is never issued, leaving it
// free for callers that want a sentinel "no id" value.
func (a *idAllocator) Next() uint64 {
	return a.next.Add(1)
}
