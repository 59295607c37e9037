package events

import (
	"sync"

	"daoescrow/core/types"
)

const defaultRingCapacity = 256

// Ring retains the most recent event payloads in a bounded buffer. It backs
// the gateway's facts feed so indexers that missed a live emission can catch
// up on recent history. Events without a payload are dropped.
type Ring struct {
	mu  sync.Mutex
	buf []*types.Event
	cap int
}

// NewRing creates a ring holding up to capacity payloads. A non-positive
// capacity falls back to the default.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &Ring{cap: capacity}
}

// Emit implements the Emitter interface.
func (r *Ring) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	payloader, ok := evt.(Payloader)
	if !ok {
		return
	}
	payload := payloader.Event()
	if payload == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, payload)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
}

// Recent returns the retained payloads, oldest first. The returned slice is a
// copy and safe for the caller to hold.
func (r *Ring) Recent() []*types.Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Event, len(r.buf))
	copy(out, r.buf)
	return out
}
