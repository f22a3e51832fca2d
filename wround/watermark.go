package wround

import "sync/atomic"

// Watermark is the highest round a node has verified as a follower
// or finalized as a leader. It never decreases.
//
// The zero value is ready to use.
type Watermark struct {
	v atomic.Uint64
}

func (w *Watermark) Load() uint64 {
	return w.v.Load()
}

// Advance raises the watermark to round and reports whether it moved.
func (w *Watermark) Advance(round uint64) bool {
	for {
		cur := w.v.Load()
		if round <= cur {
			return false
		}
		if w.v.CompareAndSwap(cur, round) {
			return true
		}
	}
}
