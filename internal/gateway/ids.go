package gateway

import "sync/atomic"

// IDAllocator hands out strictly increasing ids, safe for concurrent use.
// The first id returned is base+1; ids are never reused.
type IDAllocator struct {
	last atomic.Int64
}

// NewIDAllocator starts a counter at base.
func NewIDAllocator(base int64) *IDAllocator {
	a := &IDAllocator{}
	a.last.Store(base)
	return a
}

// Next allocates the next id.
func (a *IDAllocator) Next() int64 {
	return a.last.Add(1)
}

// Current returns the last id handed out.
func (a *IDAllocator) Current() int64 {
	return a.last.Load()
}

// RaiseTo moves the counter so the next id is at least floor. It never lowers it.
func (a *IDAllocator) RaiseTo(floor int64) {
	for {
		cur := a.last.Load()
		if cur >= floor-1 {
			return
		}
		if a.last.CompareAndSwap(cur, floor-1) {
			return
		}
	}
}
