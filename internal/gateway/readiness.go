package gateway

import (
	"sync"
	"sync/atomic"
)

// Readiness is the NOT_READY -> READY latch set by the first valid order id.
// The transition is irreversible.
type Readiness struct {
	set  atomic.Bool
	once sync.Once
	ch   chan struct{}
}

func newReadiness() *Readiness {
	return &Readiness{ch: make(chan struct{})}
}

// mark flips the latch and reports whether this call did it.
func (r *Readiness) mark() bool {
	first := false
	r.once.Do(func() {
		r.set.Store(true)
		close(r.ch)
		first = true
	})
	return first
}

// IsReady reports whether a valid order id has been received.
func (r *Readiness) IsReady() bool {
	return r.set.Load()
}

// C is closed when the gateway becomes ready.
func (r *Readiness) C() <-chan struct{} {
	return r.ch
}
