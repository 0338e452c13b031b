package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"vol-core/pkg/broker"
)

// Pending is an outstanding historical request. It is owned by the
// correlation table until its terminal callback removes it; the caller keeps
// the pointer as a completion handle.
type Pending struct {
	ID       int64
	Ticker   string
	Kind     broker.DataKind
	Duration string
	Issued   time.Time

	bars atomic.Int64
	once sync.Once
	done chan struct{}
	err  error
}

func newPending(id int64, ticker string, kind broker.DataKind, duration string) *Pending {
	return &Pending{
		ID:       id,
		Ticker:   ticker,
		Kind:     kind,
		Duration: duration,
		Issued:   time.Now(),
		done:     make(chan struct{}),
	}
}

// Done is closed once the request completes or fails.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err is nil on success; only meaningful after Done is closed.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the request resolves or ctx ends.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Bars counts data callbacks routed to this request so far.
func (p *Pending) Bars() int {
	return int(p.bars.Load())
}

func (p *Pending) resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}
