package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"vol-core/internal/events"
	"vol-core/pkg/broker"
)

type point struct {
	Date  time.Time
	Value float64
}

// memStore is an in-memory Store.
type memStore struct {
	mu         sync.Mutex
	watermarks map[DedupKey]time.Time
	points     map[DedupKey][]point
	storeErr   error
	panicOn    float64
}

func newMemStore() *memStore {
	return &memStore{
		watermarks: make(map[DedupKey]time.Time),
		points:     make(map[DedupKey][]point),
	}
}

func (s *memStore) LastStoredDate(_ context.Context, kind broker.DataKind, ticker string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.watermarks[DedupKey{Kind: kind, Ticker: ticker}]
	return t, ok, nil
}

func (s *memStore) Store(_ context.Context, kind broker.DataKind, ticker string, date time.Time, value float64) error {
	if s.panicOn != 0 && value == s.panicOn {
		panic("bad bar")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return s.storeErr
	}
	k := DedupKey{Kind: kind, Ticker: ticker}
	s.points[k] = append(s.points[k], point{Date: date, Value: value})
	return nil
}

func (s *memStore) count(kind broker.DataKind, ticker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points[DedupKey{Kind: kind, Ticker: ticker}])
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// recv waits for one payload on ch.
func recv(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// barrier blocks until the loop has processed every event injected so far.
// Events are handled in order, so once a notice injected last is published
// everything before it has been dispatched.
func barrier(t *testing.T, tr *broker.MockTransport, bus *events.Bus) {
	t.Helper()
	ch, unsub := bus.Subscribe(events.TopicBrokerNotice, 16)
	defer unsub()
	tr.Inject(broker.Event{Type: broker.EventError, ReqID: broker.NoRequestID, Code: 2104, Message: "barrier"})
	for {
		n, ok := recv(t, ch).(events.BrokerNotice)
		if ok && n.Message == "barrier" {
			return
		}
	}
}

func expectNone(t *testing.T, ch <-chan any) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected event %+v", v)
	default:
	}
}
