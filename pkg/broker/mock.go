package broker

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotConnected is returned by Send before Connect or after Disconnect.
var ErrNotConnected = errors.New("broker: not connected")

// Responder produces the events a request would trigger on a real broker.
type Responder func(req Request) []Event

// MockTransport is an in-process Transport. It records every request and lets
// callers push events as if the broker had sent them.
type MockTransport struct {
	Responder Responder
	SendErr   error

	mu        sync.Mutex
	events    chan Event
	sent      []Request
	connected bool
	closed    bool
	host      string
	port      int
	clientID  int
	tickers   map[int64]chan struct{}
}

// NewMockTransport creates an unconnected mock with a buffered event stream.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		events:  make(chan Event, 1024),
		tickers: make(map[int64]chan struct{}),
	}
}

func (m *MockTransport) Connect(_ context.Context, host string, port, clientID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	m.connected = true
	m.host, m.port, m.clientID = host, port, clientID
	return nil
}

func (m *MockTransport) Send(_ context.Context, req Request) error {
	m.mu.Lock()
	if !m.connected || m.closed {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if m.SendErr != nil {
		err := m.SendErr
		m.mu.Unlock()
		return err
	}
	m.sent = append(m.sent, req)
	responder := m.Responder
	m.mu.Unlock()

	if responder != nil {
		for _, ev := range responder(req) {
			m.Inject(ev)
		}
	}
	return nil
}

func (m *MockTransport) Events() <-chan Event {
	return m.events
}

// Disconnect emits connectionClosed and closes the event stream. Safe to call twice.
func (m *MockTransport) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	for id, stop := range m.tickers {
		close(stop)
		delete(m.tickers, id)
	}
	m.events <- Event{Type: EventConnectionClosed, ReqID: NoRequestID}
	m.closed = true
	m.connected = false
	close(m.events)
	return nil
}

// Inject delivers an event to the consumer. Events after Disconnect are dropped.
func (m *MockTransport) Inject(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.events <- ev
}

// Sent returns a copy of every request sent so far.
func (m *MockTransport) Sent() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentOfKind filters Sent by request kind.
func (m *MockTransport) SentOfKind(kind RequestKind) []Request {
	var out []Request
	for _, r := range m.Sent() {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// ClientID returns the client id passed to Connect.
func (m *MockTransport) ClientID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientID
}

// NewSyntheticTransport returns a mock that answers like a broker for local
// development: random-walk daily bars for historical requests, a streaming
// random walk for market data and immediate fills for limit orders.
func NewSyntheticTransport(tickInterval time.Duration) *MockTransport {
	m := NewMockTransport()
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	m.Responder = func(req Request) []Event {
		switch req.Kind {
		case ReqIDs:
			return []Event{{Type: EventNextValidID, ReqID: NoRequestID, OrderID: 1}}
		case ReqHistoricalData:
			return syntheticBars(req, time.Now())
		case ReqMktData:
			m.startTicker(req.ID, tickInterval)
		case CancelMktData:
			m.stopTicker(req.ID)
		case PlaceOrder:
			qty, _ := req.Params["totalQuantity"].(float64)
			return []Event{
				{Type: EventOrderStatus, ReqID: req.ID, OrderID: req.ID, Status: "Submitted", Remaining: qty},
				{Type: EventOrderStatus, ReqID: req.ID, OrderID: req.ID, Status: "Filled", Filled: qty},
			}
		}
		return nil
	}
	return m
}

func (m *MockTransport) startTicker(id int64, interval time.Duration) {
	stop := make(chan struct{})
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.tickers[id] = stop
	m.mu.Unlock()

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		price := 100.0
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				price += (rand.Float64()*2 - 1) * 0.5
				m.Inject(Event{Type: EventTickPrice, ReqID: id, TickType: TickLast, Price: price})
			}
		}
	}()
}

func (m *MockTransport) stopTicker(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stop, ok := m.tickers[id]; ok {
		close(stop)
		delete(m.tickers, id)
	}
}

// syntheticBars answers a historical request with one bar per weekday in the
// requested duration followed by the end marker.
func syntheticBars(req Request, now time.Time) []Event {
	duration, _ := req.Params["duration"].(string)
	whatToShow, _ := req.Params["whatToShow"].(string)
	days := durationDays(duration)

	value := 0.25
	step := 0.01
	if whatToShow == "ASK" {
		value, step = 100, 1.5
	}

	var out []Event
	start := now.AddDate(0, 0, -days+1)
	for d := start; !d.After(now); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		value += (rand.Float64()*2 - 1) * step
		if value <= 0 {
			value = step
		}
		out = append(out, Event{Type: EventHistoricalData, ReqID: req.ID, Date: d.Format("20060102"), Value: value})
	}
	out = append(out, Event{
		Type:  EventHistoricalDataEnd,
		ReqID: req.ID,
		Start: start.Format("20060102"),
		End:   now.Format("20060102"),
	})
	return out
}

func durationDays(s string) int {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 1
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n <= 0 {
		log.Printf("mock broker: bad duration %q", s)
		return 1
	}
	switch parts[1] {
	case "Y":
		return n * 365
	case "M":
		return n * 30
	case "W":
		return n * 7
	default:
		return n
	}
}
