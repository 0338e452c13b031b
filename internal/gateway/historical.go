package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vol-core/internal/events"
	"vol-core/pkg/broker"
)

const historicalName = "historical"

// Store persists historical bars and reports watermarks.
type Store interface {
	WatermarkSource
	Store(ctx context.Context, kind broker.DataKind, ticker string, date time.Time, value float64) error
}

// HistoricalConfig holds connection and timing parameters.
type HistoricalConfig struct {
	Host     string
	Port     int
	ClientID int

	PollInterval time.Duration
	WaitCeiling  time.Duration
	Windows      DefaultWindows
	BarSize      string

	// Pacing caps reqHistoricalData; zero disables the limiter.
	Pacing rate.Limit
	Burst  int
}

func (c *HistoricalConfig) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.WaitCeiling <= 0 {
		c.WaitCeiling = 120 * time.Second
	}
	if c.Windows == nil {
		c.Windows = StandardWindows()
	}
	if c.BarSize == "" {
		c.BarSize = "1 day"
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
}

// HistoricalGateway issues historical data requests over one connection and
// correlates the interleaved replies back to their series.
type HistoricalGateway struct {
	cfg       HistoricalConfig
	transport broker.Transport
	store     Store
	bus       *events.Bus
	rec       Recorder

	ids     *IDAllocator
	pending *Table[int64, *Pending]
	gate    *SessionGate
	windows WindowPolicy
	limiter *rate.Limiter
	now     func() time.Time

	mu       sync.Mutex
	loopDone chan struct{}
}

// NewHistoricalGateway wires a gateway; call Start before Request.
func NewHistoricalGateway(t broker.Transport, store Store, bus *events.Bus, cfg HistoricalConfig) *HistoricalGateway {
	cfg.normalize()
	g := &HistoricalGateway{
		cfg:       cfg,
		transport: t,
		store:     store,
		bus:       bus,
		rec:       nopRecorder{},
		ids:       NewIDAllocator(0),
		pending:   NewTable[int64, *Pending](),
		gate:      NewSessionGate(),
		windows:   WindowPolicy{Source: store, Defaults: cfg.Windows},
		now:       time.Now,
	}
	if cfg.Pacing > 0 {
		g.limiter = rate.NewLimiter(cfg.Pacing, cfg.Burst)
	}
	return g
}

// SetRecorder attaches a metrics sink.
func (g *HistoricalGateway) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	g.rec = r
}

// Start connects and launches the event loop. The loop stops when ctx ends
// or the transport closes its stream.
func (g *HistoricalGateway) Start(ctx context.Context) error {
	if err := g.transport.Connect(ctx, g.cfg.Host, g.cfg.Port, g.cfg.ClientID); err != nil {
		return fmt.Errorf("connect historical gateway: %w", err)
	}
	done := make(chan struct{})
	g.mu.Lock()
	g.loopDone = done
	g.mu.Unlock()

	go func() {
		defer close(done)
		runLoop(ctx, historicalName, g.transport.Events(), g.handle, g.onPanic)
	}()
	log.Printf("historical gateway: connected to %s:%d as client %d (session %s)",
		g.cfg.Host, g.cfg.Port, g.cfg.ClientID, g.gate.SessionID())
	return nil
}

// Request issues one historical series request. ErrDuplicateRequest and
// ErrUpToDate mean nothing was sent and are not failures.
func (g *HistoricalGateway) Request(ctx context.Context, kind broker.DataKind, ticker string) (*Pending, error) {
	whatToShow, err := kind.WhatToShow()
	if err != nil {
		return nil, err
	}

	if !g.gate.ShouldIssue(kind, ticker) {
		log.Printf("historical gateway: %s already requested", DedupKey{Kind: kind, Ticker: ticker})
		g.skipped(kind, ticker, ErrDuplicateRequest)
		return nil, ErrDuplicateRequest
	}

	w, err := g.windows.Compute(ctx, kind, ticker, g.now())
	if err != nil {
		g.rec.RequestFailed(historicalName, "watermark")
		return nil, err
	}
	if w.Skip {
		log.Printf("historical gateway: %s,%s is up to date", kind, ticker)
		g.skipped(kind, ticker, ErrUpToDate)
		return nil, ErrUpToDate
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pacing %s,%s: %w", kind, ticker, err)
		}
	}

	id := g.ids.Next()
	p := newPending(id, ticker, kind, w.Duration())
	g.pending.Put(id, p)

	req := broker.NewHistoricalRequest(id, broker.StockContract(ticker), broker.HistoricalParams{
		Duration:   p.Duration,
		BarSize:    g.cfg.BarSize,
		WhatToShow: whatToShow,
		UseRTH:     1,
		FormatDate: 1,
	})
	if err := g.transport.Send(ctx, req); err != nil {
		if stale, ok := g.pending.Remove(id); ok {
			stale.resolve(err)
		}
		g.rec.RequestFailed(historicalName, "send")
		return nil, fmt.Errorf("send %s for %s,%s: %w", req.Kind, kind, ticker, err)
	}

	log.Printf("historical gateway: reqId %d %s,%s duration %s", id, kind, ticker, p.Duration)
	g.rec.RequestIssued(historicalName, string(kind))
	g.rec.Pending(historicalName, g.pending.Len())
	g.bus.Publish(events.TopicRequestIssued, events.RequestIssued{
		ReqID: id, Ticker: ticker, Kind: kind, Duration: p.Duration,
	})
	return p, nil
}

// RequestAll issues every kind for every ticker. Skips are not errors; the
// remaining failures are joined.
func (g *HistoricalGateway) RequestAll(ctx context.Context, tickers []string, kinds []broker.DataKind) ([]*Pending, error) {
	var (
		issued []*Pending
		errs   []error
	)
	for _, ticker := range tickers {
		for _, kind := range kinds {
			p, err := g.Request(ctx, kind, ticker)
			switch {
			case err == nil:
				issued = append(issued, p)
			case errors.Is(err, ErrDuplicateRequest), errors.Is(err, ErrUpToDate):
			case ctx.Err() != nil:
				return issued, errors.Join(append(errs, ctx.Err())...)
			default:
				errs = append(errs, err)
			}
		}
	}
	return issued, errors.Join(errs...)
}

// AwaitCompletion blocks until no request is pending. A non-positive
// timeout uses the configured ceiling.
func (g *HistoricalGateway) AwaitCompletion(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = g.cfg.WaitCeiling
	}
	err := awaitCondition(ctx, g.cfg.PollInterval, timeout, g.pending.Empty, g.pending.Emptied())
	if errors.Is(err, ErrTimedOut) {
		log.Printf("historical gateway: still waiting on reqIds %v", g.pending.Keys())
	}
	return err
}

// ResetSession clears the dedup gate so the next run can re-request every series.
func (g *HistoricalGateway) ResetSession() string {
	id := g.gate.Reset()
	g.bus.Publish(events.TopicSessionReset, id)
	return id
}

func (g *HistoricalGateway) SessionID() string {
	return g.gate.SessionID()
}

// PendingCount returns how many requests are outstanding.
func (g *HistoricalGateway) PendingCount() int {
	return g.pending.Len()
}

// IsPending reports whether id still awaits its end or error callback.
func (g *HistoricalGateway) IsPending(id int64) bool {
	_, ok := g.pending.Get(id)
	return ok
}

// PendingIDs lists outstanding request ids in ascending order.
func (g *HistoricalGateway) PendingIDs() []int64 {
	return g.pending.Keys()
}

// Close disconnects and waits briefly for the loop to observe it.
func (g *HistoricalGateway) Close() error {
	err := g.transport.Disconnect()
	g.mu.Lock()
	done := g.loopDone
	g.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			log.Printf("historical gateway: event loop did not stop")
		}
	}
	return err
}

func (g *HistoricalGateway) handle(ctx context.Context, ev broker.Event) {
	g.rec.Callback(historicalName, ev.Type)
	switch ev.Type {
	case broker.EventHistoricalData:
		g.onData(ctx, ev)
	case broker.EventHistoricalDataEnd:
		g.onSeriesEnd(ev)
	case broker.EventError:
		g.onError(ev)
	case broker.EventConnectionClosed:
		g.onDisconnected()
	}
}

func (g *HistoricalGateway) onData(ctx context.Context, ev broker.Event) {
	p, ok := g.pending.Get(ev.ReqID)
	if !ok {
		g.inconsistency(ev)
		return
	}
	p.bars.Add(1)

	date, err := ParseBarDate(ev.Date)
	if err != nil {
		g.requestError(p, fmt.Errorf("bar date: %w", err))
		return
	}
	if err := g.store.Store(ctx, p.Kind, p.Ticker, date, ev.Value); err != nil {
		g.requestError(p, fmt.Errorf("store %s,%s %s: %w", p.Kind, p.Ticker, ev.Date, err))
	}
}

func (g *HistoricalGateway) onSeriesEnd(ev broker.Event) {
	p, ok := g.pending.Remove(ev.ReqID)
	if !ok {
		return
	}
	latency := time.Since(p.Issued)
	p.resolve(nil)
	log.Printf("historical gateway: reqId %d %s,%s done (%d bars, %s)",
		p.ID, p.Kind, p.Ticker, p.Bars(), latency.Round(time.Millisecond))

	g.rec.RequestCompleted(string(p.Kind), latency)
	g.rec.Pending(historicalName, g.pending.Len())
	g.bus.Publish(events.TopicSeriesEnd, events.SeriesEnd{
		ReqID: p.ID, Ticker: p.Ticker, Kind: p.Kind, Bars: p.Bars(), Latency: latency,
	})
}

func (g *HistoricalGateway) onError(ev broker.Event) {
	p, ok := g.pending.Remove(ev.ReqID)
	if !ok {
		log.Printf("historical gateway: notice %d (id %d): %s", ev.Code, ev.ReqID, ev.Message)
		g.bus.Publish(events.TopicBrokerNotice, events.BrokerNotice{
			ReqID: ev.ReqID, Code: ev.Code, Message: ev.Message,
		})
		return
	}
	berr := &BrokerError{ReqID: ev.ReqID, Code: ev.Code, Message: ev.Message, Ticker: p.Ticker, Kind: p.Kind}
	p.resolve(berr)
	log.Printf("❌ historical gateway: %v", berr)

	g.rec.RequestFailed(historicalName, "broker")
	g.rec.Pending(historicalName, g.pending.Len())
	g.bus.Publish(events.TopicRequestError, events.RequestError{
		ReqID: p.ID, Ticker: p.Ticker, Kind: p.Kind, Err: berr,
	})
}

func (g *HistoricalGateway) onDisconnected() {
	stale := g.pending.Drain()
	for _, id := range sortedKeys(stale) {
		p := stale[id]
		p.resolve(ErrDisconnected)
		g.bus.Publish(events.TopicRequestError, events.RequestError{
			ReqID: p.ID, Ticker: p.Ticker, Kind: p.Kind, Err: ErrDisconnected,
		})
	}
	if len(stale) > 0 {
		log.Printf("historical gateway: disconnected with %d requests pending", len(stale))
	}
	g.rec.Pending(historicalName, 0)
	g.bus.Publish(events.TopicDisconnected, events.GatewayState{Gateway: historicalName, Stale: len(stale)})
}

func (g *HistoricalGateway) requestError(p *Pending, err error) {
	log.Printf("❌ historical gateway: reqId %d: %v", p.ID, err)
	g.rec.RequestFailed(historicalName, "store")
	g.bus.Publish(events.TopicRequestError, events.RequestError{
		ReqID: p.ID, Ticker: p.Ticker, Kind: p.Kind, Err: err,
	})
}

func (g *HistoricalGateway) inconsistency(ev broker.Event) {
	err := &UnknownCorrelationIDError{Gateway: historicalName, ID: ev.ReqID, Event: ev.Type}
	log.Printf("⚠️ %v", err)
	g.rec.Inconsistency(historicalName)
	g.bus.Publish(events.TopicInconsistency, events.Inconsistency{Gateway: historicalName, Err: err})
}

func (g *HistoricalGateway) skipped(kind broker.DataKind, ticker string, reason error) {
	g.bus.Publish(events.TopicRequestSkipped, events.RequestSkipped{
		Ticker: ticker, Kind: kind, Reason: reason.Error(),
	})
}

func (g *HistoricalGateway) onPanic(err *CallbackPanicError) {
	g.rec.RequestFailed(historicalName, "panic")
	g.bus.Publish(events.TopicRequestError, events.RequestError{ReqID: err.Event.ReqID, Err: err})
}

// ParseBarDate accepts daily bars ("20240102") and intraday bars
// ("20240102  15:30:00" or "20240102 15:30:00"), returning the UTC day.
func ParseBarDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > 8 {
		s = s[:8]
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
