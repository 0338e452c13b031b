package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"vol-core/internal/events"
	"vol-core/pkg/broker"
)

const liveName = "live"

// MarketDataIDBase offsets market-data request ids above any order id the
// broker hands out. Error events carry a single id, so the two spaces must
// not overlap.
const MarketDataIDBase int64 = 1 << 30

// Monitor receives the ticks and order updates for one instrument.
type Monitor interface {
	Contract() broker.Contract
	OnPriceChange(tickType broker.TickType, price float64)
	OnOrderChange(orderID int64, status string, remaining float64)
}

// LiveConfig holds connection and timing parameters.
type LiveConfig struct {
	Host     string
	Port     int
	ClientID int

	PollInterval time.Duration
	ReadyCeiling time.Duration
	DrainGrace   time.Duration
}

func (c *LiveConfig) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.ReadyCeiling <= 0 {
		c.ReadyCeiling = 120 * time.Second
	}
	if c.DrainGrace < 0 {
		c.DrainGrace = 0
	}
}

// LiveGateway routes market-data ticks and order status updates to the
// monitor that asked for them. Market-data ids and order ids come from
// separate, disjoint counters; the order counter is only usable once the
// broker has sent a valid order id.
type LiveGateway struct {
	cfg       LiveConfig
	transport broker.Transport
	bus       *events.Bus
	rec       Recorder

	reqIDs   *IDAllocator
	orderIDs *IDAllocator
	subs     *Table[int64, Monitor]
	orders   *Table[int64, Monitor]
	ready    *Readiness

	mu         sync.Mutex
	loopDone   chan struct{}
	loopCancel context.CancelFunc
}

// NewLiveGateway wires a gateway; call Start before subscribing.
func NewLiveGateway(t broker.Transport, bus *events.Bus, cfg LiveConfig) *LiveGateway {
	cfg.normalize()
	return &LiveGateway{
		cfg:       cfg,
		transport: t,
		bus:       bus,
		rec:       nopRecorder{},
		reqIDs:    NewIDAllocator(MarketDataIDBase),
		orderIDs:  NewIDAllocator(0),
		subs:      NewTable[int64, Monitor](),
		orders:    NewTable[int64, Monitor](),
		ready:     newReadiness(),
	}
}

// SetRecorder attaches a metrics sink.
func (g *LiveGateway) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	g.rec = r
}

// Start connects, launches the loop, asks for the next valid order id and
// waits for it. The loop outlives ctx so callbacks arriving during Close's
// drain grace are still dispatched; Close stops it.
func (g *LiveGateway) Start(ctx context.Context) error {
	if err := g.transport.Connect(ctx, g.cfg.Host, g.cfg.Port, g.cfg.ClientID); err != nil {
		return fmt.Errorf("connect live gateway: %w", err)
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	g.mu.Lock()
	g.loopDone = done
	g.loopCancel = cancel
	g.mu.Unlock()

	go func() {
		defer close(done)
		runLoop(loopCtx, liveName, g.transport.Events(), g.handle, g.onPanic)
	}()
	log.Printf("live gateway: connected to %s:%d as client %d", g.cfg.Host, g.cfg.Port, g.cfg.ClientID)

	if err := g.transport.Send(ctx, broker.NewIDsRequest()); err != nil {
		return fmt.Errorf("request order ids: %w", err)
	}
	return g.WaitReady(ctx)
}

// WaitReady polls the readiness flag until it is set or the ceiling elapses.
func (g *LiveGateway) WaitReady(ctx context.Context) error {
	err := awaitCondition(ctx, g.cfg.PollInterval, g.cfg.ReadyCeiling, g.ready.IsReady, g.ready.C())
	if err != nil {
		return fmt.Errorf("live gateway readiness: %w", err)
	}
	return nil
}

// IsReady reports whether orders can be placed.
func (g *LiveGateway) IsReady() bool {
	return g.ready.IsReady()
}

// Subscribe starts streaming market data for m and returns its request id.
// Subscribing the same monitor twice opens two subscriptions.
func (g *LiveGateway) Subscribe(ctx context.Context, m Monitor) (int64, error) {
	id := g.reqIDs.Next()
	g.subs.Put(id, m)
	if err := g.transport.Send(ctx, broker.NewMarketDataRequest(id, m.Contract())); err != nil {
		g.subs.Remove(id)
		g.rec.RequestFailed(liveName, "send")
		return 0, fmt.Errorf("subscribe %s: %w", m.Contract().Symbol, err)
	}
	g.rec.RequestIssued(liveName, string(broker.ReqMktData))
	g.rec.Pending(liveName, g.subs.Len())
	log.Printf("live gateway: reqId %d streaming %s", id, m.Contract().Symbol)
	return id, nil
}

// Unsubscribe cancels one subscription.
func (g *LiveGateway) Unsubscribe(ctx context.Context, id int64) error {
	if _, ok := g.subs.Remove(id); !ok {
		return fmt.Errorf("unsubscribe: no subscription with reqId %d", id)
	}
	g.rec.Pending(liveName, g.subs.Len())
	return g.transport.Send(ctx, broker.NewCancelMarketDataRequest(id))
}

// Subscriptions lists live market-data request ids.
func (g *LiveGateway) Subscriptions() []int64 {
	return g.subs.Keys()
}

// PlaceOrder allocates an order id and sends a limit order for m's contract.
func (g *LiveGateway) PlaceOrder(ctx context.Context, m Monitor, action broker.Action, qty, price float64) (int64, error) {
	if !g.ready.IsReady() {
		return 0, ErrNotReady
	}
	if !action.Valid() {
		return 0, fmt.Errorf("order action %q", action)
	}
	id := g.orderIDs.Next()
	g.orders.Put(id, m)
	if err := g.send(ctx, id, m, action, qty, price); err != nil {
		g.orders.Remove(id)
		return 0, err
	}
	return id, nil
}

// PlaceOrderWithID sends a limit order under an explicit id, typically to
// modify an existing order. An id that is already mapped keeps its monitor.
func (g *LiveGateway) PlaceOrderWithID(ctx context.Context, id int64, m Monitor, action broker.Action, qty, price float64) error {
	if !action.Valid() {
		return fmt.Errorf("order action %q", action)
	}
	added := g.orders.PutIfAbsent(id, m)
	g.orderIDs.RaiseTo(id + 1)
	if err := g.send(ctx, id, m, action, qty, price); err != nil {
		if added {
			g.orders.Remove(id)
		}
		return err
	}
	return nil
}

func (g *LiveGateway) send(ctx context.Context, id int64, m Monitor, action broker.Action, qty, price float64) error {
	c := m.Contract()
	if err := g.transport.Send(ctx, broker.NewLimitOrderRequest(id, c, action, qty, price)); err != nil {
		g.rec.RequestFailed(liveName, "send")
		return fmt.Errorf("place order %d %s %v %s @ %v: %w", id, action, qty, c.Symbol, price, err)
	}
	g.rec.RequestIssued(liveName, string(broker.PlaceOrder))
	log.Printf("live gateway: order %d %s %v %s @ %v", id, action, qty, c.Symbol, price)
	return nil
}

// Close cancels every subscription, gives the broker DrainGrace to settle
// and disconnects.
func (g *LiveGateway) Close(ctx context.Context) error {
	for id := range g.subs.Drain() {
		if err := g.transport.Send(ctx, broker.NewCancelMarketDataRequest(id)); err != nil {
			log.Printf("live gateway: cancel reqId %d: %v", id, err)
		}
	}
	g.rec.Pending(liveName, 0)

	if g.cfg.DrainGrace > 0 {
		t := time.NewTimer(g.cfg.DrainGrace)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	err := g.transport.Disconnect()
	g.mu.Lock()
	done, cancel := g.loopDone, g.loopCancel
	g.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			log.Printf("live gateway: event loop did not stop")
		}
	}
	if cancel != nil {
		cancel()
	}
	return err
}

func (g *LiveGateway) handle(_ context.Context, ev broker.Event) {
	g.rec.Callback(liveName, ev.Type)
	switch ev.Type {
	case broker.EventTickPrice:
		g.onTick(ev)
	case broker.EventOrderStatus:
		g.onOrderStatus(ev)
	case broker.EventNextValidID:
		g.onNextValidID(ev)
	case broker.EventError:
		g.onError(ev)
	case broker.EventConnectionClosed:
		g.onDisconnected()
	}
}

func (g *LiveGateway) onTick(ev broker.Event) {
	m, ok := g.subs.Get(ev.ReqID)
	if !ok {
		g.inconsistency(ev.ReqID, ev.Type)
		return
	}
	m.OnPriceChange(ev.TickType, ev.Price)
	symbol := m.Contract().Symbol
	g.rec.TickRouted(symbol)
	g.bus.Publish(events.TopicPriceTick, events.PriceTick{
		ReqID: ev.ReqID, Symbol: symbol, TickType: ev.TickType, Price: ev.Price, At: time.Now(),
	})
}

func (g *LiveGateway) onOrderStatus(ev broker.Event) {
	id := ev.OrderID
	if id == 0 {
		id = ev.ReqID
	}
	m, ok := g.orders.Get(id)
	if !ok {
		g.inconsistency(id, ev.Type)
		return
	}
	m.OnOrderChange(id, ev.Status, ev.Remaining)
	g.bus.Publish(events.TopicOrderStatus, events.OrderStatus{
		OrderID: id, Symbol: m.Contract().Symbol, Status: ev.Status, Remaining: ev.Remaining,
	})
}

func (g *LiveGateway) onNextValidID(ev broker.Event) {
	g.orderIDs.RaiseTo(ev.OrderID)
	if ev.OrderID >= g.reqIDs.Current() {
		log.Printf("⚠️ live gateway: order id %d reached the market-data id range", ev.OrderID)
		g.reqIDs.RaiseTo(ev.OrderID + MarketDataIDBase)
	}
	if g.ready.mark() {
		log.Printf("live gateway: ready, next order id %d", ev.OrderID)
		g.bus.Publish(events.TopicGatewayReady, events.GatewayState{Gateway: liveName, OrderID: ev.OrderID})
	}
}

func (g *LiveGateway) onError(ev broker.Event) {
	if m, ok := g.subs.Remove(ev.ReqID); ok {
		g.requestError(ev, m)
		return
	}
	if m, ok := g.orders.Remove(ev.ReqID); ok {
		g.requestError(ev, m)
		return
	}
	log.Printf("live gateway: notice %d (id %d): %s", ev.Code, ev.ReqID, ev.Message)
	g.bus.Publish(events.TopicBrokerNotice, events.BrokerNotice{
		ReqID: ev.ReqID, Code: ev.Code, Message: ev.Message,
	})
}

func (g *LiveGateway) requestError(ev broker.Event, m Monitor) {
	berr := &BrokerError{ReqID: ev.ReqID, Code: ev.Code, Message: ev.Message}
	log.Printf("❌ live gateway: %s: %v", m.Contract().Symbol, berr)
	g.rec.RequestFailed(liveName, "broker")
	g.rec.Pending(liveName, g.subs.Len())
	g.bus.Publish(events.TopicRequestError, events.RequestError{
		ReqID: ev.ReqID, Ticker: m.Contract().Symbol, Err: berr,
	})
}

func (g *LiveGateway) onDisconnected() {
	stale := len(g.subs.Drain()) + len(g.orders.Drain())
	g.rec.Pending(liveName, 0)
	log.Printf("live gateway: disconnected (%d routes dropped)", stale)
	g.bus.Publish(events.TopicDisconnected, events.GatewayState{Gateway: liveName, Stale: stale})
}

func (g *LiveGateway) inconsistency(id int64, typ broker.EventType) {
	err := &UnknownCorrelationIDError{Gateway: liveName, ID: id, Event: typ}
	log.Printf("⚠️ %v", err)
	g.rec.Inconsistency(liveName)
	g.bus.Publish(events.TopicInconsistency, events.Inconsistency{Gateway: liveName, Err: err})
}

func (g *LiveGateway) onPanic(err *CallbackPanicError) {
	g.rec.RequestFailed(liveName, "panic")
	g.bus.Publish(events.TopicRequestError, events.RequestError{ReqID: err.Event.ReqID, Err: err})
}
