// Package quote holds the live-side monitors: one Watcher per streamed
// instrument, collected in a Book.
package quote

import (
	"log"
	"sort"
	"sync"
	"time"

	"vol-core/pkg/broker"
)

// OrderState is the latest status the broker reported for one order.
type OrderState struct {
	OrderID   int64     `json:"order_id"`
	Status    string    `json:"status"`
	Remaining float64   `json:"remaining"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is a copy of a Watcher's state.
type Snapshot struct {
	Symbol    string             `json:"symbol"`
	Prices    map[string]float64 `json:"prices"`
	Ticks     uint64             `json:"ticks"`
	UpdatedAt time.Time          `json:"updated_at"`
	Orders    []OrderState       `json:"orders"`
}

// Watcher keeps the last price per tick type and the last state per order
// for one contract.
type Watcher struct {
	contract broker.Contract
	verbose  bool

	mu      sync.RWMutex
	prices  map[broker.TickType]float64
	ticks   uint64
	updated time.Time
	orders  map[int64]OrderState
}

// NewWatcher creates a watcher for c. Verbose watchers log every change.
func NewWatcher(c broker.Contract, verbose bool) *Watcher {
	return &Watcher{
		contract: c,
		verbose:  verbose,
		prices:   make(map[broker.TickType]float64),
		orders:   make(map[int64]OrderState),
	}
}

func (w *Watcher) Contract() broker.Contract {
	return w.contract
}

func (w *Watcher) OnPriceChange(tickType broker.TickType, price float64) {
	w.mu.Lock()
	w.prices[tickType] = price
	w.ticks++
	w.updated = time.Now()
	w.mu.Unlock()
	if w.verbose {
		log.Printf("%s %s %.2f", w.contract.Symbol, tickType, price)
	}
}

func (w *Watcher) OnOrderChange(orderID int64, status string, remaining float64) {
	w.mu.Lock()
	w.orders[orderID] = OrderState{OrderID: orderID, Status: status, Remaining: remaining, UpdatedAt: time.Now()}
	w.mu.Unlock()
	log.Printf("%s order %d %s (remaining %v)", w.contract.Symbol, orderID, status, remaining)
}

// Price returns the last price seen for tickType.
func (w *Watcher) Price(tickType broker.TickType) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.prices[tickType]
	return p, ok
}

// Order returns the last reported state of an order.
func (w *Watcher) Order(orderID int64) (OrderState, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	o, ok := w.orders[orderID]
	return o, ok
}

// Snapshot copies the watcher state.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := Snapshot{
		Symbol:    w.contract.Symbol,
		Prices:    make(map[string]float64, len(w.prices)),
		Ticks:     w.ticks,
		UpdatedAt: w.updated,
		Orders:    make([]OrderState, 0, len(w.orders)),
	}
	for t, p := range w.prices {
		s.Prices[t.String()] = p
	}
	for _, o := range w.orders {
		s.Orders = append(s.Orders, o)
	}
	sort.Slice(s.Orders, func(i, j int) bool { return s.Orders[i].OrderID < s.Orders[j].OrderID })
	return s
}

// Book indexes watchers by symbol.
type Book struct {
	mu       sync.RWMutex
	watchers map[string]*Watcher
}

// NewBook builds a watcher for every monitor in the list.
func NewBook(monitors []MonitorConfig, verbose bool) *Book {
	b := &Book{watchers: make(map[string]*Watcher, len(monitors))}
	for _, m := range monitors {
		b.Add(NewWatcher(m.Contract(), verbose))
	}
	return b
}

// Add registers w, replacing any watcher for the same symbol.
func (b *Book) Add(w *Watcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers[w.contract.Symbol] = w
}

// Get looks a watcher up by symbol.
func (b *Book) Get(symbol string) (*Watcher, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.watchers[symbol]
	return w, ok
}

// All returns the watchers sorted by symbol.
func (b *Book) All() []*Watcher {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Watcher, 0, len(b.watchers))
	for _, w := range b.watchers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].contract.Symbol < out[j].contract.Symbol })
	return out
}

// Snapshots returns every watcher's state sorted by symbol.
func (b *Book) Snapshots() []Snapshot {
	all := b.All()
	out := make([]Snapshot, 0, len(all))
	for _, w := range all {
		out = append(out, w.Snapshot())
	}
	return out
}
