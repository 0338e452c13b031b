package persistence

import (
	"context"
	"errors"
	"log"

	"vol-core/internal/events"
	"vol-core/pkg/db"
)

// OrderJournal keeps the orders table in step with the live gateway: callers
// record what they placed and the journal applies status updates from the bus.
type OrderJournal struct {
	log       *db.OrderLog
	sessionID string
}

// NewOrderJournal writes into database's order log, tagging rows with sessionID.
func NewOrderJournal(database *db.Database, sessionID string) *OrderJournal {
	return &OrderJournal{log: database.Orders(), sessionID: sessionID}
}

// Record stores a placed order.
func (j *OrderJournal) Record(ctx context.Context, o db.Order) error {
	if o.SessionID == "" {
		o.SessionID = j.sessionID
	}
	return j.log.RecordOrder(ctx, o)
}

// Run applies order status events until ctx ends or the bus closes the
// subscription.
func (j *OrderJournal) Run(ctx context.Context, bus *events.Bus) {
	ch, unsub := bus.Subscribe(events.TopicOrderStatus, 256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			st, ok := msg.(events.OrderStatus)
			if !ok {
				continue
			}
			err := j.log.UpdateOrderStatus(ctx, st.OrderID, st.Status, st.Remaining)
			if errors.Is(err, db.ErrNotFound) {
				log.Printf("order journal: status %s for unrecorded order %d", st.Status, st.OrderID)
				continue
			}
			if err != nil {
				log.Printf("❌ order journal: %v", err)
			}
		}
	}
}

// Orders lists the most recent orders.
func (j *OrderJournal) Orders(ctx context.Context, limit int) ([]db.Order, error) {
	return j.log.ListOrders(ctx, limit)
}
