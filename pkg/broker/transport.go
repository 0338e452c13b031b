package broker

import "context"

// EventType enumerates inbound callbacks.
type EventType string

const (
	EventHistoricalData    EventType = "historicalData"
	EventHistoricalDataEnd EventType = "historicalDataEnd"
	EventError             EventType = "error"
	EventTickPrice         EventType = "tickPrice"
	EventOrderStatus       EventType = "orderStatus"
	EventOpenOrder         EventType = "openOrder"
	EventNextValidID       EventType = "nextValidId"
	EventConnectionClosed  EventType = "connectionClosed"
)

// Event is one inbound callback. Only the fields relevant to Type are set.
type Event struct {
	Type  EventType `json:"type"`
	ReqID int64     `json:"reqId"`

	// historicalData
	Date  string  `json:"date,omitempty"`
	Value float64 `json:"value,omitempty"`
	// historicalDataEnd
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	// error
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// tickPrice
	TickType TickType `json:"tickType,omitempty"`
	Price    float64  `json:"price,omitempty"`

	// orderStatus / openOrder / nextValidId
	OrderID   int64   `json:"orderId,omitempty"`
	Status    string  `json:"status,omitempty"`
	Filled    float64 `json:"filled,omitempty"`
	Remaining float64 `json:"remaining,omitempty"`
	AvgPrice  float64 `json:"avgFillPrice,omitempty"`
}

// Transport is a single broker connection carrying interleaved replies for
// many outstanding requests. Events are delivered in the order the broker
// produced them; the channel is closed after a connectionClosed event.
type Transport interface {
	Connect(ctx context.Context, host string, port, clientID int) error
	Send(ctx context.Context, req Request) error
	Events() <-chan Event
	Disconnect() error
}
