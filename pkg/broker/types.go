package broker

import "fmt"

// NoRequestID is the id the broker attaches to connection-level notices.
const NoRequestID int64 = -1

// DataKind selects which historical series a request pulls.
type DataKind string

const (
	KindImpliedVol    DataKind = "IV"
	KindHistoricalVol DataKind = "HV"
	KindPrice         DataKind = "STOCK"
)

// Kinds lists every supported series kind in fetch order.
var Kinds = []DataKind{KindImpliedVol, KindHistoricalVol, KindPrice}

// WhatToShow maps a kind to the broker's historical data type.
func (k DataKind) WhatToShow() (string, error) {
	switch k {
	case KindImpliedVol:
		return "OPTION_IMPLIED_VOLATILITY", nil
	case KindHistoricalVol:
		return "HISTORICAL_VOLATILITY", nil
	case KindPrice:
		return "ASK", nil
	default:
		return "", fmt.Errorf("unknown data kind %q", string(k))
	}
}

// ParseDataKind accepts the stored names plus a few lowercase aliases.
func ParseDataKind(s string) (DataKind, error) {
	switch s {
	case "IV", "iv":
		return KindImpliedVol, nil
	case "HV", "hv":
		return KindHistoricalVol, nil
	case "STOCK", "stock", "PRICE", "price":
		return KindPrice, nil
	}
	return "", fmt.Errorf("unknown data kind %q", s)
}

// Action denotes order side.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Valid reports whether the action is BUY or SELL.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Contract describes the instrument a request refers to.
type Contract struct {
	Symbol   string `json:"symbol"`
	SecType  string `json:"secType"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

// StockContract builds the SMART-routed USD stock contract used for every ticker.
func StockContract(symbol string) Contract {
	return Contract{
		Symbol:   symbol,
		SecType:  "STK",
		Exchange: "SMART",
		Currency: "USD",
	}
}

// TickType is the broker's numeric tick field id.
type TickType int

const (
	TickBid   TickType = 1
	TickAsk   TickType = 2
	TickLast  TickType = 4
	TickHigh  TickType = 6
	TickLow   TickType = 7
	TickClose TickType = 9
	TickOpen  TickType = 14
)

var tickNames = map[TickType]string{
	TickBid:   "BID",
	TickAsk:   "ASK",
	TickLast:  "LAST",
	TickHigh:  "HIGH",
	TickLow:   "LOW",
	TickClose: "CLOSE",
	TickOpen:  "OPEN",
}

func (t TickType) String() string {
	if n, ok := tickNames[t]; ok {
		return n
	}
	return fmt.Sprintf("TICK_%d", int(t))
}

// RequestKind names an outbound request.
type RequestKind string

const (
	ReqHistoricalData RequestKind = "reqHistoricalData"
	ReqMktData        RequestKind = "reqMktData"
	CancelMktData     RequestKind = "cancelMktData"
	PlaceOrder        RequestKind = "placeOrder"
	ReqIDs            RequestKind = "reqIds"
)

// Request is one outbound call. ID is a request id or, for placeOrder, an order id.
type Request struct {
	Kind     RequestKind
	ID       int64
	Contract *Contract
	Params   map[string]any
}

// HistoricalParams are the reqHistoricalData arguments besides id and contract.
type HistoricalParams struct {
	EndDateTime string
	Duration    string
	BarSize     string
	WhatToShow  string
	UseRTH      int
	FormatDate  int
}

// NewHistoricalRequest builds a reqHistoricalData call.
func NewHistoricalRequest(id int64, c Contract, p HistoricalParams) Request {
	return Request{
		Kind:     ReqHistoricalData,
		ID:       id,
		Contract: &c,
		Params: map[string]any{
			"endDateTime": p.EndDateTime,
			"duration":    p.Duration,
			"barSize":     p.BarSize,
			"whatToShow":  p.WhatToShow,
			"useRTH":      p.UseRTH,
			"formatDate":  p.FormatDate,
		},
	}
}

// NewMarketDataRequest builds a streaming reqMktData call.
func NewMarketDataRequest(id int64, c Contract) Request {
	return Request{
		Kind:     ReqMktData,
		ID:       id,
		Contract: &c,
		Params: map[string]any{
			"genericTickList":    "",
			"snapshot":           false,
			"regulatorySnapshot": false,
		},
	}
}

// NewCancelMarketDataRequest cancels a streaming subscription.
func NewCancelMarketDataRequest(id int64) Request {
	return Request{Kind: CancelMktData, ID: id}
}

// NewLimitOrderRequest builds a LMT placeOrder call.
func NewLimitOrderRequest(orderID int64, c Contract, action Action, qty, price float64) Request {
	return Request{
		Kind:     PlaceOrder,
		ID:       orderID,
		Contract: &c,
		Params: map[string]any{
			"orderType":     "LMT",
			"action":        string(action),
			"totalQuantity": qty,
			"lmtPrice":      price,
		},
	}
}

// NewIDsRequest asks the broker for the next valid order id.
func NewIDsRequest() Request {
	return Request{Kind: ReqIDs, ID: NoRequestID, Params: map[string]any{"numIds": -1}}
}
