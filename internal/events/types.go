package events

import (
	"time"

	"vol-core/pkg/broker"
)

// Topic enumerates what the gateways report.
type Topic string

const (
	TopicSeriesEnd      Topic = "series.end"
	TopicRequestError   Topic = "request.error"
	TopicBrokerNotice   Topic = "broker.notice"
	TopicInconsistency  Topic = "routing.inconsistency"
	TopicPriceTick      Topic = "price.tick"
	TopicOrderStatus    Topic = "order.status"
	TopicGatewayReady   Topic = "gateway.ready"
	TopicDisconnected   Topic = "gateway.disconnected"
	TopicSessionReset   Topic = "session.reset"
	TopicRequestIssued  Topic = "request.issued"
	TopicRequestSkipped Topic = "request.skipped"
)

// SeriesEnd reports that a historical request completed.
type SeriesEnd struct {
	ReqID   int64
	Ticker  string
	Kind    broker.DataKind
	Bars    int
	Latency time.Duration
}

// RequestError reports a failure scoped to a known request.
type RequestError struct {
	ReqID  int64
	Ticker string
	Kind   broker.DataKind
	Err    error
}

// BrokerNotice is an error callback that did not match a pending request.
type BrokerNotice struct {
	ReqID   int64
	Code    int
	Message string
}

// Inconsistency reports a callback whose id has no pending entry.
type Inconsistency struct {
	Gateway string
	Err     error
}

// RequestIssued and RequestSkipped trace the historical request lifecycle.
type RequestIssued struct {
	ReqID    int64
	Ticker   string
	Kind     broker.DataKind
	Duration string
}

type RequestSkipped struct {
	Ticker string
	Kind   broker.DataKind
	Reason string
}

// PriceTick is a routed market-data tick.
type PriceTick struct {
	ReqID    int64
	Symbol   string
	TickType broker.TickType
	Price    float64
	At       time.Time
}

// OrderStatus is a routed order update.
type OrderStatus struct {
	OrderID   int64
	Symbol    string
	Status    string
	Remaining float64
}

// GatewayState reports readiness and connection changes.
type GatewayState struct {
	Gateway string
	OrderID int64
	Stale   int
}
