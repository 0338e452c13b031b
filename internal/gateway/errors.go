package gateway

import (
	"errors"
	"fmt"

	"vol-core/pkg/broker"
)

var (
	// ErrDuplicateRequest means the session already issued this series; the
	// caller skips it. It signals a no-op, not a failure.
	ErrDuplicateRequest = errors.New("already requested in this session")
	// ErrUpToDate means the store already holds today's data.
	ErrUpToDate = errors.New("series is up to date")
	// ErrTimedOut is returned when a wait ceiling elapses.
	ErrTimedOut = errors.New("timed out waiting for broker")
	// ErrDisconnected resolves every request still pending when the connection drops.
	ErrDisconnected = errors.New("broker connection closed")
	// ErrNotReady is returned when placing an order before the first valid order id.
	ErrNotReady = errors.New("gateway not ready: no valid order id yet")
)

// UnknownCorrelationIDError is a callback for an id with no pending entry.
type UnknownCorrelationIDError struct {
	Gateway string
	ID      int64
	Event   broker.EventType
}

func (e *UnknownCorrelationIDError) Error() string {
	return fmt.Sprintf("%s gateway: %s for unknown id %d", e.Gateway, e.Event, e.ID)
}

// BrokerError is a terminal error payload for a known request.
type BrokerError struct {
	ReqID   int64
	Code    int
	Message string
	Ticker  string
	Kind    broker.DataKind
}

func (e *BrokerError) Error() string {
	if e.Ticker != "" {
		return fmt.Sprintf("broker error %d for %s,%s (reqId %d): %s", e.Code, e.Kind, e.Ticker, e.ReqID, e.Message)
	}
	return fmt.Sprintf("broker error %d (id %d): %s", e.Code, e.ReqID, e.Message)
}

// CallbackPanicError wraps a panic recovered while dispatching one event.
type CallbackPanicError struct {
	Event broker.Event
	Value any
}

func (e *CallbackPanicError) Error() string {
	return fmt.Sprintf("panic handling %s (id %d): %v", e.Event.Type, e.Event.ReqID, e.Value)
}
