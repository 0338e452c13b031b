package gateway

import (
	"time"

	"vol-core/pkg/broker"
)

// Recorder receives gateway measurements. internal/monitor provides the
// Prometheus-backed implementation.
type Recorder interface {
	RequestIssued(gateway, kind string)
	RequestCompleted(kind string, latency time.Duration)
	RequestFailed(gateway, reason string)
	Callback(gateway string, typ broker.EventType)
	Inconsistency(gateway string)
	TickRouted(symbol string)
	Pending(gateway string, n int)
}

type nopRecorder struct{}

func (nopRecorder) RequestIssued(string, string)            {}
func (nopRecorder) RequestCompleted(string, time.Duration)  {}
func (nopRecorder) RequestFailed(string, string)            {}
func (nopRecorder) Callback(string, broker.EventType)       {}
func (nopRecorder) Inconsistency(string)                    {}
func (nopRecorder) TickRouted(string)                       {}
func (nopRecorder) Pending(string, int)                     {}
