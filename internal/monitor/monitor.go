package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"vol-core/internal/events"
)

// Alerter turns error-class bus events into alerts.
type Alerter struct {
	Bus  *events.Bus
	Sink AlertSink
}

var alertTopics = []events.Topic{
	events.TopicRequestError,
	events.TopicInconsistency,
	events.TopicDisconnected,
}

// Start subscribes and forwards until ctx ends.
func (a *Alerter) Start(ctx context.Context) {
	if a.Bus == nil || a.Sink == nil {
		log.Println("alerter not fully configured; skipping")
		return
	}
	for _, topic := range alertTopics {
		stream, unsub := a.Bus.Subscribe(topic, 50)
		go func() {
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-stream:
					if !ok {
						return
					}
					if err := a.Sink.Send(formatAlert(msg)); err != nil {
						log.Printf("alerter: send failed: %v", err)
					}
				}
			}
		}()
	}
}

func formatAlert(msg any) string {
	return "[" + time.Now().Format(time.RFC3339) + "] " + describe(msg)
}

func describe(v any) string {
	switch t := v.(type) {
	case events.RequestError:
		switch {
		case t.Kind != "":
			return fmt.Sprintf("request %d (%s,%s) failed: %v", t.ReqID, t.Kind, t.Ticker, t.Err)
		case t.Ticker != "":
			return fmt.Sprintf("request %d (%s) failed: %v", t.ReqID, t.Ticker, t.Err)
		}
		return fmt.Sprintf("request %d failed: %v", t.ReqID, t.Err)
	case events.Inconsistency:
		return t.Err.Error()
	case events.GatewayState:
		return fmt.Sprintf("%s gateway disconnected, %d outstanding dropped", t.Gateway, t.Stale)
	case string:
		return t
	default:
		return "alert triggered"
	}
}
