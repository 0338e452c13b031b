package gateway

import (
	"context"
	"log"

	"vol-core/pkg/broker"
)

// runLoop drains the transport's event stream on the calling goroutine.
// Each dispatch runs under recover so one bad event never stops delivery
// of the ones behind it.
func runLoop(ctx context.Context, name string, events <-chan broker.Event, handle func(context.Context, broker.Event), onPanic func(*CallbackPanicError)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				log.Printf("%s gateway: event stream closed", name)
				return
			}
			dispatch(ctx, ev, handle, onPanic)
		}
	}
}

func dispatch(ctx context.Context, ev broker.Event, handle func(context.Context, broker.Event), onPanic func(*CallbackPanicError)) {
	defer func() {
		if r := recover(); r != nil {
			perr := &CallbackPanicError{Event: ev, Value: r}
			log.Printf("❌ %v", perr)
			if onPanic != nil {
				onPanic(perr)
			}
		}
	}()
	handle(ctx, ev)
}
