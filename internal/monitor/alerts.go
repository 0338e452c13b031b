package monitor

import "log"

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts to the standard logger.
type LogSink struct{}

func (LogSink) Send(message string) error {
	log.Printf("🚨 %s", message)
	return nil
}

// SinkFunc adapts a function to AlertSink.
type SinkFunc func(string) error

func (f SinkFunc) Send(message string) error { return f(message) }
