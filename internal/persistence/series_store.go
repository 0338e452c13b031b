package persistence

import (
	"context"
	"fmt"
	"time"

	"vol-core/pkg/broker"
	"vol-core/pkg/db"
)

// SeriesStore persists historical bars for the historical gateway. Writes
// are batched; reads flush first so a watermark never misses a bar the
// gateway already received.
type SeriesStore struct {
	series *db.SeriesQueries
	writer *BatchWriter
}

// NewSeriesStore wraps the series queries and a batch writer over the same database.
func NewSeriesStore(database *db.Database, writer *BatchWriter) *SeriesStore {
	return &SeriesStore{series: database.Series(), writer: writer}
}

// Store queues one point.
func (s *SeriesStore) Store(_ context.Context, kind broker.DataKind, ticker string, date time.Time, value float64) error {
	if ticker == "" {
		return fmt.Errorf("store %s: empty ticker", kind)
	}
	s.writer.Add(db.Point{Kind: kind, Ticker: ticker, Date: date, Value: value})
	return nil
}

// LastStoredDate returns the series watermark.
func (s *SeriesStore) LastStoredDate(ctx context.Context, kind broker.DataKind, ticker string) (time.Time, bool, error) {
	if err := s.writer.Flush(ctx); err != nil {
		return time.Time{}, false, fmt.Errorf("flush before watermark: %w", err)
	}
	return s.series.MaxStoredDate(ctx, kind, ticker)
}

// Points lists a series since the given day.
func (s *SeriesStore) Points(ctx context.Context, kind broker.DataKind, ticker string, since time.Time) ([]db.Point, error) {
	if err := s.writer.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush before read: %w", err)
	}
	return s.series.ListSeries(ctx, kind, ticker, since)
}

// Flush forces buffered points to disk.
func (s *SeriesStore) Flush(ctx context.Context) error {
	return s.writer.Flush(ctx)
}
