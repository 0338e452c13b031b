package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"vol-core/pkg/broker"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	database := newTestDB(t)
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("second ApplyMigrations: %v", err)
	}
	ok, err := columnExists(database.DB, "orders", "remaining")
	if err != nil || !ok {
		t.Fatalf("orders.remaining exists=%v err=%v", ok, err)
	}
}

func TestSeriesWatermark(t *testing.T) {
	q := newTestDB(t).Series()
	ctx := context.Background()

	if _, ok, err := q.MaxStoredDate(ctx, broker.KindImpliedVol, "SPY"); err != nil || ok {
		t.Fatalf("empty series ok=%v err=%v, expected no watermark", ok, err)
	}

	for _, p := range []Point{
		{Kind: broker.KindImpliedVol, Ticker: "SPY", Date: day(11), Value: 0.17},
		{Kind: broker.KindImpliedVol, Ticker: "SPY", Date: day(13), Value: 0.19},
		{Kind: broker.KindImpliedVol, Ticker: "QQQ", Date: day(14), Value: 0.22},
		{Kind: broker.KindHistoricalVol, Ticker: "SPY", Date: day(15), Value: 0.12},
	} {
		if err := q.UpsertPoint(ctx, p); err != nil {
			t.Fatalf("UpsertPoint: %v", err)
		}
	}

	last, ok, err := q.MaxStoredDate(ctx, broker.KindImpliedVol, "SPY")
	if err != nil || !ok || !last.Equal(day(13)) {
		t.Fatalf("MaxStoredDate=%v,%v,%v, expected %v", last, ok, err, day(13))
	}
}

func TestSeriesFindValue(t *testing.T) {
	q := newTestDB(t).Series()
	ctx := context.Background()
	_ = q.UpsertPoint(ctx, Point{Kind: broker.KindPrice, Ticker: "SPY", Date: day(8), Value: 500})
	_ = q.UpsertPoint(ctx, Point{Kind: broker.KindPrice, Ticker: "SPY", Date: day(11), Value: 505})
	// Re-fetched overlap day replaces the earlier value.
	_ = q.UpsertPoint(ctx, Point{Kind: broker.KindPrice, Ticker: "SPY", Date: day(11), Value: 506})

	tests := []struct {
		name     string
		date     time.Time
		fallback bool
		want     float64
		wantErr  error
	}{
		{name: "exact", date: day(11), want: 506},
		{name: "missing", date: day(10), wantErr: ErrNotFound},
		{name: "fallback to friday", date: day(10), fallback: true, want: 500},
		{name: "nothing earlier", date: day(1), fallback: true, wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := q.FindValue(ctx, broker.KindPrice, "SPY", tt.date, tt.fallback)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err=%v, expected %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("FindValue=%v,%v, expected %v", got, err, tt.want)
			}
		})
	}
}

func TestSeriesListAndTickers(t *testing.T) {
	q := newTestDB(t).Series()
	ctx := context.Background()
	for i, d := range []int{14, 12, 13} {
		_ = q.UpsertPoint(ctx, Point{Kind: broker.KindHistoricalVol, Ticker: "IWM", Date: day(d), Value: float64(i)})
	}
	_ = q.UpsertPoint(ctx, Point{Kind: broker.KindHistoricalVol, Ticker: "DIA", Date: day(12), Value: 1})

	points, err := q.ListSeries(ctx, broker.KindHistoricalVol, "IWM", day(13))
	if err != nil {
		t.Fatalf("ListSeries: %v", err)
	}
	if len(points) != 2 || !points[0].Date.Equal(day(13)) || !points[1].Date.Equal(day(14)) {
		t.Fatalf("ListSeries=%+v, expected days 13 and 14", points)
	}

	all, err := q.ListSeries(ctx, broker.KindHistoricalVol, "IWM", time.Time{})
	if err != nil || len(all) != 3 {
		t.Fatalf("ListSeries(all)=%d,%v, expected 3", len(all), err)
	}

	tickers, err := q.ListTickers(ctx, broker.KindHistoricalVol)
	if err != nil || len(tickers) != 2 || tickers[0] != "DIA" {
		t.Fatalf("ListTickers=%v,%v", tickers, err)
	}
}

func TestOrderLog(t *testing.T) {
	l := newTestDB(t).Orders()
	ctx := context.Background()

	if err := l.RecordOrder(ctx, Order{OrderID: 7, Symbol: "SPY", Action: "BUY", Qty: 10, LimitPrice: 500, SessionID: "s1"}); err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}
	if err := l.UpdateOrderStatus(ctx, 7, "Submitted", 10); err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}
	// Modifying the order keeps its status.
	if err := l.RecordOrder(ctx, Order{OrderID: 7, Symbol: "SPY", Action: "BUY", Qty: 10, LimitPrice: 499}); err != nil {
		t.Fatalf("RecordOrder modify: %v", err)
	}

	o, err := l.GetOrder(ctx, 7)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if o.Status != "Submitted" || o.LimitPrice != 499 || o.SessionID != "s1" {
		t.Fatalf("unexpected order %+v", o)
	}

	if err := l.UpdateOrderStatus(ctx, 8, "Filled", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, expected ErrNotFound", err)
	}
	if _, err := l.GetOrder(ctx, 8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, expected ErrNotFound", err)
	}

	_ = l.RecordOrder(ctx, Order{OrderID: 9, Symbol: "QQQ", Action: "SELL", Qty: 1, LimitPrice: 440})
	orders, err := l.ListOrders(ctx, 10)
	if err != nil || len(orders) != 2 || orders[0].OrderID != 9 {
		t.Fatalf("ListOrders=%+v,%v", orders, err)
	}
}
