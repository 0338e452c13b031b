package gateway

import (
	"context"
	"fmt"
	"math"
	"time"

	"vol-core/pkg/broker"
)

// Window is the lookback a historical request asks for.
type Window struct {
	Skip  bool // nothing new since the watermark; do not issue
	Days  int  // incremental window in days, 0 when using the default
	Years int  // default full window in years
}

// Duration renders the broker duration string ("6 D", "1 Y").
func (w Window) Duration() string {
	if w.Days > 0 {
		return fmt.Sprintf("%d D", w.Days)
	}
	return fmt.Sprintf("%d Y", w.Years)
}

// DefaultWindows holds the full lookback, in years, per kind.
type DefaultWindows map[broker.DataKind]int

// StandardWindows is one year of volatility and two years of prices.
func StandardWindows() DefaultWindows {
	return DefaultWindows{
		broker.KindImpliedVol:    1,
		broker.KindHistoricalVol: 1,
		broker.KindPrice:         2,
	}
}

func (d DefaultWindows) years(kind broker.DataKind) int {
	if y, ok := d[kind]; ok && y > 0 {
		return y
	}
	return 1
}

// FetchWindow is the pure incremental-fetch rule. Without a watermark the
// default window is requested. Otherwise the calendar days elapsed since the
// watermark decide: zero or fewer means skip, else fetch elapsed+1 days so
// the window overlaps the watermark by one day. today is compared by its
// date in its own zone; watermarks are bar dates.
func FetchWindow(kind broker.DataKind, watermark time.Time, hasWatermark bool, today time.Time, defaults DefaultWindows) Window {
	if !hasWatermark {
		return Window{Years: defaults.years(kind)}
	}
	days := int(math.Round(calendarDate(today).Sub(calendarDate(watermark)).Hours() / 24))
	if days <= 0 {
		return Window{Skip: true}
	}
	return Window{Days: days + 1}
}

// calendarDate drops the clock and zone, keeping t's wall-clock date.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WatermarkSource reports the latest persisted date for a series.
type WatermarkSource interface {
	LastStoredDate(ctx context.Context, kind broker.DataKind, ticker string) (time.Time, bool, error)
}

// WindowPolicy binds FetchWindow to a watermark source.
type WindowPolicy struct {
	Source   WatermarkSource
	Defaults DefaultWindows
}

// Compute looks the watermark up and applies FetchWindow.
func (p WindowPolicy) Compute(ctx context.Context, kind broker.DataKind, ticker string, today time.Time) (Window, error) {
	defaults := p.Defaults
	if defaults == nil {
		defaults = StandardWindows()
	}
	if p.Source == nil {
		return FetchWindow(kind, time.Time{}, false, today, defaults), nil
	}
	last, ok, err := p.Source.LastStoredDate(ctx, kind, ticker)
	if err != nil {
		return Window{}, fmt.Errorf("watermark %s,%s: %w", kind, ticker, err)
	}
	return FetchWindow(kind, last, ok, today, defaults), nil
}
