package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vol-core/pkg/broker"
	"vol-core/pkg/db"
)

// ErrNoSeries is returned when nothing is stored for a series.
var ErrNoSeries = errors.New("no stored series")

// Reader reads stored series; persistence.SeriesStore implements it.
type Reader interface {
	LastStoredDate(ctx context.Context, kind broker.DataKind, ticker string) (time.Time, bool, error)
	Points(ctx context.Context, kind broker.DataKind, ticker string, since time.Time) ([]db.Point, error)
}

func watermark(ctx context.Context, r Reader, kind broker.DataKind, ticker string) (time.Time, error) {
	last, ok, err := r.LastStoredDate(ctx, kind, ticker)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%s,%s: %w", kind, ticker, ErrNoSeries)
	}
	return last, nil
}

// window returns the points within backDays calendar days ending at the
// series watermark, oldest first.
func window(ctx context.Context, r Reader, kind broker.DataKind, ticker string, backDays int) ([]db.Point, time.Time, error) {
	last, err := watermark(ctx, r, kind, ticker)
	if err != nil {
		return nil, time.Time{}, err
	}
	if backDays <= 0 {
		backDays = 1
	}
	since := last.AddDate(0, 0, -(backDays - 1))
	points, err := r.Points(ctx, kind, ticker, since)
	if err != nil {
		return nil, time.Time{}, err
	}
	return points, last, nil
}

// PeriodList returns one volatility reading per calendar day over the last
// backDays days ending at the watermark, in percent, newest first. A day
// without a bar repeats the closest earlier reading, so weekends and
// holidays weigh in the ranks; days before the first bar are left out.
func PeriodList(ctx context.Context, r Reader, kind broker.DataKind, ticker string, backDays int) ([]float64, error) {
	last, err := watermark(ctx, r, kind, ticker)
	if err != nil {
		return nil, err
	}
	points, err := r.Points(ctx, kind, ticker, time.Time{})
	if err != nil {
		return nil, err
	}
	if backDays <= 0 {
		backDays = 1
	}

	out := make([]float64, 0, backDays)
	j := len(points) - 1
	for i := 0; i < backDays; i++ {
		day := last.AddDate(0, 0, -i)
		for j >= 0 && points[j].Date.After(day) {
			j--
		}
		if j < 0 {
			break
		}
		out = append(out, points[j].Value*100)
	}
	return out, nil
}

// Closes returns the closes of the last backDays calendar days, oldest first.
func Closes(ctx context.Context, r Reader, ticker string, backDays int) ([]float64, error) {
	points, _, err := window(ctx, r, broker.KindPrice, ticker, backDays)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(points))
	for _, p := range points {
		out = append(out, p.Value)
	}
	return out, nil
}

// ParallelCloses returns the closes of two tickers on the days both have a
// value. Both series must end on the same day.
func ParallelCloses(ctx context.Context, r Reader, ticker1, ticker2 string, backDays int) ([]float64, []float64, error) {
	p1, last1, err := window(ctx, r, broker.KindPrice, ticker1, backDays)
	if err != nil {
		return nil, nil, err
	}
	p2, last2, err := window(ctx, r, broker.KindPrice, ticker2, backDays)
	if err != nil {
		return nil, nil, err
	}
	if !last1.Equal(last2) {
		return nil, nil, fmt.Errorf("%s ends %s, %s ends %s: %w",
			ticker1, last1.Format(db.DateLayout), ticker2, last2.Format(db.DateLayout), ErrNotEnoughData)
	}

	c1, c2 := align(p1, p2)
	return c1, c2, nil
}

// align keeps the values of the dates present in both series, oldest first.
func align(p1, p2 []db.Point) ([]float64, []float64) {
	byDay := make(map[time.Time]float64, len(p2))
	for _, p := range p2 {
		byDay[p.Date] = p.Value
	}
	var v1, v2 []float64
	for _, p := range p1 {
		if v, ok := byDay[p.Date]; ok {
			v1 = append(v1, p.Value)
			v2 = append(v2, v)
		}
	}
	return v1, v2
}
