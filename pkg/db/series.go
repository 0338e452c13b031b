package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vol-core/pkg/broker"
)

// DateLayout is how series dates are stored.
const DateLayout = "2006-01-02"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Point is one stored daily value of a series.
type Point struct {
	Kind   broker.DataKind
	Ticker string
	Date   time.Time
	Value  float64
}

// UpsertPointSQL writes one point; a later value for the same day wins.
const UpsertPointSQL = `
	INSERT INTO series (kind, ticker, date, value, updated_at)
	VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(kind, ticker, date) DO UPDATE SET
		value = excluded.value,
		updated_at = CURRENT_TIMESTAMP
`

// Args returns the UpsertPointSQL arguments for p.
func (p Point) Args() []any {
	return []any{string(p.Kind), p.Ticker, p.Date.Format(DateLayout), p.Value}
}

// SeriesQueries reads and writes the series table.
type SeriesQueries struct {
	db *sql.DB
}

// NewSeriesQueries creates a SeriesQueries instance.
func NewSeriesQueries(db *sql.DB) *SeriesQueries {
	return &SeriesQueries{db: db}
}

// UpsertPoint stores one point immediately.
func (q *SeriesQueries) UpsertPoint(ctx context.Context, p Point) error {
	if _, err := q.db.ExecContext(ctx, UpsertPointSQL, p.Args()...); err != nil {
		return fmt.Errorf("upsert %s,%s %s: %w", p.Kind, p.Ticker, p.Date.Format(DateLayout), err)
	}
	return nil
}

// MaxStoredDate returns the latest stored date for a series; ok is false
// when nothing is stored yet.
func (q *SeriesQueries) MaxStoredDate(ctx context.Context, kind broker.DataKind, ticker string) (time.Time, bool, error) {
	var last sql.NullString
	err := q.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM series WHERE kind = ? AND ticker = ?`,
		string(kind), ticker).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("max date %s,%s: %w", kind, ticker, err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(DateLayout, last.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse stored date %q: %w", last.String, err)
	}
	return t, true, nil
}

// FindValue returns the value stored for date. With fallback the closest
// earlier day is used when date itself is missing.
func (q *SeriesQueries) FindValue(ctx context.Context, kind broker.DataKind, ticker string, date time.Time, fallback bool) (float64, error) {
	query := `SELECT value FROM series WHERE kind = ? AND ticker = ? AND date = ?`
	if fallback {
		query = `SELECT value FROM series WHERE kind = ? AND ticker = ? AND date <= ? ORDER BY date DESC LIMIT 1`
	}
	var v float64
	err := q.db.QueryRowContext(ctx, query, string(kind), ticker, date.Format(DateLayout)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find %s,%s %s: %w", kind, ticker, date.Format(DateLayout), err)
	}
	return v, nil
}

// ListSeries returns points on or after since, oldest first. A zero since
// returns the whole series.
func (q *SeriesQueries) ListSeries(ctx context.Context, kind broker.DataKind, ticker string, since time.Time) ([]Point, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT date, value
		FROM series
		WHERE kind = ? AND ticker = ? AND date >= ?
		ORDER BY date ASC
	`, string(kind), ticker, since.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var (
			date string
			p    = Point{Kind: kind, Ticker: ticker}
		)
		if err := rows.Scan(&date, &p.Value); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if p.Date, err = time.Parse(DateLayout, date); err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", date, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ListTickers returns the tickers holding at least one point of kind.
func (q *SeriesQueries) ListTickers(ctx context.Context, kind broker.DataKind) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT DISTINCT ticker FROM series WHERE kind = ? ORDER BY ticker`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}
