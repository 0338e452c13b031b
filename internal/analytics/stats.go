// Package analytics computes volatility and pair statistics from stored series.
package analytics

import (
	"errors"
	"math"
)

// ErrNotEnoughData is returned when a statistic needs more samples.
var ErrNotEnoughData = errors.New("not enough data")

// Mean is the arithmetic mean.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNotEnoughData
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// Stdev is the sample standard deviation (n-1 denominator).
func Stdev(values []float64) (float64, error) {
	if len(values) < 2 {
		return 0, ErrNotEnoughData
	}
	mean, _ := Mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1)), nil
}

// Covariance is the sample covariance of two equally long series.
func Covariance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.New("covariance: series lengths differ")
	}
	if len(a) < 2 {
		return 0, ErrNotEnoughData
	}
	ma, _ := Mean(a)
	mb, _ := Mean(b)
	sum := 0.0
	for i := range a {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(len(a)-1), nil
}

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// PercentageChanges returns day-over-day changes in percent, oldest first.
func PercentageChanges(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		out = append(out, (closes[i]/closes[i-1]-1)*100)
	}
	return out
}

// round matches the half-to-even rounding ranks have always used.
func round(v float64) int {
	return int(math.RoundToEven(v))
}
