package analytics

import (
	"errors"
	"math"
	"slices"
)

// IVRankResults is how many historical ranks a report lists.
const IVRankResults = 8

// VolSummary describes a volatility series over a lookback, in percent.
type VolSummary struct {
	Current        float64 `json:"current"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Average        float64 `json:"average"`
	MinMaxRank     int     `json:"min_max_rank"`
	PercentileRank int     `json:"percentile_rank"`
	WeightedRank   int     `json:"weighted_rank"`
	History        []int   `json:"history"`
}

// Summarize ranks the newest reading of a newest-first period list.
func Summarize(periodList []float64) (VolSummary, error) {
	if len(periodList) == 0 {
		return VolSummary{}, ErrNotEnoughData
	}
	lo, hi := slices.Min(periodList), slices.Max(periodList)
	avg, _ := Mean(periodList)
	current := periodList[0]

	mm, err := MinMaxRank(current, lo, hi)
	if err != nil {
		return VolSummary{}, err
	}
	pct := PercentileRank(current, periodList)

	history := make([]int, 0, IVRankResults)
	for _, v := range periodList {
		r, _ := MinMaxRank(v, lo, hi)
		history = append(history, r)
		if len(history) == IVRankResults {
			break
		}
	}

	return VolSummary{
		Current:        current,
		Min:            lo,
		Max:            hi,
		Average:        avg,
		MinMaxRank:     mm,
		PercentileRank: pct,
		WeightedRank:   round(float64(mm+pct) / 2),
		History:        history,
	}, nil
}

// MinMaxRank places v between the period low (0) and high (100).
func MinMaxRank(v, lo, hi float64) (int, error) {
	if hi == lo {
		return 0, errors.New("min-max rank: flat series")
	}
	return round((v - lo) / (hi - lo) * 100), nil
}

// PercentileRank is the share of readings at or below v, in percent.
func PercentileRank(v float64, values []float64) int {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, x := range values {
		if v >= x {
			count++
		}
	}
	return round(float64(count) / float64(len(values)) * 100)
}

// HistoricalVol annualises the dispersion of closes relative to their mean.
func HistoricalVol(closes []float64) (float64, error) {
	sd, err := Stdev(closes)
	if err != nil {
		return 0, err
	}
	mean, _ := Mean(closes)
	if mean == 0 {
		return 0, ErrNotEnoughData
	}
	return sd / mean * 100 * math.Sqrt(252/float64(len(closes))), nil
}

// MonthWindow is the trading-day window of PeriodHVs.
const MonthWindow = 21

// PeriodHVs computes HistoricalVol over every 21-close window, oldest first.
func PeriodHVs(closes []float64) []float64 {
	var out []float64
	for i := 0; i < len(closes)-MonthWindow; i++ {
		hv, err := HistoricalVol(closes[i : i+MonthWindow])
		if err == nil {
			out = append(out, hv)
		}
	}
	return out
}

// CurrentToMA is how far the last close sits above its moving average, in percent.
func CurrentToMA(closes []float64) (float64, error) {
	if len(closes) == 0 {
		return 0, ErrNotEnoughData
	}
	ma := SMA(closes, len(closes))
	return (closes[len(closes)-1]/ma - 1) * 100, nil
}
