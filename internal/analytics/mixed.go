package analytics

import (
	"context"
	"fmt"

	"vol-core/pkg/broker"
)

// MonthLag pairs an implied reading with the realised volatility reported
// one trading month later, which covers the same days.
const MonthLag = MonthWindow - 1

// MixedVol compares implied with realised volatility, in percent.
type MixedVol struct {
	IVCurrentToHVAverage    float64 `json:"iv_current_to_hv_average"`
	IVAverageToHVAverage    float64 `json:"iv_average_to_hv_average"`
	PositiveDifferenceRatio float64 `json:"positive_difference_ratio"`
	DifferenceAverage       float64 `json:"difference_average"`
	Differences             int     `json:"differences"`
}

// IVHVDifference subtracts from each implied reading the realised reading
// MonthLag trading days later. Both series are aligned, oldest first.
func IVHVDifference(ivs, hvs []float64) []float64 {
	n := min(len(ivs), len(hvs)) - MonthLag
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range n {
		out[i] = ivs[i] - hvs[i+MonthLag]
	}
	return out
}

// PositiveDifferenceRatio is the share of days implied exceeded the realised
// volatility that followed, in percent.
func PositiveDifferenceRatio(diffs []float64) (float64, error) {
	if len(diffs) == 0 {
		return 0, ErrNotEnoughData
	}
	positive := 0
	for _, d := range diffs {
		if d > 0 {
			positive++
		}
	}
	return float64(positive) / float64(len(diffs)) * 100, nil
}

// CompareVols builds a MixedVol from the newest-first period lists of both
// kinds and their trading-day aligned series.
func CompareVols(ivList, hvList, ivAligned, hvAligned []float64) (MixedVol, error) {
	if len(ivList) == 0 {
		return MixedVol{}, ErrNotEnoughData
	}
	ivAvg, err := Mean(ivList)
	if err != nil {
		return MixedVol{}, err
	}
	hvAvg, err := Mean(hvList)
	if err != nil {
		return MixedVol{}, err
	}
	if hvAvg == 0 {
		return MixedVol{}, fmt.Errorf("hv average is zero: %w", ErrNotEnoughData)
	}

	diffs := IVHVDifference(ivAligned, hvAligned)
	ratio, err := PositiveDifferenceRatio(diffs)
	if err != nil {
		return MixedVol{}, err
	}
	diffAvg, _ := Mean(diffs)
	return MixedVol{
		IVCurrentToHVAverage:    ivList[0] / hvAvg,
		IVAverageToHVAverage:    ivAvg / hvAvg,
		PositiveDifferenceRatio: ratio,
		DifferenceAverage:       diffAvg,
		Differences:             len(diffs),
	}, nil
}

// MixedVolFor reads both volatility series of ticker and compares them.
func MixedVolFor(ctx context.Context, r Reader, ticker string, backDays int) (MixedVol, error) {
	ivList, err := PeriodList(ctx, r, broker.KindImpliedVol, ticker, backDays)
	if err != nil {
		return MixedVol{}, err
	}
	hvList, err := PeriodList(ctx, r, broker.KindHistoricalVol, ticker, backDays)
	if err != nil {
		return MixedVol{}, err
	}
	ivPoints, _, err := window(ctx, r, broker.KindImpliedVol, ticker, backDays)
	if err != nil {
		return MixedVol{}, err
	}
	hvPoints, _, err := window(ctx, r, broker.KindHistoricalVol, ticker, backDays)
	if err != nil {
		return MixedVol{}, err
	}
	ivs, hvs := align(ivPoints, hvPoints)
	for i := range ivs {
		ivs[i] *= 100
		hvs[i] *= 100
	}
	return CompareVols(ivList, hvList, ivs, hvs)
}
