package analytics

import "math"

// Correlation thresholds for classifying pairs.
const (
	MinCorrelated   = 0.40
	MaxUncorrelated = 0.20
)

// sqrt252 annualises daily dispersion.
const sqrt252 = 15.8745

// PairStats relates the daily percentage changes of two tickers.
type PairStats struct {
	Correlation float64 `json:"correlation"`
	StdevRatio  float64 `json:"stdev_ratio"`
	Beta        float64 `json:"beta"`
	HV          float64 `json:"hv"`
	Class       string  `json:"class"`
}

// ComparePair computes pair statistics from aligned closes, oldest first.
func ComparePair(closes1, closes2 []float64) (PairStats, error) {
	ch1, ch2 := PercentageChanges(closes1), PercentageChanges(closes2)
	cov, err := Covariance(ch1, ch2)
	if err != nil {
		return PairStats{}, err
	}
	sd1, err := Stdev(ch1)
	if err != nil {
		return PairStats{}, err
	}
	sd2, err := Stdev(ch2)
	if err != nil {
		return PairStats{}, err
	}
	if sd1 == 0 || sd2 == 0 {
		return PairStats{}, ErrNotEnoughData
	}

	s := PairStats{
		Correlation: cov / (sd1 * sd2),
		StdevRatio:  sd1 / sd2,
	}
	s.Beta = s.Correlation * s.StdevRatio
	s.Class = Classify(s.Correlation)

	// The pair as one position: long the first, hedged by the ratio.
	spread := make([]float64, len(ch1))
	for i := range ch1 {
		if s.Correlation >= 0 {
			spread[i] = ch1[i] - ch2[i]*s.StdevRatio
		} else {
			spread[i] = ch1[i] + ch2[i]*s.StdevRatio
		}
	}
	sd, err := Stdev(spread)
	if err != nil {
		return PairStats{}, err
	}
	s.HV = sd * sqrt252
	return s, nil
}

// Classify labels a correlation.
func Classify(corr float64) string {
	switch a := math.Abs(corr); {
	case a >= MinCorrelated:
		return "correlated"
	case a <= MaxUncorrelated:
		return "uncorrelated"
	default:
		return "weak"
	}
}
