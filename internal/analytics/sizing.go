package analytics

// Dollar risk per position for a volatility ratio of 1 (an HV of 10).
const (
	DirectionalDollars = 10000
	NeutralDollars     = DirectionalDollars * 5
)

// Sizing is the suggested contract count for a ticker at its current
// volatility.
type Sizing struct {
	Price       float64 `json:"price"`
	HV          float64 `json:"hv"`
	VolRatio    float64 `json:"vol_ratio"`
	Directional float64 `json:"directional"`
	Neutral     float64 `json:"neutral"`
}

// ChangesHV annualises the stdev of daily percentage changes of closes,
// oldest first.
func ChangesHV(closes []float64) (float64, error) {
	sd, err := Stdev(PercentageChanges(closes))
	if err != nil {
		return 0, err
	}
	return sd * sqrt252, nil
}

// DirectionalContracts is the share count for a directional position.
func DirectionalContracts(price, volRatio float64) (float64, error) {
	if price <= 0 || volRatio <= 0 {
		return 0, ErrNotEnoughData
	}
	return DirectionalDollars / (price * volRatio), nil
}

// NeutralContracts is the option contract count (100 shares each) for a
// delta-neutral position.
func NeutralContracts(price, volRatio float64) (float64, error) {
	if price <= 0 || volRatio <= 0 {
		return 0, ErrNotEnoughData
	}
	return NeutralDollars / (price * 100 * volRatio), nil
}

// SizeFor sizes positions from closes, oldest first, using the last close
// and the changes HV relative to 10.
func SizeFor(closes []float64) (Sizing, error) {
	hv, err := ChangesHV(closes)
	if err != nil {
		return Sizing{}, err
	}
	s := Sizing{Price: closes[len(closes)-1], HV: hv, VolRatio: hv / 10}
	if s.Directional, err = DirectionalContracts(s.Price, s.VolRatio); err != nil {
		return Sizing{}, err
	}
	if s.Neutral, err = NeutralContracts(s.Price, s.VolRatio); err != nil {
		return Sizing{}, err
	}
	return s, nil
}
