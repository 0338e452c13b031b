package analytics

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"vol-core/pkg/broker"
	"vol-core/pkg/db"
)

type fakeReader map[string][]db.Point

func (f fakeReader) key(kind broker.DataKind, ticker string) string { return string(kind) + "/" + ticker }

func (f fakeReader) add(kind broker.DataKind, ticker string, start time.Time, values ...float64) {
	for i, v := range values {
		f[f.key(kind, ticker)] = append(f[f.key(kind, ticker)], db.Point{
			Kind: kind, Ticker: ticker, Date: start.AddDate(0, 0, i), Value: v,
		})
	}
}

func (f fakeReader) LastStoredDate(_ context.Context, kind broker.DataKind, ticker string) (time.Time, bool, error) {
	pts := f[f.key(kind, ticker)]
	if len(pts) == 0 {
		return time.Time{}, false, nil
	}
	return pts[len(pts)-1].Date, true, nil
}

func (f fakeReader) Points(_ context.Context, kind broker.DataKind, ticker string, since time.Time) ([]db.Point, error) {
	var out []db.Point
	for _, p := range f[f.key(kind, ticker)] {
		if !p.Date.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestBasicStats(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if m, _ := Mean(values); m != 5 {
		t.Fatalf("Mean=%v, expected 5", m)
	}
	sd, _ := Stdev(values)
	if !near(sd, math.Sqrt(32.0/7)) {
		t.Fatalf("Stdev=%v, expected %v", sd, math.Sqrt(32.0/7))
	}
	cov, _ := Covariance([]float64{1, 2, 3}, []float64{2, 4, 6})
	if !near(cov, 2) {
		t.Fatalf("Covariance=%v, expected 2", cov)
	}
	if _, err := Stdev([]float64{1}); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("Stdev of one value err=%v", err)
	}
	if _, err := Covariance([]float64{1, 2}, []float64{1}); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if got := SMA([]float64{1, 2, 3, 4}, 2); got != 3.5 {
		t.Fatalf("SMA=%v, expected 3.5", got)
	}
	if got := SMA([]float64{1}, 2); got != 0 {
		t.Fatalf("SMA short input=%v, expected 0", got)
	}
}

func TestPercentageChanges(t *testing.T) {
	got := PercentageChanges([]float64{100, 110, 99})
	want := []float64{10, -10}
	for i := range want {
		if !near(got[i], want[i]) {
			t.Fatalf("change[%d]=%v, expected %v", i, got[i], want[i])
		}
	}
	if PercentageChanges([]float64{1}) != nil {
		t.Fatal("expected nil for a single close")
	}
}

func TestRanks(t *testing.T) {
	tests := []struct {
		v, lo, hi float64
		want      int
	}{
		{20, 10, 30, 50},
		{10, 10, 30, 0},
		{30, 10, 30, 100},
		{12.5, 10, 30, 12},
		{14, 10, 30, 20},
	}
	for _, tt := range tests {
		got, err := MinMaxRank(tt.v, tt.lo, tt.hi)
		if err != nil || got != tt.want {
			t.Fatalf("MinMaxRank(%v,%v,%v)=%v,%v, expected %v", tt.v, tt.lo, tt.hi, got, err, tt.want)
		}
	}
	if _, err := MinMaxRank(5, 5, 5); err == nil {
		t.Fatal("expected flat series error")
	}
	if got := PercentileRank(3, []float64{1, 2, 3, 4}); got != 75 {
		t.Fatalf("PercentileRank=%v, expected 75", got)
	}
}

func TestSummarize(t *testing.T) {
	s, err := Summarize([]float64{25, 10, 30, 20, 15})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Current != 25 || s.Min != 10 || s.Max != 30 || s.Average != 20 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.MinMaxRank != 75 || s.PercentileRank != 80 || s.WeightedRank != 78 {
		t.Fatalf("ranks=%d/%d/%d, expected 75/80/78", s.MinMaxRank, s.PercentileRank, s.WeightedRank)
	}
	if want := []int{75, 0, 100, 50, 25}; !slices.Equal(s.History, want) {
		t.Fatalf("History=%v, expected %v", s.History, want)
	}
	if _, err := Summarize(nil); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("empty Summarize err=%v", err)
	}
}

func TestPeriodListFromStore(t *testing.T) {
	r := fakeReader{}
	r.add(broker.KindImpliedVol, "SPY", day0, 0.10, 0.20, 0.30, 0.40)

	got, err := PeriodList(context.Background(), r, broker.KindImpliedVol, "SPY", 3)
	if err != nil {
		t.Fatalf("PeriodList: %v", err)
	}
	want := []float64{40, 30, 20}
	for i := range want {
		if !near(got[i], want[i]) {
			t.Fatalf("PeriodList=%v, expected %v", got, want)
		}
	}
	if _, err := PeriodList(context.Background(), r, broker.KindImpliedVol, "QQQ", 3); !errors.Is(err, ErrNoSeries) {
		t.Fatalf("missing series err=%v", err)
	}
}

func TestPeriodListRepeatsLastReading(t *testing.T) {
	r := fakeReader{}
	key := r.key(broker.KindImpliedVol, "SPY")
	for _, p := range []struct {
		offset int
		value  float64
	}{{0, 0.10}, {1, 0.20}, {4, 0.50}} {
		r[key] = append(r[key], db.Point{Kind: broker.KindImpliedVol, Ticker: "SPY", Date: day0.AddDate(0, 0, p.offset), Value: p.value})
	}

	tests := []struct {
		backDays int
		want     []float64
	}{
		{5, []float64{50, 20, 20, 20, 10}},
		{8, []float64{50, 20, 20, 20, 10}},
		{2, []float64{50, 20}},
	}
	for _, tt := range tests {
		got, err := PeriodList(context.Background(), r, broker.KindImpliedVol, "SPY", tt.backDays)
		if err != nil {
			t.Fatalf("PeriodList(%d): %v", tt.backDays, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("PeriodList(%d)=%v, expected %v", tt.backDays, got, tt.want)
		}
		for i := range tt.want {
			if !near(got[i], tt.want[i]) {
				t.Fatalf("PeriodList(%d)=%v, expected %v", tt.backDays, got, tt.want)
			}
		}
	}
}

func TestHistoricalVol(t *testing.T) {
	closes := []float64{100, 102, 98, 101, 99}
	sd, _ := Stdev(closes)
	want := sd / 100 * 100 * math.Sqrt(252.0/5)
	got, err := HistoricalVol(closes)
	if err != nil || !near(got, want) {
		t.Fatalf("HistoricalVol=%v,%v, expected %v", got, err, want)
	}

	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 50
	}
	hvs := PeriodHVs(flat)
	if len(hvs) != 30-MonthWindow {
		t.Fatalf("PeriodHVs len=%d, expected %d", len(hvs), 30-MonthWindow)
	}
	for _, hv := range hvs {
		if hv != 0 {
			t.Fatalf("flat series hv=%v, expected 0", hv)
		}
	}
}

func TestCurrentToMA(t *testing.T) {
	got, err := CurrentToMA([]float64{90, 100, 110, 120})
	if err != nil || !near(got, (120/105.0-1)*100) {
		t.Fatalf("CurrentToMA=%v,%v", got, err)
	}
}

func TestComparePair(t *testing.T) {
	a := []float64{100, 101, 99, 102, 103, 101}
	b := make([]float64, len(a))
	for i, v := range a {
		b[i] = v * 2
	}
	s, err := ComparePair(a, b)
	if err != nil {
		t.Fatalf("ComparePair: %v", err)
	}
	if !near(s.Correlation, 1) || !near(s.StdevRatio, 1) || !near(s.Beta, 1) {
		t.Fatalf("identical moves gave %+v", s)
	}
	if !near(s.HV, 0) {
		t.Fatalf("hedged HV=%v, expected 0", s.HV)
	}
	if s.Class != "correlated" {
		t.Fatalf("Class=%q", s.Class)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		corr float64
		want string
	}{
		{0.9, "correlated"},
		{-0.5, "correlated"},
		{0.1, "uncorrelated"},
		{0.3, "weak"},
	}
	for _, tt := range tests {
		if got := Classify(tt.corr); got != tt.want {
			t.Fatalf("Classify(%v)=%q, expected %q", tt.corr, got, tt.want)
		}
	}
}

func TestParallelCloses(t *testing.T) {
	r := fakeReader{}
	r.add(broker.KindPrice, "SPY", day0, 1, 2, 3, 4)
	r.add(broker.KindPrice, "QQQ", day0.AddDate(0, 0, 1), 20, 30, 40)
	r.add(broker.KindPrice, "IWM", day0, 5, 6, 7)

	c1, c2, err := ParallelCloses(context.Background(), r, "SPY", "QQQ", 10)
	if err != nil {
		t.Fatalf("ParallelCloses: %v", err)
	}
	if !slices.Equal(c1, []float64{2, 3, 4}) || !slices.Equal(c2, []float64{20, 30, 40}) {
		t.Fatalf("aligned closes %v / %v", c1, c2)
	}
	if _, _, err := ParallelCloses(context.Background(), r, "SPY", "IWM", 10); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("mismatched end err=%v", err)
	}
}

func TestIVHVDifference(t *testing.T) {
	ivs := make([]float64, 25)
	hvs := make([]float64, 25)
	for i := range ivs {
		ivs[i] = 20
		hvs[i] = float64(i - 2)
	}
	diffs := IVHVDifference(ivs, hvs)
	if want := []float64{2, 1, 0, -1, -2}; !slices.Equal(diffs, want) {
		t.Fatalf("IVHVDifference=%v, expected %v", diffs, want)
	}
	ratio, err := PositiveDifferenceRatio(diffs)
	if err != nil || ratio != 40 {
		t.Fatalf("PositiveDifferenceRatio=%v,%v, expected 40", ratio, err)
	}
	if IVHVDifference(ivs[:MonthLag], hvs[:MonthLag]) != nil {
		t.Fatal("expected no differences within one month")
	}
	if _, err := PositiveDifferenceRatio(nil); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("empty ratio err=%v", err)
	}
}

func TestCompareVols(t *testing.T) {
	ivs := make([]float64, 22)
	hvs := make([]float64, 22)
	for i := range ivs {
		ivs[i], hvs[i] = 15, 10
	}
	m, err := CompareVols([]float64{30, 20, 10}, []float64{10, 10}, ivs, hvs)
	if err != nil {
		t.Fatalf("CompareVols: %v", err)
	}
	if m.IVCurrentToHVAverage != 3 || m.IVAverageToHVAverage != 2 {
		t.Fatalf("ratios %v/%v, expected 3/2", m.IVCurrentToHVAverage, m.IVAverageToHVAverage)
	}
	if m.Differences != 2 || m.PositiveDifferenceRatio != 100 || m.DifferenceAverage != 5 {
		t.Fatalf("unexpected differences %+v", m)
	}
	if _, err := CompareVols([]float64{30}, []float64{0}, ivs, hvs); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("zero hv average err=%v", err)
	}
}

func TestMixedVolFor(t *testing.T) {
	r := fakeReader{}
	ivs := make([]float64, 25)
	hvs := make([]float64, 25)
	for i := range ivs {
		ivs[i] = 0.25
		hvs[i] = 0.20
	}
	r.add(broker.KindImpliedVol, "SPY", day0, ivs...)
	r.add(broker.KindHistoricalVol, "SPY", day0, hvs...)

	m, err := MixedVolFor(context.Background(), r, "SPY", 25)
	if err != nil {
		t.Fatalf("MixedVolFor: %v", err)
	}
	if !near(m.IVCurrentToHVAverage, 1.25) || !near(m.IVAverageToHVAverage, 1.25) {
		t.Fatalf("ratios %+v, expected 1.25", m)
	}
	if m.Differences != 5 || m.PositiveDifferenceRatio != 100 || !near(m.DifferenceAverage, 5) {
		t.Fatalf("unexpected differences %+v", m)
	}
	if _, err := MixedVolFor(context.Background(), r, "QQQ", 25); !errors.Is(err, ErrNoSeries) {
		t.Fatalf("missing series err=%v", err)
	}
}

func TestSizing(t *testing.T) {
	tests := []struct {
		price, ratio         float64
		directional, neutral float64
	}{
		{50, 2, 100, 5},
		{100, 1, 100, 5},
		{200, 0.5, 100, 5},
		{250, 4, 10, 0.5},
	}
	for _, tt := range tests {
		d, err := DirectionalContracts(tt.price, tt.ratio)
		if err != nil || !near(d, tt.directional) {
			t.Fatalf("DirectionalContracts(%v,%v)=%v,%v, expected %v", tt.price, tt.ratio, d, err, tt.directional)
		}
		n, err := NeutralContracts(tt.price, tt.ratio)
		if err != nil || !near(n, tt.neutral) {
			t.Fatalf("NeutralContracts(%v,%v)=%v,%v, expected %v", tt.price, tt.ratio, n, err, tt.neutral)
		}
	}
	if _, err := DirectionalContracts(0, 1); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("zero price err=%v", err)
	}

	closes := []float64{100, 110, 99}
	s, err := SizeFor(closes)
	if err != nil {
		t.Fatalf("SizeFor: %v", err)
	}
	wantHV := math.Sqrt(200) * sqrt252
	if s.Price != 99 || !near(s.HV, wantHV) || !near(s.VolRatio, wantHV/10) {
		t.Fatalf("unexpected sizing %+v", s)
	}
	if !near(s.Directional, DirectionalDollars/(99*wantHV/10)) {
		t.Fatalf("Directional=%v", s.Directional)
	}
	if _, err := SizeFor([]float64{100}); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("single close err=%v", err)
	}
}
