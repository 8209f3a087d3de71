// Package analyze computes descriptive statistics and first-versus-last
// trend classification over parcel metric series. All functions are pure;
// no I/O.
package analyze

import (
	"math"
	"sort"

	"github.com/derickschaefer/agrobot/internal/model"
)

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for one metric of a parcel series.
type Summary struct {
	Metric      model.Metric `json:"metric"`
	Count       int          `json:"count"`       // total samples
	Missing     int          `json:"missing"`     // samples without this metric
	MissingPct  float64      `json:"missing_pct"` // percent missing
	Mean        float64      `json:"mean"`
	Std         float64      `json:"std"`
	Min         float64      `json:"min"`
	Median      float64      `json:"median"`
	Max         float64      `json:"max"`
	First       float64      `json:"first"`         // earliest present value
	Last        float64      `json:"last"`          // latest present value
	Change      float64      `json:"change"`        // Last - First
	SlopePerDay float64      `json:"slope_per_day"` // OLS slope against days since first sample
}

// Summarize computes descriptive statistics for metric m over samples.
// Samples are considered in date order; absent values are counted but
// excluded from every numeric computation.
func Summarize(m model.Metric, samples []model.MetricSample) Summary {
	s := Summary{Metric: m, Count: len(samples)}
	if len(samples) == 0 {
		return s
	}

	ordered := SortByDate(samples)

	var vals []float64
	var pts []point
	t0 := ordered[0].Date.Unix()
	for _, smp := range ordered {
		v := smp.Value(m)
		if v == nil || math.IsNaN(*v) {
			s.Missing++
			continue
		}
		vals = append(vals, *v)
		pts = append(pts, point{float64(smp.Date.Unix()-t0) / 86400, *v})
	}
	s.MissingPct = float64(s.Missing) / float64(s.Count) * 100
	if len(vals) == 0 {
		s.Mean = math.NaN()
		s.Std = math.NaN()
		s.Min = math.NaN()
		s.Median = math.NaN()
		s.Max = math.NaN()
		s.First = math.NaN()
		s.Last = math.NaN()
		s.Change = math.NaN()
		s.SlopePerDay = math.NaN()
		return s
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Mean = sumF(vals) / float64(len(vals))
	s.Std = stddevF(vals, s.Mean)
	s.Median = percentile(sorted, 50)
	s.First = vals[0]
	s.Last = vals[len(vals)-1]
	s.Change = s.Last - s.First
	if len(pts) >= 2 {
		s.SlopePerDay, _ = olsRegress(pts)
	}
	return s
}

// SortByDate returns a copy of samples ordered by date ascending. The sort is
// stable, so samples sharing a date keep their input order.
func SortByDate(samples []model.MetricSample) []model.MetricSample {
	out := make([]model.MetricSample, len(samples))
	copy(out, samples)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Latest returns the most recent sample, or false for an empty series.
func Latest(samples []model.MetricSample) (model.MetricSample, bool) {
	if len(samples) == 0 {
		return model.MetricSample{}, false
	}
	ordered := SortByDate(samples)
	return ordered[len(ordered)-1], true
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func sumF(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddevF(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

type point struct{ x, y float64 }

func olsRegress(pts []point) (slope, intercept float64) {
	n := float64(len(pts))
	var xSum, ySum, xySum, x2Sum float64
	for _, p := range pts {
		xSum += p.x
		ySum += p.y
		xySum += p.x * p.y
		x2Sum += p.x * p.x
	}
	denom := n*x2Sum - xSum*xSum
	if denom == 0 {
		return 0, ySum / n
	}
	slope = (n*xySum - xSum*ySum) / denom
	intercept = (ySum - slope*xSum) / n
	return
}
