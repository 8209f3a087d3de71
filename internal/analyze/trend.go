package analyze

import (
	"time"

	"github.com/derickschaefer/agrobot/internal/interpret"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/util"
)

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendThreshold is the absolute change beyond which a metric is considered
// to be moving. It applies to every metric regardless of scale.
const TrendThreshold = 0.05

// Direction is the classification of a first-versus-last change.
type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	Stable     Direction = "stable"
)

// Status distinguishes a computed trend from a series that was too short.
type Status string

const (
	StatusOK               Status = "ok"
	StatusInsufficientData Status = "insufficient_data"
)

// Period describes the span of samples a trend was computed over.
type Period struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Samples int       `json:"samples"`
}

// MetricTrend is the trend of one metric between the earliest and latest
// sample. Values are rounded to three decimals.
type MetricTrend struct {
	Metric         model.Metric `json:"metric"`
	First          float64      `json:"first_value"`
	Last           float64      `json:"last_value"`
	Change         float64      `json:"change"`
	Direction      Direction    `json:"trend"`
	Interpretation string       `json:"interpretation"`
	Recommendation string       `json:"recommendation"`
}

// TrendResult is the output of Trends. When Status is insufficient_data only
// Period.Samples is meaningful.
type TrendResult struct {
	Status Status        `json:"status"`
	Period Period        `json:"period"`
	Trends []MetricTrend `json:"trends"`
}

// Insufficient reports whether the series was too short to compare.
func (r TrendResult) Insufficient() bool { return r.Status == StatusInsufficientData }

// Lookup returns the trend for metric m, if computed.
func (r TrendResult) Lookup(m model.Metric) (MetricTrend, bool) {
	for _, t := range r.Trends {
		if t.Metric == m {
			return t, true
		}
	}
	return MetricTrend{}, false
}

// Trends compares the earliest and latest sample of a series, per metric.
// Fewer than two samples yields an insufficient_data result carrying the
// sample count. Metrics absent from either endpoint are omitted.
func Trends(samples []model.MetricSample) TrendResult {
	if len(samples) < 2 {
		return TrendResult{
			Status: StatusInsufficientData,
			Period: Period{Samples: len(samples)},
		}
	}

	ordered := SortByDate(samples)
	first, last := ordered[0], ordered[len(ordered)-1]

	res := TrendResult{
		Status: StatusOK,
		Period: Period{Start: first.Date, End: last.Date, Samples: len(ordered)},
		Trends: []MetricTrend{},
	}
	for _, m := range model.AllMetrics {
		a, b := first.Value(m), last.Value(m)
		if a == nil || b == nil {
			continue
		}
		change := *b - *a
		dir := Classify(change)
		res.Trends = append(res.Trends, MetricTrend{
			Metric:         m,
			First:          util.Round(*a, 3),
			Last:           util.Round(*b, 3),
			Change:         util.Round(change, 3),
			Direction:      dir,
			Interpretation: Interpretation(m, dir),
			Recommendation: Recommendation(m, dir),
		})
	}
	return res
}

// Classify applies TrendThreshold to an unrounded change.
func Classify(change float64) Direction {
	switch {
	case change > TrendThreshold:
		return Increasing
	case change < -TrendThreshold:
		return Decreasing
	default:
		return Stable
	}
}

// Interpretation returns "<subject> is <phrase>" for metric m moving in dir.
func Interpretation(m model.Metric, dir Direction) string {
	w := interpret.Words(m)
	switch dir {
	case Increasing:
		return w.Subject + " is " + w.Rising
	case Decreasing:
		return w.Subject + " is " + w.Falling
	default:
		return w.Subject + " is stable"
	}
}

// Recommendation returns the fixed explanatory sentence for m moving in dir.
func Recommendation(m model.Metric, dir Direction) string {
	if byDir, ok := recommendations[m]; ok {
		if s, ok := byDir[dir]; ok {
			return s
		}
	}
	return "No specific recommendation available."
}

var recommendations = map[model.Metric]map[Direction]string{
	model.Vegetation: {
		Increasing: "Vegetation density and health are improving, indicating stronger crop canopy development.",
		Decreasing: "Vegetation density is declining, which may indicate crop stress, disease, or reduced plant vigor.",
		Stable:     "Vegetation density remains consistent with no significant changes in crop canopy health.",
	},
	model.Moisture: {
		Increasing: "Moisture content in vegetation is rising, suggesting better water availability in plant tissues.",
		Decreasing: "Moisture content is declining, indicating potential water stress or drought conditions developing.",
		Stable:     "Moisture levels remain steady with consistent water content in the vegetation.",
	},
	model.Water: {
		Increasing: "Water presence is increasing, showing improved water availability in the soil and crops.",
		Decreasing: "Water content is reducing, which reflects drier conditions or reduced water retention.",
		Stable:     "Water levels are maintaining equilibrium with no significant moisture fluctuations.",
	},
	model.OrganicCarbon: {
		Increasing: "Soil organic carbon is accumulating, reflecting improved soil structure and organic matter content.",
		Decreasing: "Organic carbon levels are declining, suggesting organic matter decomposition or soil degradation.",
		Stable:     "Soil organic carbon remains constant, indicating balanced organic matter dynamics.",
	},
	model.Nitrogen: {
		Increasing: "Nitrogen availability is growing, showing improved nutrient supply for plant growth.",
		Decreasing: "Nitrogen levels are dropping, indicating nutrient uptake by crops or nutrient loss from the soil.",
		Stable:     "Nitrogen content remains balanced with consistent nutrient availability.",
	},
	model.Phosphorus: {
		Increasing: "Phosphorus levels are rising, indicating increased availability of this essential nutrient.",
		Decreasing: "Phosphorus is declining, reflecting nutrient consumption or reduced availability in soil.",
		Stable:     "Phosphorus levels remain steady with balanced nutrient dynamics.",
	},
	model.Potassium: {
		Increasing: "Potassium content is growing, showing improved availability of this important macronutrient.",
		Decreasing: "Potassium levels are falling, indicating nutrient depletion or increased plant uptake.",
		Stable:     "Potassium remains at consistent levels with stable nutrient status.",
	},
	model.PH: {
		Increasing: "Soil pH is rising, meaning the soil is becoming more alkaline or less acidic.",
		Decreasing: "Soil pH is falling, indicating the soil is becoming more acidic or less alkaline.",
		Stable:     "Soil pH remains constant with no significant changes in acidity or alkalinity.",
	},
}
