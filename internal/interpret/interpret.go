// Package interpret maps single metric measurements to qualitative
// judgments. Two independent tables live here:
//
//   - the interpretation table: four-ish categories per metric with a short
//     phrase and a longer narrative, used for display and prompt grounding
//   - the rating table: a three-tier good/moderate/poor scale used to tally
//     an overall parcel verdict
//
// Both are plain data; all functions are pure.
package interpret

import (
	"math"
	"strings"

	"github.com/derickschaefer/agrobot/internal/model"
)

// NoData is the sentinel category returned for an absent measurement.
const NoData = "no data"

// ─── Bounds ───────────────────────────────────────────────────────────────────

// span is an interval on the real line with per-end inclusivity.
type span struct {
	lo, hi         float64
	loIncl, hiIncl bool
}

func (s span) contains(v float64) bool {
	if v < s.lo || (v == s.lo && !s.loIncl) {
		return false
	}
	if v > s.hi || (v == s.hi && !s.hiIncl) {
		return false
	}
	return true
}

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

// below is (-inf, x).
func below(x float64) span { return span{lo: negInf, hi: x, loIncl: true} }

// closed is [a, b].
func closed(a, b float64) span { return span{lo: a, hi: b, loIncl: true, hiIncl: true} }

// halfOpen is [a, b).
func halfOpen(a, b float64) span { return span{lo: a, hi: b, loIncl: true} }

// above is (x, +inf).
func above(x float64) span { return span{lo: x, hi: posInf, hiIncl: true} }

// atLeast is [x, +inf).
func atLeast(x float64) span { return span{lo: x, hi: posInf, loIncl: true, hiIncl: true} }

// ─── Interpretation table ─────────────────────────────────────────────────────

// Reading is the interpretation of one measurement.
type Reading struct {
	Category string `json:"category"` // e.g. "healthy"
	Phrase   string `json:"phrase"`   // e.g. "vegetation is healthy"
	Detail   string `json:"detail"`   // e.g. "Vegetation is healthy and dense."
}

type band struct {
	span
	Reading
}

var interpretation = map[model.Metric][]band{
	model.Vegetation: {
		{below(0.30), Reading{"poor", "vegetation is poor", "Vegetation is poor and may be stressed."}},
		{halfOpen(0.30, 0.55), Reading{"moderate", "vegetation is moderate", "Vegetation is developing with moderate health."}},
		{closed(0.55, 0.75), Reading{"healthy", "vegetation is healthy", "Vegetation is healthy and dense."}},
		{above(0.75), Reading{"very vigorous", "vegetation is very vigorous", "Vegetation is extremely vigorous."}},
	},
	model.Moisture: {
		{below(0.15), Reading{"low", "moisture is low", "Low moisture - possible drought stress."}},
		{closed(0.15, 0.30), Reading{"moderate", "moisture is moderate", "Moderate moisture levels."}},
		{above(0.30), Reading{"high", "moisture is high", "High moisture - healthy water content."}},
	},
	model.Water: {
		{below(0.10), Reading{"low", "water presence is low", "Low water presence."}},
		{closed(0.10, 0.25), Reading{"moderate", "water content is moderate", "Moderate water content."}},
		{above(0.25), Reading{"strong", "water presence is strong", "Strong water presence."}},
	},
	model.OrganicCarbon: {
		{below(1.5), Reading{"low", "soil organic carbon is low", "Low soil organic matter - poor soil quality."}},
		{closed(1.5, 2.5), Reading{"moderate", "soil organic carbon is moderate", "Moderate soil organic content."}},
		{above(2.5), Reading{"high", "soil organic carbon is high", "High organic content - rich soil quality."}},
	},
	model.Nitrogen: {
		{below(0.7), Reading{"low", "nitrogen is low", "Low nitrogen - crop may need fertilization."}},
		{closed(0.7, 1.0), Reading{"adequate", "nitrogen is adequate", "Adequate nitrogen levels."}},
		{above(1.0), Reading{"high", "nitrogen is high", "High nitrogen levels - good for crop growth."}},
	},
	model.Phosphorus: {
		{below(0.35), Reading{"low", "phosphorus is low", "Low phosphorus levels."}},
		{closed(0.35, 0.45), Reading{"adequate", "phosphorus is adequate", "Adequate phosphorus levels."}},
		{above(0.45), Reading{"high", "phosphorus is high", "High phosphorus levels."}},
	},
	model.Potassium: {
		{below(0.55), Reading{"low", "potassium is low", "Low potassium levels."}},
		{closed(0.55, 0.70), Reading{"adequate", "potassium is adequate", "Adequate potassium levels."}},
		{above(0.70), Reading{"high", "potassium is high", "High potassium levels - good for crop health."}},
	},
	model.PH: {
		{below(5.5), Reading{"acidic", "pH is acidic", "Acidic soil - problematic for most crops."}},
		{halfOpen(5.5, 6.0), Reading{"slightly acidic", "pH is slightly acidic", "Slightly acidic - acceptable for most crops."}},
		{closed(6.0, 7.0), Reading{"good", "pH is good", "Good pH - ideal for most crops."}},
		{above(7.0), Reading{"alkaline", "pH is alkaline", "Alkaline soil - may cause nutrient availability issues."}},
	},
}

// Interpret returns the reading for v under metric m.
// ok is false when v is nil, NaN, or m is unknown.
func Interpret(m model.Metric, v *float64) (r Reading, ok bool) {
	if v == nil || math.IsNaN(*v) {
		return Reading{}, false
	}
	for _, b := range interpretation[m] {
		if b.contains(*v) {
			return b.Reading, true
		}
	}
	return Reading{}, false
}

// Category returns the category label for v, or NoData.
func Category(m model.Metric, v *float64) string {
	r, ok := Interpret(m, v)
	if !ok {
		return NoData
	}
	return r.Category
}

// Phrase returns the short phrase for v, or "" when absent.
func Phrase(m model.Metric, v *float64) string {
	r, _ := Interpret(m, v)
	return r.Phrase
}

// Detail returns the narrative sentence for v, or "No data available".
func Detail(m model.Metric, v *float64) string {
	r, ok := Interpret(m, v)
	if !ok {
		return "No data available"
	}
	return r.Detail
}

// ─── Rating table ─────────────────────────────────────────────────────────────

// Tier is the three-level rating used for the overall parcel verdict.
type Tier string

const (
	TierGood     Tier = "good"
	TierModerate Tier = "moderate"
	TierPoor     Tier = "poor"
)

type tierRule struct {
	good     []span
	moderate []span
}

// Anything outside good and moderate is poor.
var rating = map[model.Metric]tierRule{
	model.Vegetation:    {good: []span{atLeast(0.55)}, moderate: []span{halfOpen(0.30, 0.55)}},
	model.Moisture:      {good: []span{above(0.30)}, moderate: []span{closed(0.15, 0.30)}},
	model.Water:         {good: []span{above(0.25)}, moderate: []span{closed(0.10, 0.25)}},
	model.OrganicCarbon: {good: []span{above(2.5)}, moderate: []span{closed(1.5, 2.5)}},
	model.Nitrogen:      {good: []span{above(1.0)}, moderate: []span{closed(0.7, 1.0)}},
	model.Phosphorus:    {good: []span{above(0.45)}, moderate: []span{closed(0.35, 0.45)}},
	model.Potassium:     {good: []span{above(0.70)}, moderate: []span{closed(0.55, 0.70)}},
	model.PH: {
		good:     []span{closed(6.0, 7.0)},
		moderate: []span{halfOpen(5.5, 6.0), {lo: 7.0, hi: 7.5, hiIncl: true}},
	},
}

// Rate returns the tier for v under metric m. ok is false when v is absent.
func Rate(m model.Metric, v *float64) (Tier, bool) {
	if v == nil || math.IsNaN(*v) {
		return "", false
	}
	rule, known := rating[m]
	if !known {
		return "", false
	}
	for _, s := range rule.good {
		if s.contains(*v) {
			return TierGood, true
		}
	}
	for _, s := range rule.moderate {
		if s.contains(*v) {
			return TierModerate, true
		}
	}
	return TierPoor, true
}

// ─── Metric vocabulary ────────────────────────────────────────────────────────

// Vocabulary holds the display names used when narrating a metric.
type Vocabulary struct {
	Code       string // short upper-case code, e.g. "NDVI"
	Title      string // heading, e.g. "Vegetation"
	Subject    string // used in sentences, e.g. "vegetation"
	Rising     string // trend phrase when increasing
	Falling    string // trend phrase when decreasing
	ValueLabel string // label printed next to the value, e.g. "NDVI"
}

var vocabulary = map[model.Metric]Vocabulary{
	model.Vegetation:    {"NDVI", "Vegetation", "vegetation", "improving", "declining", "NDVI"},
	model.Moisture:      {"NDMI", "Moisture", "moisture", "increasing", "decreasing", "NDMI"},
	model.Water:         {"NDWI", "Water", "water content", "increasing", "decreasing", "NDWI"},
	model.OrganicCarbon: {"SOC", "Soil Organic Carbon", "soil organic carbon", "increasing", "decreasing", "SOC"},
	model.Nitrogen:      {"NITROGEN", "Nitrogen", "nitrogen", "increasing", "decreasing - potential nutrient depletion", "N"},
	model.Phosphorus:    {"PHOSPHORUS", "Phosphorus", "phosphorus", "increasing", "decreasing", "P"},
	model.Potassium:     {"POTASSIUM", "Potassium", "potassium", "increasing", "decreasing", "K"},
	model.PH:            {"PH", "pH Level", "pH", "increasing (more alkaline)", "decreasing (more acidic)", "pH"},
}

// Words returns the vocabulary for m. Unknown metrics get a generic entry.
func Words(m model.Metric) Vocabulary {
	if v, ok := vocabulary[m]; ok {
		return v
	}
	code := strings.ToUpper(string(m))
	return Vocabulary{code, code, string(m), "increasing", "decreasing", code}
}
