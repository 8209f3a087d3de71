// Package model defines the canonical data types used throughout agrobot.
// These types are the single source of truth for farmers, parcels, metric
// samples and report preferences, plus the result envelope that every
// command returns.
package model

import (
	"time"
)

// ─── Metrics ──────────────────────────────────────────────────────────────────

// Metric identifies one of the eight agronomic measurements carried by a
// MetricSample. The string value is the stable wire/storage code.
type Metric string

const (
	Vegetation    Metric = "ndvi"
	Moisture      Metric = "ndmi"
	Water         Metric = "ndwi"
	OrganicCarbon Metric = "soc"
	Nitrogen      Metric = "nitrogen"
	Phosphorus    Metric = "phosphorus"
	Potassium     Metric = "potassium"
	PH            Metric = "ph"
)

// AllMetrics lists every metric in canonical display order.
var AllMetrics = []Metric{
	Vegetation, Moisture, Water, OrganicCarbon,
	Nitrogen, Phosphorus, Potassium, PH,
}

// ParseMetric resolves a metric code (case-insensitive is the caller's job).
func ParseMetric(s string) (Metric, bool) {
	for _, m := range AllMetrics {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// ─── Domain entities ──────────────────────────────────────────────────────────

// Farmer is a report recipient. Phone is empty until the account is linked
// to a messaging contact.
type Farmer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
}

// Linked reports whether the farmer has a messaging contact.
func (f Farmer) Linked() bool { return f.Phone != "" }

// Parcel is a field owned by a farmer.
type Parcel struct {
	ID       string  `json:"id"`
	FarmerID string  `json:"farmer_id"`
	Name     string  `json:"name"`
	AreaHa   float64 `json:"area_ha"`
	Crop     string  `json:"crop"`
}

// MetricSample is one dated measurement set for a parcel. Every metric is
// optional; nil means no measurement was taken.
type MetricSample struct {
	Date       time.Time `json:"date"`
	NDVI       *float64  `json:"ndvi"`
	NDMI       *float64  `json:"ndmi"`
	NDWI       *float64  `json:"ndwi"`
	SOC        *float64  `json:"soc"`
	Nitrogen   *float64  `json:"nitrogen"`
	Phosphorus *float64  `json:"phosphorus"`
	Potassium  *float64  `json:"potassium"`
	PH         *float64  `json:"ph"`
}

// Value returns the measurement for m, or nil when absent.
func (s MetricSample) Value(m Metric) *float64 {
	switch m {
	case Vegetation:
		return s.NDVI
	case Moisture:
		return s.NDMI
	case Water:
		return s.NDWI
	case OrganicCarbon:
		return s.SOC
	case Nitrogen:
		return s.Nitrogen
	case Phosphorus:
		return s.Phosphorus
	case Potassium:
		return s.Potassium
	case PH:
		return s.PH
	}
	return nil
}

// Set stores v for metric m. Unknown metrics are ignored.
func (s *MetricSample) Set(m Metric, v *float64) {
	switch m {
	case Vegetation:
		s.NDVI = v
	case Moisture:
		s.NDMI = v
	case Water:
		s.NDWI = v
	case OrganicCarbon:
		s.SOC = v
	case Nitrogen:
		s.Nitrogen = v
	case Phosphorus:
		s.Phosphorus = v
	case Potassium:
		s.Potassium = v
	case PH:
		s.PH = v
	}
}

// SampleSeries is the dated history of one parcel.
type SampleSeries struct {
	ParcelID string         `json:"parcel_id"`
	Samples  []MetricSample `json:"samples"`
}

// Float returns a pointer to v. Handy for building samples in code and tests.
func Float(v float64) *float64 { return &v }

// ─── Intents ──────────────────────────────────────────────────────────────────

// Intent is the closed action vocabulary the assistant understands.
type Intent string

const (
	IntentListParcels        Intent = "LIST_PARCELS"
	IntentParcelDetails      Intent = "PARCEL_DETAILS"
	IntentParcelStatus       Intent = "PARCEL_STATUS"
	IntentSetReportFrequency Intent = "SET_REPORT_FREQUENCY"
	IntentUnknown            Intent = "UNKNOWN"
)

// AllIntents lists every valid intent label.
var AllIntents = []Intent{
	IntentListParcels,
	IntentParcelDetails,
	IntentParcelStatus,
	IntentSetReportFrequency,
	IntentUnknown,
}

// ParseIntent returns the intent for an exact label.
func ParseIntent(s string) (Intent, bool) {
	for _, in := range AllIntents {
		if string(in) == s {
			return in, true
		}
	}
	return "", false
}

// ─── Report preferences ───────────────────────────────────────────────────────

// ReportPreference is a recipient's chosen report cadence. LastSent is nil
// until the first report is generated.
type ReportPreference struct {
	ID        string     `json:"id"`
	Recipient string     `json:"recipient"`
	Frequency string     `json:"frequency"`
	LastSent  *time.Time `json:"last_sent,omitempty"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries timing metadata for a command result.
type ResultStats struct {
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindParcels  = "parcels"
	KindSamples  = "samples"
	KindTrends   = "trends"
	KindPayloads = "payloads"
	KindOutbox   = "outbox"
)
