// Package summary narrates parcel measurements for farmers. Each narrative
// comes in a rule-based variant and a generative variant; the generative one
// is always wrapped in a fallback that substitutes the rules on any provider
// failure.
package summary

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/derickschaefer/agrobot/internal/interpret"
	"github.com/derickschaefer/agrobot/internal/llm"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/util"
)

// StatusStrategy narrates the latest sample of a parcel. latest is nil when
// the parcel has no samples.
type StatusStrategy interface {
	Generate(ctx context.Context, parcel model.Parcel, latest *model.MetricSample) string
}

// NoData is the fixed response for a parcel without samples.
func NoData(parcelID string) string {
	return fmt.Sprintf("Parcel %s: no data available yet", parcelID)
}

// ─── Assessment ───────────────────────────────────────────────────────────────

// Rating is the overall verdict for a parcel.
type Rating string

const (
	RatingExcellent      Rating = "EXCELLENT"
	RatingGood           Rating = "GOOD"
	RatingNeedsAttention Rating = "NEEDS ATTENTION"
	RatingModerate       Rating = "MODERATE"
)

var ratingText = map[Rating]struct{ headline, recommendation string }{
	RatingExcellent: {
		"Parcel is in great condition",
		"Continue current management practices. This parcel is performing optimally. Monitor regularly to maintain these excellent conditions.",
	},
	RatingGood: {
		"Parcel is performing well with minor areas for improvement",
		"The parcel is in good health. Focus on improving the moderate indices through targeted interventions such as adjusting irrigation or applying specific fertilizers where needed.",
	},
	RatingNeedsAttention: {
		"Multiple indices require immediate action",
		"Immediate action required. Review poor indices and implement corrective measures: consider soil amendments, adjust irrigation schedules, apply necessary fertilizers, and consult an agronomist if conditions persist.",
	},
	RatingModerate: {
		"Parcel needs monitoring and possible interventions",
		"Regular monitoring is advised. Address declining indices before they become critical. Consider preventive measures such as balanced fertilization and proper water management.",
	},
}

// Recommendation returns the fixed advice for r.
func (r Rating) Recommendation() string { return ratingText[r].recommendation }

// Headline returns the one-line description of r.
func (r Rating) Headline() string { return ratingText[r].headline }

// Assessment tallies the rating tiers of the metrics present in a sample.
type Assessment struct {
	Good     int    `json:"good"`
	Moderate int    `json:"moderate"`
	Poor     int    `json:"poor"`
	Total    int    `json:"total"`
	Overall  Rating `json:"overall,omitempty"` // empty when Total is 0
}

// Assess rates every present metric of s and derives the overall verdict.
func Assess(s model.MetricSample) Assessment {
	var a Assessment
	for _, m := range model.AllMetrics {
		tier, ok := interpret.Rate(m, s.Value(m))
		if !ok {
			continue
		}
		a.Total++
		switch tier {
		case interpret.TierGood:
			a.Good++
		case interpret.TierModerate:
			a.Moderate++
		default:
			a.Poor++
		}
	}
	if a.Total == 0 {
		return a
	}
	// Ratios compared in integers: good/total >= 0.6 and so on.
	switch {
	case a.Good*10 >= a.Total*6:
		a.Overall = RatingExcellent
	case (a.Good+a.Moderate)*10 >= a.Total*7:
		a.Overall = RatingGood
	case a.Poor*2 >= a.Total:
		a.Overall = RatingNeedsAttention
	default:
		a.Overall = RatingModerate
	}
	return a
}

// ─── Rule-based ───────────────────────────────────────────────────────────────

// StatusRules is the deterministic status narrative.
type StatusRules struct{}

// Generate implements StatusStrategy.
func (StatusRules) Generate(_ context.Context, p model.Parcel, latest *model.MetricSample) string {
	if latest == nil {
		return NoData(p.ID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Current Status for Parcel %s - %s**\n", p.ID, displayName(p))
	fmt.Fprintf(&b, "(%s ha, %s)\n\n", formatArea(p.AreaHa), cropOrUnknown(p.Crop))

	for _, m := range model.AllMetrics {
		v := latest.Value(m)
		if v == nil {
			continue
		}
		w := interpret.Words(m)
		if m == model.PH {
			fmt.Fprintf(&b, "**%s (%.2f):** %s\n\n", w.Title, *v, interpret.Detail(m, v))
			continue
		}
		fmt.Fprintf(&b, "**%s (%s: %.2f):** %s\n\n", w.Title, w.ValueLabel, *v, interpret.Detail(m, v))
	}

	if a := Assess(*latest); a.Total > 0 {
		b.WriteString("---\n\n")
		b.WriteString("**Overall Parcel Status:**\n")
		fmt.Fprintf(&b, "- Good: %d/%d indices\n", a.Good, a.Total)
		fmt.Fprintf(&b, "- Moderate: %d/%d indices\n", a.Moderate, a.Total)
		fmt.Fprintf(&b, "- Poor: %d/%d indices\n\n", a.Poor, a.Total)
		fmt.Fprintf(&b, "**Summary: %s - %s.**\n\n", a.Overall, a.Overall.Headline())
		b.WriteString(a.Overall.Recommendation() + "\n\n")
	}

	fmt.Fprintf(&b, "Last measured on %s.", util.FormatDate(latest.Date))
	return b.String()
}

// ─── Generative ───────────────────────────────────────────────────────────────

// StatusGenerative asks a provider for the status narrative.
type StatusGenerative struct {
	Provider llm.Provider
}

// Generate returns the provider's narrative. A parcel without samples gets
// NoData without a provider call.
func (g StatusGenerative) Generate(ctx context.Context, p model.Parcel, latest *model.MetricSample) (string, error) {
	if latest == nil {
		return NoData(p.ID), nil
	}
	out, err := g.Provider.Complete(ctx, StatusPrompt(p, *latest))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &llm.ProviderError{Op: "status summary", Err: llm.ErrEmptyResponse}
	}
	return out, nil
}

// StatusPrompt builds the grounding prompt for the generative status
// narrative.
func StatusPrompt(p model.Parcel, s model.MetricSample) string {
	var facts []string
	for _, m := range model.AllMetrics {
		v := s.Value(m)
		if v == nil {
			continue
		}
		w := interpret.Words(m)
		facts = append(facts, fmt.Sprintf("- %s (%s: %.2f): %s", w.Title, w.ValueLabel, *v, interpret.Detail(m, v)))
	}
	measurements := "No data available"
	if len(facts) > 0 {
		measurements = strings.Join(facts, "\n")
	}
	date := util.FormatDate(s.Date)

	var b strings.Builder
	b.WriteString("You are an agricultural assistant writing a short status report for a farmer.\n\n")
	fmt.Fprintf(&b, "Parcel: %s (%s), %s ha of %s\n", displayName(p), p.ID, formatArea(p.AreaHa), cropOrUnknown(p.Crop))
	fmt.Fprintf(&b, "Measured on: %s\n", date)
	b.WriteString("Measurements and their interpretation:\n")
	b.WriteString(measurements + "\n\n")
	b.WriteString("Write the report in exactly this shape:\n")
	fmt.Fprintf(&b, "1. A title line naming the parcel (%s).\n", displayName(p))
	b.WriteString("2. Between 3 and 6 bullet points, each interpreting one measurement above in plain language.\n")
	fmt.Fprintf(&b, "3. A closing line stating that the data was measured on %s.\n\n", date)
	b.WriteString("Rules:\n")
	b.WriteString("- Use only the measurements listed above. Do not invent values or measurements.\n")
	b.WriteString("- Describe the current state only. Do not give recommendations.\n")
	b.WriteString("- Keep the language simple and friendly.\n")
	return b.String()
}

// StatusFallback runs the generative variant and substitutes the rules on
// any failure.
type StatusFallback struct {
	Primary StatusGenerative
	Rules   StatusRules
	Log     *zap.Logger
}

// Generate implements StatusStrategy.
func (f StatusFallback) Generate(ctx context.Context, p model.Parcel, latest *model.MetricSample) string {
	out, err := f.Primary.Generate(ctx, p, latest)
	if err == nil {
		return out
	}
	logger(f.Log).Warn("generative status summary failed, using rules",
		zap.String("parcel", p.ID), zap.Error(err))
	return f.Rules.Generate(ctx, p, latest)
}

// NewStatus returns the rule-based strategy when p is nil, otherwise the
// generative one behind a fallback.
func NewStatus(p llm.Provider, log *zap.Logger) StatusStrategy {
	if p == nil {
		return StatusRules{}
	}
	return StatusFallback{Primary: StatusGenerative{Provider: p}, Log: log}
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func displayName(p model.Parcel) string {
	if p.Name == "" {
		return p.ID
	}
	return p.Name
}

func cropOrUnknown(c string) string {
	if c == "" {
		return "Unknown"
	}
	return c
}

func formatArea(ha float64) string {
	if ha <= 0 {
		return "?"
	}
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", ha), "0"), ".")
}
