package summary

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/derickschaefer/agrobot/internal/analyze"
	"github.com/derickschaefer/agrobot/internal/interpret"
	"github.com/derickschaefer/agrobot/internal/llm"
	"github.com/derickschaefer/agrobot/internal/model"
)

// NoTrendData is returned when there is nothing to narrate.
const NoTrendData = "No trend data available."

// TrendStrategy narrates a trend result for one parcel.
type TrendStrategy interface {
	Generate(ctx context.Context, parcel model.Parcel, res analyze.TrendResult) string
}

// TrendRules joins "<CODE>: <direction>" for each metric.
type TrendRules struct{}

// Generate implements TrendStrategy.
func (TrendRules) Generate(_ context.Context, p model.Parcel, res analyze.TrendResult) string {
	if len(res.Trends) == 0 {
		return NoTrendData
	}
	parts := make([]string, len(res.Trends))
	for i, t := range res.Trends {
		parts[i] = fmt.Sprintf("%s: %s", interpret.Words(t.Metric).Code, t.Direction)
	}
	return fmt.Sprintf("Trend Analysis for %s: %s", displayName(p), strings.Join(parts, ", "))
}

// TrendGenerative asks a provider for a narrative of the trends.
type TrendGenerative struct {
	Provider llm.Provider
}

// Generate returns the provider's narrative. A result with no trends gets
// NoTrendData without a provider call.
func (g TrendGenerative) Generate(ctx context.Context, p model.Parcel, res analyze.TrendResult) (string, error) {
	if len(res.Trends) == 0 {
		return NoTrendData, nil
	}
	out, err := g.Provider.Complete(ctx, TrendPrompt(p, res))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &llm.ProviderError{Op: "trend summary", Err: llm.ErrEmptyResponse}
	}
	return out, nil
}

var marks = map[analyze.Direction]string{
	analyze.Increasing: "up",
	analyze.Decreasing: "down",
	analyze.Stable:     "flat",
}

// TrendPrompt builds the narrative prompt for res.
func TrendPrompt(p model.Parcel, res analyze.TrendResult) string {
	var lines []string
	for _, t := range res.Trends {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s (from %.2f to %.2f)",
			marks[t.Direction], interpret.Words(t.Metric).Code, t.Direction, t.First, t.Last))
		if t.Recommendation != "" {
			lines = append(lines, "    "+t.Recommendation)
		}
	}
	trends := "No trend data available"
	if len(lines) > 0 {
		trends = strings.Join(lines, "\n")
	}

	var b strings.Builder
	b.WriteString("You are an agricultural assistant summarising how a farmer's parcel is changing over time.\n\n")
	fmt.Fprintf(&b, "Parcel: %s (%s)\n", displayName(p), p.ID)
	if !res.Period.Start.IsZero() {
		fmt.Fprintf(&b, "Period: %s to %s (%d samples)\n",
			res.Period.Start.Format("2006-01-02"), res.Period.End.Format("2006-01-02"), res.Period.Samples)
	}
	b.WriteString("Trends:\n")
	b.WriteString(trends + "\n\n")
	b.WriteString("Write 2 to 4 friendly sentences describing the most significant changes.\n")
	b.WriteString("- Explain what the patterns mean in simple terms.\n")
	b.WriteString("- Do not repeat the numbers.\n")
	b.WriteString("- Use only the trends listed above.\n")
	return b.String()
}

// TrendFallback runs the generative variant and substitutes the rules on
// any failure.
type TrendFallback struct {
	Primary TrendGenerative
	Rules   TrendRules
	Log     *zap.Logger
}

// Generate implements TrendStrategy.
func (f TrendFallback) Generate(ctx context.Context, p model.Parcel, res analyze.TrendResult) string {
	out, err := f.Primary.Generate(ctx, p, res)
	if err == nil {
		return out
	}
	logger(f.Log).Warn("generative trend summary failed, using rules",
		zap.String("parcel", p.ID), zap.Error(err))
	return f.Rules.Generate(ctx, p, res)
}

// NewTrend returns the rule-based strategy when p is nil, otherwise the
// generative one behind a fallback.
func NewTrend(p llm.Provider, log *zap.Logger) TrendStrategy {
	if p == nil {
		return TrendRules{}
	}
	return TrendFallback{Primary: TrendGenerative{Provider: p}, Log: log}
}
