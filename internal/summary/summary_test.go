package summary_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/agrobot/internal/analyze"
	"github.com/derickschaefer/agrobot/internal/llm"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/summary"
)

var parcel = model.Parcel{ID: "P1", FarmerID: "F1", Name: "North Field", AreaHa: 12.5, Crop: "wheat"}

func healthySample() *model.MetricSample {
	return &model.MetricSample{
		Date:       time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		NDVI:       model.Float(0.62),
		NDMI:       model.Float(0.35),
		NDWI:       model.Float(0.28),
		SOC:        model.Float(2.8),
		Nitrogen:   model.Float(1.2),
		Phosphorus: model.Float(0.40),
		Potassium:  model.Float(0.75),
		PH:         model.Float(6.5),
	}
}

func provider(out string, err error) llm.Provider {
	return llm.ProviderFunc(func(context.Context, string) (string, error) { return out, err })
}

// ─── Assess ───────────────────────────────────────────────────────────────────

func TestAssessOverall(t *testing.T) {
	tests := []struct {
		name   string
		sample model.MetricSample
		want   summary.Rating
	}{
		{"all good", *healthySample(), summary.RatingExcellent},
		{
			// 1 good, 2 moderate of 3: good ratio 0.33, good+moderate 1.0
			"mostly moderate",
			model.MetricSample{NDVI: model.Float(0.6), NDMI: model.Float(0.2), NDWI: model.Float(0.2)},
			summary.RatingGood,
		},
		{
			"half poor",
			model.MetricSample{NDVI: model.Float(0.1), NDMI: model.Float(0.05), NDWI: model.Float(0.3), PH: model.Float(5.7)},
			summary.RatingNeedsAttention,
		},
		{
			// 1 good, 1 moderate, 1 poor: none of the first three thresholds
			"mixed",
			model.MetricSample{NDVI: model.Float(0.6), NDMI: model.Float(0.2), NDWI: model.Float(0.05)},
			summary.RatingModerate,
		},
	}
	for _, tt := range tests {
		a := summary.Assess(tt.sample)
		if a.Overall != tt.want {
			t.Errorf("%s: expected %s, got %s (%+v)", tt.name, tt.want, a.Overall, a)
		}
	}
}

func TestAssessCountsOnlyPresentMetrics(t *testing.T) {
	a := summary.Assess(model.MetricSample{PH: model.Float(7.3)})
	if a.Total != 1 || a.Moderate != 1 {
		t.Errorf("expected 1 moderate of 1, got %+v", a)
	}
	if empty := summary.Assess(model.MetricSample{}); empty.Total != 0 || empty.Overall != "" {
		t.Errorf("expected empty assessment, got %+v", empty)
	}
}

// ─── Status ───────────────────────────────────────────────────────────────────

func TestStatusRulesNarrative(t *testing.T) {
	out := summary.StatusRules{}.Generate(context.Background(), parcel, healthySample())

	for _, want := range []string{
		"**Current Status for Parcel P1 - North Field**",
		"(12.5 ha, wheat)",
		"**Vegetation (NDVI: 0.62):** Vegetation is healthy and dense.",
		"**pH Level (6.50):** Good pH - ideal for most crops.",
		"- Good: 7/8 indices",
		"- Moderate: 1/8 indices",
		"**Summary: EXCELLENT",
		"Continue current management practices.",
		"Last measured on 2024-05-10.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("narrative missing %q\n%s", want, out)
		}
	}
}

func TestStatusRulesNoData(t *testing.T) {
	out := summary.StatusRules{}.Generate(context.Background(), parcel, nil)
	if out != "Parcel P1: no data available yet" {
		t.Errorf("unexpected no-data text %q", out)
	}
}

func TestStatusRulesEmptySampleSkipsTally(t *testing.T) {
	s := &model.MetricSample{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	out := summary.StatusRules{}.Generate(context.Background(), parcel, s)
	if strings.Contains(out, "Overall Parcel Status") {
		t.Error("tally should be omitted when no metric is present")
	}
	if !strings.HasSuffix(out, "Last measured on 2024-01-02.") {
		t.Errorf("unexpected ending: %q", out)
	}
}

func TestStatusGenerativeUsesProvider(t *testing.T) {
	s := summary.NewStatus(provider("  North Field looks great.  ", nil), nil)
	if got := s.Generate(context.Background(), parcel, healthySample()); got != "North Field looks great." {
		t.Errorf("expected trimmed provider text, got %q", got)
	}
}

func TestStatusFallbackMatchesRules(t *testing.T) {
	failing := summary.NewStatus(provider("", &llm.ProviderError{Op: "test", Err: errors.New("quota")}), nil)
	rules := summary.StatusRules{}

	got := failing.Generate(context.Background(), parcel, healthySample())
	want := rules.Generate(context.Background(), parcel, healthySample())
	if got != want {
		t.Errorf("fallback output differs from rules\n got: %q\nwant: %q", got, want)
	}
	if failing.Generate(context.Background(), parcel, nil) != summary.NoData("P1") {
		t.Error("fallback must produce the no-data text when there is no sample")
	}
}

func TestStatusFallbackOnBlankAnswer(t *testing.T) {
	s := summary.NewStatus(provider("   ", nil), nil)
	got := s.Generate(context.Background(), parcel, healthySample())
	if !strings.Contains(got, "**Overall Parcel Status:**") {
		t.Errorf("expected rule-based narrative after blank answer, got %q", got)
	}
}

func TestStatusPromptGrounding(t *testing.T) {
	p := summary.StatusPrompt(parcel, *healthySample())
	for _, want := range []string{
		"North Field (P1)",
		"Vegetation (NDVI: 0.62): Vegetation is healthy and dense.",
		"Between 3 and 6 bullet points",
		"measured on 2024-05-10",
		"Do not invent values",
		"Do not give recommendations",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

// ─── Trend ────────────────────────────────────────────────────────────────────

func trendResult() analyze.TrendResult {
	return analyze.Trends([]model.MetricSample{
		{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), NDVI: model.Float(0.4), PH: model.Float(6.5)},
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), NDVI: model.Float(0.7), PH: model.Float(6.52)},
	})
}

func TestTrendRules(t *testing.T) {
	got := summary.TrendRules{}.Generate(context.Background(), parcel, trendResult())
	want := "Trend Analysis for North Field: NDVI: increasing, PH: stable"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTrendRulesNoData(t *testing.T) {
	got := summary.TrendRules{}.Generate(context.Background(), parcel, analyze.Trends(nil))
	if got != summary.NoTrendData {
		t.Errorf("expected %q, got %q", summary.NoTrendData, got)
	}
}

func TestTrendFallback(t *testing.T) {
	s := summary.NewTrend(provider("", context.DeadlineExceeded), nil)
	got := s.Generate(context.Background(), parcel, trendResult())
	if !strings.HasPrefix(got, "Trend Analysis for North Field:") {
		t.Errorf("expected rule fallback, got %q", got)
	}

	ok := summary.NewTrend(provider("Vegetation is improving.", nil), nil)
	if got := ok.Generate(context.Background(), parcel, trendResult()); got != "Vegetation is improving." {
		t.Errorf("expected provider text, got %q", got)
	}
}

func TestTrendPrompt(t *testing.T) {
	p := summary.TrendPrompt(parcel, trendResult())
	for _, want := range []string{"NDVI: increasing (from 0.40 to 0.70)", "PH: stable", "Vegetation density and health are improving"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
