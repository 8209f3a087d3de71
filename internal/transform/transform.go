// Package transform implements pure operators over a parcel's sample
// history: date windows, metric filters and calendar resampling. No I/O.
package transform

import (
	"fmt"
	"sort"
	"time"

	"github.com/derickschaefer/agrobot/internal/analyze"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/util"
)

// ─── Filter ───────────────────────────────────────────────────────────────────

// FilterOptions describes a sample filter. Zero fields match everything.
type FilterOptions struct {
	Since   time.Time      // inclusive
	Until   time.Time      // inclusive
	Require []model.Metric // every listed metric must be measured
	Last    int            // keep only the most recent N after the other criteria
}

// Filter returns the samples matching every criterion in opts, in date
// order.
func Filter(samples []model.MetricSample, opts FilterOptions) []model.MetricSample {
	var out []model.MetricSample
	for _, s := range analyze.SortByDate(samples) {
		day := util.Day(s.Date)
		if !opts.Since.IsZero() && day.Before(util.Day(opts.Since)) {
			continue
		}
		if !opts.Until.IsZero() && day.After(util.Day(opts.Until)) {
			continue
		}
		if !measured(s, opts.Require) {
			continue
		}
		out = append(out, s)
	}
	if opts.Last > 0 && len(out) > opts.Last {
		out = out[len(out)-opts.Last:]
	}
	return out
}

func measured(s model.MetricSample, metrics []model.Metric) bool {
	for _, m := range metrics {
		if s.Value(m) == nil {
			return false
		}
	}
	return true
}

// ParseWindow parses optional YYYY-MM-DD bounds. An empty string leaves the
// bound open.
func ParseWindow(since, until string) (FilterOptions, error) {
	var opts FilterOptions
	var err error
	if since != "" {
		if opts.Since, err = util.ParseDate(since); err != nil {
			return opts, fmt.Errorf("--since: %w", err)
		}
	}
	if until != "" {
		if opts.Until, err = util.ParseDate(until); err != nil {
			return opts, fmt.Errorf("--until: %w", err)
		}
	}
	if !opts.Since.IsZero() && !opts.Until.IsZero() && opts.Until.Before(opts.Since) {
		return opts, fmt.Errorf("--until %s is before --since %s", until, since)
	}
	return opts, nil
}

// ─── Resample ─────────────────────────────────────────────────────────────────

// ResampleFreq is the target calendar period.
type ResampleFreq string

const (
	FreqWeekly  ResampleFreq = "weekly"
	FreqMonthly ResampleFreq = "monthly"
)

// Resample averages samples per calendar period, metric by metric. Absent
// values are skipped; a metric never measured in a period stays absent.
// Each output sample is dated at the start of its period (ISO weeks start on
// Monday).
func Resample(samples []model.MetricSample, freq ResampleFreq) ([]model.MetricSample, error) {
	if freq != FreqWeekly && freq != FreqMonthly {
		return nil, fmt.Errorf("resample: unknown frequency %q (want weekly or monthly)", freq)
	}

	type bucket struct {
		start  time.Time
		sums   map[model.Metric]float64
		counts map[model.Metric]int
	}
	buckets := map[time.Time]*bucket{}
	for _, s := range samples {
		start := periodStart(s.Date, freq)
		b, ok := buckets[start]
		if !ok {
			b = &bucket{start: start, sums: map[model.Metric]float64{}, counts: map[model.Metric]int{}}
			buckets[start] = b
		}
		for _, m := range model.AllMetrics {
			if v := s.Value(m); v != nil {
				b.sums[m] += *v
				b.counts[m]++
			}
		}
	}

	out := make([]model.MetricSample, 0, len(buckets))
	for _, b := range buckets {
		s := model.MetricSample{Date: b.start}
		for m, n := range b.counts {
			s.Set(m, model.Float(b.sums[m]/float64(n)))
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func periodStart(t time.Time, freq ResampleFreq) time.Time {
	day := util.Day(t)
	if freq == FreqMonthly {
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}
