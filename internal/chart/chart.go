// Package chart draws terminal charts of one metric over a parcel's history.
//
//   - Bar: one horizontal bar per sample, with a zero baseline when the
//     series crosses zero (NDWI often does)
//   - Plot: a line chart with a labelled Y axis and start/middle/end dates
//
// Missing measurements are gaps, never zeros.
package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/util"
)

// Point is one dated value. Value is NaN when the metric was not measured.
type Point struct {
	Date  time.Time
	Value float64
}

// Points extracts metric m from samples, in the order given.
func Points(samples []model.MetricSample, m model.Metric) []Point {
	out := make([]Point, len(samples))
	for i, s := range samples {
		out[i] = Point{Date: s.Date, Value: math.NaN()}
		if v := s.Value(m); v != nil {
			out[i].Value = *v
		}
	}
	return out
}

func present(pts []Point) []Point {
	var out []Point
	for _, p := range pts {
		if !math.IsNaN(p.Value) {
			out = append(out, p)
		}
	}
	return out
}

func bounds(pts []Point) (lo, hi float64) {
	lo, hi = pts[0].Value, pts[0].Value
	for _, p := range pts[1:] {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}
	return lo, hi
}

// ─── Bar ─────────────────────────────────────────────────────────────────────

// BarOptions controls horizontal bar chart rendering.
type BarOptions struct {
	// Width is the total character width. 0 reads $COLUMNS, falling back to 80.
	Width int
	// MaxBars keeps only the most recent bars. 0 means no limit.
	MaxBars int
}

// Bar renders one bar per measured sample:
//
//	ndvi  P1  2024-05-01 – 2024-06-12
//	2024-05-01  0.41  ███████
//	2024-06-12  0.70  ████████████████████
func Bar(w io.Writer, title string, pts []Point, opts BarOptions) error {
	valid := present(pts)
	if len(valid) == 0 {
		return fmt.Errorf("chart bar: no measured values to render")
	}
	if opts.MaxBars > 0 && len(valid) > opts.MaxBars {
		valid = valid[len(valid)-opts.MaxBars:]
	}
	if len(valid) > 60 {
		fmt.Fprintf(w, "⚠  %d samples; narrow the window with --since/--until for a readable chart\n\n", len(valid))
	}

	width := opts.Width
	if width <= 0 {
		width = termWidth()
	}
	valWidth := 0
	for _, p := range valid {
		valWidth = max(valWidth, len(formatFloat(p.Value)))
	}
	dateWidth := len("2006-01-02")
	area := max(width-dateWidth-valWidth-4, 4)

	lo, hi := bounds(valid)
	span := hi - lo
	if span == 0 {
		span = 1
	}

	fmt.Fprintf(w, "%s  %s – %s\n", title, util.FormatDate(valid[0].Date), util.FormatDate(valid[len(valid)-1].Date))
	for _, p := range valid {
		var bar string
		if lo < 0 {
			bar = signedBar(p.Value, lo, span, area)
		} else {
			n := int(math.Round((p.Value - lo) / span * float64(area)))
			bar = strings.Repeat("█", min(max(n, 1), area))
		}
		fmt.Fprintf(w, "%-*s  %*s  %s\n", dateWidth, util.FormatDate(p.Date), valWidth, formatFloat(p.Value), bar)
	}
	return nil
}

// signedBar draws v left or right of a zero line placed proportionally
// within area columns.
func signedBar(v, lo, span float64, area int) string {
	buf := []rune(strings.Repeat(" ", area))
	zero := int(math.Round(-lo / span * float64(area-1)))
	zero = min(max(zero, 0), area-1)
	buf[zero] = '│'
	n := int(math.Round(math.Abs(v) / span * float64(area-1)))
	if v >= 0 {
		for i := zero + 1; i <= zero+n && i < area; i++ {
			buf[i] = '█'
		}
	} else {
		for i := max(zero-n, 0); i < zero; i++ {
			buf[i] = '█'
		}
	}
	return string(buf)
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

// PlotOptions controls line chart rendering.
type PlotOptions struct {
	// Width is the total character width including the Y axis.
	// 0 reads $COLUMNS, falling back to 80.
	Width int
	// Height is the number of chart rows. 0 means 12.
	Height int
	// Title replaces the default title when set.
	Title string
}

// Plot renders a line chart of pts. At least two measured values are needed.
func Plot(w io.Writer, title string, pts []Point, opts PlotOptions) error {
	valid := present(pts)
	if len(valid) < 2 {
		return fmt.Errorf("chart plot: need at least 2 measured values (got %d)", len(valid))
	}
	width := opts.Width
	if width <= 0 {
		width = termWidth()
	}
	height := opts.Height
	if height <= 0 {
		height = 12
	}
	if opts.Title != "" {
		title = opts.Title
	}

	lo, hi := bounds(valid)
	ticks := yTicks(lo, hi, height)
	labelWidth := 0
	for _, t := range ticks {
		labelWidth = max(labelWidth, len(formatFloat(t)))
	}
	cols := max(width-labelWidth-1, 10)

	grid := drawLine(columns(pts, cols), lo, hi, height)

	fmt.Fprintf(w, "%s  (%s to %s)\n", title, util.FormatDate(pts[0].Date), util.FormatDate(pts[len(pts)-1].Date))
	for row := 0; row < height; row++ {
		label, axis := "", " "
		for _, t := range ticks {
			if math.Abs(rowOf(t, lo, hi, height)-float64(row)) < 0.5 {
				label, axis = formatFloat(t), "┤"
				break
			}
		}
		fmt.Fprintf(w, "%*s%s%s\n", labelWidth, label, axis, string(grid[row]))
	}
	fmt.Fprintf(w, "%s└%s\n", strings.Repeat(" ", labelWidth), strings.Repeat("─", cols))
	fmt.Fprintf(w, "%s %s\n", strings.Repeat(" ", labelWidth), dateAxis(pts, cols))
	return nil
}

// columns averages pts into n buckets. Buckets with no measured value are
// NaN.
func columns(pts []Point, n int) []float64 {
	out := make([]float64, n)
	for c := 0; c < n; c++ {
		from := c * len(pts) / n
		to := max((c+1)*len(pts)/n, from+1)
		sum, count := 0.0, 0
		for i := from; i < to && i < len(pts); i++ {
			if !math.IsNaN(pts[i].Value) {
				sum += pts[i].Value
				count++
			}
		}
		out[c] = math.NaN()
		if count > 0 {
			out[c] = sum / float64(count)
		}
	}
	return out
}

// rowOf maps v to a fractional row, 0 being the top (hi).
func rowOf(v, lo, hi float64, height int) float64 {
	if hi == lo {
		return float64(height) / 2
	}
	return (hi - v) / (hi - lo) * float64(height-1)
}

// drawLine marks each column's row with '•' and joins consecutive columns
// with vertical strokes.
func drawLine(cols []float64, lo, hi float64, height int) [][]rune {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", len(cols)))
	}
	prev := -1
	for c, v := range cols {
		if math.IsNaN(v) {
			prev = -1
			continue
		}
		r := min(max(int(math.Round(rowOf(v, lo, hi, height))), 0), height-1)
		if prev >= 0 {
			a, b := min(prev, r), max(prev, r)
			for fill := a + 1; fill < b; fill++ {
				grid[fill][c] = '│'
			}
			if prev == r {
				grid[r][c] = '─'
			} else {
				grid[r][c] = '•'
			}
		} else {
			grid[r][c] = '•'
		}
		prev = r
	}
	return grid
}

// yTicks returns evenly spaced tick values from lo to hi.
func yTicks(lo, hi float64, height int) []float64 {
	if hi == lo {
		return []float64{lo}
	}
	n := 4
	if height <= 6 {
		n = 3
	}
	ticks := make([]float64, n)
	for i := range ticks {
		ticks[i] = lo + float64(i)*(hi-lo)/float64(n-1)
	}
	return ticks
}

// dateAxis places the first, middle and last dates under the chart.
func dateAxis(pts []Point, width int) string {
	buf := []rune(strings.Repeat(" ", width))
	put := func(pos int, s string) {
		for i, ch := range s {
			if pos+i >= 0 && pos+i < len(buf) {
				buf[pos+i] = ch
			}
		}
	}
	first := util.FormatDate(pts[0].Date)
	mid := util.FormatDate(pts[len(pts)/2].Date)
	last := util.FormatDate(pts[len(pts)-1].Date)
	put(0, first)
	if width >= 3*len(first)+2 {
		put(width/2-len(mid)/2, mid)
	}
	put(width-len(last), last)
	return string(buf)
}

// ─── Utilities ────────────────────────────────────────────────────────────────

// formatFloat formats a value compactly: at most three decimals, trailing
// zeros trimmed, at least one decimal kept.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	if v == 0 {
		return "0"
	}
	places := 3
	if math.Abs(v) >= 100 {
		places = 1
	}
	s := strings.TrimRight(strconv.FormatFloat(v, 'f', places, 64), "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

// termWidth returns the terminal width from $COLUMNS, defaulting to 80.
func termWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
