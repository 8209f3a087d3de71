// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/agrobot/internal/analyze"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/pipeline"
	"github.com/derickschaefer/agrobot/internal/scheduler"
	"github.com/derickschaefer/agrobot/internal/store"
	"github.com/derickschaefer/agrobot/internal/util"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string) error {
	if path == "" {
		return Render(os.Stdout, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format)
}

// ─── Rows ─────────────────────────────────────────────────────────────────────

// grid is the header and rows shared by the table, delimited and markdown
// renderers.
type grid struct {
	header []string
	rows   [][]string
	right  map[int]bool // right-aligned columns
}

var sampleHeader = []string{"DATE", "NDVI", "NDMI", "NDWI", "SOC", "N", "P", "K", "PH"}

// toGrid flattens result data into rows. ok is false for kinds with no
// tabular form.
func toGrid(result *model.Result) (g grid, ok bool, err error) {
	switch result.Kind {
	case model.KindParcels:
		parcels, ok := result.Data.([]model.Parcel)
		if !ok {
			return g, false, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		g.header = []string{"ID", "FARMER", "NAME", "AREA (HA)", "CROP"}
		g.right = map[int]bool{3: true}
		for _, p := range parcels {
			g.rows = append(g.rows, []string{p.ID, p.FarmerID, p.Name, fmt.Sprintf("%.1f", p.AreaHa), p.Crop})
		}
	case model.KindSamples:
		ss, ok := result.Data.(*model.SampleSeries)
		if !ok {
			return g, false, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		g.header = sampleHeader
		g.right = map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true, 8: true}
		for _, s := range ss.Samples {
			row := []string{util.FormatDate(s.Date)}
			for _, m := range model.AllMetrics {
				row = append(row, util.FormatOptional(s.Value(m), "."))
			}
			g.rows = append(g.rows, row)
		}
	case model.KindTrends:
		switch data := result.Data.(type) {
		case analyze.TrendResult:
			g.header = []string{"METRIC", "FIRST", "LAST", "CHANGE", "TREND", "INTERPRETATION"}
			g.right = map[int]bool{1: true, 2: true, 3: true}
			for _, t := range data.Trends {
				g.rows = append(g.rows, []string{
					string(t.Metric), formatValue(t.First), formatValue(t.Last),
					fmt.Sprintf("%+.3f", t.Change), string(t.Direction), t.Interpretation,
				})
			}
		case []analyze.Summary:
			g.header = []string{"METRIC", "N", "MISSING", "MEAN", "STD", "MIN", "MEDIAN", "MAX", "SLOPE/DAY"}
			g.right = map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true, 8: true}
			for _, s := range data {
				g.rows = append(g.rows, []string{
					string(s.Metric), fmt.Sprintf("%d", s.Count), fmt.Sprintf("%d", s.Missing),
					formatValue(s.Mean), formatValue(s.Std), formatValue(s.Min),
					formatValue(s.Median), formatValue(s.Max), formatValue(s.SlopePerDay),
				})
			}
		default:
			return g, false, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
	case model.KindPayloads:
		payloads, ok := result.Data.([]scheduler.Payload)
		if !ok {
			return g, false, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		g.header = []string{"RECIPIENT", "FARMER", "POLICY", "PARCEL", "MEASURED", "OVERALL"}
		for _, p := range payloads {
			if len(p.Parcels) == 0 {
				g.rows = append(g.rows, []string{p.Recipient, p.FarmerName, p.Policy, "-", "-", "-"})
			}
			for _, pr := range p.Parcels {
				measured := "-"
				if pr.MeasuredOn != nil {
					measured = util.FormatDate(*pr.MeasuredOn)
				}
				overall := string(pr.Overall)
				if overall == "" {
					overall = "-"
				}
				g.rows = append(g.rows, []string{p.Recipient, p.FarmerName, p.Policy, pr.ParcelID, measured, overall})
			}
		}
	case model.KindOutbox:
		entries, ok := result.Data.([]store.OutboxEntry)
		if !ok {
			return g, false, fmt.Errorf("unexpected data type for %s", result.Kind)
		}
		g.header = []string{"CREATED", "TO", "BODY"}
		for _, e := range entries {
			g.rows = append(g.rows, []string{e.CreatedAt.Format(time.RFC3339), e.To, firstLine(e.Body, 60)})
		}
	default:
		return g, false, nil
	}
	return g, true, nil
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch data := result.Data.(type) {
	case *model.SampleSeries:
		return pipeline.WriteSamplesJSONL(w, data.ParcelID, data.Samples)
	case []scheduler.Payload:
		return pipeline.WritePayloadsJSONL(w, data)
	case []model.Parcel:
		for _, p := range data {
			if err := enc.Encode(p); err != nil {
				return err
			}
		}
		return nil
	case []store.OutboxEntry:
		for _, e := range data {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	case analyze.TrendResult:
		for _, t := range data.Trends {
			if err := enc.Encode(t); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(result.Data)
	}
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	g, ok, err := toGrid(result)
	if err != nil {
		return err
	}
	if !ok {
		// Fallback: JSON
		return renderJSON(w, result)
	}
	if tr, isTrend := result.Data.(analyze.TrendResult); isTrend && tr.Insufficient() {
		fmt.Fprintf(w, "Not enough data for trend analysis (%d sample(s), need at least 2).\n", tr.Period.Samples)
		return nil
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader(g.header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	align := make([]int, len(g.header))
	for i := range align {
		align[i] = tablewriter.ALIGN_LEFT
		if g.right[i] {
			align[i] = tablewriter.ALIGN_RIGHT
		}
	}
	tw.SetColumnAlignment(align)
	tw.SetAutoWrapText(false)
	tw.AppendBulk(g.rows)
	tw.Render()
	return nil
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	g, ok, err := toGrid(result)
	if err != nil {
		return err
	}
	if ok {
		header := make([]string, len(g.header))
		for i, h := range g.header {
			header[i] = strings.ToLower(h)
		}
		_ = cw.Write(header)
		for _, row := range g.rows {
			_ = cw.Write(row)
		}
	} else {
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	g, ok, err := toGrid(result)
	if err != nil {
		return err
	}
	if !ok {
		return renderJSON(w, result)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(g.header, " | "))
	seps := make([]string, len(g.header))
	for i := range seps {
		seps[i] = "----"
	}
	fmt.Fprintf(w, "|%s|\n", strings.Join(seps, "|"))
	for _, row := range g.rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		fmt.Fprintf(w, "\n[%s • %d items • %dms]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatValue formats a statistic for display.
// Always shows at least one decimal place (e.g. 4.0, not 4).
// Trims unnecessary trailing zeros beyond the first (e.g. 3.400000 → 3.4).
// Missing values (NaN) render as ".".
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	s := strings.TrimRight(fmt.Sprintf("%.6f", v), "0")
	if strings.HasSuffix(s, ".") {
		s += "0" // "4." → "4.0"
	}
	return s
}

// firstLine returns the first line of s, cut to max runes.
func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " …"
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
