package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/agrobot/internal/analyze"
	"github.com/derickschaefer/agrobot/internal/assistant"
	"github.com/derickschaefer/agrobot/internal/chart"
	"github.com/derickschaefer/agrobot/internal/interpret"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/render"
	"github.com/derickschaefer/agrobot/internal/transform"
	"github.com/derickschaefer/agrobot/internal/util"
)

var parcelCmd = &cobra.Command{
	Use:   "parcel",
	Short: "Inspect parcels, their measurements and trends",
	Long: `Operator views over parcels. Unlike chat, these commands do not check
ownership: any parcel in the local database can be inspected.`,
}

// ─── parcel list ──────────────────────────────────────────────────────────────

var parcelListCmd = &cobra.Command{
	Use:   "list [farmer-id]",
	Short: "List parcels, optionally for one farmer",
	Example: `  agrobot parcel list
  agrobot parcel list F1 --format csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		st, err := deps.RequireStore()
		if err != nil {
			return err
		}

		var parcels []model.Parcel
		if len(args) == 1 {
			parcels, err = st.ParcelsByFarmer(args[0])
		} else {
			parcels, err = st.ListParcels()
		}
		if err != nil {
			return fmt.Errorf("reading parcels: %w", err)
		}
		if parcels == nil {
			parcels = []model.Parcel{}
		}
		return emit(cmd, deps, newResult(model.KindParcels, "parcel list", parcels, len(parcels), started))
	},
}

// ─── parcel show ──────────────────────────────────────────────────────────────

var parcelShowCmd = &cobra.Command{
	Use:     "show <parcel-id>",
	Short:   "Show a parcel and its latest measurements",
	Example: `  agrobot parcel show P1`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := normaliseParcelID(args[0])
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		svc, err := deps.Assistant()
		if err != nil {
			return err
		}

		d, status, err := svc.ParcelDetails("", id)
		if err != nil {
			return err
		}
		if status != assistant.Found {
			return fmt.Errorf("%s", status.Message(id))
		}

		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()

		if resolveFormat(deps.Config.Format) == render.FormatJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		}
		rows := [][]string{
			{"id", d.Parcel.ID},
			{"name", d.Parcel.Name},
			{"farmer", d.Parcel.FarmerID},
			{"area", fmt.Sprintf("%.1f ha", d.Parcel.AreaHa)},
			{"crop", d.Parcel.Crop},
		}
		if d.DataDate == nil {
			rows = append(rows, []string{"latest", "(no measurements)"})
			printKVTableTo(w, rows)
			return nil
		}
		rows = append(rows, []string{"latest", util.FormatDate(*d.DataDate)})
		printKVTableTo(w, rows)
		fmt.Fprintln(w)
		printSimpleTable(w, []string{"METRIC", "VALUE", "CATEGORY"}, func(add func(...string)) {
			for _, v := range d.Values {
				add(interpret.Words(v.Metric).Code, util.FormatOptional(v.Value, "n/a"), interpret.Category(v.Metric, v.Value))
			}
		})
		return nil
	},
}

// ─── parcel status ────────────────────────────────────────────────────────────

var parcelStatusCmd = &cobra.Command{
	Use:   "status <parcel-id>",
	Short: "Print the status narrative of a parcel's latest sample",
	Example: `  agrobot parcel status P1
  agrobot parcel status P1 --llm`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		svc, err := deps.Assistant()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), svc.StatusText(cmd.Context(), model.Farmer{}, normaliseParcelID(args[0])))
		return nil
	},
}

// ─── parcel trend ─────────────────────────────────────────────────────────────

var (
	trendSince string
	trendUntil string
	trendStats bool
)

var parcelTrendCmd = &cobra.Command{
	Use:   "trend <parcel-id>",
	Short: "Compare the first and last sample of a parcel, metric by metric",
	Long: `Classify each metric as increasing, decreasing or stable between the
earliest and latest sample of the window (threshold ±0.05), with an
interpretation and a recommendation per metric.

--stats prints descriptive statistics per metric instead.`,
	Example: `  agrobot parcel trend P1
  agrobot parcel trend P1 --since 2024-05-01 --until 2024-06-30
  agrobot parcel trend P1 --stats --format csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		id := normaliseParcelID(args[0])
		window, err := transform.ParseWindow(trendSince, trendUntil)
		if err != nil {
			return err
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		st, err := deps.RequireStore()
		if err != nil {
			return err
		}
		parcel, found, err := st.GetParcel(id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s", assistant.NotFound.Message(id))
		}
		all, _, err := st.GetSamples(id)
		if err != nil {
			return err
		}
		samples := transform.Filter(all, window)

		if trendStats {
			stats := make([]analyze.Summary, len(model.AllMetrics))
			for i, m := range model.AllMetrics {
				stats[i] = analyze.Summarize(m, samples)
			}
			return emit(cmd, deps, newResult(model.KindTrends, "parcel trend --stats", stats, len(samples), started))
		}

		res := analyze.Trends(samples)
		result := newResult(model.KindTrends, "parcel trend", res, len(res.Trends), started)
		if err := emit(cmd, deps, result); err != nil {
			return err
		}
		if resolveFormat(deps.Config.Format) == render.FormatTable && !res.Insufficient() {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", deps.Trend.Generate(cmd.Context(), parcel, res))
		}
		return nil
	},
}

// ─── parcel history ───────────────────────────────────────────────────────────

var (
	historyMetric   string
	historyChart    string
	historySince    string
	historyUntil    string
	historyResample string
)

var parcelHistoryCmd = &cobra.Command{
	Use:   "history <parcel-id>",
	Short: "Print a parcel's sample history, or chart one metric",
	Example: `  agrobot parcel history P1
  agrobot parcel history P1 --format jsonl > p1.jsonl
  agrobot parcel history P1 --metric ndvi --chart bar
  agrobot parcel history P1 --metric ndmi --chart plot --resample weekly`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		id := normaliseParcelID(args[0])
		window, err := transform.ParseWindow(historySince, historyUntil)
		if err != nil {
			return err
		}
		var metric model.Metric
		if historyMetric != "" {
			m, ok := model.ParseMetric(strings.ToLower(historyMetric))
			if !ok {
				return fmt.Errorf("unknown metric %q", historyMetric)
			}
			metric = m
			window.Require = []model.Metric{m}
		}
		if historyChart != "" && metric == "" {
			return fmt.Errorf("--chart needs --metric")
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		st, err := deps.RequireStore()
		if err != nil {
			return err
		}
		all, found, err := st.GetSamples(id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no samples stored for parcel %s", id)
		}
		samples := transform.Filter(all, window)
		if historyResample != "" {
			if samples, err = transform.Resample(samples, transform.ResampleFreq(historyResample)); err != nil {
				return err
			}
		}

		title := fmt.Sprintf("%s %s", metric, id)
		if tr, ok := analyze.Trends(samples).Lookup(metric); ok {
			title = fmt.Sprintf("%s (%s)", title, tr.Direction)
		}
		switch historyChart {
		case "":
			series := &model.SampleSeries{ParcelID: id, Samples: samples}
			return emit(cmd, deps, newResult(model.KindSamples, "parcel history", series, len(samples), started))
		case "bar":
			return chart.Bar(cmd.OutOrStdout(), title, chart.Points(samples, metric), chart.BarOptions{})
		case "plot":
			return chart.Plot(cmd.OutOrStdout(), title, chart.Points(samples, metric), chart.PlotOptions{})
		default:
			return fmt.Errorf("unknown chart %q (want bar or plot)", historyChart)
		}
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(parcelCmd)
	parcelCmd.AddCommand(parcelListCmd)
	parcelCmd.AddCommand(parcelShowCmd)
	parcelCmd.AddCommand(parcelStatusCmd)
	parcelCmd.AddCommand(parcelTrendCmd)
	parcelCmd.AddCommand(parcelHistoryCmd)

	parcelTrendCmd.Flags().StringVar(&trendSince, "since", "", "first sample date (YYYY-MM-DD)")
	parcelTrendCmd.Flags().StringVar(&trendUntil, "until", "", "last sample date (YYYY-MM-DD)")
	parcelTrendCmd.Flags().BoolVar(&trendStats, "stats", false, "descriptive statistics per metric")

	hf := parcelHistoryCmd.Flags()
	hf.StringVar(&historyMetric, "metric", "", "only samples measuring this metric: ndvi|ndmi|ndwi|soc|nitrogen|phosphorus|potassium|ph")
	hf.StringVar(&historyChart, "chart", "", "draw the metric instead of listing: bar|plot")
	hf.StringVar(&historySince, "since", "", "first sample date (YYYY-MM-DD)")
	hf.StringVar(&historyUntil, "until", "", "last sample date (YYYY-MM-DD)")
	hf.StringVar(&historyResample, "resample", "", "average per calendar period: weekly|monthly")
	_ = parcelHistoryCmd.RegisterFlagCompletionFunc("metric", completeMetrics)
}
