package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/agrobot/internal/analyze"
	"github.com/derickschaefer/agrobot/internal/assistant"
	"github.com/derickschaefer/agrobot/internal/intent"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/summary"
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the exact prompt a generative strategy would send",
	Long: `Print the prompt text the generative intent, status and trend strategies
send to the model, built from the local database. Nothing is sent; no API
key is needed.`,
}

var promptIntentCmd = &cobra.Command{
	Use:     "intent <text...>",
	Short:   "Print the intent classification prompt for a message",
	Example: `  agrobot prompt intent "how is P1 doing?"`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), intent.Prompt(strings.Join(args, " ")))
		return nil
	},
}

var promptStatusCmd = &cobra.Command{
	Use:     "status <parcel-id>",
	Short:   "Print the status summary prompt for a parcel's latest sample",
	Example: `  agrobot prompt status P1`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withParcelSamples(normaliseParcelID(args[0]), func(p model.Parcel, samples []model.MetricSample) error {
			latest, ok := analyze.Latest(samples)
			if !ok {
				return fmt.Errorf("%s", summary.NoData(p.ID))
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary.StatusPrompt(p, latest))
			return nil
		})
	},
}

var promptTrendCmd = &cobra.Command{
	Use:     "trend <parcel-id>",
	Short:   "Print the trend summary prompt for a parcel",
	Example: `  agrobot prompt trend P1`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withParcelSamples(normaliseParcelID(args[0]), func(p model.Parcel, samples []model.MetricSample) error {
			res := analyze.Trends(samples)
			if res.Insufficient() {
				return fmt.Errorf("parcel %s has %d sample(s); trends need at least 2", p.ID, len(samples))
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary.TrendPrompt(p, res))
			return nil
		})
	},
}

// withParcelSamples opens the store, loads one parcel with its samples and
// hands them to fn.
func withParcelSamples(id string, fn func(model.Parcel, []model.MetricSample) error) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()
	st, err := deps.RequireStore()
	if err != nil {
		return err
	}
	p, found, err := st.GetParcel(id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s", assistant.NotFound.Message(id))
	}
	samples, _, err := st.GetSamples(id)
	if err != nil {
		return err
	}
	return fn(p, samples)
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.AddCommand(promptIntentCmd)
	promptCmd.AddCommand(promptStatusCmd)
	promptCmd.AddCommand(promptTrendCmd)
}
