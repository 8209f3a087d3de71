package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/agrobot/internal/messaging"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/scheduler"
	"github.com/derickschaefer/agrobot/internal/store"
	"github.com/derickschaefer/agrobot/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate and deliver scheduled parcel reports",
	Long: `Each recipient with a report preference (daily, weekly or every N days)
receives one report per due cycle: the latest sample of
every parcel with per-metric categories and a status summary.`,
}

// ─── report run ───────────────────────────────────────────────────────────────

var (
	reportSend   bool
	reportDate   string
	reportDryRun bool
)

var reportRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one report cycle for every due recipient",
	Long: `Build the report payload of every recipient whose policy is due and
record it as sent. --send delivers each payload over the configured
messaging provider (mock writes to the outbox).

--dry-run builds the payloads without recording them, so the next real run
still sees the same recipients as due.`,
	Example: `  agrobot report run
  agrobot report run --send
  agrobot report run --date 2024-06-15 --dry-run --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		started := time.Now()
		if reportSend && reportDryRun {
			return fmt.Errorf("--send cannot be combined with --dry-run")
		}
		var opts []scheduler.Option
		if reportDate != "" {
			d, err := util.ParseDate(reportDate)
			if err != nil {
				return fmt.Errorf("--date: %w", err)
			}
			opts = append(opts, scheduler.WithClock(func() time.Time { return d }))
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		sched, err := deps.Scheduler(opts...)
		if err != nil {
			return err
		}

		run := sched.Run
		if reportDryRun {
			run = sched.Preview
		}
		payloads, err := run(cmd.Context())
		var warnings []string
		if err != nil {
			var multi *util.MultiError
			if !errors.As(err, &multi) {
				return err
			}
			for _, e := range multi.Errors {
				warnings = append(warnings, e.Error())
			}
		}
		if payloads == nil {
			payloads = []scheduler.Payload{}
		}

		result := newResult(model.KindPayloads, "report run", payloads, len(payloads), started)
		result.Warnings = warnings
		if err := emit(cmd, deps, result); err != nil {
			return err
		}

		if !reportSend || len(payloads) == 0 {
			return nil
		}
		transport, err := deps.Transport()
		if err != nil {
			return err
		}
		failed := 0
		for _, d := range messaging.Deliver(cmd.Context(), transport, payloads) {
			if d.Delivered {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Sent to %s\n", d.Recipient)
			} else {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ Delivery to %s failed\n", d.Recipient)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d deliveries failed", failed, len(payloads))
		}
		return nil
	},
}

// ─── report pref ──────────────────────────────────────────────────────────────

var reportPrefCmd = &cobra.Command{
	Use:   "pref",
	Short: "Read or set a recipient's report frequency",
}

var reportPrefSetCmd = &cobra.Command{
	Use:   "set <phone> <policy>",
	Short: "Set the report frequency of a recipient",
	Long:  `Policies: daily, weekly, or "<N> days" with N >= 1.`,
	Example: `  agrobot report pref set +15550001 weekly
  agrobot report pref set +15550001 "3 days"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := scheduler.ParseSettable(args[1]); err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		svc, err := deps.Assistant()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), svc.SetFrequencyPolicy(args[0], args[1]))
		return nil
	},
}

var reportPrefGetCmd = &cobra.Command{
	Use:     "get <phone>",
	Short:   "Print the report frequency of a recipient",
	Example: `  agrobot report pref get +15550001`,
	Args:    cobra.ExactArgs(1),
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
		policy, err := svc.GetFrequencyPolicy(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), policy)
		return nil
	},
}

// ─── report outbox ────────────────────────────────────────────────────────────

var reportOutboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "List messages recorded by the mock messaging provider",
	Example: `  agrobot report outbox
  agrobot report outbox --format json`,
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
		entries, err := st.ListOutbox()
		if err != nil {
			return fmt.Errorf("reading outbox: %w", err)
		}
		if entries == nil {
			entries = []store.OutboxEntry{}
		}
		return emit(cmd, deps, newResult(model.KindOutbox, "report outbox", entries, len(entries), started))
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportRunCmd)
	reportCmd.AddCommand(reportPrefCmd)
	reportCmd.AddCommand(reportOutboxCmd)
	reportPrefCmd.AddCommand(reportPrefSetCmd)
	reportPrefCmd.AddCommand(reportPrefGetCmd)

	rf := reportRunCmd.Flags()
	rf.BoolVar(&reportSend, "send", false, "deliver payloads over the configured messaging provider")
	rf.StringVar(&reportDate, "date", "", "run as of this date (YYYY-MM-DD) instead of today")
	rf.BoolVar(&reportDryRun, "dry-run", false, "build payloads without recording them as sent")
}
