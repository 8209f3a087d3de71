// Package cmd implements the agrobot CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/derickschaefer/agrobot/internal/app"
	"github.com/derickschaefer/agrobot/internal/config"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	Format  string
	Out     string
	DBPath  string
	LLM     bool
	Verbose bool
}

// logLevel is shared by the root logger so long-running commands can raise
// it after start-up.
var (
	logLevel = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	logger   = zap.NewNop()
)

// rootCmd is the base command. Running `agrobot` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "agrobot",
	Short: "agrobot: agronomy assistant for parcel monitoring and reports",
	Long: `agrobot answers farmers' chat questions about their parcels, interprets
vegetation, moisture and soil measurements, and sends scheduled parcel
reports over WhatsApp.

Quick start:
  agrobot config init                                   # create config.json
  agrobot data load --farmers farmers.json --parcels parcels.json --samples parcel_indices.json
  agrobot chat --from +15550001 "show my parcels"
  agrobot report run --send
  agrobot serve                                         # HTTP API + webhook`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if globalFlags.Verbose {
			logLevel.SetLevel(zapcore.DebugLevel)
		}
		l, err := newLogger()
		if err != nil {
			return fmt.Errorf("initialising logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newLogger builds a console logger on stderr so command output on stdout
// stays pipeable.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = logLevel
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = !globalFlags.Verbose
	return cfg.Build()
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.DBPath != "" {
		cfg.DBPath = globalFlags.DBPath
	}
	if rootCmd.PersistentFlags().Changed("llm") {
		cfg.UseLLM = globalFlags.LLM
	}
	cfg.Verbose = globalFlags.Verbose

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(cfg, logger), nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.StringVar(&globalFlags.DBPath, "db", "",
		"database path (overrides AGROBOT_DB_PATH and config.json)")
	pf.BoolVar(&globalFlags.LLM, "llm", false,
		"use generative strategies (overrides AGROBOT_USE_LLM and config.json)")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"debug logging on stderr and timing stats after output")
}
