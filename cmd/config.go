package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/agrobot/internal/config"
	"github.com/derickschaefer/agrobot/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage agrobot configuration",
	Long: `Read and write agrobot configuration stored in config.json.

Environment variables (AGROBOT_*) and a .env file override config.json;
CLI flags override both.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Created %s\n", path)
		fmt.Fprintln(out, "  Set llm_api_key and use_llm to enable generative replies.")
		fmt.Fprintln(out, "  Set messaging_provider to twilio (with twilio_* keys) to deliver over WhatsApp.")
		return nil
	},
}

var configGetShowSecrets bool

// configOut is the --format json shape of `config get`.
type configOut struct {
	DBPath            string  `json:"db_path"`
	Format            string  `json:"default_format"`
	UseLLM            bool    `json:"use_llm"`
	LLMAPIKey         string  `json:"llm_api_key"`
	LLMModel          string  `json:"llm_model"`
	LLMTimeout        string  `json:"llm_timeout"`
	LLMRate           float64 `json:"llm_rate"`
	MessagingProvider string  `json:"messaging_provider"`
	TwilioAccountSID  string  `json:"twilio_account_sid"`
	TwilioAuthToken   string  `json:"twilio_auth_token"`
	TwilioFrom        string  `json:"twilio_from"`
	TwilioWhatsApp    bool    `json:"twilio_whatsapp"`
	ListenAddr        string  `json:"listen_addr"`
	ReportInterval    string  `json:"report_interval"`
	ConfigFile        string  `json:"config_file"`
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		secret := func(s string) string {
			if !configGetShowSecrets {
				s = config.Redact(s)
			}
			if s == "" {
				return "(not set)"
			}
			return s
		}
		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}

		out := configOut{
			DBPath:            cfg.DBPath,
			Format:            cfg.Format,
			UseLLM:            cfg.UseLLM,
			LLMAPIKey:         secret(cfg.LLMAPIKey),
			LLMModel:          cfg.LLMModel,
			LLMTimeout:        cfg.LLMTimeout.String(),
			LLMRate:           cfg.LLMRate,
			MessagingProvider: cfg.MessagingProvider,
			TwilioAccountSID:  secret(cfg.Twilio.AccountSID),
			TwilioAuthToken:   secret(cfg.Twilio.AuthToken),
			TwilioFrom:        cfg.Twilio.From,
			TwilioWhatsApp:    cfg.Twilio.WhatsApp,
			ListenAddr:        cfg.ListenAddr,
			ReportInterval:    cfg.ReportInterval.String(),
			ConfigFile:        src,
		}

		if resolveFormat(cfg.Format) == render.FormatJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		printKVTableTo(cmd.OutOrStdout(), [][]string{
			{"db_path", out.DBPath},
			{"default_format", out.Format},
			{"use_llm", fmt.Sprintf("%t", out.UseLLM)},
			{"llm_api_key", out.LLMAPIKey},
			{"llm_model", out.LLMModel},
			{"llm_timeout", out.LLMTimeout},
			{"llm_rate", fmt.Sprintf("%.1f req/s", out.LLMRate)},
			{"messaging_provider", out.MessagingProvider},
			{"twilio_account_sid", out.TwilioAccountSID},
			{"twilio_auth_token", out.TwilioAuthToken},
			{"twilio_from", out.TwilioFrom},
			{"twilio_whatsapp", fmt.Sprintf("%t", out.TwilioWhatsApp)},
			{"listen_addr", out.ListenAddr},
			{"report_interval", out.ReportInterval},
			{"config_file", out.ConfigFile},
		})
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Long:  "Valid keys: " + strings.Join(config.Keys, ", "),
	Example: `  agrobot config set use_llm true
  agrobot config set messaging_provider twilio
  agrobot config set report_interval 6h`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(config.DefaultConfigFile)
		if err != nil {
			return err
		}

		// Load existing file or start from template
		var f config.File
		existing, err := config.ReadFile(path)
		switch {
		case err == nil:
			f = *existing
		case errors.Is(err, os.ErrNotExist):
			f = config.Template()
		default:
			return err
		}

		if err := f.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.WriteFile(path, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", strings.ToLower(args[0]), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configGetCmd.Flags().BoolVar(&configGetShowSecrets, "show-secrets", false, "show API key and auth token in plain text")
}
