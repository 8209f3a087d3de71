// Package config handles loading and resolving agrobot configuration.
// Resolution order (later layers win):
//  1. built-in defaults
//  2. config.json in the current working directory
//  3. .env in the current working directory (never overrides real env)
//  4. AGROBOT_* environment variables
//  5. CLI flags, applied by the caller after Load
//
// The resolved Config is checked with Validate before use.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DefaultConfigFile  = "config.json"
	DefaultFormat      = "table"
	DefaultLLMModel    = "gemini-2.5-flash"
	DefaultLLMTimeout  = 15 * time.Second
	DefaultLLMRate     = 2.0
	DefaultListenAddr  = ":8000"
	DefaultMessaging   = ProviderMock
	DefaultReportEvery = 24 * time.Hour

	ProviderMock   = "mock"
	ProviderTwilio = "twilio"
)

// File is the on-disk representation of config.json.
type File struct {
	DBPath            string  `json:"db_path,omitempty"`
	DefaultFormat     string  `json:"default_format,omitempty"`
	UseLLM            *bool   `json:"use_llm,omitempty"`
	LLMAPIKey         string  `json:"llm_api_key,omitempty"`
	LLMModel          string  `json:"llm_model,omitempty"`
	LLMTimeout        string  `json:"llm_timeout,omitempty"`
	LLMRate           float64 `json:"llm_rate,omitempty"`
	MessagingProvider string  `json:"messaging_provider,omitempty"`
	TwilioAccountSID  string  `json:"twilio_account_sid,omitempty"`
	TwilioAuthToken   string  `json:"twilio_auth_token,omitempty"`
	TwilioFrom        string  `json:"twilio_from,omitempty"`
	TwilioWhatsApp    *bool   `json:"twilio_whatsapp,omitempty"`
	ListenAddr        string  `json:"listen_addr,omitempty"`
	ReportInterval    string  `json:"report_interval,omitempty"`
}

// env is the environment layer. Unset variables leave the field zero (or
// nil for pointers) so earlier layers survive.
type env struct {
	DBPath            string        `envconfig:"AGROBOT_DB_PATH"`
	Format            string        `envconfig:"AGROBOT_FORMAT"`
	UseLLM            *bool         `envconfig:"AGROBOT_USE_LLM"`
	LLMAPIKey         string        `envconfig:"AGROBOT_LLM_API_KEY"`
	GeminiAPIKey      string        `envconfig:"GEMINI_API_KEY"`
	LLMModel          string        `envconfig:"AGROBOT_LLM_MODEL"`
	LLMTimeout        time.Duration `envconfig:"AGROBOT_LLM_TIMEOUT"`
	LLMRate           float64       `envconfig:"AGROBOT_LLM_RATE"`
	MessagingProvider string        `envconfig:"AGROBOT_MESSAGING_PROVIDER"`
	TwilioAccountSID  string        `envconfig:"AGROBOT_TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string        `envconfig:"AGROBOT_TWILIO_AUTH_TOKEN"`
	TwilioFrom        string        `envconfig:"AGROBOT_TWILIO_FROM"`
	TwilioWhatsApp    *bool         `envconfig:"AGROBOT_TWILIO_WHATSAPP"`
	ListenAddr        string        `envconfig:"AGROBOT_LISTEN_ADDR"`
	ReportInterval    time.Duration `envconfig:"AGROBOT_REPORT_INTERVAL"`
}

// Twilio holds the credentials of the Twilio transport.
type Twilio struct {
	AccountSID string
	AuthToken  string
	From       string
	WhatsApp   bool
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; File and env are only read during loading.
type Config struct {
	DBPath            string        `validate:"required"`
	Format            string        `validate:"oneof=table json jsonl csv tsv md"`
	UseLLM            bool
	LLMAPIKey         string
	LLMModel          string        `validate:"required"`
	LLMTimeout        time.Duration `validate:"gt=0"`
	LLMRate           float64       `validate:"gt=0"`
	MessagingProvider string        `validate:"oneof=mock twilio"`
	Twilio            Twilio
	ListenAddr        string        `validate:"required"`
	ReportInterval    time.Duration `validate:"gte=0"`
	ConfigPath        string        // path of the config.json that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	Verbose bool
}

// Load resolves configuration from defaults, config.json, .env and the
// environment. A malformed config.json or environment value is an error; a
// missing file is not.
func Load() (*Config, error) {
	cfg := &Config{
		Format:            DefaultFormat,
		LLMModel:          DefaultLLMModel,
		LLMTimeout:        DefaultLLMTimeout,
		LLMRate:           DefaultLLMRate,
		MessagingProvider: DefaultMessaging,
		ListenAddr:        DefaultListenAddr,
		ReportInterval:    DefaultReportEvery,
		Twilio:            Twilio{WhatsApp: true},
	}

	// Layer 1: config.json
	f, path, err := loadFile()
	switch {
	case err == nil:
		if err := applyFile(cfg, f, path); err != nil {
			return nil, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	// Layer 2: .env, then the environment itself
	_ = godotenv.Load()
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	applyEnv(cfg, e)

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".agrobot", "agrobot.db")
		}
	}
	return cfg, nil
}

var validate = validator.New()

// Validate returns an error describing every invalid field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value())
			}
			return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.MessagingProvider == ProviderTwilio {
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Twilio.From == "" {
			return errors.New(
				"twilio messaging needs credentials.\n\n" +
					"Set them one of these ways:\n" +
					"  1. Environment:  AGROBOT_TWILIO_ACCOUNT_SID, AGROBOT_TWILIO_AUTH_TOKEN, AGROBOT_TWILIO_FROM\n" +
					"  2. config.json:  twilio_account_sid, twilio_auth_token, twilio_from",
			)
		}
	}
	return nil
}

// GenerativeEnabled reports whether the generative strategies should be
// used: they must be switched on and have an API key.
func (c *Config) GenerativeEnabled() bool {
	return c.UseLLM && c.LLMAPIKey != ""
}

// Redact returns secret with most characters replaced by asterisks.
// Safe for logging and display.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}

// ─── Layers ───────────────────────────────────────────────────────────────────

// loadFile reads config.json from the current working directory.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	f, err := ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// ReadFile parses a config file. A missing file yields an error wrapping
// os.ErrNotExist.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config.json not found at %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) error {
	cfg.ConfigPath = path
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	if f.UseLLM != nil {
		cfg.UseLLM = *f.UseLLM
	}
	if f.LLMAPIKey != "" {
		cfg.LLMAPIKey = f.LLMAPIKey
	}
	if f.LLMModel != "" {
		cfg.LLMModel = f.LLMModel
	}
	if f.LLMTimeout != "" {
		d, err := time.ParseDuration(f.LLMTimeout)
		if err != nil {
			return fmt.Errorf("config.json llm_timeout: %w", err)
		}
		cfg.LLMTimeout = d
	}
	if f.LLMRate > 0 {
		cfg.LLMRate = f.LLMRate
	}
	if f.MessagingProvider != "" {
		cfg.MessagingProvider = f.MessagingProvider
	}
	if f.TwilioAccountSID != "" {
		cfg.Twilio.AccountSID = f.TwilioAccountSID
	}
	if f.TwilioAuthToken != "" {
		cfg.Twilio.AuthToken = f.TwilioAuthToken
	}
	if f.TwilioFrom != "" {
		cfg.Twilio.From = f.TwilioFrom
	}
	if f.TwilioWhatsApp != nil {
		cfg.Twilio.WhatsApp = *f.TwilioWhatsApp
	}
	if f.ListenAddr != "" {
		cfg.ListenAddr = f.ListenAddr
	}
	if f.ReportInterval != "" {
		d, err := time.ParseDuration(f.ReportInterval)
		if err != nil {
			return fmt.Errorf("config.json report_interval: %w", err)
		}
		cfg.ReportInterval = d
	}
	return nil
}

func applyEnv(cfg *Config, e env) {
	if e.DBPath != "" {
		cfg.DBPath = e.DBPath
	}
	if e.Format != "" {
		cfg.Format = e.Format
	}
	if e.UseLLM != nil {
		cfg.UseLLM = *e.UseLLM
	}
	if e.GeminiAPIKey != "" {
		cfg.LLMAPIKey = e.GeminiAPIKey
	}
	if e.LLMAPIKey != "" {
		cfg.LLMAPIKey = e.LLMAPIKey
	}
	if e.LLMModel != "" {
		cfg.LLMModel = e.LLMModel
	}
	if e.LLMTimeout > 0 {
		cfg.LLMTimeout = e.LLMTimeout
	}
	if e.LLMRate > 0 {
		cfg.LLMRate = e.LLMRate
	}
	if e.MessagingProvider != "" {
		cfg.MessagingProvider = strings.ToLower(e.MessagingProvider)
	}
	if e.TwilioAccountSID != "" {
		cfg.Twilio.AccountSID = e.TwilioAccountSID
	}
	if e.TwilioAuthToken != "" {
		cfg.Twilio.AuthToken = e.TwilioAuthToken
	}
	if e.TwilioFrom != "" {
		cfg.Twilio.From = e.TwilioFrom
	}
	if e.TwilioWhatsApp != nil {
		cfg.Twilio.WhatsApp = *e.TwilioWhatsApp
	}
	if e.ListenAddr != "" {
		cfg.ListenAddr = e.ListenAddr
	}
	if e.ReportInterval > 0 {
		cfg.ReportInterval = e.ReportInterval
	}
}

// ─── config.json editing ──────────────────────────────────────────────────────

// Keys lists the settable config.json keys.
var Keys = []string{
	"db_path", "default_format", "use_llm", "llm_api_key", "llm_model",
	"llm_timeout", "llm_rate", "messaging_provider", "twilio_account_sid",
	"twilio_auth_token", "twilio_from", "twilio_whatsapp", "listen_addr",
	"report_interval",
}

// Set assigns one key of f from its string form.
func (f *File) Set(key, val string) error {
	switch strings.ToLower(key) {
	case "db_path":
		f.DBPath = val
	case "default_format", "format":
		f.DefaultFormat = val
	case "use_llm":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("use_llm must be true or false")
		}
		f.UseLLM = &b
	case "llm_api_key":
		f.LLMAPIKey = val
	case "llm_model":
		f.LLMModel = val
	case "llm_timeout":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("llm_timeout must be a duration such as 15s")
		}
		f.LLMTimeout = val
	case "llm_rate":
		r, err := strconv.ParseFloat(val, 64)
		if err != nil || r <= 0 {
			return fmt.Errorf("llm_rate must be a positive number")
		}
		f.LLMRate = r
	case "messaging_provider":
		v := strings.ToLower(val)
		if v != ProviderMock && v != ProviderTwilio {
			return fmt.Errorf("messaging_provider must be %q or %q", ProviderMock, ProviderTwilio)
		}
		f.MessagingProvider = v
	case "twilio_account_sid":
		f.TwilioAccountSID = val
	case "twilio_auth_token":
		f.TwilioAuthToken = val
	case "twilio_from":
		f.TwilioFrom = val
	case "twilio_whatsapp":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("twilio_whatsapp must be true or false")
		}
		f.TwilioWhatsApp = &b
	case "listen_addr":
		f.ListenAddr = val
	case "report_interval":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("report_interval must be a duration such as 24h")
		}
		f.ReportInterval = val
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s", key, strings.Join(Keys, ", "))
	}
	return nil
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `agrobot config init`.
func Template() File {
	useLLM := false
	return File{
		DefaultFormat:     DefaultFormat,
		UseLLM:            &useLLM,
		LLMModel:          DefaultLLMModel,
		LLMTimeout:        DefaultLLMTimeout.String(),
		LLMRate:           DefaultLLMRate,
		MessagingProvider: DefaultMessaging,
		ListenAddr:        DefaultListenAddr,
		ReportInterval:    DefaultReportEvery.String(),
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
