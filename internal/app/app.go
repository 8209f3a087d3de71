// Package app wires together configuration, the store, the generative
// provider and the strategies into a single Deps struct that commands and
// the HTTP server receive at runtime.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/derickschaefer/agrobot/internal/assistant"
	"github.com/derickschaefer/agrobot/internal/config"
	"github.com/derickschaefer/agrobot/internal/intent"
	"github.com/derickschaefer/agrobot/internal/llm"
	"github.com/derickschaefer/agrobot/internal/messaging"
	"github.com/derickschaefer/agrobot/internal/scheduler"
	"github.com/derickschaefer/agrobot/internal/store"
	"github.com/derickschaefer/agrobot/internal/summary"
)

// Deps holds all runtime dependencies.
// The store is opened lazily; commands that never touch it do not create
// the database file.
type Deps struct {
	Config *config.Config
	Log    *zap.Logger

	// Provider is nil when generative strategies are disabled.
	Provider llm.Provider
	Intents  intent.Resolver
	Status   summary.StatusStrategy
	Trend    summary.TrendStrategy

	store *store.Store
}

// New builds a Deps from resolved config. The strategy factories receive the
// provider only when cfg.GenerativeEnabled().
func New(cfg *config.Config, log *zap.Logger) *Deps {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Deps{Config: cfg, Log: log}
	if cfg.GenerativeEnabled() {
		d.Provider = llm.NewGuard(llm.NewGemini(cfg.LLMAPIKey, cfg.LLMModel), llm.GuardOptions{
			Timeout:    cfg.LLMTimeout,
			RatePerSec: cfg.LLMRate,
			Name:       "gemini",
			Logger:     log,
		})
		log.Debug("generative strategies enabled", zap.String("model", cfg.LLMModel))
	}
	d.Intents = intent.New(d.Provider, log.Named("intent"))
	d.Status = summary.NewStatus(d.Provider, log.Named("status"))
	d.Trend = summary.NewTrend(d.Provider, log.Named("trend"))
	return d
}

// RequireStore opens the bbolt store on first use.
func (d *Deps) RequireStore() (*store.Store, error) {
	if d.store != nil {
		return d.store, nil
	}
	if err := os.MkdirAll(filepath.Dir(d.Config.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	s, err := store.Open(d.Config.DBPath)
	if err != nil {
		return nil, err
	}
	d.store = s
	return s, nil
}

// Close releases the store if it was opened.
func (d *Deps) Close() error {
	if d.store == nil {
		return nil
	}
	err := d.store.Close()
	d.store = nil
	return err
}

// Assistant builds the chat service over the store.
func (d *Deps) Assistant() (*assistant.Service, error) {
	s, err := d.RequireStore()
	if err != nil {
		return nil, err
	}
	return assistant.New(s,
		assistant.WithIntents(d.Intents),
		assistant.WithStatus(d.Status),
		assistant.WithTrend(d.Trend),
		assistant.WithLogger(d.Log.Named("assistant")),
	), nil
}

// Scheduler builds the report scheduler over the store.
func (d *Deps) Scheduler(opts ...scheduler.Option) (*scheduler.Scheduler, error) {
	s, err := d.RequireStore()
	if err != nil {
		return nil, err
	}
	opts = append([]scheduler.Option{scheduler.WithLogger(d.Log.Named("scheduler"))}, opts...)
	return scheduler.New(s, d.Status, opts...), nil
}

// Transport returns the configured message transport: the store-backed
// outbox for "mock", the Twilio REST client for "twilio".
func (d *Deps) Transport() (messaging.Transport, error) {
	switch d.Config.MessagingProvider {
	case config.ProviderTwilio:
		return messaging.NewTwilio(messaging.TwilioConfig{
			AccountSID: d.Config.Twilio.AccountSID,
			AuthToken:  d.Config.Twilio.AuthToken,
			From:       d.Config.Twilio.From,
			WhatsApp:   d.Config.Twilio.WhatsApp,
		}, d.Log), nil
	default:
		s, err := d.RequireStore()
		if err != nil {
			return nil, err
		}
		return messaging.NewOutbox(s, d.Log.Named("outbox")), nil
	}
}
