package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GuardOptions configures a Guard. Zero values select the defaults.
type GuardOptions struct {
	Timeout    time.Duration // per call; default 15s
	RatePerSec float64       // default 2
	Name       string        // breaker name, used in logs
	Logger     *zap.Logger
}

// Guard bounds every call to an inner Provider with a timeout, a rate limit
// and a circuit breaker, and rejects blank answers. All failures are
// returned as *ProviderError.
type Guard struct {
	inner   Provider
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[string]
	log     *zap.Logger
}

// NewGuard wraps p.
func NewGuard(p Provider, opts GuardOptions) *Guard {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 2
	}
	if opts.Name == "" {
		opts.Name = "llm"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	burst := int(opts.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	log := opts.Logger.Named(opts.Name)
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Guard{
		inner:   p,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), burst),
		breaker: cb,
		log:     log,
	}
}

// Complete implements Provider.
func (g *Guard) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return "", wrap("rate limit", err)
	}

	start := time.Now()
	out, err := g.breaker.Execute(func() (string, error) {
		text, err := g.inner.Complete(ctx, prompt)
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", &ProviderError{Op: "breaker", Err: err}
		}
		if ctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(err, ctx.Err())
		}
		return "", wrap("complete", err)
	}
	g.log.Debug("completion",
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("answer_bytes", len(out)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}
