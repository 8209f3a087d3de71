package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTwilioBaseURL = "https://api.twilio.com/2010-04-01/"
	maxRetries           = 4
)

// TwilioConfig holds the credentials and sender for the Twilio transport.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string // e.g. "whatsapp:+14155238886"
	BaseURL    string // override for tests
	Timeout    time.Duration
	RatePerSec float64
	// WhatsApp prefixes recipients with "whatsapp:" when true.
	WhatsApp bool
}

// Twilio sends messages through the Twilio Messages REST API. Requests are
// rate limited and retried on 429 and 5xx.
type Twilio struct {
	cfg        TwilioConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
	backoff    func(attempt int) time.Duration
}

// NewTwilio creates a Twilio transport.
func NewTwilio(cfg TwilioConfig, log *zap.Logger) *Twilio {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Twilio{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		log:        log.Named("twilio"),
		backoff: func(attempt int) time.Duration {
			return time.Duration(math.Pow(2, float64(attempt-1))*500) * time.Millisecond
		},
	}
}

// Send implements Transport.
func (t *Twilio) Send(ctx context.Context, to, text string) bool {
	sid, err := t.post(ctx, t.address(to), text)
	if err != nil {
		t.log.Error("send failed", zap.String("to", to), zap.Error(err))
		return false
	}
	t.log.Info("message sent", zap.String("to", to), zap.String("sid", sid))
	return true
}

func (t *Twilio) address(to string) string {
	to = NormalizePhone(to)
	if t.cfg.WhatsApp {
		return "whatsapp:" + to
	}
	return to
}

// post creates a message, handling rate limiting and retries. It returns the
// message SID.
func (t *Twilio) post(ctx context.Context, to, body string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}

	endpoint := t.cfg.BaseURL + "Accounts/" + url.PathEscape(t.cfg.AccountSID) + "/Messages.json"
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.cfg.From)
	form.Set("Body", body)
	encoded := form.Encode()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			wait := t.backoff(attempt)
			t.log.Debug("retrying after backoff", zap.Int("attempt", attempt), zap.Duration("backoff", wait))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return "", fmt.Errorf("building request: %w", err)
		}
		req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "agrobot/1.0")

		resp, err := t.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}
		t.log.Debug("twilio response", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(data)))

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
			continue
		}

		var out struct {
			SID     string `json:"sid"`
			Message string `json:"message"`
			Code    int    `json:"code"`
		}
		_ = json.Unmarshal(data, &out)
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			if out.Message != "" {
				return "", fmt.Errorf("API error %d: %s", out.Code, out.Message)
			}
			return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return out.SID, nil
	}
	return "", fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}
