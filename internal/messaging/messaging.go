// Package messaging delivers text to farmers. Transports are interchangeable
// implementations of a single capability; the core never depends on which
// one is wired.
package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/derickschaefer/agrobot/internal/interpret"
	"github.com/derickschaefer/agrobot/internal/scheduler"
	"github.com/derickschaefer/agrobot/internal/store"
	"github.com/derickschaefer/agrobot/internal/util"
)

// Transport sends one message. It reports success and never returns an
// error; failures are logged by the implementation.
type Transport interface {
	Send(ctx context.Context, to, text string) bool
}

// NormalizePhone strips a "whatsapp:" channel prefix and surrounding space.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= len("whatsapp:") && strings.EqualFold(s[:len("whatsapp:")], "whatsapp:") {
		s = s[len("whatsapp:"):]
	}
	return strings.TrimSpace(s)
}

// ─── Recorder ─────────────────────────────────────────────────────────────────

// Message is a message captured by Recorder.
type Message struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Recorder keeps every message in memory. Fail makes Send report failure
// for the given recipients.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	Fail map[string]bool
}

// Send implements Transport.
func (r *Recorder) Send(_ context.Context, to, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail[to] {
		return false
	}
	r.sent = append(r.sent, Message{To: to, Body: text})
	return true
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}

// ─── Outbox ───────────────────────────────────────────────────────────────────

// OutboxStore persists messages instead of delivering them.
type OutboxStore interface {
	AppendOutbox(to, body string) (store.OutboxEntry, error)
}

// Outbox is the mock transport: every message is written to the store.
type Outbox struct {
	st  OutboxStore
	log *zap.Logger
}

// NewOutbox returns an Outbox writing to st.
func NewOutbox(st OutboxStore, log *zap.Logger) *Outbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Outbox{st: st, log: log}
}

// Send implements Transport.
func (o *Outbox) Send(_ context.Context, to, text string) bool {
	e, err := o.st.AppendOutbox(to, text)
	if err != nil {
		o.log.Error("outbox write failed", zap.String("to", to), zap.Error(err))
		return false
	}
	o.log.Info("message recorded", zap.String("to", to), zap.String("id", e.ID), zap.Int("bytes", len(text)))
	return true
}

// ─── Payload formatting & delivery ────────────────────────────────────────────

// FormatPayload renders a report payload as a chat message.
func FormatPayload(p scheduler.Payload) string {
	var b strings.Builder
	name := p.FarmerName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hello %s, here is your %s parcel report (%s).\n", name, p.Policy, util.FormatDate(p.GeneratedAt))
	if len(p.Parcels) == 0 {
		b.WriteString("\nYou have no parcels registered.")
		return b.String()
	}
	for _, pr := range p.Parcels {
		fmt.Fprintf(&b, "\n%s - %s", pr.ParcelID, pr.Name)
		if pr.Overall != "" {
			fmt.Fprintf(&b, " [%s]", pr.Overall)
		}
		b.WriteString("\n")
		if pr.MeasuredOn == nil {
			b.WriteString("No measurements yet.\n")
			continue
		}
		var parts []string
		for _, m := range pr.Metrics {
			if m.Category == interpret.NoData {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s %s (%s)",
				interpret.Words(m.Metric).Code, util.FormatOptional(m.Value, "n/a"), m.Category))
		}
		b.WriteString(strings.Join(parts, ", "))
		fmt.Fprintf(&b, "\nMeasured on %s.\n", util.FormatDate(*pr.MeasuredOn))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Delivery is the outcome of sending one payload.
type Delivery struct {
	PayloadID string `json:"payload_id"`
	Recipient string `json:"recipient"`
	Delivered bool   `json:"delivered"`
}

// Deliver sends every payload through t and returns one outcome per payload.
func Deliver(ctx context.Context, t Transport, payloads []scheduler.Payload) []Delivery {
	out := make([]Delivery, len(payloads))
	for i, p := range payloads {
		out[i] = Delivery{
			PayloadID: p.ID,
			Recipient: p.Recipient,
			Delivered: t.Send(ctx, p.Recipient, FormatPayload(p)),
		}
	}
	return out
}
