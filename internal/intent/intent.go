// Package intent maps a free-form chat message to one of the fixed intents
// in model.AllIntents. The rule engine is always available; a generative
// classifier can be layered in front of it and falls back to the rules on
// any failure.
package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/derickschaefer/agrobot/internal/llm"
	"github.com/derickschaefer/agrobot/internal/model"
)

// Resolver classifies a message. Implementations never fail; the worst case
// is model.IntentUnknown.
type Resolver interface {
	Classify(ctx context.Context, text string) model.Intent
}

// ─── Rule engine ──────────────────────────────────────────────────────────────

type wordSet map[string]struct{}

func newWordSet(words ...string) wordSet {
	s := make(wordSet, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

func (s wordSet) intersects(other wordSet) bool {
	for w := range other {
		if _, ok := s[w]; ok {
			return true
		}
	}
	return false
}

var (
	changeWords = newWordSet("set", "make", "change", "update")
	reportWords = newWordSet("report", "reports", "frequency")
	statusWords = newWordSet("how", "status", "summary", "condition", "health")
	detailWords = newWordSet("detail", "details", "about", "information", "info")
	listWords   = newWordSet("parcels", "fields")
	actionWords = newWordSet("show", "list", "see", "get", "what", "tell", "give")

	wordRe     = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	parcelIDRe = regexp.MustCompile(`(?i)\bP\d+\b`)
)

// rule is one step of the priority-ordered rule table.
type rule struct {
	intent model.Intent
	match  func(words wordSet, lower string, hasParcel bool) bool
}

// Checked in order; the first match wins.
var rules = []rule{
	{model.IntentSetReportFrequency, func(w wordSet, lower string, _ bool) bool {
		return w.intersects(changeWords) && (w.intersects(reportWords) || strings.Contains(lower, "frequency"))
	}},
	{model.IntentParcelStatus, func(w wordSet, _ string, hasParcel bool) bool {
		return hasParcel && w.intersects(statusWords)
	}},
	{model.IntentParcelDetails, func(w wordSet, lower string, hasParcel bool) bool {
		return hasParcel && (w.intersects(detailWords) || strings.Contains(lower, "parcel"))
	}},
	{model.IntentListParcels, func(w wordSet, _ string, _ bool) bool {
		return w.intersects(listWords) && w.intersects(actionWords)
	}},
}

// Rules is the keyword rule engine.
type Rules struct{}

// Classify implements Resolver.
func (Rules) Classify(_ context.Context, text string) model.Intent {
	lower := strings.ToLower(text)
	words := newWordSet(wordRe.FindAllString(lower, -1)...)
	hasParcel := parcelIDRe.MatchString(text)
	for _, r := range rules {
		if r.match(words, lower, hasParcel) {
			return r.intent
		}
	}
	return model.IntentUnknown
}

// ─── Extraction ───────────────────────────────────────────────────────────────

// ExtractParcelID returns the first parcel identifier in text, upper-cased,
// or "" when none is present.
func ExtractParcelID(text string) string {
	return strings.ToUpper(parcelIDRe.FindString(text))
}

var everyNDaysRe = regexp.MustCompile(`(?:every )?(\d+) days?`)

// ExtractFrequency returns "daily", "weekly", "<N> days" or "" when the text
// names no frequency.
func ExtractFrequency(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "daily"), strings.Contains(lower, "every day"):
		return "daily"
	case strings.Contains(lower, "weekly"), strings.Contains(lower, "every week"), strings.Contains(lower, "week"):
		return "weekly"
	}
	if m := everyNDaysRe.FindStringSubmatch(lower); m != nil {
		return m[1] + " days"
	}
	return ""
}

// ─── Generative ───────────────────────────────────────────────────────────────

// Generative asks a provider to pick the intent.
type Generative struct {
	Provider llm.Provider
}

// Resolve upper-cases and trims the provider's answer. A valid label is
// returned as is; any other non-blank answer is IntentUnknown. Only call
// failures and blank answers are errors.
func (g Generative) Resolve(ctx context.Context, text string) (model.Intent, error) {
	out, err := g.Provider.Complete(ctx, Prompt(text))
	if err != nil {
		return "", err
	}
	label := strings.ToUpper(strings.TrimSpace(out))
	if label == "" {
		return "", &llm.ProviderError{Op: "intent", Err: llm.ErrEmptyResponse}
	}
	in, ok := model.ParseIntent(label)
	if !ok {
		return model.IntentUnknown, nil
	}
	return in, nil
}

// Prompt builds the classification prompt for text.
func Prompt(text string) string {
	var b strings.Builder
	b.WriteString("You are an agricultural assistant helping farmers manage their parcels.\n")
	b.WriteString("Classify the intent of the farmer's message.\n\n")
	fmt.Fprintf(&b, "Message: %q\n\n", text)
	b.WriteString("Intents:\n")
	for i, d := range descriptions {
		fmt.Fprintf(&b, "%d. %s - %s (e.g. %s)\n", i+1, d.intent, d.about, d.examples)
	}
	b.WriteString("\nAnswer with exactly one intent name from the list and nothing else.")
	return b.String()
}

var descriptions = []struct {
	intent   model.Intent
	about    string
	examples string
}{
	{model.IntentListParcels, "the farmer wants to see all their parcels", `"show my parcels", "list fields"`},
	{model.IntentParcelDetails, "the farmer wants details about one parcel", `"tell me about parcel P1", "info on P2"`},
	{model.IntentParcelStatus, "the farmer wants the current health or status of one parcel", `"how is P1 doing?", "status of P3"`},
	{model.IntentSetReportFrequency, "the farmer wants to change how often reports arrive", `"set my report frequency to weekly", "change reports to every 3 days"`},
	{model.IntentUnknown, "the intent is unclear", `"hello", "thanks"`},
}

// ─── Fallback ─────────────────────────────────────────────────────────────────

// Fallback tries the generative classifier and falls back to the rules on
// any error: timeouts, provider errors and blank answers. An answer outside
// the intent labels is not an error; the classifier already maps it to
// IntentUnknown. Provider failures are logged and never returned.
type Fallback struct {
	Primary Generative
	Rules   Rules
	Log     *zap.Logger
}

// Classify implements Resolver.
func (f Fallback) Classify(ctx context.Context, text string) model.Intent {
	in, err := f.Primary.Resolve(ctx, text)
	if err == nil {
		return in
	}
	log := f.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Warn("generative intent failed, using rules", zap.Error(err))
	return f.Rules.Classify(ctx, text)
}

// New returns the rule engine when p is nil, otherwise a Fallback in front
// of it.
func New(p llm.Provider, log *zap.Logger) Resolver {
	if p == nil {
		return Rules{}
	}
	return Fallback{Primary: Generative{Provider: p}, Log: log}
}
