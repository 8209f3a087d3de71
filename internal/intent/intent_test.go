package intent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/derickschaefer/agrobot/internal/intent"
	"github.com/derickschaefer/agrobot/internal/llm"
	"github.com/derickschaefer/agrobot/internal/model"
)

func TestRulesClassify(t *testing.T) {
	tests := []struct {
		text string
		want model.Intent
	}{
		{"show my parcels", model.IntentListParcels},
		{"What fields do I have?", model.IntentListParcels},
		{"how is P1 doing?", model.IntentParcelStatus},
		{"status of p12", model.IntentParcelStatus},
		{"set my report frequency to daily", model.IntentSetReportFrequency},
		{"change reports to every 3 days", model.IntentSetReportFrequency},
		{"update frequency please", model.IntentSetReportFrequency},
		{"tell me about parcel p7", model.IntentParcelDetails},
		{"parcel P3", model.IntentParcelDetails},
		{"info P2", model.IntentParcelDetails},
		{"xyzzy", model.IntentUnknown},
		{"parcels", model.IntentUnknown},
		{"how are my fields", model.IntentUnknown},
		{"", model.IntentUnknown},
	}
	r := intent.Rules{}
	for _, tt := range tests {
		if got := r.Classify(context.Background(), tt.text); got != tt.want {
			t.Errorf("Classify(%q): expected %s, got %s", tt.text, tt.want, got)
		}
	}
}

func TestRulesPriority(t *testing.T) {
	// frequency beats status even when a parcel id is present
	got := intent.Rules{}.Classify(context.Background(), "how do I change report frequency for P1")
	if got != model.IntentSetReportFrequency {
		t.Errorf("expected SET_REPORT_FREQUENCY, got %s", got)
	}
	// status beats details
	got = intent.Rules{}.Classify(context.Background(), "health details for parcel P4")
	if got != model.IntentParcelStatus {
		t.Errorf("expected PARCEL_STATUS, got %s", got)
	}
}

func TestExtractParcelID(t *testing.T) {
	tests := map[string]string{
		"tell me about parcel p7": "P7",
		"P12 and P3":              "P12",
		"no id here":              "",
		"compare xP1":             "",
	}
	for in, want := range tests {
		if got := intent.ExtractParcelID(in); got != want {
			t.Errorf("ExtractParcelID(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestExtractFrequency(t *testing.T) {
	tests := map[string]string{
		"set reports to daily":        "daily",
		"send it every day":           "daily",
		"make it Weekly":              "weekly",
		"once a week please":          "weekly",
		"every 3 days":                "3 days",
		"change frequency to 10 days": "10 days",
		"1 day":                       "1 days",
		"sometimes":                   "",
	}
	for in, want := range tests {
		if got := intent.ExtractFrequency(in); got != want {
			t.Errorf("ExtractFrequency(%q): expected %q, got %q", in, want, got)
		}
	}
}

// ─── Generative + fallback ────────────────────────────────────────────────────

func provider(out string, err error) llm.Provider {
	return llm.ProviderFunc(func(context.Context, string) (string, error) { return out, err })
}

func TestGenerativeAcceptsValidLabel(t *testing.T) {
	r := intent.New(provider("  parcel_status\n", nil), nil)
	if got := r.Classify(context.Background(), "xyzzy"); got != model.IntentParcelStatus {
		t.Errorf("expected provider answer PARCEL_STATUS, got %s", got)
	}
}

func TestGenerativeFallsBackOnError(t *testing.T) {
	r := intent.New(provider("", &llm.ProviderError{Op: "test", Err: errors.New("timeout")}), nil)
	if got := r.Classify(context.Background(), "show my parcels"); got != model.IntentListParcels {
		t.Errorf("expected rule fallback LIST_PARCELS, got %s", got)
	}
}

func TestGenerativeOutOfVocabularyIsUnknown(t *testing.T) {
	r := intent.New(provider("I think they want parcels", nil), nil)
	if got := r.Classify(context.Background(), "how is P1 doing?"); got != model.IntentUnknown {
		t.Errorf("expected UNKNOWN for an unlisted answer, got %s", got)
	}

	in, err := intent.Generative{Provider: provider("BANANA", nil)}.Resolve(context.Background(), "x")
	if err != nil || in != model.IntentUnknown {
		t.Errorf("expected UNKNOWN without error, got %s, %v", in, err)
	}
}

func TestGenerativeFallsBackOnBlankOutput(t *testing.T) {
	r := intent.New(provider("  \n", nil), nil)
	if got := r.Classify(context.Background(), "how is P1 doing?"); got != model.IntentParcelStatus {
		t.Errorf("expected rule fallback PARCEL_STATUS, got %s", got)
	}

	_, err := intent.Generative{Provider: provider("", nil)}.Resolve(context.Background(), "x")
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestNewWithoutProviderIsRules(t *testing.T) {
	if _, ok := intent.New(nil, nil).(intent.Rules); !ok {
		t.Error("expected the rule engine when no provider is configured")
	}
}

func TestPromptListsEveryIntent(t *testing.T) {
	p := intent.Prompt("how is P1?")
	for _, in := range model.AllIntents {
		if !strings.Contains(p, string(in)) {
			t.Errorf("prompt missing intent %s", in)
		}
	}
	if !strings.Contains(p, `"how is P1?"`) {
		t.Error("prompt missing the message")
	}
}
