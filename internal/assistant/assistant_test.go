package assistant_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/agrobot/internal/assistant"
	"github.com/derickschaefer/agrobot/internal/intent"
	"github.com/derickschaefer/agrobot/internal/llm"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func testDB(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(d int) time.Time { return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC) }

// seed creates two farmers: ana (linked to +1, owns P1 and P2) and bob
// (unlinked, owns P3).
func seed(t *testing.T, s *store.Store) {
	t.Helper()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(s.PutFarmer(model.Farmer{ID: "F1", Username: "ana", Name: "Ana", Phone: "+1"}))
	must(s.PutFarmer(model.Farmer{ID: "F2", Username: "bob", Name: "Bob"}))
	must(s.PutParcel(model.Parcel{ID: "P1", FarmerID: "F1", Name: "North Field", AreaHa: 12.5, Crop: "wheat"}))
	must(s.PutParcel(model.Parcel{ID: "P2", FarmerID: "F1", Name: "South Field", AreaHa: 8, Crop: "maize"}))
	must(s.PutParcel(model.Parcel{ID: "P3", FarmerID: "F2", Name: "Hill", AreaHa: 3, Crop: "barley"}))
	must(s.PutSamples("P1", []model.MetricSample{
		{Date: day(1), NDVI: model.Float(0.4), PH: model.Float(6.5)},
		{Date: day(12), NDVI: model.Float(0.7), PH: model.Float(6.52), NDMI: model.Float(0.3333)},
	}))
	must(s.PutSamples("P2", []model.MetricSample{
		{Date: day(3), NDVI: model.Float(0.5)},
	}))
}

func newService(t *testing.T) (*assistant.Service, *store.Store) {
	t.Helper()
	s := testDB(t)
	seed(t, s)
	return assistant.New(s), s
}

var ctx = context.Background()

// ─── Linking ──────────────────────────────────────────────────────────────────

func TestUnlinkedSender(t *testing.T) {
	svc, _ := newService(t)
	if got := svc.HandleMessage(ctx, "+9", "show my parcels"); got != assistant.MsgWelcome {
		t.Errorf("multi-word message: expected welcome, got %q", got)
	}
	if got := svc.HandleMessage(ctx, "+9", "nobody"); got != assistant.MsgUsernameNotFound {
		t.Errorf("unknown username: expected not found, got %q", got)
	}
}

func TestLinkThroughChat(t *testing.T) {
	svc, s := newService(t)
	got := svc.HandleMessage(ctx, "whatsapp:+2", "bob")
	want := "Great, your account has been linked to +2. You can now ask about your parcels."
	if got != want {
		t.Fatalf("link: expected %q, got %q", want, got)
	}
	f, _, _ := s.FarmerByUsername("bob")
	if f.Phone != "+2" {
		t.Errorf("expected phone +2 stored, got %q", f.Phone)
	}
	if reply := svc.HandleMessage(ctx, "+2", "list my fields"); !strings.HasPrefix(reply, "Your parcels:") {
		t.Errorf("linked sender should be served, got %q", reply)
	}
}

func TestLinkAccountConflicts(t *testing.T) {
	svc, _ := newService(t)
	tests := []struct {
		phone, username, want string
	}{
		{"+1", "ana", assistant.MsgAlreadyLinked},
		{"+1", "bob", "This phone number is already linked to account 'ana'."},
		{"+5", "ana", assistant.MsgAccountTaken},
		{"+5", "carol", assistant.MsgUsernameNotFound},
	}
	for _, tt := range tests {
		if got := svc.LinkAccount(tt.phone, tt.username); got != tt.want {
			t.Errorf("LinkAccount(%s, %s): expected %q, got %q", tt.phone, tt.username, tt.want, got)
		}
	}
}

// ─── Parcels ──────────────────────────────────────────────────────────────────

func TestListParcels(t *testing.T) {
	svc, _ := newService(t)
	got := svc.HandleMessage(ctx, "+1", "show my parcels")
	want := "Your parcels:\n- P1: North Field (12.5 ha, wheat)\n- P2: South Field (8 ha, maize)"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestListParcelsEmpty(t *testing.T) {
	svc, s := newService(t)
	_ = s.PutFarmer(model.Farmer{ID: "F9", Username: "zed", Phone: "+9"})
	if got := svc.HandleMessage(ctx, "+9", "what fields do I have, show them"); got != assistant.MsgNoParcels {
		t.Errorf("expected %q, got %q", assistant.MsgNoParcels, got)
	}
}

func TestDetails(t *testing.T) {
	svc, _ := newService(t)
	tests := []struct {
		text string
		want []string
	}{
		{"tell me about parcel p1", []string{
			"Parcel P1 - North Field", "Area: 12.5 ha", "Crop: wheat",
			"Latest data (2024-06-12):", "- NDVI: 0.70 (vegetation is healthy)",
			"- NDMI: 0.33 (moisture is high)", "- PH: 6.52 (pH is good)", "- SOC: n/a",
		}},
		{"details about P3", []string{"Parcel P3 does not belong to you."}},
		{"info on P42", []string{"Parcel P42 not found."}},
	}
	for _, tt := range tests {
		got := svc.HandleMessage(ctx, "+1", tt.text)
		for _, w := range tt.want {
			if !strings.Contains(got, w) {
				t.Errorf("%q: reply missing %q\n%s", tt.text, w, got)
			}
		}
	}
}

func TestDetailsWithoutID(t *testing.T) {
	svc, _ := newService(t)
	f := model.Farmer{ID: "F1"}
	if got := svc.DetailsText(f, ""); got != assistant.MsgMissingParcelID {
		t.Errorf("expected missing id message, got %q", got)
	}
}

func TestParcelDetailsStructured(t *testing.T) {
	svc, _ := newService(t)
	d, status, err := svc.ParcelDetails("F1", "P1")
	if err != nil || status != assistant.Found {
		t.Fatalf("ParcelDetails: status=%v err=%v", status, err)
	}
	if d.DataDate == nil || !d.DataDate.Equal(day(12)) {
		t.Errorf("DataDate: expected 2024-06-12, got %v", d.DataDate)
	}
	if len(d.Values) != len(model.AllMetrics) {
		t.Fatalf("expected %d values, got %d", len(model.AllMetrics), len(d.Values))
	}
	if v := d.Values[1].Value; v == nil || *v != 0.33 {
		t.Errorf("ndmi: expected 0.33, got %v", v)
	}
	if _, status, _ := svc.ParcelDetails("F1", "P3"); status != assistant.NotOwned {
		t.Errorf("P3: expected NotOwned, got %v", status)
	}
	if _, status, _ := svc.ParcelDetails("", "P3"); status != assistant.Found {
		t.Errorf("operator lookup: expected Found, got %v", status)
	}
}

// ─── Status & trends ──────────────────────────────────────────────────────────

func TestStatusIncludesTrend(t *testing.T) {
	svc, _ := newService(t)
	got := svc.HandleMessage(ctx, "+1", "how is P1 doing?")
	for _, w := range []string{
		"**Current Status for Parcel P1 - North Field**",
		"Last measured on 2024-06-12.",
		"Trend Analysis for North Field: NDVI: increasing, PH: stable",
	} {
		if !strings.Contains(got, w) {
			t.Errorf("status reply missing %q\n%s", w, got)
		}
	}
}

func TestStatusSingleSampleHasNoTrend(t *testing.T) {
	svc, _ := newService(t)
	got := svc.HandleMessage(ctx, "+1", "status of P2")
	if strings.Contains(got, "Trend Analysis") {
		t.Errorf("single sample should not produce a trend sentence\n%s", got)
	}
}

func TestStatusWithoutSamples(t *testing.T) {
	svc, s := newService(t)
	_ = s.PutParcel(model.Parcel{ID: "P4", FarmerID: "F1", Name: "New"})
	if got := svc.HandleMessage(ctx, "+1", "how is P4"); got != "Parcel P4: no data available yet" {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestParcelTrends(t *testing.T) {
	svc, _ := newService(t)
	r, status, err := svc.ParcelTrends(ctx, "F1", "P1")
	if err != nil || status != assistant.Found {
		t.Fatalf("ParcelTrends: status=%v err=%v", status, err)
	}
	if r.Result.Period.Samples != 2 || len(r.Result.Trends) != 2 {
		t.Errorf("unexpected result %+v", r.Result)
	}
	if !strings.HasPrefix(r.Summary, "Trend Analysis for North Field") {
		t.Errorf("unexpected summary %q", r.Summary)
	}

	r, _, _ = svc.ParcelTrends(ctx, "F1", "P2")
	if !r.Result.Insufficient() || r.Result.Period.Samples != 1 {
		t.Errorf("P2: expected insufficient data with 1 sample, got %+v", r.Result)
	}
	if _, status, _ := svc.ParcelTrends(ctx, "F2", "P1"); status != assistant.NotOwned {
		t.Errorf("expected NotOwned, got %v", status)
	}
}

// ─── Preferences ──────────────────────────────────────────────────────────────

func TestSetFrequencyThroughChat(t *testing.T) {
	svc, _ := newService(t)
	got := svc.HandleMessage(ctx, "+1", "set my report frequency to every 3 days")
	want := "Your report frequency has been set to 3 days. You will receive parcel summaries every 3 days."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if p, _ := svc.GetFrequencyPolicy("+1"); p != "3 days" {
		t.Errorf("expected stored 3 days, got %q", p)
	}
	if got := svc.HandleMessage(ctx, "+1", "change my report frequency please"); got != assistant.MsgInvalidFrequency {
		t.Errorf("no frequency: expected invalid message, got %q", got)
	}
}

func TestSetFrequencyPolicy(t *testing.T) {
	svc, s := newService(t)
	if p, _ := svc.GetFrequencyPolicy("+1"); p != "none" {
		t.Errorf("default: expected none, got %q", p)
	}
	if got := svc.SetFrequencyPolicy("+1", "7 days"); !strings.Contains(got, "every 7 days") {
		t.Errorf("unexpected confirmation %q", got)
	}
	for _, bad := range []string{"banana", "none", "0 days", ""} {
		if got := svc.SetFrequencyPolicy("+1", bad); got != assistant.MsgInvalidFrequency {
			t.Errorf("SetFrequencyPolicy(%q): expected invalid message, got %q", bad, got)
		}
	}
	if p, _ := svc.GetFrequencyPolicy("+1"); p != "7 days" {
		t.Errorf("invalid input changed the policy to %q", p)
	}

	sent := day(10)
	pref, _, _ := s.GetPreference("+1")
	pref.LastSent = &sent
	_, _ = s.PutPreference(pref)
	svc.SetFrequencyPolicy("+1", "daily")
	after, _, _ := s.GetPreference("+1")
	if after.LastSent == nil || !after.LastSent.Equal(sent) || after.ID != pref.ID {
		t.Errorf("changing policy should keep id and last sent, got %+v", after)
	}
}

// ─── Fallback & unknown ───────────────────────────────────────────────────────

func TestUnknownGreets(t *testing.T) {
	svc, _ := newService(t)
	if got := svc.HandleMessage(ctx, "+1", "xyzzy plugh"); !strings.HasPrefix(got, "Hello ana! Your account is linked.") {
		t.Errorf("unexpected greeting %q", got)
	}
}

func TestFailingProviderFallsBackToRules(t *testing.T) {
	s := testDB(t)
	seed(t, s)
	broken := llm.ProviderFunc(func(context.Context, string) (string, error) {
		return "", errors.New("quota exceeded")
	})
	svc := assistant.New(s, assistant.WithIntents(intent.New(broken, nil)))
	got := svc.HandleMessage(ctx, "+1", "show my parcels")
	if !strings.HasPrefix(got, "Your parcels:") {
		t.Errorf("expected rule-based routing, got %q", got)
	}
}

func TestLookupStatusMessage(t *testing.T) {
	if got := assistant.NotFound.Message("P1"); got != "Parcel P1 not found." {
		t.Errorf("NotFound: got %q", got)
	}
	if got := assistant.Found.Message("P1"); got != "" {
		t.Errorf("Found: expected empty, got %q", got)
	}
	if assistant.NotOwned.String() != "not_owned" {
		t.Errorf("String: got %s", assistant.NotOwned)
	}
}
