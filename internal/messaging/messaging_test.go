package messaging_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/derickschaefer/agrobot/internal/messaging"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/scheduler"
	"github.com/derickschaefer/agrobot/internal/store"
)

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"whatsapp:+15551234": "+15551234",
		"WhatsApp:+1":        "+1",
		"  +44 ":             "+44",
		"+1":                 "+1",
		"":                   "",
	}
	for in, want := range tests {
		if got := messaging.NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestRecorder(t *testing.T) {
	r := &messaging.Recorder{Fail: map[string]bool{"+2": true}}
	if !r.Send(context.Background(), "+1", "hi") {
		t.Error("Send(+1): expected success")
	}
	if r.Send(context.Background(), "+2", "hi") {
		t.Error("Send(+2): expected failure")
	}
	sent := r.Sent()
	if len(sent) != 1 || sent[0].To != "+1" || sent[0].Body != "hi" {
		t.Errorf("unexpected recorded messages %+v", sent)
	}
}

func TestOutboxPersists(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	o := messaging.NewOutbox(s, nil)
	if !o.Send(context.Background(), "+1", "report") {
		t.Fatal("Send: expected success")
	}
	got, _ := s.ListOutbox()
	if len(got) != 1 || got[0].To != "+1" || got[0].Body != "report" {
		t.Errorf("unexpected outbox %+v", got)
	}
}

// ─── Formatting & delivery ────────────────────────────────────────────────────

func payload() scheduler.Payload {
	measured := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	return scheduler.Payload{
		ID:          "id-1",
		Recipient:   "+1",
		FarmerName:  "Ana",
		Policy:      "weekly",
		GeneratedAt: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		Parcels: []scheduler.ParcelReport{
			{
				ParcelID:   "P1",
				Name:       "North Field",
				MeasuredOn: &measured,
				Overall:    "GOOD",
				Metrics: []scheduler.MetricReport{
					{Metric: model.Vegetation, Value: model.Float(0.62), Category: "healthy"},
					{Metric: model.Moisture, Category: "no data"},
				},
			},
			{ParcelID: "P2", Name: "Empty"},
		},
	}
}

func TestFormatPayload(t *testing.T) {
	out := messaging.FormatPayload(payload())
	for _, want := range []string{
		"Hello Ana, here is your weekly parcel report (2024-06-15).",
		"P1 - North Field [GOOD]",
		"NDVI 0.62 (healthy)",
		"Measured on 2024-06-12.",
		"P2 - Empty\nNo measurements yet.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted payload missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "NDMI") {
		t.Error("absent metrics should be left out of the message")
	}
}

func TestFormatPayloadWithoutParcels(t *testing.T) {
	p := payload()
	p.Parcels = nil
	if out := messaging.FormatPayload(p); !strings.HasSuffix(out, "You have no parcels registered.") {
		t.Errorf("unexpected text %q", out)
	}
}

func TestDeliver(t *testing.T) {
	r := &messaging.Recorder{Fail: map[string]bool{"+2": true}}
	a, b := payload(), payload()
	b.ID, b.Recipient = "id-2", "+2"

	out := messaging.Deliver(context.Background(), r, []scheduler.Payload{a, b})
	if len(out) != 2 || !out[0].Delivered || out[1].Delivered {
		t.Errorf("unexpected outcomes %+v", out)
	}
	if out[1].PayloadID != "id-2" {
		t.Errorf("PayloadID: expected id-2, got %s", out[1].PayloadID)
	}
}

// ─── Twilio ───────────────────────────────────────────────────────────────────

func TestTwilioSend(t *testing.T) {
	var gotPath, gotTo, gotBody, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		_ = r.ParseForm()
		gotTo, gotBody = r.PostForm.Get("To"), r.PostForm.Get("Body")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123"}`))
	}))
	defer srv.Close()

	tw := messaging.NewTwilio(messaging.TwilioConfig{
		AccountSID: "AC1", AuthToken: "tok", From: "whatsapp:+100",
		BaseURL: srv.URL, WhatsApp: true, RatePerSec: 100,
	}, nil)
	if !tw.Send(context.Background(), "whatsapp:+200", "hello") {
		t.Fatal("Send: expected success")
	}
	if gotPath != "/Accounts/AC1/Messages.json" {
		t.Errorf("path: got %s", gotPath)
	}
	if gotUser != "AC1" || gotTo != "whatsapp:+200" || gotBody != "hello" {
		t.Errorf("unexpected request user=%s to=%s body=%s", gotUser, gotTo, gotBody)
	}
}

func TestTwilioRetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer srv.Close()

	tw := messaging.NewTwilio(messaging.TwilioConfig{AccountSID: "AC1", BaseURL: srv.URL, RatePerSec: 100}, nil)
	messaging.NoBackoff(tw)
	if !tw.Send(context.Background(), "+1", "x") {
		t.Error("Send: expected success after retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestTwilioClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	tw := messaging.NewTwilio(messaging.TwilioConfig{AccountSID: "AC1", BaseURL: srv.URL, RatePerSec: 100}, nil)
	messaging.NoBackoff(tw)
	if tw.Send(context.Background(), "+1", "x") {
		t.Error("Send: expected failure")
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
}
