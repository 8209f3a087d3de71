package pipeline_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/pipeline"
	"github.com/derickschaefer/agrobot/internal/scheduler"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// jsonl joins lines with newlines and appends a trailing newline.
func jsonl(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// ─── Farmers & parcels ────────────────────────────────────────────────────────

func TestReadFarmers(t *testing.T) {
	in := `[{"id":"F1","username":"ana","name":"Ana","phone":"+1"},{"id":"F2","username":"bob","name":"Bob"}]`
	farmers, err := pipeline.ReadFarmers(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadFarmers: %v", err)
	}
	if len(farmers) != 2 || farmers[0].Phone != "+1" || farmers[1].Linked() {
		t.Errorf("unexpected farmers %+v", farmers)
	}
}

func TestReadFarmersRequiresUsername(t *testing.T) {
	if _, err := pipeline.ReadFarmers(strings.NewReader(`[{"id":"F1"}]`)); err == nil {
		t.Error("expected error for missing username")
	}
}

func TestReadParcels(t *testing.T) {
	in := `[{"id":"P1","farmer_id":"F1","name":"North","area_ha":12.5,"crop":"wheat"}]`
	parcels, err := pipeline.ReadParcels(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadParcels: %v", err)
	}
	if len(parcels) != 1 || parcels[0].AreaHa != 12.5 || parcels[0].Crop != "wheat" {
		t.Errorf("unexpected parcels %+v", parcels)
	}
	if _, err := pipeline.ReadParcels(strings.NewReader(`[{"id":"P1"}]`)); err == nil {
		t.Error("expected error for missing farmer_id")
	}
}

// ─── Samples ──────────────────────────────────────────────────────────────────

func TestReadSamplesGrouped(t *testing.T) {
	in := `{
	  "P1": [{"date":"2024-06-01","ndvi":0.4,"ph":null},{"date":"2024-06-12","ndvi":0.7,"ph":6.5}],
	  "P2": [{"date":"2024-06-03","soc":2.1}]
	}`
	got, err := pipeline.ReadSamples(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}
	if len(got["P1"]) != 2 || len(got["P2"]) != 1 {
		t.Fatalf("unexpected grouping %v", got)
	}
	first := got["P1"][0]
	if first.NDVI == nil || *first.NDVI != 0.4 || first.PH != nil {
		t.Errorf("P1[0]: unexpected values %+v", first)
	}
	if !first.Date.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("P1[0].Date: got %v", first.Date)
	}
}

func TestReadSamplesJSONL(t *testing.T) {
	in := jsonl(
		`{"parcel_id":"P1","date":"2024-06-01","ndvi":0.4}`,
		`// comment`,
		``,
		`{"parcel_id":"P2","date":"2024-06-02","nitrogen":0.9}`,
		`{"parcel_id":"P1","date":"2024-06-05","ndvi":0.5}`,
	)
	got, err := pipeline.ReadSamples(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}
	if len(got["P1"]) != 2 || len(got["P2"]) != 1 {
		t.Errorf("unexpected grouping %v", got)
	}
	if n := got["P2"][0].Nitrogen; n == nil || *n != 0.9 {
		t.Errorf("P2 nitrogen: got %v", n)
	}
}

func TestReadSamplesErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          "   \n",
		"bad json line":  jsonl(`{"parcel_id":"P1","date":"2024-06-01"}`, `{oops`),
		"missing parcel": jsonl(`{"date":"2024-06-01","ndvi":0.4}`, `{"date":"2024-06-02"}`),
		"bad date":       `{"P1":[{"date":"June 1st","ndvi":0.4}]}`,
	}
	for name, in := range tests {
		if _, err := pipeline.ReadSamples(strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSamplesRoundTrip(t *testing.T) {
	samples := map[string][]model.MetricSample{
		"P2": {{Date: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), PH: model.Float(6.1)}},
		"P1": {{Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), NDVI: model.Float(0.4)}},
	}
	var buf bytes.Buffer
	if err := pipeline.WriteSampleMap(&buf, samples); err != nil {
		t.Fatalf("WriteSampleMap: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 2 || !strings.Contains(lines[0], `"parcel_id":"P1"`) {
		t.Fatalf("expected P1 first, got %v", lines)
	}
	back, err := pipeline.ReadSamples(&buf)
	if err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}
	if v := back["P2"][0].PH; v == nil || *v != 6.1 {
		t.Errorf("P2 pH: got %v", v)
	}
}

// ─── Payloads ─────────────────────────────────────────────────────────────────

func TestWritePayloadsJSONL(t *testing.T) {
	payloads := []scheduler.Payload{
		{ID: "a", Recipient: "+1", Policy: "weekly", Parcels: []scheduler.ParcelReport{}},
		{ID: "b", Recipient: "+2", Policy: "daily", Parcels: []scheduler.ParcelReport{}},
	}
	var buf bytes.Buffer
	if err := pipeline.WritePayloadsJSONL(&buf, payloads); err != nil {
		t.Fatalf("WritePayloadsJSONL: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var p scheduler.Payload
	if err := json.Unmarshal([]byte(lines[1]), &p); err != nil {
		t.Fatalf("line 2: %v", err)
	}
	if p.Recipient != "+2" || p.Policy != "daily" {
		t.Errorf("unexpected payload %+v", p)
	}
}
