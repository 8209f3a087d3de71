package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/derickschaefer/agrobot/internal/scheduler"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

const (
	farmersJSON = `[
  {"id":"F1","username":"ana","name":"Ana"},
  {"id":"F2","username":"bob","name":"Bob"}
]`
	parcelsJSON = `[
  {"id":"P1","farmer_id":"F1","name":"North Field","area_ha":12.5,"crop":"wheat"},
  {"id":"P2","farmer_id":"F2","name":"Hill","area_ha":3,"crop":"barley"}
]`
	samplesJSON = `{
  "P1": [
    {"date":"2024-06-01","ndvi":0.40,"ndmi":0.10,"ph":6.5},
    {"date":"2024-06-12","ndvi":0.70,"ndmi":0.12,"ph":6.6}
  ]
}`
)

// resetFlags restores every flag of the command tree to its default, since
// cobra keeps parsed values in package variables between Execute calls.
func resetFlags() {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range allCommands(rootCmd) {
		reset(c.Flags())
	}
}

func allCommands(c *cobra.Command) []*cobra.Command {
	out := []*cobra.Command{c}
	for _, sub := range c.Commands() {
		out = append(out, allCommands(sub)...)
	}
	return out
}

// run executes the CLI with args against the database at db and returns
// stdout.
func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--db", db}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// seeded writes the fixture files, loads them and returns the db path.
func seeded(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"AGROBOT_DB_PATH", "AGROBOT_FORMAT", "AGROBOT_USE_LLM", "AGROBOT_MESSAGING_PROVIDER", "AGROBOT_REPORT_INTERVAL"} {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	db := filepath.Join(dir, "agrobot.db")
	out, err := run(t, db, "data", "load",
		"--farmers", write("farmers.json", farmersJSON),
		"--parcels", write("parcels.json", parcelsJSON),
		"--samples", write("samples.json", samplesJSON))
	if err != nil {
		t.Fatalf("data load: %v", err)
	}
	if !strings.Contains(out, "✓ Loaded 2 farmers, 2 parcels, 2 samples across 1 parcels") {
		t.Fatalf("unexpected load summary: %q", out)
	}
	return db
}

// ─── Tests ────────────────────────────────────────────────────────────────────

func TestDataStatsCountsRows(t *testing.T) {
	db := seeded(t)
	out, err := run(t, db, "data", "stats")
	if err != nil {
		t.Fatalf("data stats: %v", err)
	}
	for _, want := range []string{"farmers", "parcels", "samples"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestChatLinksThenListsParcels(t *testing.T) {
	db := seeded(t)

	out, err := run(t, db, "chat", "--from", "whatsapp:+15550001", "ana")
	if err != nil {
		t.Fatalf("chat link: %v", err)
	}
	if !strings.Contains(out, "linked to +15550001") {
		t.Fatalf("expected link confirmation, got %q", out)
	}

	out, err = run(t, db, "chat", "--from", "+15550001", "show", "my", "parcels")
	if err != nil {
		t.Fatalf("chat list: %v", err)
	}
	if !strings.Contains(out, "P1: North Field") || strings.Contains(out, "P2") {
		t.Fatalf("expected only Ana's parcel, got %q", out)
	}
}

func TestParcelListJSON(t *testing.T) {
	db := seeded(t)
	out, err := run(t, db, "parcel", "list", "F2", "--format", "json")
	if err != nil {
		t.Fatalf("parcel list: %v", err)
	}
	var res struct {
		Kind string `json:"kind"`
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if res.Kind != "parcels" || len(res.Data) != 1 || res.Data[0].ID != "P2" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestParcelTrendReportsDirection(t *testing.T) {
	db := seeded(t)
	out, err := run(t, db, "parcel", "trend", "p1", "--format", "csv")
	if err != nil {
		t.Fatalf("parcel trend: %v", err)
	}
	if !strings.Contains(out, "ndvi") || !strings.Contains(out, "increasing") {
		t.Fatalf("expected increasing NDVI row, got:\n%s", out)
	}
}

func TestParcelHistoryChartNeedsMetric(t *testing.T) {
	db := seeded(t)
	if _, err := run(t, db, "parcel", "history", "P1", "--chart", "bar"); err == nil {
		t.Fatal("expected error when --chart is given without --metric")
	}
}

func TestParcelHistoryChartTitleCarriesTrend(t *testing.T) {
	db := seeded(t)
	out, err := run(t, db, "parcel", "history", "P1", "--metric", "ndvi", "--chart", "bar")
	if err != nil {
		t.Fatalf("parcel history --chart: %v", err)
	}
	if !strings.Contains(out, "ndvi P1 (increasing)") {
		t.Fatalf("expected trend in chart title, got:\n%s", out)
	}
}

func TestCompleteParcelIDs(t *testing.T) {
	db := seeded(t)
	globalFlags.DBPath = db
	t.Cleanup(func() { globalFlags.DBPath = "" })

	got, directive := completeParcelIDs(parcelShowCmd, nil, "p")
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("expected NoFileComp directive, got %v", directive)
	}
	if len(got) != 2 || !strings.HasPrefix(got[0], "P1\t") || !strings.HasPrefix(got[1], "P2\t") {
		t.Fatalf("expected P1 and P2 with descriptions, got %q", got)
	}
	if got, _ := completeParcelIDs(parcelShowCmd, []string{"P1"}, ""); len(got) != 0 {
		t.Errorf("expected no suggestions after the parcel ID, got %q", got)
	}
}

func TestReportRunDryRunDoesNotRecord(t *testing.T) {
	db := seeded(t)
	if _, err := run(t, db, "link", "+15550001", "ana"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := run(t, db, "report", "pref", "set", "+15550001", "weekly"); err != nil {
		t.Fatalf("pref set: %v", err)
	}

	decode := func(out string) []scheduler.Payload {
		t.Helper()
		var res struct {
			Data []scheduler.Payload `json:"data"`
		}
		if err := json.Unmarshal([]byte(out), &res); err != nil {
			t.Fatalf("decoding %q: %v", out, err)
		}
		return res.Data
	}

	for i := 0; i < 2; i++ {
		out, err := run(t, db, "report", "run", "--dry-run", "--date", "2024-06-15", "--format", "json")
		if err != nil {
			t.Fatalf("dry run %d: %v", i, err)
		}
		if got := decode(out); len(got) != 1 {
			t.Fatalf("dry run %d: got %d payloads, want 1", i, len(got))
		}
	}

	out, err := run(t, db, "report", "run", "--send", "--date", "2024-06-15", "--format", "json")
	if err != nil {
		t.Fatalf("report run --send: %v", err)
	}
	if got := decode(out); len(got) != 1 {
		t.Fatalf("real run: got %d payloads, want 1", len(got))
	}

	out, err = run(t, db, "report", "run", "--date", "2024-06-16", "--format", "json")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := decode(out); len(got) != 0 {
		t.Fatalf("weekly policy should not be due a day later, got %d payloads", len(got))
	}

	out, err = run(t, db, "report", "outbox", "--format", "csv")
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	if !strings.Contains(out, "+15550001") {
		t.Fatalf("expected the sent report in the outbox, got:\n%s", out)
	}
}

func TestReportSendConflictsWithDryRun(t *testing.T) {
	db := seeded(t)
	if _, err := run(t, db, "report", "run", "--send", "--dry-run"); err == nil {
		t.Fatal("expected --send with --dry-run to fail")
	}
}

func TestReportPrefRejectsNone(t *testing.T) {
	db := seeded(t)
	if _, err := run(t, db, "report", "pref", "set", "+15550001", "none"); err == nil {
		t.Fatal("expected none to be rejected")
	}
	out, err := run(t, db, "report", "pref", "get", "+15550001")
	if err != nil {
		t.Fatalf("pref get: %v", err)
	}
	if strings.TrimSpace(out) != "none" {
		t.Fatalf("got %q want none", out)
	}
}

func TestPromptStatusIncludesParcel(t *testing.T) {
	db := seeded(t)
	out, err := run(t, db, "prompt", "status", "P1")
	if err != nil {
		t.Fatalf("prompt status: %v", err)
	}
	if !strings.Contains(out, "North Field") {
		t.Fatalf("prompt should name the parcel, got:\n%s", out)
	}
	if _, err := run(t, db, "prompt", "trend", "P9"); err == nil {
		t.Fatal("expected unknown parcel to fail")
	}
}
