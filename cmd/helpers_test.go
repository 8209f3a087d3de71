package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/derickschaefer/agrobot/internal/model"
)

func TestOutputWriterDefault(t *testing.T) {
	globalFlags.Out = ""
	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter default: %v", err)
	}
	if w != os.Stdout {
		t.Fatalf("expected stdout writer passthrough")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("default closer should be nil error, got: %v", err)
	}
}

func TestOutputWriterFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.txt")
	globalFlags.Out = p
	t.Cleanup(func() { globalFlags.Out = "" })

	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter file: %v", err)
	}
	if w == os.Stdout {
		t.Fatalf("expected file writer, got stdout")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("closing output writer: %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
}

func TestResolveFormatPrecedence(t *testing.T) {
	t.Cleanup(func() { globalFlags.Format = "" })

	globalFlags.Format = ""
	if got := resolveFormat(""); got != "table" {
		t.Errorf("no flag, no config: got %q want table", got)
	}
	if got := resolveFormat("csv"); got != "csv" {
		t.Errorf("config only: got %q want csv", got)
	}
	globalFlags.Format = "json"
	if got := resolveFormat("csv"); got != "json" {
		t.Errorf("flag should win: got %q want json", got)
	}
}

func TestNewResultFillsEnvelope(t *testing.T) {
	started := time.Now().Add(-5 * time.Millisecond)
	r := newResult(model.KindParcels, "parcel list", []model.Parcel{}, 3, started)
	if r.Kind != model.KindParcels || r.Command != "parcel list" {
		t.Fatalf("unexpected envelope: %+v", r)
	}
	if r.Stats.Items != 3 {
		t.Errorf("items: got %d want 3", r.Stats.Items)
	}
	if r.Stats.DurationMs < 5 {
		t.Errorf("duration should cover the elapsed time, got %dms", r.Stats.DurationMs)
	}
	if r.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}
}

func TestNormaliseParcelID(t *testing.T) {
	if got := normaliseParcelID("  p12 "); got != "P12" {
		t.Fatalf("got %q want P12", got)
	}
}

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		512:     "512 B",
		2048:    "2.0 KB",
		3 << 20: "3.0 MB",
	}
	for in, want := range cases {
		if got := humanBytes(in); got != want {
			t.Errorf("humanBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
