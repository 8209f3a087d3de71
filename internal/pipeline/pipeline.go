// Package pipeline reads seed data and writes sample and payload streams.
// JSONL is the canonical pipe format; seed files may also be plain JSON.
package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/scheduler"
	"github.com/derickschaefer/agrobot/internal/util"
)

// ─── Seed input ───────────────────────────────────────────────────────────────

// ReadFarmers reads a JSON array of farmers. Every farmer needs an id and a
// username.
func ReadFarmers(r io.Reader) ([]model.Farmer, error) {
	var farmers []model.Farmer
	if err := json.NewDecoder(r).Decode(&farmers); err != nil {
		return nil, fmt.Errorf("parsing farmers: %w", err)
	}
	for i, f := range farmers {
		if f.ID == "" || f.Username == "" {
			return nil, fmt.Errorf("farmer %d: id and username are required", i+1)
		}
	}
	return farmers, nil
}

// ReadParcels reads a JSON array of parcels. Every parcel needs an id and a
// farmer_id.
func ReadParcels(r io.Reader) ([]model.Parcel, error) {
	var parcels []model.Parcel
	if err := json.NewDecoder(r).Decode(&parcels); err != nil {
		return nil, fmt.Errorf("parsing parcels: %w", err)
	}
	for i, p := range parcels {
		if p.ID == "" || p.FarmerID == "" {
			return nil, fmt.Errorf("parcel %d: id and farmer_id are required", i+1)
		}
	}
	return parcels, nil
}

// sampleRow is the wire form of one sample. ParcelID is only set in JSONL
// streams.
type sampleRow struct {
	ParcelID   string   `json:"parcel_id,omitempty"`
	Date       string   `json:"date"`
	NDVI       *float64 `json:"ndvi"`
	NDMI       *float64 `json:"ndmi"`
	NDWI       *float64 `json:"ndwi"`
	SOC        *float64 `json:"soc"`
	Nitrogen   *float64 `json:"nitrogen"`
	Phosphorus *float64 `json:"phosphorus"`
	Potassium  *float64 `json:"potassium"`
	PH         *float64 `json:"ph"`
}

func (r sampleRow) sample() (model.MetricSample, error) {
	d, err := util.ParseDate(r.Date)
	if err != nil {
		return model.MetricSample{}, err
	}
	return model.MetricSample{
		Date: d, NDVI: r.NDVI, NDMI: r.NDMI, NDWI: r.NDWI, SOC: r.SOC,
		Nitrogen: r.Nitrogen, Phosphorus: r.Phosphorus, Potassium: r.Potassium, PH: r.PH,
	}, nil
}

func rowOf(parcelID string, s model.MetricSample) sampleRow {
	return sampleRow{
		ParcelID: parcelID, Date: util.FormatDate(s.Date),
		NDVI: s.NDVI, NDMI: s.NDMI, NDWI: s.NDWI, SOC: s.SOC,
		Nitrogen: s.Nitrogen, Phosphorus: s.Phosphorus, Potassium: s.Potassium, PH: s.PH,
	}
}

// ReadSamples reads samples grouped by parcel. Two layouts are accepted: a
// JSON object mapping parcel id to an array of samples, or JSONL rows that
// each carry a parcel_id.
func ReadSamples(r io.Reader) (map[string][]model.MetricSample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("no samples read from input (is stdin empty?)")
	}

	var grouped map[string][]sampleRow
	if err := json.Unmarshal(data, &grouped); err == nil {
		out := make(map[string][]model.MetricSample, len(grouped))
		for id, rows := range grouped {
			for i, row := range rows {
				s, err := row.sample()
				if err != nil {
					return nil, fmt.Errorf("%s sample %d: %w", id, i+1, err)
				}
				out[id] = append(out[id], s)
			}
		}
		return out, nil
	}
	return readSampleLines(bytes.NewReader(data))
}

func readSampleLines(r io.Reader) (map[string][]model.MetricSample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	out := map[string][]model.MetricSample{}
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var row sampleRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		if row.ParcelID == "" {
			return nil, fmt.Errorf("line %d: missing parcel_id", lineNum)
		}
		s, err := row.sample()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		out[row.ParcelID] = append(out[row.ParcelID], s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return out, nil
}

// ReadSampleFile opens path and reads it with ReadSamples. "-" reads stdin.
func ReadSampleFile(path string) (map[string][]model.MetricSample, error) {
	if path == "-" {
		return ReadSamples(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSamples(f)
}

// ─── Output streams ───────────────────────────────────────────────────────────

// WriteSamplesJSONL writes one row per sample, in the layout ReadSamples
// accepts.
func WriteSamplesJSONL(w io.Writer, parcelID string, samples []model.MetricSample) error {
	enc := json.NewEncoder(w)
	for _, s := range samples {
		if err := enc.Encode(rowOf(parcelID, s)); err != nil {
			return err
		}
	}
	return nil
}

// WriteSampleMap writes grouped samples as JSONL, parcels in id order.
func WriteSampleMap(w io.Writer, grouped map[string][]model.MetricSample) error {
	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := WriteSamplesJSONL(w, id, grouped[id]); err != nil {
			return err
		}
	}
	return nil
}

// WritePayloadsJSONL writes one report payload per line.
func WritePayloadsJSONL(w io.Writer, payloads []scheduler.Payload) error {
	enc := json.NewEncoder(w)
	for _, p := range payloads {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	return nil
}

// IsTTY returns true if stdout is a terminal (not a pipe).
func IsTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
