package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/derickschaefer/agrobot/internal/analyze"
	"github.com/derickschaefer/agrobot/internal/interpret"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/util"
)

// LookupStatus is the outcome of a parcel lookup on behalf of a farmer.
type LookupStatus int

const (
	Found LookupStatus = iota
	NotFound
	NotOwned
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case NotOwned:
		return "not_owned"
	}
	return "unknown"
}

// Message returns the user-facing text for a failed lookup.
func (s LookupStatus) Message(parcelID string) string {
	switch s {
	case NotFound:
		return fmt.Sprintf("Parcel %s not found.", parcelID)
	case NotOwned:
		return fmt.Sprintf("Parcel %s does not belong to you.", parcelID)
	}
	return ""
}

// MetricValue is one metric of a parcel's latest sample, rounded to two
// decimals. Value is nil when not measured. Phrase interprets the unrounded
// value.
type MetricValue struct {
	Metric model.Metric `json:"metric"`
	Value  *float64     `json:"value"`
	Phrase string       `json:"phrase,omitempty"`
}

// Details describes a parcel and its latest measurements.
type Details struct {
	Parcel   model.Parcel  `json:"parcel"`
	DataDate *time.Time    `json:"data_date"`
	Values   []MetricValue `json:"indices"`
}

// TrendReport is a parcel's trend analysis and its narrative.
type TrendReport struct {
	Parcel  model.Parcel        `json:"parcel"`
	Result  analyze.TrendResult `json:"result"`
	Summary string              `json:"summary"`
}

// ─── Listing ──────────────────────────────────────────────────────────────────

// ListParcels returns the farmer's parcels as a bulleted reply.
func (s *Service) ListParcels(f model.Farmer) string {
	parcels, err := s.store.ParcelsByFarmer(f.ID)
	if err != nil {
		s.log.Error("listing parcels", zap.String("farmer", f.ID), zap.Error(err))
		return MsgInternalError
	}
	if len(parcels) == 0 {
		return MsgNoParcels
	}
	var b strings.Builder
	b.WriteString("Your parcels:")
	for _, p := range parcels {
		fmt.Fprintf(&b, "\n- %s: %s (%s ha, %s)", p.ID, p.Name, formatArea(p.AreaHa), p.Crop)
	}
	return b.String()
}

func formatArea(ha float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", ha), "0"), ".")
}

// ─── Lookups ──────────────────────────────────────────────────────────────────

// lookup loads a parcel and its samples. An empty farmerID skips the
// ownership check, for operator tools.
func (s *Service) lookup(farmerID, parcelID string) (model.Parcel, []model.MetricSample, LookupStatus, error) {
	p, found, err := s.store.GetParcel(parcelID)
	if err != nil {
		return model.Parcel{}, nil, NotFound, fmt.Errorf("reading parcel %s: %w", parcelID, err)
	}
	if !found {
		return model.Parcel{}, nil, NotFound, nil
	}
	if farmerID != "" && p.FarmerID != farmerID {
		return model.Parcel{}, nil, NotOwned, nil
	}
	samples, _, err := s.store.GetSamples(parcelID)
	if err != nil {
		return model.Parcel{}, nil, NotFound, fmt.Errorf("reading samples for %s: %w", parcelID, err)
	}
	return p, samples, Found, nil
}

// ParcelDetails returns the parcel's metadata and latest values.
func (s *Service) ParcelDetails(farmerID, parcelID string) (Details, LookupStatus, error) {
	p, samples, status, err := s.lookup(farmerID, parcelID)
	if err != nil || status != Found {
		return Details{}, status, err
	}
	d := Details{Parcel: p}
	if latest, ok := analyze.Latest(samples); ok {
		date := latest.Date
		d.DataDate = &date
		d.Values = make([]MetricValue, len(model.AllMetrics))
		for i, m := range model.AllMetrics {
			v := latest.Value(m)
			d.Values[i] = MetricValue{Metric: m, Value: util.RoundPtr(v, 2), Phrase: interpret.Phrase(m, v)}
		}
	}
	return d, Found, nil
}

// ParcelTrends analyses the parcel's full history and narrates it.
func (s *Service) ParcelTrends(ctx context.Context, farmerID, parcelID string) (TrendReport, LookupStatus, error) {
	p, samples, status, err := s.lookup(farmerID, parcelID)
	if err != nil || status != Found {
		return TrendReport{}, status, err
	}
	res := analyze.Trends(samples)
	return TrendReport{Parcel: p, Result: res, Summary: s.trend.Generate(ctx, p, res)}, Found, nil
}

// ─── Chat replies ─────────────────────────────────────────────────────────────

// DetailsText answers a details request.
func (s *Service) DetailsText(f model.Farmer, parcelID string) string {
	if parcelID == "" {
		return MsgMissingParcelID
	}
	d, status, err := s.ParcelDetails(f.ID, parcelID)
	if err != nil {
		s.log.Error("parcel details", zap.String("parcel", parcelID), zap.Error(err))
		return MsgInternalError
	}
	if status != Found {
		return status.Message(parcelID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Parcel %s - %s\nArea: %s ha\nCrop: %s", d.Parcel.ID, d.Parcel.Name, formatArea(d.Parcel.AreaHa), d.Parcel.Crop)
	if d.DataDate == nil {
		b.WriteString("\nNo measurements yet.")
		return b.String()
	}
	fmt.Fprintf(&b, "\nLatest data (%s):", util.FormatDate(*d.DataDate))
	for _, v := range d.Values {
		fmt.Fprintf(&b, "\n- %s: %s", interpret.Words(v.Metric).Code, util.FormatOptional(v.Value, "n/a"))
		if v.Phrase != "" {
			fmt.Fprintf(&b, " (%s)", v.Phrase)
		}
	}
	return b.String()
}

// StatusText answers a status request: the status narrative of the latest
// sample, followed by the trend sentence when at least two samples exist.
func (s *Service) StatusText(ctx context.Context, f model.Farmer, parcelID string) string {
	if parcelID == "" {
		return MsgMissingParcelID
	}
	p, samples, status, err := s.lookup(f.ID, parcelID)
	if err != nil {
		s.log.Error("parcel status", zap.String("parcel", parcelID), zap.Error(err))
		return MsgInternalError
	}
	if status != Found {
		return status.Message(parcelID)
	}

	var latest *model.MetricSample
	if l, ok := analyze.Latest(samples); ok {
		latest = &l
	}
	text := s.status.Generate(ctx, p, latest)

	if res := analyze.Trends(samples); !res.Insufficient() {
		text += "\n\n" + s.trend.Generate(ctx, p, res)
	}
	return text
}
