// Package scheduler decides which recipients are due a report under their
// frequency policy and assembles the report payloads.
//
// A run reads every linked farmer's preference, builds one payload per due
// recipient and advances that recipient's last-sent date to today. Recipients
// that are not due are never written. Overlapping runs are collapsed into
// one with a single-flight guard, so a recipient cannot be processed twice
// by concurrent triggers.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/derickschaefer/agrobot/internal/analyze"
	"github.com/derickschaefer/agrobot/internal/interpret"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/summary"
	"github.com/derickschaefer/agrobot/internal/util"
)

// Store is the persistence the scheduler needs.
type Store interface {
	ListFarmers() ([]model.Farmer, error)
	ParcelsByFarmer(farmerID string) ([]model.Parcel, error)
	GetSamples(parcelID string) ([]model.MetricSample, bool, error)
	GetPreference(recipient string) (model.ReportPreference, bool, error)
	PutPreference(p model.ReportPreference) (model.ReportPreference, error)
}

// ─── Payload ──────────────────────────────────────────────────────────────────

// Payload is the report for one recipient.
type Payload struct {
	ID          string         `json:"id"`
	Recipient   string         `json:"recipient"`
	FarmerID    string         `json:"farmer_id"`
	FarmerName  string         `json:"farmer_name"`
	Policy      string         `json:"policy"`
	GeneratedAt time.Time      `json:"generated_at"`
	Parcels     []ParcelReport `json:"parcels"`
}

// ParcelReport is one parcel's entry in a payload.
type ParcelReport struct {
	ParcelID   string         `json:"parcel_id"`
	Name       string         `json:"name"`
	Crop       string         `json:"crop"`
	AreaHa     float64        `json:"area_ha"`
	MeasuredOn *time.Time     `json:"measured_on"` // nil when the parcel has no samples
	Metrics    []MetricReport `json:"metrics"`
	Overall    summary.Rating `json:"overall,omitempty"`
	Summary    string         `json:"summary"`
}

// MetricReport is one metric of a parcel's latest sample. Value is rounded
// to two decimals and nil when absent.
type MetricReport struct {
	Metric   model.Metric `json:"metric"`
	Value    *float64     `json:"value"`
	Category string       `json:"category"`
}

// ─── Scheduler ────────────────────────────────────────────────────────────────

// Scheduler runs report cycles.
type Scheduler struct {
	store  Store
	status summary.StatusStrategy
	log    *zap.Logger
	now    func() time.Time
	group  singleflight.Group
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Scheduler. status narrates each parcel; nil selects the
// rule-based narrative.
func New(st Store, status summary.StatusStrategy, opts ...Option) *Scheduler {
	if status == nil {
		status = summary.StatusRules{}
	}
	s := &Scheduler{
		store:  st,
		status: status,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one cycle and returns the payloads of every due recipient.
// A failure for one recipient is logged and collected; the others are still
// processed. The returned error, when non-nil, is a *util.MultiError
// alongside the payloads that did succeed.
//
// Overlapping calls share one cycle. Only the caller that started it
// receives the payloads; callers that joined get an empty slice, so each
// report is handed out for delivery once. The cycle ignores cancellation
// of ctx so that one caller going away cannot abort the run for the
// others.
func (s *Scheduler) Run(ctx context.Context) ([]Payload, error) {
	runCtx := context.WithoutCancel(ctx)
	started := false
	v, err, _ := s.group.Do("run", func() (interface{}, error) {
		started = true
		return s.cycle(runCtx, true)
	})
	if !started {
		s.log.Debug("joined an in-flight report run")
		return []Payload{}, nil
	}
	payloads, _ := v.([]Payload)
	return payloads, err
}

// Preview builds the payloads a run would produce without recording them
// as sent.
func (s *Scheduler) Preview(ctx context.Context) ([]Payload, error) {
	return s.cycle(ctx, false)
}

func (s *Scheduler) cycle(ctx context.Context, commit bool) ([]Payload, error) {
	start := s.now()
	today := util.Day(start)

	farmers, err := s.store.ListFarmers()
	if err != nil {
		return nil, fmt.Errorf("listing farmers: %w", err)
	}

	payloads := []Payload{}
	var errs util.MultiError
	skipped := 0

	for _, f := range farmers {
		if err := ctx.Err(); err != nil {
			errs.Add(err)
			break
		}
		if !f.Linked() {
			continue
		}
		pref, found, err := s.store.GetPreference(f.Phone)
		if err != nil {
			s.log.Error("reading preference", zap.String("recipient", f.Phone), zap.Error(err))
			errs.Add(fmt.Errorf("%s: reading preference: %w", f.Phone, err))
			continue
		}
		if !found {
			skipped++
			continue
		}
		if !IsDue(pref.Frequency, pref.LastSent, today) {
			s.log.Debug("not due",
				zap.String("recipient", f.Phone),
				zap.String("policy", pref.Frequency))
			skipped++
			continue
		}

		p, err := s.build(ctx, f, pref, start)
		if err != nil {
			s.log.Error("building report", zap.String("recipient", f.Phone), zap.Error(err))
			errs.Add(fmt.Errorf("%s: %w", f.Phone, err))
			continue
		}

		if commit {
			sent := today
			pref.LastSent = &sent
			if _, err := s.store.PutPreference(pref); err != nil {
				s.log.Error("recording last sent", zap.String("recipient", f.Phone), zap.Error(err))
				errs.Add(fmt.Errorf("%s: recording last sent: %w", f.Phone, err))
				continue
			}
		}
		s.log.Debug("report built",
			zap.String("recipient", f.Phone),
			zap.Int("parcels", len(p.Parcels)))
		payloads = append(payloads, p)
	}

	s.log.Info("report cycle complete",
		zap.Bool("commit", commit),
		zap.Int("due", len(payloads)),
		zap.Int("skipped", skipped),
		zap.Int("failed", len(errs.Errors)),
		zap.Duration("took", s.now().Sub(start)))

	return payloads, errs.Err()
}

func (s *Scheduler) build(ctx context.Context, f model.Farmer, pref model.ReportPreference, now time.Time) (Payload, error) {
	parcels, err := s.store.ParcelsByFarmer(f.ID)
	if err != nil {
		return Payload{}, fmt.Errorf("listing parcels: %w", err)
	}

	p := Payload{
		ID:          uuid.NewString(),
		Recipient:   f.Phone,
		FarmerID:    f.ID,
		FarmerName:  f.Name,
		Policy:      pref.Frequency,
		GeneratedAt: now.UTC(),
		Parcels:     make([]ParcelReport, 0, len(parcels)),
	}
	for _, parcel := range parcels {
		samples, _, err := s.store.GetSamples(parcel.ID)
		if err != nil {
			return Payload{}, fmt.Errorf("reading samples for %s: %w", parcel.ID, err)
		}
		p.Parcels = append(p.Parcels, s.parcelReport(ctx, parcel, samples))
	}
	return p, nil
}

func (s *Scheduler) parcelReport(ctx context.Context, parcel model.Parcel, samples []model.MetricSample) ParcelReport {
	r := ParcelReport{
		ParcelID: parcel.ID,
		Name:     parcel.Name,
		Crop:     parcel.Crop,
		AreaHa:   parcel.AreaHa,
		Metrics:  make([]MetricReport, 0, len(model.AllMetrics)),
	}

	latest, ok := analyze.Latest(samples)
	var latestPtr *model.MetricSample
	if ok {
		latestPtr = &latest
		measured := latest.Date
		r.MeasuredOn = &measured
		r.Overall = summary.Assess(latest).Overall
	}

	for _, m := range model.AllMetrics {
		var v *float64
		if ok {
			v = latest.Value(m)
		}
		r.Metrics = append(r.Metrics, MetricReport{
			Metric:   m,
			Value:    util.RoundPtr(v, 2),
			Category: interpret.Category(m, v),
		})
	}
	r.Summary = s.status.Generate(ctx, parcel, latestPtr)
	return r
}

// Loop runs a cycle every interval until ctx is done, handing each cycle's
// payloads to handle. The first cycle runs immediately.
func (s *Scheduler) Loop(ctx context.Context, interval time.Duration, handle func(context.Context, []Payload)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		payloads, err := s.Run(ctx)
		if err != nil {
			s.log.Warn("report cycle had failures", zap.Error(err))
		}
		if len(payloads) > 0 && handle != nil {
			handle(ctx, payloads)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
