// Package assistant is the conversational front door. It links phone numbers
// to farmer accounts, resolves the intent of each message and routes it to
// the parcel lookups, the summary strategies or the report preferences.
//
// Every reply is plain text. Validation problems and missing data come back
// as fixed user-facing messages; store failures are logged and answered
// with a generic apology.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/derickschaefer/agrobot/internal/intent"
	"github.com/derickschaefer/agrobot/internal/messaging"
	"github.com/derickschaefer/agrobot/internal/model"
	"github.com/derickschaefer/agrobot/internal/scheduler"
	"github.com/derickschaefer/agrobot/internal/summary"
)

// Fixed replies.
const (
	MsgWelcome          = "Welcome! Please type your username to link your account."
	MsgUsernameNotFound = "Username not found. Please try again with a valid username."
	MsgAccountTaken     = "This account is already linked. Please try again with a different username."
	MsgAlreadyLinked    = "Your account is already linked to this phone number."
	MsgNoParcels        = "You don't have any parcels registered."
	MsgMissingParcelID  = "Please include a parcel ID in your message (e.g., P1)."
	MsgInvalidFrequency = "Invalid frequency. Please use 'daily', 'weekly', or specify a number of days (e.g., '2 days')."
	MsgInternalError    = "Sorry, something went wrong. Please try again later."
)

// Store is the persistence the assistant needs.
type Store interface {
	PutFarmer(f model.Farmer) error
	FarmerByUsername(username string) (model.Farmer, bool, error)
	FarmerByPhone(phone string) (model.Farmer, bool, error)
	GetParcel(id string) (model.Parcel, bool, error)
	ParcelsByFarmer(farmerID string) ([]model.Parcel, error)
	GetSamples(parcelID string) ([]model.MetricSample, bool, error)
	GetPreference(recipient string) (model.ReportPreference, bool, error)
	PutPreference(p model.ReportPreference) (model.ReportPreference, error)
}

// Service answers chat messages.
type Service struct {
	store   Store
	intents intent.Resolver
	status  summary.StatusStrategy
	trend   summary.TrendStrategy
	log     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithIntents sets the intent resolver.
func WithIntents(r intent.Resolver) Option {
	return func(s *Service) {
		if r != nil {
			s.intents = r
		}
	}
}

// WithStatus sets the status narrative strategy.
func WithStatus(st summary.StatusStrategy) Option {
	return func(s *Service) {
		if st != nil {
			s.status = st
		}
	}
}

// WithTrend sets the trend narrative strategy.
func WithTrend(t summary.TrendStrategy) Option {
	return func(s *Service) {
		if t != nil {
			s.trend = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Service. Strategies not supplied default to the rule-based
// variants.
func New(st Store, opts ...Option) *Service {
	s := &Service{
		store:   st,
		intents: intent.Rules{},
		status:  summary.StatusRules{},
		trend:   summary.TrendRules{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ─── Dispatch ─────────────────────────────────────────────────────────────────

// HandleMessage answers one message from phone. An unlinked sender whose
// message is a single word is treated as a link attempt with that username.
func (s *Service) HandleMessage(ctx context.Context, phone, text string) string {
	phone = messaging.NormalizePhone(phone)
	text = strings.TrimSpace(text)

	farmer, found, err := s.store.FarmerByPhone(phone)
	if err != nil {
		s.log.Error("looking up sender", zap.String("phone", phone), zap.Error(err))
		return MsgInternalError
	}
	if !found {
		if words := strings.Fields(text); len(words) == 1 {
			return s.LinkAccount(phone, words[0])
		}
		return MsgWelcome
	}

	in := s.intents.Classify(ctx, text)
	s.log.Debug("intent resolved",
		zap.String("phone", phone),
		zap.String("intent", string(in)))

	switch in {
	case model.IntentListParcels:
		return s.ListParcels(farmer)
	case model.IntentParcelDetails:
		return s.DetailsText(farmer, intent.ExtractParcelID(text))
	case model.IntentParcelStatus:
		return s.StatusText(ctx, farmer, intent.ExtractParcelID(text))
	case model.IntentSetReportFrequency:
		freq := intent.ExtractFrequency(text)
		if freq == "" {
			return MsgInvalidFrequency
		}
		return s.SetFrequencyPolicy(phone, freq)
	default:
		return greeting(farmer)
	}
}

func greeting(f model.Farmer) string {
	return fmt.Sprintf("Hello %s! Your account is linked. You can now ask about your parcels.\n"+
		"Try \"show my parcels\", \"tell me about P1\", \"how is P1 doing?\" or \"set my report frequency to weekly\".",
		f.Username)
}

// ─── Account linking ──────────────────────────────────────────────────────────

// LinkAccount attaches phone to the farmer with the given username.
func (s *Service) LinkAccount(phone, username string) string {
	phone = messaging.NormalizePhone(phone)
	username = strings.TrimSpace(username)

	existing, found, err := s.store.FarmerByPhone(phone)
	if err != nil {
		s.log.Error("looking up phone", zap.String("phone", phone), zap.Error(err))
		return MsgInternalError
	}
	if found {
		if existing.Username == username {
			return MsgAlreadyLinked
		}
		return fmt.Sprintf("This phone number is already linked to account '%s'.", existing.Username)
	}

	farmer, found, err := s.store.FarmerByUsername(username)
	if err != nil {
		s.log.Error("looking up username", zap.String("username", username), zap.Error(err))
		return MsgInternalError
	}
	if !found {
		return MsgUsernameNotFound
	}
	if farmer.Linked() {
		return MsgAccountTaken
	}

	farmer.Phone = phone
	if err := s.store.PutFarmer(farmer); err != nil {
		s.log.Error("linking account", zap.String("username", username), zap.Error(err))
		return MsgInternalError
	}
	s.log.Info("account linked", zap.String("username", username), zap.String("phone", phone))
	return fmt.Sprintf("Great, your account has been linked to %s. You can now ask about your parcels.", phone)
}

// ─── Report preferences ───────────────────────────────────────────────────────

// SetFrequencyPolicy validates policyText and stores it as the recipient's
// report cadence. An invalid policy leaves any stored preference unchanged.
func (s *Service) SetFrequencyPolicy(recipient, policyText string) string {
	policy, err := scheduler.ParseSettable(policyText)
	if err != nil {
		return MsgInvalidFrequency
	}
	recipient = messaging.NormalizePhone(recipient)

	pref, _, err := s.store.GetPreference(recipient)
	if err != nil {
		s.log.Error("reading preference", zap.String("recipient", recipient), zap.Error(err))
		return MsgInternalError
	}
	pref.Recipient = recipient
	pref.Frequency = policy.String()
	if _, err := s.store.PutPreference(pref); err != nil {
		s.log.Error("saving preference", zap.String("recipient", recipient), zap.Error(err))
		return MsgInternalError
	}
	s.log.Info("report frequency set",
		zap.String("recipient", recipient),
		zap.String("policy", policy.String()))
	return fmt.Sprintf("Your report frequency has been set to %s. You will receive parcel summaries %s.",
		policy.String(), policy.Describe())
}

// GetFrequencyPolicy returns the recipient's stored policy, or "none".
func (s *Service) GetFrequencyPolicy(recipient string) (string, error) {
	pref, found, err := s.store.GetPreference(messaging.NormalizePhone(recipient))
	if err != nil {
		return "", fmt.Errorf("reading preference: %w", err)
	}
	if !found || pref.Frequency == "" {
		return "none", nil
	}
	return pref.Frequency, nil
}

// Farmer returns the farmer linked to phone.
func (s *Service) Farmer(phone string) (model.Farmer, bool, error) {
	return s.store.FarmerByPhone(messaging.NormalizePhone(phone))
}
