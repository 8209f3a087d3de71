package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/derickschaefer/agrobot/internal/util"
)

// PolicyKind is the shape of a frequency policy.
type PolicyKind int

const (
	PolicyNone PolicyKind = iota
	PolicyDaily
	PolicyWeekly
	PolicyEveryNDays
)

// Policy is a parsed frequency policy: none, daily, weekly or every N days.
type Policy struct {
	Kind PolicyKind
	Days int // only for PolicyEveryNDays
}

// ErrInvalidPolicy is returned for strings that are not a frequency policy.
var ErrInvalidPolicy = errors.New("invalid frequency policy")

var nDaysRe = regexp.MustCompile(`^(\d+) days?$`)

// ParsePolicy parses none, daily, weekly or "<N> days" with N >= 1.
// Input is trimmed and lower-cased first.
func ParsePolicy(s string) (Policy, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch norm {
	case "none":
		return Policy{Kind: PolicyNone}, nil
	case "daily":
		return Policy{Kind: PolicyDaily}, nil
	case "weekly":
		return Policy{Kind: PolicyWeekly}, nil
	}
	m := nDaysRe.FindStringSubmatch(norm)
	if m == nil {
		return Policy{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return Policy{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
	return Policy{Kind: PolicyEveryNDays, Days: n}, nil
}

// ParseSettable parses a policy a recipient may choose: daily, weekly or
// "<N> days". "none" is the absence of a preference, not a setting.
func ParseSettable(s string) (Policy, error) {
	p, err := ParsePolicy(s)
	if err != nil {
		return Policy{}, err
	}
	if p.Kind == PolicyNone {
		return Policy{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
	return p, nil
}

// String returns the canonical label stored in a ReportPreference.
func (p Policy) String() string {
	switch p.Kind {
	case PolicyDaily:
		return "daily"
	case PolicyWeekly:
		return "weekly"
	case PolicyEveryNDays:
		return strconv.Itoa(p.Days) + " days"
	default:
		return "none"
	}
}

// Describe returns a phrase for user-facing confirmations.
func (p Policy) Describe() string {
	switch p.Kind {
	case PolicyDaily:
		return "every day"
	case PolicyWeekly:
		return "every week"
	case PolicyEveryNDays:
		if p.Days == 1 {
			return "every day"
		}
		return fmt.Sprintf("every %d days", p.Days)
	default:
		return "never"
	}
}

// Interval returns the minimum number of whole days between reports, or 0
// for none.
func (p Policy) Interval() int {
	switch p.Kind {
	case PolicyDaily:
		return 1
	case PolicyWeekly:
		return 7
	case PolicyEveryNDays:
		return p.Days
	default:
		return 0
	}
}

// Due reports whether a recipient with this policy should get a report on
// today's calendar day. A recipient never sent a report is due unless the
// policy is none. Comparison is in whole calendar days, so a daily
// recipient already served today is not due again until tomorrow.
func (p Policy) Due(lastSent *time.Time, today time.Time) bool {
	interval := p.Interval()
	if interval == 0 {
		return false
	}
	if lastSent == nil {
		return true
	}
	return util.DaysBetween(*lastSent, today) >= interval
}

// IsDue parses policy and evaluates Due. Unparsable policies are never due.
func IsDue(policy string, lastSent *time.Time, today time.Time) bool {
	p, err := ParsePolicy(policy)
	if err != nil {
		return false
	}
	return p.Due(lastSent, today)
}
