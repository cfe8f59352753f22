// Package gymconfig holds the gym's operating configuration document: identity,
// session windows, membership plans, and attendance rules. The document is
// operator-editable and persisted as a single record; callers build an
// effective config once per request instead of scattering fallbacks.
package gymconfig

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultTimezone = "Asia/Kolkata"

// Operating modes.
const (
	ModeSessions   = "sessions"
	ModeContinuous = "continuous"
	Mode24Hours    = "24hours"
)

// Plan is a membership plan offered by the gym. Duration is in calendar days.
// OfferPrice, when non-zero, overrides Price.
type Plan struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Duration   int             `json:"duration" yaml:"duration"`
	Price      decimal.Decimal `json:"price" yaml:"price"`
	OfferPrice decimal.Decimal `json:"offerPrice" yaml:"offer_price"`
}

// Window is a daily time window in "HH:MM" 24-hour strings. A window whose
// start is later than its end crosses midnight.
type Window struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

type Contact struct {
	Phone   string `json:"phone" yaml:"phone"`
	Email   string `json:"email" yaml:"email"`
	Address string `json:"address" yaml:"address"`
}

type SessionWindows struct {
	Morning Window `json:"morning" yaml:"morning"`
	Evening Window `json:"evening" yaml:"evening"`
}

// AttendanceRules uses a pointer for AutoExitEnabled so a stored document
// that omits the field falls back to the default instead of reading as false.
type AttendanceRules struct {
	MaxSessionsPerDay int   `json:"maxSessionsPerDay" yaml:"max_sessions_per_day"`
	AutoExitEnabled   *bool `json:"autoExitEnabled,omitempty" yaml:"auto_exit_enabled,omitempty"`
}

// AutoExit reports whether automatic checkout is enabled. An unset field
// counts as enabled, matching the default document.
func (r AttendanceRules) AutoExit() bool {
	return r.AutoExitEnabled == nil || *r.AutoExitEnabled
}

// Config is the full operating configuration document.
type Config struct {
	Name              string          `json:"name"`
	Tagline           string          `json:"tagline,omitempty"`
	Logo              string          `json:"logo,omitempty"`
	Contact           Contact         `json:"contact"`
	Timezone          string          `json:"timezone"`
	Sessions          SessionWindows  `json:"sessions"`
	ClosingTime       string          `json:"closingTime"`
	Plans             []Plan          `json:"plans"`
	PaymentModes      []string        `json:"paymentModes"`
	MemberStatus      []string        `json:"memberStatus"`
	Attendance        AttendanceRules `json:"attendance"`
	RegNumberPrefix   string          `json:"regNumberPrefix"`
	PhoneRegion       string          `json:"phoneRegion"`
	OperatingMode     string          `json:"operatingMode"`
	ContinuousSession Window          `json:"continuousSession"`
}

// Default returns the hard-coded configuration the gym starts with and the
// field-level fallback for malformed stored documents.
func Default() Config {
	return Config{
		Name:    "Helios Fit Studio",
		Tagline: "Your Strength, Our Mission",
		Logo:    "/logo.png",
		Contact: Contact{
			Phone:   "+91 98765 43210",
			Email:   "info@heliosfitness.com",
			Address: "123 Fitness Street, Gym City",
		},
		Timezone: DefaultTimezone,
		Sessions: SessionWindows{
			Morning: Window{Name: "Morning", Start: "05:00", End: "11:30"},
			Evening: Window{Name: "Evening", Start: "16:00", End: "21:30"},
		},
		ClosingTime: "21:30",
		Plans: []Plan{
			{ID: "monthly", Name: "Monthly", Duration: 30, Price: decimal.NewFromInt(1000)},
			{ID: "quarterly", Name: "Quarterly", Duration: 90, Price: decimal.NewFromInt(2700)},
			{ID: "half-yearly", Name: "Half Yearly", Duration: 180, Price: decimal.NewFromInt(5000)},
			{ID: "yearly", Name: "Yearly", Duration: 365, Price: decimal.NewFromInt(9000)},
			{ID: "custom", Name: "Custom", Duration: 0, Price: decimal.Zero},
		},
		PaymentModes: []string{"Cash", "UPI", "Card", "Bank Transfer"},
		MemberStatus: []string{"Active", "Expired", "Paused"},
		Attendance: AttendanceRules{
			MaxSessionsPerDay: 2,
			AutoExitEnabled:   boolPtr(true),
		},
		RegNumberPrefix:   "HF",
		PhoneRegion:       "IN",
		OperatingMode:     ModeSessions,
		ContinuousSession: Window{Start: "06:00", End: "22:00"},
	}
}

// Effective merges a stored document over the defaults field by field and
// returns a complete config. A nil stored document yields the defaults.
func Effective(stored *Config) Config {
	cfg := Default()
	if stored == nil {
		return cfg
	}

	if s := strings.TrimSpace(stored.Name); s != "" {
		cfg.Name = s
	}
	if s := strings.TrimSpace(stored.Tagline); s != "" {
		cfg.Tagline = s
	}
	if s := strings.TrimSpace(stored.Logo); s != "" {
		cfg.Logo = s
	}
	if s := strings.TrimSpace(stored.Contact.Phone); s != "" {
		cfg.Contact.Phone = s
	}
	if s := strings.TrimSpace(stored.Contact.Email); s != "" {
		cfg.Contact.Email = s
	}
	if s := strings.TrimSpace(stored.Contact.Address); s != "" {
		cfg.Contact.Address = s
	}
	if s := strings.TrimSpace(stored.Timezone); s != "" {
		cfg.Timezone = s
	}
	cfg.Sessions.Morning = mergeWindow(stored.Sessions.Morning, cfg.Sessions.Morning)
	cfg.Sessions.Evening = mergeWindow(stored.Sessions.Evening, cfg.Sessions.Evening)
	cfg.ContinuousSession = mergeWindow(stored.ContinuousSession, cfg.ContinuousSession)
	if s := strings.TrimSpace(stored.ClosingTime); s != "" {
		cfg.ClosingTime = s
	}
	if len(stored.Plans) > 0 {
		cfg.Plans = stored.Plans
	}
	if len(stored.PaymentModes) > 0 {
		cfg.PaymentModes = stored.PaymentModes
	}
	if len(stored.MemberStatus) > 0 {
		cfg.MemberStatus = stored.MemberStatus
	}
	if stored.Attendance.MaxSessionsPerDay >= 1 {
		cfg.Attendance.MaxSessionsPerDay = stored.Attendance.MaxSessionsPerDay
	}
	if stored.Attendance.AutoExitEnabled != nil {
		cfg.Attendance.AutoExitEnabled = stored.Attendance.AutoExitEnabled
	}
	if s := strings.TrimSpace(stored.RegNumberPrefix); s != "" {
		cfg.RegNumberPrefix = s
	}
	if s := strings.TrimSpace(stored.PhoneRegion); s != "" {
		cfg.PhoneRegion = strings.ToUpper(s)
	}
	switch strings.TrimSpace(stored.OperatingMode) {
	case ModeSessions, ModeContinuous, Mode24Hours:
		cfg.OperatingMode = strings.TrimSpace(stored.OperatingMode)
	}

	return cfg
}

func boolPtr(b bool) *bool {
	return &b
}

func mergeWindow(stored, fallback Window) Window {
	merged := fallback
	if s := strings.TrimSpace(stored.Name); s != "" {
		merged.Name = s
	}
	if s := strings.TrimSpace(stored.Start); s != "" {
		merged.Start = s
	}
	if s := strings.TrimSpace(stored.End); s != "" {
		merged.End = s
	}
	return merged
}

// PlanByID looks up a configured plan. The second return reports whether the
// plan exists.
func (c Config) PlanByID(id string) (Plan, bool) {
	for _, plan := range c.Plans {
		if plan.ID == id {
			return plan, true
		}
	}
	return Plan{}, false
}

// HasPaymentMode reports whether mode is one of the configured payment modes.
func (c Config) HasPaymentMode(mode string) bool {
	for _, m := range c.PaymentModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Location resolves the configured timezone, falling back to the default and
// finally to UTC rather than failing.
func (c Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}
