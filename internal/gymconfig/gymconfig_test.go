package gymconfig

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffective_NilStoredYieldsDefaults(t *testing.T) {
	cfg := Effective(nil)
	assert.Equal(t, Default(), cfg)
}

func TestEffective_StoredOverridesFieldByField(t *testing.T) {
	stored := &Config{
		Name:     "Iron Works",
		Timezone: "Asia/Dubai",
		Sessions: SessionWindows{
			Morning: Window{Start: "06:00"},
		},
		Attendance:  AttendanceRules{MaxSessionsPerDay: 3, AutoExitEnabled: boolPtr(false)},
		PhoneRegion: "gb",
	}

	cfg := Effective(stored)

	assert.Equal(t, "Iron Works", cfg.Name)
	assert.Equal(t, "Asia/Dubai", cfg.Timezone)
	assert.Equal(t, "06:00", cfg.Sessions.Morning.Start)
	assert.Equal(t, "11:30", cfg.Sessions.Morning.End, "unset window fields keep the default")
	assert.Equal(t, 3, cfg.Attendance.MaxSessionsPerDay)
	assert.False(t, cfg.Attendance.AutoExit())
	assert.Equal(t, "GB", cfg.PhoneRegion)

	// Untouched fields come from the defaults.
	assert.Equal(t, Default().Contact.Email, cfg.Contact.Email)
	assert.Len(t, cfg.Plans, len(Default().Plans))
}

func TestEffective_OmittedAutoExitKeepsDefault(t *testing.T) {
	// A document written before the field existed must not read as disabled.
	var stored Config
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Iron Works","attendance":{"maxSessionsPerDay":3}}`), &stored))

	cfg := Effective(&stored)

	assert.True(t, cfg.Attendance.AutoExit())
	assert.Equal(t, 3, cfg.Attendance.MaxSessionsPerDay)

	// The round trip through the stored form keeps it enabled too.
	doc, err := json.Marshal(cfg)
	require.NoError(t, err)
	var reread Config
	require.NoError(t, json.Unmarshal(doc, &reread))
	assert.True(t, Effective(&reread).Attendance.AutoExit())
}

func TestEffective_BlankAndInvalidValuesIgnored(t *testing.T) {
	stored := &Config{
		Name:          "   ",
		OperatingMode: "weekends-only",
		Attendance:    AttendanceRules{MaxSessionsPerDay: 0},
	}

	cfg := Effective(stored)

	assert.Equal(t, Default().Name, cfg.Name)
	assert.Equal(t, ModeSessions, cfg.OperatingMode, "unknown mode falls back")
	assert.Equal(t, Default().Attendance.MaxSessionsPerDay, cfg.Attendance.MaxSessionsPerDay)
}

func TestEffective_StoredPlansReplaceDefaults(t *testing.T) {
	stored := &Config{
		Plans: []Plan{{ID: "weekly", Name: "Weekly", Duration: 7, Price: decimal.NewFromInt(300)}},
	}

	cfg := Effective(stored)

	assert.Len(t, cfg.Plans, 1)
	plan, ok := cfg.PlanByID("weekly")
	assert.True(t, ok)
	assert.Equal(t, 7, plan.Duration)

	_, ok = cfg.PlanByID("monthly")
	assert.False(t, ok)
}

func TestHasPaymentMode(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.HasPaymentMode("Cash"))
	assert.True(t, cfg.HasPaymentMode("UPI"))
	assert.False(t, cfg.HasPaymentMode("cash"), "modes are case sensitive")
	assert.False(t, cfg.HasPaymentMode("Cheque"))
}

func TestLocation_FallsBackOnBadTimezone(t *testing.T) {
	cfg := Default()
	cfg.Timezone = "Mars/Olympus"

	loc := cfg.Location()
	assert.Equal(t, DefaultTimezone, loc.String())
}
