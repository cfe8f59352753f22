// Package dashboard aggregates the stats the admin dashboard shows.
package dashboard

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/heliosfit/gymdesk/internal/api/apiutil"
	"github.com/heliosfit/gymdesk/internal/gymconfig"
	"github.com/heliosfit/gymdesk/internal/sessions"
	"github.com/heliosfit/gymdesk/internal/store"
)

const (
	priorityLookbackDays = 30
	priorityListLimit    = 10
	expiringAheadDays    = 14
	expiringListLimit    = 15
)

var queries *store.Queries

// Init wires the package with the query layer.
func Init(q *store.Queries) {
	queries = q
}

type memberStats struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Expired int64 `json:"expired"`
	Paused  int64 `json:"paused"`
}

type alertStats struct {
	ExpiringThisWeek int64 `json:"expiringThisWeek"`
	PendingPayments  int64 `json:"pendingPayments"`
}

type attendanceStats struct {
	Today          int64 `json:"today"`
	CurrentlyInGym int64 `json:"currentlyInGym"`
}

type revenueStats struct {
	ThisMonth         decimal.Decimal `json:"thisMonth"`
	PaymentsThisMonth int64           `json:"paymentsThisMonth"`
}

type stats struct {
	Members      memberStats     `json:"members"`
	Alerts       alertStats      `json:"alerts"`
	Attendance   attendanceStats `json:"attendance"`
	Revenue      revenueStats    `json:"revenue"`
	PriorityList []store.Member  `json:"priorityList"`
	ExpiringList []store.Member  `json:"expiringList"`
}

// HandleStats computes the dashboard aggregation in the gym timezone.
func HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	gymCfg, err := gymconfig.Load(ctx, queries)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Falling back to default gym config")
	}

	loc := gymCfg.Location()
	now := time.Now().In(loc)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	weekEnd := todayStart.AddDate(0, 0, 7)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, 0)
	day := sessions.DayKey(now, loc)

	var (
		out     stats
		loadErr error
	)
	count := func(v int64, err error) int64 {
		if err != nil && loadErr == nil {
			loadErr = err
		}
		return v
	}

	out.Members.Total = count(queries.CountMembers(ctx, "", ""))
	out.Members.Active = count(queries.CountMembersByStatus(ctx, "Active"))
	out.Members.Expired = count(queries.CountMembersByStatus(ctx, "Expired"))
	out.Members.Paused = count(queries.CountMembersByStatus(ctx, "Paused"))
	out.Alerts.ExpiringThisWeek = count(queries.CountMembersExpiringBetween(ctx, todayStart, weekEnd))
	out.Alerts.PendingPayments = count(queries.CountMembersWithBalance(ctx))
	out.Attendance.Today = count(queries.CountAttendanceForDay(ctx, day))
	out.Attendance.CurrentlyInGym = count(queries.CountOpenAttendanceForDay(ctx, day))

	revenue, err := queries.RevenueBetween(ctx, monthStart, monthEnd)
	if err != nil && loadErr == nil {
		loadErr = err
	}
	out.Revenue.ThisMonth = revenue.Total
	out.Revenue.PaymentsThisMonth = revenue.Count

	out.PriorityList, err = queries.ListRenewalPriorityMembers(ctx,
		todayStart.AddDate(0, 0, -priorityLookbackDays), weekEnd, priorityListLimit)
	if err != nil && loadErr == nil {
		loadErr = err
	}
	out.ExpiringList, err = queries.ListExpiringMembers(ctx,
		todayStart, todayStart.AddDate(0, 0, expiringAheadDays), expiringListLimit)
	if err != nil && loadErr == nil {
		loadErr = err
	}

	if loadErr != nil {
		log.Ctx(ctx).Error().Err(loadErr).Msg("Failed to compute dashboard stats")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch dashboard stats")
		return
	}

	apiutil.RespondData(w, http.StatusOK, out)
}
