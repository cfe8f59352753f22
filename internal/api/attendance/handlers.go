// Package attendance serves the public kiosk check-in endpoint and the
// authenticated attendance views.
package attendance

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/heliosfit/gymdesk/internal/api/apiutil"
	"github.com/heliosfit/gymdesk/internal/config"
	"github.com/heliosfit/gymdesk/internal/gymconfig"
	"github.com/heliosfit/gymdesk/internal/ratelimit"
	"github.com/heliosfit/gymdesk/internal/sessions"
	"github.com/heliosfit/gymdesk/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var (
	queries    *store.Queries
	limiter    *ratelimit.Limiter
	trustProxy bool
)

// Init wires the package with the query layer and the kiosk rate limiter.
func Init(cfg *config.Config, q *store.Queries, l *ratelimit.Limiter) {
	queries = q
	limiter = l
	trustProxy = cfg != nil && cfg.App.TrustProxy
}

type markRequest struct {
	RegistrationNumber string `json:"registrationNumber"`
}

// markResult is the kiosk payload. The kiosk branches on Action.
type markResult struct {
	Action       string     `json:"action"`
	Message      string     `json:"message,omitempty"`
	MemberName   string     `json:"memberName,omitempty"`
	Session      string     `json:"session,omitempty"`
	IsExpired    bool       `json:"isExpired,omitempty"`
	CheckInTime  *time.Time `json:"checkInTime,omitempty"`
	CheckOutTime *time.Time `json:"checkOutTime,omitempty"`
}

type closedResult struct {
	Action        string                   `json:"action"`
	Sessions      gymconfig.SessionWindows `json:"sessions"`
	OperatingMode string                   `json:"operatingMode"`
}

// HandleMark is the public kiosk endpoint. A member scans or types their
// registration number; the handler decides between check-in, check-out, an
// already-completed session, or a rejection.
func HandleMark(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientIP := ratelimit.GetClientIP(r, trustProxy)
	if res := limiter.Allow(clientIP); !res.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
		apiutil.RespondError(w, http.StatusTooManyRequests, "Too many requests. Please wait.")
		return
	}

	var req markRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RegistrationNumber == "" {
		apiutil.RespondError(w, http.StatusBadRequest, "Registration number is required")
		return
	}

	gymCfg, err := gymconfig.Load(ctx, queries)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Falling back to default gym config")
	}

	loc := gymCfg.Location()
	now := time.Now().In(loc)

	session := sessions.Resolve(gymCfg, now)
	if session == sessions.None {
		apiutil.RespondRejection(w, http.StatusBadRequest,
			"Gym is currently closed. Please come during session hours.",
			closedResult{
				Action:        "closed",
				Sessions:      gymCfg.Sessions,
				OperatingMode: gymCfg.OperatingMode,
			})
		return
	}

	member, err := queries.GetMemberByRegistrationNumber(ctx, req.RegistrationNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.RespondError(w, http.StatusNotFound,
				"Member not found. Please check your registration number.")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("Failed to look up member for kiosk")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to mark attendance. Please try again.")
		return
	}

	if member.Status == "Paused" {
		apiutil.RespondRejection(w, http.StatusBadRequest,
			"Your membership is paused. Please contact the gym.",
			markResult{Action: "rejected", MemberName: member.FullName})
		return
	}

	expired := member.Status == "Expired" ||
		(member.MembershipExpiryDate != nil && member.MembershipExpiryDate.Before(now))
	if expired {
		apiutil.RespondRejection(w, http.StatusBadRequest,
			"Your membership has expired. Please renew to continue.",
			markResult{Action: "rejected", MemberName: member.FullName, IsExpired: true})
		return
	}

	day := sessions.DayKey(now, loc)
	todayRecords, err := queries.ListMemberAttendanceForDay(ctx, member.ID, day)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to load attendance records")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to mark attendance. Please try again.")
		return
	}

	sessionName := session.DisplayName(gymCfg)

	var current *store.Attendance
	for i := range todayRecords {
		if todayRecords[i].Session == string(session) {
			current = &todayRecords[i]
			break
		}
	}

	switch {
	case current != nil && current.CheckOutTime != nil:
		apiutil.RespondRejection(w, http.StatusOK,
			fmt.Sprintf("You have already completed your %s session.", sessionName),
			markResult{
				Action:     "completed",
				MemberName: member.FullName,
				Session:    string(session),
			})

	case current != nil:
		checkOut := time.Now()
		if err := queries.SetCheckOut(ctx, current.ID, checkOut, false); err != nil {
			log.Ctx(ctx).Error().Err(err).Int64("attendance_id", current.ID).Msg("Failed to record check-out")
			apiutil.RespondError(w, http.StatusInternalServerError, "Failed to mark attendance. Please try again.")
			return
		}
		apiutil.RespondData(w, http.StatusOK, markResult{
			Action:       "checkout",
			Message:      fmt.Sprintf("Goodbye, %s! Checked out from %s session.", member.FullName, sessionName),
			MemberName:   member.FullName,
			Session:      string(session),
			CheckOutTime: &checkOut,
		})

	default:
		// Each record is one unique session, so the record count is the
		// session count.
		if len(todayRecords) >= gymCfg.Attendance.MaxSessionsPerDay {
			apiutil.RespondRejection(w, http.StatusOK,
				fmt.Sprintf("You have reached the maximum %d sessions for today.",
					gymCfg.Attendance.MaxSessionsPerDay),
				markResult{Action: "limit_reached", MemberName: member.FullName})
			return
		}

		record, err := queries.CreateAttendance(ctx, store.CreateAttendanceParams{
			MemberID:    member.ID,
			Day:         day,
			Session:     string(session),
			CheckInTime: time.Now(),
		})
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Int64("member_id", member.ID).Msg("Failed to record check-in")
			apiutil.RespondError(w, http.StatusInternalServerError, "Failed to mark attendance. Please try again.")
			return
		}
		apiutil.RespondData(w, http.StatusOK, markResult{
			Action:      "checkin",
			Message:     fmt.Sprintf("Welcome, %s! Checked in for %s session.", member.FullName, sessionName),
			MemberName:  member.FullName,
			Session:     string(session),
			CheckInTime: &record.CheckInTime,
		})
	}
}

// HandleList returns attendance records filtered by day and member.
func HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, limit := apiutil.ParsePage(r.URL.Query().Get("page"), r.URL.Query().Get("limit"),
		defaultListLimit, maxListLimit)

	params := store.ListAttendanceParams{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if raw := r.URL.Query().Get("date"); raw != "" {
		day, err := apiutil.ParseDateField(raw, "date")
		if err != nil {
			apiutil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		params.Day = day.Format("2006-01-02")
	}
	if raw := r.URL.Query().Get("memberId"); raw != "" {
		id, err := apiutil.ParsePositiveInt64Field(raw, "memberId")
		if err != nil {
			apiutil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		params.MemberID = &id
	}

	records, err := queries.ListAttendance(ctx, params)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to list attendance")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch attendance")
		return
	}
	total, err := queries.CountAttendance(ctx, params)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to count attendance")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch attendance")
		return
	}

	apiutil.RespondList(w, http.StatusOK, records, apiutil.NewPagination(page, limit, total))
}

// HandleCurrent returns today's open check-ins, i.e. members currently in the
// gym.
func HandleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	gymCfg, err := gymconfig.Load(ctx, queries)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Falling back to default gym config")
	}
	loc := gymCfg.Location()
	day := sessions.DayKey(time.Now(), loc)

	records, err := queries.ListOpenAttendanceForDay(ctx, day)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to list open attendance")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch current attendance")
		return
	}

	apiutil.RespondData(w, http.StatusOK, map[string]any{
		"day":     day,
		"count":   len(records),
		"records": records,
	})
}
