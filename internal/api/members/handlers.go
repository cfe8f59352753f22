// Package members implements the member CRUD endpoints and the public kiosk
// lookup.
package members

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog/log"

	"github.com/heliosfit/gymdesk/internal/api/apiutil"
	"github.com/heliosfit/gymdesk/internal/gymconfig"
	"github.com/heliosfit/gymdesk/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	recentPaymentsLimit   = 10
	recentAttendanceLimit = 30
)

var queries *store.Queries

// Init wires the package with the query layer.
func Init(q *store.Queries) {
	queries = q
}

// phoneRegion is the configured region for numbers entered without a country
// code.
func phoneRegion(ctx context.Context) string {
	gymCfg, err := gymconfig.Load(ctx, queries)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Falling back to default gym config")
	}
	return gymCfg.PhoneRegion
}

// normalizePhone validates a phone number against the region and returns its
// E.164 form.
func normalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return "", errors.New("invalid phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// HandleList returns members with search, status filter, sort, and pagination.
func HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page, limit := apiutil.ParsePage(q.Get("page"), q.Get("limit"), defaultListLimit, maxListLimit)
	search := strings.TrimSpace(q.Get("search"))
	status := strings.TrimSpace(q.Get("status"))

	members, err := queries.ListMembers(ctx, store.ListMembersParams{
		Search:    search,
		Status:    status,
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
		Limit:     limit,
		Offset:    (page - 1) * limit,
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to list members")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch members")
		return
	}
	total, err := queries.CountMembers(ctx, search, status)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to count members")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch members")
		return
	}

	apiutil.RespondList(w, http.StatusOK, members, apiutil.NewPagination(page, limit, total))
}

type createRequest struct {
	FullName           string `json:"fullName"`
	Phone              string `json:"phone"`
	Address            string `json:"address"`
	RegistrationNumber string `json:"registrationNumber"`
	JoinDate           string `json:"joinDate,omitempty"`
	MembershipPlan     string `json:"membershipPlan,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

// HandleCreate registers a new member.
func HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.Address = strings.TrimSpace(req.Address)
	req.RegistrationNumber = strings.ToUpper(strings.TrimSpace(req.RegistrationNumber))
	if req.FullName == "" || req.Phone == "" || req.Address == "" || req.RegistrationNumber == "" {
		apiutil.RespondError(w, http.StatusBadRequest,
			"Full name, phone, address and registration number are required")
		return
	}

	phone, err := normalizePhone(req.Phone, phoneRegion(ctx))
	if err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, "Invalid phone number")
		return
	}

	if _, err := queries.GetMemberByPhone(ctx, phone); err == nil {
		apiutil.RespondError(w, http.StatusBadRequest, "A member with this phone number already exists")
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to check duplicate phone")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to create member")
		return
	}
	if _, err := queries.GetMemberByRegistrationNumber(ctx, req.RegistrationNumber); err == nil {
		apiutil.RespondError(w, http.StatusBadRequest,
			"A member with this registration number already exists")
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to check duplicate registration number")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to create member")
		return
	}

	joinDate := time.Now()
	if req.JoinDate != "" {
		joinDate, err = apiutil.ParseDateField(req.JoinDate, "joinDate")
		if err != nil {
			apiutil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	plan := req.MembershipPlan
	if plan == "" {
		plan = "monthly"
	}

	member, err := queries.CreateMember(ctx, store.CreateMemberParams{
		FullName:           req.FullName,
		Phone:              phone,
		Address:            req.Address,
		RegistrationNumber: req.RegistrationNumber,
		JoinDate:           joinDate,
		MembershipPlan:     plan,
		Notes:              req.Notes,
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to create member")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to create member")
		return
	}

	apiutil.RespondData(w, http.StatusCreated, member)
}

// HandleGet returns a member with recent payments and attendance.
func HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "id")
	if err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	member, err := queries.GetMemberByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.RespondError(w, http.StatusNotFound, "Member not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("Failed to load member")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch member")
		return
	}

	payments, err := queries.ListRecentPaymentsForMember(ctx, id, recentPaymentsLimit)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to load member payments")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch member")
		return
	}
	attendance, err := queries.ListRecentAttendanceForMember(ctx, id, recentAttendanceLimit)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to load member attendance")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch member")
		return
	}

	apiutil.RespondData(w, http.StatusOK, map[string]any{
		"member":     member,
		"payments":   payments,
		"attendance": attendance,
	})
}

type updateRequest struct {
	FullName       *string `json:"fullName,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Address        *string `json:"address,omitempty"`
	Status         *string `json:"status,omitempty"`
	MembershipPlan *string `json:"membershipPlan,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// HandleUpdate modifies the fields present in the request body.
func HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "id")
	if err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	member, err := queries.GetMemberByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.RespondError(w, http.StatusNotFound, "Member not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("Failed to load member")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to update member")
		return
	}

	params := store.UpdateMemberParams{
		ID:             member.ID,
		FullName:       member.FullName,
		Phone:          member.Phone,
		Address:        member.Address,
		Status:         member.Status,
		MembershipPlan: member.MembershipPlan,
		Notes:          member.Notes,
	}

	if req.FullName != nil {
		params.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		phone, err := normalizePhone(*req.Phone, phoneRegion(ctx))
		if err != nil {
			apiutil.RespondError(w, http.StatusBadRequest, "Invalid phone number")
			return
		}
		if other, err := queries.GetMemberByPhone(ctx, phone); err == nil && other.ID != member.ID {
			apiutil.RespondError(w, http.StatusBadRequest,
				"A member with this phone number already exists")
			return
		} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to check duplicate phone")
			apiutil.RespondError(w, http.StatusInternalServerError, "Failed to update member")
			return
		}
		params.Phone = phone
	}
	if req.Address != nil {
		params.Address = strings.TrimSpace(*req.Address)
	}
	if req.Status != nil {
		gymCfg, err := gymconfig.Load(ctx, queries)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("Falling back to default gym config")
		}
		valid := false
		for _, s := range gymCfg.MemberStatus {
			if s == *req.Status {
				valid = true
				break
			}
		}
		if !valid {
			apiutil.RespondError(w, http.StatusBadRequest, "Invalid member status")
			return
		}
		params.Status = *req.Status
	}
	if req.MembershipPlan != nil {
		params.MembershipPlan = *req.MembershipPlan
	}
	if req.Notes != nil {
		params.Notes = *req.Notes
	}

	updated, err := queries.UpdateMember(ctx, params)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("member_id", id).Msg("Failed to update member")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to update member")
		return
	}

	apiutil.RespondData(w, http.StatusOK, updated)
}

// HandleDelete removes a member and their attendance records. Payments are
// kept for financial records.
func HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "id")
	if err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := queries.DeleteAttendanceForMember(ctx, id); err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("member_id", id).Msg("Failed to delete attendance records")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to delete member")
		return
	}

	affected, err := queries.DeleteMember(ctx, id)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("member_id", id).Msg("Failed to delete member")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to delete member")
		return
	}
	if affected == 0 {
		apiutil.RespondError(w, http.StatusNotFound, "Member not found")
		return
	}

	apiutil.RespondData(w, http.StatusOK, map[string]string{"message": "Member deleted successfully"})
}

type lookupResult struct {
	ID                   int64      `json:"id"`
	FullName             string     `json:"fullName"`
	RegistrationNumber   string     `json:"registrationNumber"`
	Status               string     `json:"status"`
	MembershipExpiryDate *time.Time `json:"membershipExpiryDate"`
	IsExpired            bool       `json:"isExpired"`
}

// HandleLookup is the public kiosk lookup by registration number.
func HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	regNumber := strings.TrimSpace(r.URL.Query().Get("regNumber"))
	if regNumber == "" {
		apiutil.RespondError(w, http.StatusBadRequest, "Registration number is required")
		return
	}

	member, err := queries.GetMemberByRegistrationNumber(ctx, regNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.RespondError(w, http.StatusNotFound, "Member not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("Failed to look up member")
		apiutil.RespondError(w, http.StatusInternalServerError, "Lookup failed")
		return
	}

	isExpired := member.Status == "Expired" ||
		(member.MembershipExpiryDate != nil && member.MembershipExpiryDate.Before(time.Now()))

	apiutil.RespondData(w, http.StatusOK, lookupResult{
		ID:                   member.ID,
		FullName:             member.FullName,
		RegistrationNumber:   member.RegistrationNumber,
		Status:               member.Status,
		MembershipExpiryDate: member.MembershipExpiryDate,
		IsExpired:            isExpired,
	})
}
