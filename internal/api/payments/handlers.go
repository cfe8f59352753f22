// Package payments records membership payments and serves payment history.
package payments

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/heliosfit/gymdesk/internal/api/apiutil"
	"github.com/heliosfit/gymdesk/internal/billing"
	"github.com/heliosfit/gymdesk/internal/db"
	"github.com/heliosfit/gymdesk/internal/gymconfig"
	"github.com/heliosfit/gymdesk/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var database *db.DB

// Init wires the package with the database. Payments need the transaction
// helpers, not just the query layer.
func Init(d *db.DB) {
	database = d
}

type createRequest struct {
	MemberID       int64           `json:"memberId"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMode    string          `json:"paymentMode"`
	PlanID         string          `json:"planId"`
	CustomDuration int             `json:"customDuration,omitempty"`
	CustomAmount   decimal.Decimal `json:"customAmount,omitempty"`
	CustomPlanName string          `json:"customPlanName,omitempty"`
	StartDate      string          `json:"startDate,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// HandleCreate records a payment: it computes the membership window and
// balance arithmetic, then persists the payment and the member updates in one
// transaction together with the receipt number allocation.
func HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MemberID <= 0 || !req.Amount.IsPositive() || req.PaymentMode == "" || req.PlanID == "" {
		apiutil.RespondError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	gymCfg, err := gymconfig.Load(ctx, database.Queries)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Falling back to default gym config")
	}
	if !gymCfg.HasPaymentMode(req.PaymentMode) {
		apiutil.RespondError(w, http.StatusBadRequest, "Invalid payment mode")
		return
	}

	member, err := database.Queries.GetMemberByID(ctx, req.MemberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.RespondError(w, http.StatusNotFound, "Member not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("Failed to load member")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to record payment")
		return
	}

	if req.PlanID == billing.PlanBalanceClearance && !member.OutstandingBalance.IsPositive() {
		apiutil.RespondError(w, http.StatusBadRequest, "No outstanding balance to clear")
		return
	}

	input := billing.PaymentInput{
		PlanID:         req.PlanID,
		Amount:         req.Amount,
		CustomDuration: req.CustomDuration,
		CustomAmount:   req.CustomAmount,
		CustomPlanName: req.CustomPlanName,
	}
	if req.StartDate != "" {
		start, err := apiutil.ParseDateField(req.StartDate, "startDate")
		if err != nil {
			apiutil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		input.StartDate = &start
	}

	now := time.Now()
	proposal, err := billing.Calculate(gymCfg, billing.MemberState{
		MembershipExpiryDate: member.MembershipExpiryDate,
		OutstandingBalance:   member.OutstandingBalance,
	}, input, now)
	if err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var payment store.Payment
	err = database.RunInTx(ctx, func(tx *db.DB) error {
		// Counting and inserting inside one transaction keeps receipt
		// numbers unique under concurrent payments.
		prefix := billing.ReceiptPrefix(now)
		count, err := tx.Queries.CountReceiptsWithPrefix(ctx, prefix)
		if err != nil {
			return err
		}
		receipt := billing.FormatReceiptNumber(prefix, count+1)

		payment, err = tx.Queries.CreatePayment(ctx, store.CreatePaymentParams{
			MemberID:         member.ID,
			Amount:           proposal.Amount,
			PaymentDate:      now,
			PaymentMode:      req.PaymentMode,
			PlanID:           proposal.PlanID,
			PlanName:         proposal.PlanName,
			PlanDuration:     int64(proposal.PlanDuration),
			StartDate:        proposal.StartDate,
			ExpiryDate:       proposal.ExpiryDate,
			NextDueDate:      proposal.NextDueDate,
			IsPartialPayment: proposal.IsPartialPayment,
			TotalPlanAmount:  proposal.TotalPlanAmount,
			BalanceRemaining: proposal.BalanceRemaining,
			ReceiptNumber:    receipt,
			Notes:            req.Notes,
		})
		if err != nil {
			return err
		}

		return tx.Queries.ApplyMemberPayment(ctx, store.ApplyMemberPaymentParams{
			ID:                   member.ID,
			Status:               proposal.Member.Status,
			OutstandingBalance:   proposal.Member.OutstandingBalance,
			ExtendsMembership:    proposal.Member.ExtendsMembership,
			MembershipPlan:       proposal.Member.MembershipPlan,
			MembershipStartDate:  proposal.Member.MembershipStartDate,
			MembershipExpiryDate: proposal.Member.MembershipExpiryDate,
		})
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("member_id", member.ID).Msg("Failed to record payment")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to record payment")
		return
	}

	updated, err := database.Queries.GetMemberByID(ctx, member.ID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to reload member after payment")
		apiutil.RespondData(w, http.StatusCreated, map[string]any{"payment": payment})
		return
	}

	apiutil.RespondData(w, http.StatusCreated, map[string]any{
		"payment": payment,
		"member":  updated,
	})
}

// HandleList returns payment history, newest first. Soft-deleted payments are
// excluded.
func HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, limit := apiutil.ParsePage(r.URL.Query().Get("page"), r.URL.Query().Get("limit"),
		defaultListLimit, maxListLimit)

	params := store.ListPaymentsParams{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if raw := r.URL.Query().Get("memberId"); raw != "" {
		id, err := apiutil.ParsePositiveInt64Field(raw, "memberId")
		if err != nil {
			apiutil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		params.MemberID = &id
	}
	if raw := r.URL.Query().Get("startDate"); raw != "" {
		from, err := apiutil.ParseDateField(raw, "startDate")
		if err != nil {
			apiutil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		params.From = &from
	}
	if raw := r.URL.Query().Get("endDate"); raw != "" {
		to, err := apiutil.ParseDateField(raw, "endDate")
		if err != nil {
			apiutil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		params.To = &to
	}

	records, err := database.Queries.ListPayments(ctx, params)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to list payments")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch payments")
		return
	}
	total, err := database.Queries.CountPayments(ctx, params)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to count payments")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to fetch payments")
		return
	}

	apiutil.RespondList(w, http.StatusOK, records, apiutil.NewPagination(page, limit, total))
}

type balanceRequest struct {
	MemberID int64           `json:"memberId"`
	Amount   decimal.Decimal `json:"amount"`
}

type balanceResult struct {
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	AmountPaid      decimal.Decimal `json:"amountPaid"`
	NewBalance      decimal.Decimal `json:"newBalance"`
}

// HandleBalance applies a direct payment against a member's outstanding
// balance. No payment record or membership change is involved.
func HandleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req balanceRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MemberID <= 0 || !req.Amount.IsPositive() {
		apiutil.RespondError(w, http.StatusBadRequest, "Member ID and positive amount are required")
		return
	}

	member, err := database.Queries.GetMemberByID(ctx, req.MemberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.RespondError(w, http.StatusNotFound, "Member not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("Failed to load member")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to process balance payment")
		return
	}

	newBalance := decimal.Max(decimal.Zero, member.OutstandingBalance.Sub(req.Amount))
	if err := database.Queries.SetMemberOutstandingBalance(ctx, member.ID, newBalance); err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("member_id", member.ID).Msg("Failed to update balance")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to process balance payment")
		return
	}

	apiutil.RespondData(w, http.StatusOK, balanceResult{
		PreviousBalance: member.OutstandingBalance,
		AmountPaid:      req.Amount,
		NewBalance:      newBalance,
	})
}

// HandleDelete soft-deletes a payment record.
func HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "id")
	if err != nil {
		apiutil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	affected, err := database.Queries.SoftDeletePayment(ctx, id)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("payment_id", id).Msg("Failed to delete payment")
		apiutil.RespondError(w, http.StatusInternalServerError, "Failed to delete payment")
		return
	}
	if affected == 0 {
		apiutil.RespondError(w, http.StatusNotFound, "Payment not found")
		return
	}

	apiutil.RespondData(w, http.StatusOK, map[string]string{"message": "Payment deleted"})
}
