// Package billing computes membership windows, partial-payment bookkeeping,
// and receipt numbers for payment events. Calculation is pure: it proposes a
// payment record and member updates but persists nothing.
package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/heliosfit/gymdesk/internal/gymconfig"
)

// Synthetic plan ids accepted alongside the configured plan list.
const (
	PlanCustom           = "custom"
	PlanBalanceClearance = "balance_clearance"
)

// nextDueLeadDays is how many days before expiry the renewal reminder falls.
const nextDueLeadDays = 7

const StatusActive = "Active"

var (
	ErrUnknownPlan     = errors.New("unknown plan")
	ErrInvalidDuration = errors.New("plan duration must be at least one day")
	ErrInvalidAmount   = errors.New("amount must be positive")
)

// MemberState is the slice of a member record the calculator reads.
type MemberState struct {
	MembershipExpiryDate *time.Time
	OutstandingBalance   decimal.Decimal
}

// PaymentInput describes a requested payment.
type PaymentInput struct {
	PlanID         string
	Amount         decimal.Decimal
	CustomDuration int
	CustomAmount   decimal.Decimal
	CustomPlanName string
	StartDate      *time.Time
}

// Proposal is the computed payment record plus the member updates to apply.
type Proposal struct {
	PlanID           string
	PlanName         string
	PlanDuration     int
	Amount           decimal.Decimal
	TotalPlanAmount  decimal.Decimal
	StartDate        time.Time
	ExpiryDate       time.Time
	NextDueDate      time.Time
	IsPartialPayment bool
	BalanceRemaining decimal.Decimal

	Member MemberUpdate
}

// MemberUpdate carries the member fields a successful payment changes.
// Membership plan and dates are updated only when ExtendsMembership is true;
// status and outstanding balance change on every payment.
type MemberUpdate struct {
	Status               string
	OutstandingBalance   decimal.Decimal
	ExtendsMembership    bool
	MembershipPlan       string
	MembershipStartDate  time.Time
	MembershipExpiryDate time.Time
}

// Calculate resolves the effective plan, membership window, and balance
// arithmetic for a payment of in.Amount at time now. It returns a validation
// error for unknown plans, non-positive amounts, or custom plans without a
// duration. A balance clearance with zero outstanding balance computes a
// zero-amount no-op; rejecting that case is left to the caller.
func Calculate(cfg gymconfig.Config, member MemberState, in PaymentInput, now time.Time) (Proposal, error) {
	if !in.Amount.IsPositive() {
		return Proposal{}, ErrInvalidAmount
	}

	planID := strings.TrimSpace(in.PlanID)
	plan, configured := cfg.PlanByID(planID)
	if !configured && planID == PlanCustom {
		plan = gymconfig.Plan{ID: PlanCustom, Name: "Custom"}
		configured = true
	}
	if !configured && planID != PlanBalanceClearance {
		return Proposal{}, fmt.Errorf("%w: %q", ErrUnknownPlan, planID)
	}

	duration := plan.Duration
	switch planID {
	case PlanCustom:
		duration = in.CustomDuration
	case PlanBalanceClearance:
		duration = 0
	}
	if planID != PlanBalanceClearance && duration < 1 {
		return Proposal{}, ErrInvalidDuration
	}

	total := effectiveTotal(planID, plan, in)

	start := resolveStartDate(planID, member, in, now)
	expiry := start
	if planID != PlanBalanceClearance {
		expiry = start.AddDate(0, 0, duration)
	}
	nextDue := expiry
	if planID != PlanBalanceClearance {
		nextDue = expiry.AddDate(0, 0, -nextDueLeadDays)
	}

	isPartial := in.Amount.LessThan(total)
	remaining := decimal.Max(decimal.Zero, total.Sub(in.Amount))

	update := MemberUpdate{
		Status: StatusActive,
	}
	if isPartial {
		update.OutstandingBalance = member.OutstandingBalance.Add(remaining)
	} else {
		// Surplus beyond the plan price pays down old debt.
		surplus := in.Amount.Sub(total)
		update.OutstandingBalance = decimal.Max(decimal.Zero, member.OutstandingBalance.Sub(surplus))
	}
	if planID != PlanBalanceClearance {
		update.ExtendsMembership = true
		update.MembershipPlan = planID
		if planID == PlanCustom && strings.TrimSpace(in.CustomPlanName) != "" {
			update.MembershipPlan = strings.TrimSpace(in.CustomPlanName)
		}
		update.MembershipStartDate = start
		update.MembershipExpiryDate = expiry
	}

	return Proposal{
		PlanID:           planID,
		PlanName:         planName(planID, plan, in),
		PlanDuration:     duration,
		Amount:           in.Amount,
		TotalPlanAmount:  total,
		StartDate:        start,
		ExpiryDate:       expiry,
		NextDueDate:      nextDue,
		IsPartialPayment: isPartial,
		BalanceRemaining: remaining,
		Member:           update,
	}, nil
}

func effectiveTotal(planID string, plan gymconfig.Plan, in PaymentInput) decimal.Decimal {
	switch planID {
	case PlanBalanceClearance:
		// A clearance sells nothing, so the whole amount lands in the
		// surplus rule and pays down the outstanding balance.
		return decimal.Zero
	case PlanCustom:
		if in.CustomAmount.IsPositive() {
			return in.CustomAmount
		}
		return in.Amount
	default:
		if plan.OfferPrice.IsPositive() {
			return plan.OfferPrice
		}
		return plan.Price
	}
}

// resolveStartDate applies the renewal rule: an explicit date wins; otherwise
// a membership that has not yet expired extends back-to-back from its current
// expiry. Balance clearances never extend, so they always start now.
func resolveStartDate(planID string, member MemberState, in PaymentInput, now time.Time) time.Time {
	if in.StartDate != nil {
		return *in.StartDate
	}
	if planID != PlanBalanceClearance &&
		member.MembershipExpiryDate != nil &&
		member.MembershipExpiryDate.After(now) {
		return *member.MembershipExpiryDate
	}
	return now
}

func planName(planID string, plan gymconfig.Plan, in PaymentInput) string {
	switch planID {
	case PlanBalanceClearance:
		return "Balance Clearance"
	case PlanCustom:
		if name := strings.TrimSpace(in.CustomPlanName); name != "" {
			return name
		}
		return "Custom Plan"
	default:
		if plan.Name != "" {
			return plan.Name
		}
		return planID
	}
}
