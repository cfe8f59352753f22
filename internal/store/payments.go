package store

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Payment struct {
	ID               int64           `json:"id"`
	MemberID         int64           `json:"memberId"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentDate      time.Time       `json:"paymentDate"`
	PaymentMode      string          `json:"paymentMode"`
	PlanID           string          `json:"planId"`
	PlanName         string          `json:"planName"`
	PlanDuration     int64           `json:"planDuration"`
	StartDate        time.Time       `json:"startDate"`
	ExpiryDate       time.Time       `json:"expiryDate"`
	NextDueDate      time.Time       `json:"nextDueDate"`
	IsPartialPayment bool            `json:"isPartialPayment"`
	TotalPlanAmount  decimal.Decimal `json:"totalPlanAmount"`
	BalanceRemaining decimal.Decimal `json:"balanceRemaining"`
	ReceiptNumber    string          `json:"receiptNumber"`
	Notes            string          `json:"notes"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// PaymentWithMember carries the member snapshot list endpoints attach to each
// payment row.
type PaymentWithMember struct {
	Payment
	MemberName               string `json:"memberName"`
	MemberRegistrationNumber string `json:"memberRegistrationNumber"`
	MemberPhone              string `json:"memberPhone"`
}

const paymentColumns = `p.id, p.member_id, p.amount, p.payment_date, p.payment_mode,
	p.plan_id, p.plan_name, p.plan_duration, p.start_date, p.expiry_date, p.next_due_date,
	p.is_partial_payment, p.total_plan_amount, p.balance_remaining, p.receipt_number,
	p.notes, p.created_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.MemberID, &p.Amount, &p.PaymentDate, &p.PaymentMode,
		&p.PlanID, &p.PlanName, &p.PlanDuration, &p.StartDate, &p.ExpiryDate, &p.NextDueDate,
		&p.IsPartialPayment, &p.TotalPlanAmount, &p.BalanceRemaining, &p.ReceiptNumber,
		&p.Notes, &p.CreatedAt,
	)
	return p, err
}

type CreatePaymentParams struct {
	MemberID         int64
	Amount           decimal.Decimal
	PaymentDate      time.Time
	PaymentMode      string
	PlanID           string
	PlanName         string
	PlanDuration     int64
	StartDate        time.Time
	ExpiryDate       time.Time
	NextDueDate      time.Time
	IsPartialPayment bool
	TotalPlanAmount  decimal.Decimal
	BalanceRemaining decimal.Decimal
	ReceiptNumber    string
	Notes            string
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO payments (
			member_id, amount, payment_date, payment_mode, plan_id, plan_name,
			plan_duration, start_date, expiry_date, next_due_date, is_partial_payment,
			total_plan_amount, balance_remaining, receipt_number, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.MemberID, arg.Amount, arg.PaymentDate, arg.PaymentMode, arg.PlanID, arg.PlanName,
		arg.PlanDuration, arg.StartDate, arg.ExpiryDate, arg.NextDueDate, arg.IsPartialPayment,
		arg.TotalPlanAmount, arg.BalanceRemaining, arg.ReceiptNumber, arg.Notes,
	)
	if err != nil {
		return Payment{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Payment{}, err
	}
	return q.GetPaymentByID(ctx, id)
}

func (q *Queries) GetPaymentByID(ctx context.Context, id int64) (Payment, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments p WHERE p.id = ?`, id)
	return scanPayment(row)
}

// CountReceiptsWithPrefix counts receipts issued under a month prefix,
// including soft-deleted payments so their numbers are never reissued.
func (q *Queries) CountReceiptsWithPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payments WHERE receipt_number LIKE ?", prefix+"%").Scan(&count)
	return count, err
}

type ListPaymentsParams struct {
	MemberID *int64
	From     *time.Time
	To       *time.Time
	Limit    int64
	Offset   int64
}

func paymentFilter(arg ListPaymentsParams) (string, []any) {
	clauses := []string{"p.is_deleted = 0"}
	var args []any
	if arg.MemberID != nil {
		clauses = append(clauses, "p.member_id = ?")
		args = append(args, *arg.MemberID)
	}
	if arg.From != nil {
		clauses = append(clauses, "p.payment_date >= ?")
		args = append(args, *arg.From)
	}
	if arg.To != nil {
		clauses = append(clauses, "p.payment_date <= ?")
		args = append(args, *arg.To)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (q *Queries) ListPayments(ctx context.Context, arg ListPaymentsParams) ([]PaymentWithMember, error) {
	where, args := paymentFilter(arg)
	args = append(args, arg.Limit, arg.Offset)

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`, m.full_name, m.registration_number, m.phone
		FROM payments p JOIN members m ON m.id = p.member_id`+where+`
		ORDER BY p.payment_date DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []PaymentWithMember{}
	for rows.Next() {
		var p PaymentWithMember
		err := rows.Scan(
			&p.ID, &p.MemberID, &p.Amount, &p.PaymentDate, &p.PaymentMode,
			&p.PlanID, &p.PlanName, &p.PlanDuration, &p.StartDate, &p.ExpiryDate, &p.NextDueDate,
			&p.IsPartialPayment, &p.TotalPlanAmount, &p.BalanceRemaining, &p.ReceiptNumber,
			&p.Notes, &p.CreatedAt,
			&p.MemberName, &p.MemberRegistrationNumber, &p.MemberPhone,
		)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (q *Queries) CountPayments(ctx context.Context, arg ListPaymentsParams) (int64, error) {
	where, args := paymentFilter(arg)
	var count int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payments p"+where, args...).Scan(&count)
	return count, err
}

func (q *Queries) ListRecentPaymentsForMember(ctx context.Context, memberID, limit int64) ([]Payment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments p
		WHERE p.member_id = ? AND p.is_deleted = 0
		ORDER BY p.payment_date DESC LIMIT ?`, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type Revenue struct {
	Total decimal.Decimal `json:"total"`
	Count int64           `json:"count"`
}

// RevenueBetween sums non-deleted payment amounts in the window.
func (q *Queries) RevenueBetween(ctx context.Context, from, to time.Time) (Revenue, error) {
	var r Revenue
	err := q.db.QueryRowContext(ctx, `
		SELECT CAST(COALESCE(SUM(CAST(amount AS REAL)), 0) AS TEXT), COUNT(*)
		FROM payments
		WHERE is_deleted = 0 AND payment_date >= ? AND payment_date <= ?`,
		from, to).Scan(&r.Total, &r.Count)
	return r, err
}

func (q *Queries) SoftDeletePayment(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE payments SET is_deleted = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND is_deleted = 0`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
