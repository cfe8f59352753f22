package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Member struct {
	ID                   int64           `json:"id"`
	FullName             string          `json:"fullName"`
	Phone                string          `json:"phone"`
	Address              string          `json:"address"`
	RegistrationNumber   string          `json:"registrationNumber"`
	JoinDate             time.Time       `json:"joinDate"`
	MembershipPlan       string          `json:"membershipPlan"`
	Status               string          `json:"status"`
	MembershipStartDate  *time.Time      `json:"membershipStartDate"`
	MembershipExpiryDate *time.Time      `json:"membershipExpiryDate"`
	OutstandingBalance   decimal.Decimal `json:"outstandingBalance"`
	Notes                string          `json:"notes"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

const memberColumns = `id, full_name, phone, address, registration_number, join_date,
	membership_plan, status, membership_start_date, membership_expiry_date,
	outstanding_balance, notes, created_at, updated_at`

func scanMember(row interface{ Scan(...any) error }) (Member, error) {
	var m Member
	var startDate, expiryDate sql.NullTime
	err := row.Scan(
		&m.ID, &m.FullName, &m.Phone, &m.Address, &m.RegistrationNumber, &m.JoinDate,
		&m.MembershipPlan, &m.Status, &startDate, &expiryDate,
		&m.OutstandingBalance, &m.Notes, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return Member{}, err
	}
	if startDate.Valid {
		t := startDate.Time
		m.MembershipStartDate = &t
	}
	if expiryDate.Valid {
		t := expiryDate.Time
		m.MembershipExpiryDate = &t
	}
	return m, nil
}

type CreateMemberParams struct {
	FullName           string
	Phone              string
	Address            string
	RegistrationNumber string
	JoinDate           time.Time
	MembershipPlan     string
	Notes              string
}

func (q *Queries) CreateMember(ctx context.Context, arg CreateMemberParams) (Member, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO members (full_name, phone, address, registration_number, join_date, membership_plan, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.FullName, arg.Phone, arg.Address, strings.ToUpper(arg.RegistrationNumber),
		arg.JoinDate, arg.MembershipPlan, arg.Notes,
	)
	if err != nil {
		return Member{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Member{}, err
	}
	return q.GetMemberByID(ctx, id)
}

func (q *Queries) GetMemberByID(ctx context.Context, id int64) (Member, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	return scanMember(row)
}

func (q *Queries) GetMemberByRegistrationNumber(ctx context.Context, regNumber string) (Member, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE registration_number = ?`,
		strings.ToUpper(strings.TrimSpace(regNumber)))
	return scanMember(row)
}

func (q *Queries) GetMemberByPhone(ctx context.Context, phone string) (Member, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE phone = ?`, phone)
	return scanMember(row)
}

type ListMembersParams struct {
	Search    string
	Status    string
	SortBy    string
	SortOrder string
	Limit     int64
	Offset    int64
}

// memberSortColumns whitelists the sortable columns; anything else falls back
// to created_at.
var memberSortColumns = map[string]string{
	"createdAt":            "created_at",
	"fullName":             "full_name",
	"joinDate":             "join_date",
	"membershipExpiryDate": "membership_expiry_date",
	"status":               "status",
}

func memberFilter(search, status string) (string, []any) {
	var clauses []string
	var args []any
	if search != "" {
		like := "%" + search + "%"
		clauses = append(clauses,
			"(full_name LIKE ? OR phone LIKE ? OR registration_number LIKE ?)")
		args = append(args, like, like, like)
	}
	if status != "" && status != "all" {
		clauses = append(clauses, "status = ?")
		args = append(args, status)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (q *Queries) ListMembers(ctx context.Context, arg ListMembersParams) ([]Member, error) {
	where, args := memberFilter(arg.Search, arg.Status)

	sortColumn, ok := memberSortColumns[arg.SortBy]
	if !ok {
		sortColumn = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(arg.SortOrder, "asc") {
		direction = "ASC"
	}

	query := fmt.Sprintf(
		`SELECT %s FROM members%s ORDER BY %s %s LIMIT ? OFFSET ?`,
		memberColumns, where, sortColumn, direction,
	)
	args = append(args, arg.Limit, arg.Offset)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (q *Queries) CountMembers(ctx context.Context, search, status string) (int64, error) {
	where, args := memberFilter(search, status)
	var count int64
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM members"+where, args...).Scan(&count)
	return count, err
}

func (q *Queries) CountMembersByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM members WHERE status = ?", status).Scan(&count)
	return count, err
}

func (q *Queries) CountMembersExpiringBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM members
		WHERE status = 'Active' AND membership_expiry_date >= ? AND membership_expiry_date <= ?`,
		from, to).Scan(&count)
	return count, err
}

func (q *Queries) CountMembersWithBalance(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM members WHERE CAST(outstanding_balance AS REAL) > 0").Scan(&count)
	return count, err
}

type UpdateMemberParams struct {
	ID             int64
	FullName       string
	Phone          string
	Address        string
	Status         string
	MembershipPlan string
	Notes          string
}

func (q *Queries) UpdateMember(ctx context.Context, arg UpdateMemberParams) (Member, error) {
	_, err := q.db.ExecContext(ctx, `
		UPDATE members
		SET full_name = ?, phone = ?, address = ?, status = ?, membership_plan = ?,
			notes = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		arg.FullName, arg.Phone, arg.Address, arg.Status, arg.MembershipPlan, arg.Notes, arg.ID,
	)
	if err != nil {
		return Member{}, err
	}
	return q.GetMemberByID(ctx, arg.ID)
}

type ApplyMemberPaymentParams struct {
	ID                   int64
	Status               string
	OutstandingBalance   decimal.Decimal
	ExtendsMembership    bool
	MembershipPlan       string
	MembershipStartDate  time.Time
	MembershipExpiryDate time.Time
}

// ApplyMemberPayment writes the member-side effects of a payment. Membership
// plan and dates are only touched when the payment extends the membership.
func (q *Queries) ApplyMemberPayment(ctx context.Context, arg ApplyMemberPaymentParams) error {
	if arg.ExtendsMembership {
		_, err := q.db.ExecContext(ctx, `
			UPDATE members
			SET status = ?, outstanding_balance = ?, membership_plan = ?,
				membership_start_date = ?, membership_expiry_date = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			arg.Status, arg.OutstandingBalance, arg.MembershipPlan,
			arg.MembershipStartDate, arg.MembershipExpiryDate, arg.ID,
		)
		return err
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE members
		SET status = ?, outstanding_balance = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		arg.Status, arg.OutstandingBalance, arg.ID,
	)
	return err
}

func (q *Queries) SetMemberOutstandingBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE members SET outstanding_balance = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		balance, id)
	return err
}

func (q *Queries) DeleteMember(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, "DELETE FROM members WHERE id = ?", id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ExpireMemberships marks Active members whose expiry date has passed as
// Expired and returns how many rows changed.
func (q *Queries) ExpireMemberships(ctx context.Context, now time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE members
		SET status = 'Expired', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'Active' AND membership_expiry_date IS NOT NULL AND membership_expiry_date < ?`,
		now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (q *Queries) ListExpiringMembers(ctx context.Context, from, to time.Time, limit int64) ([]Member, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+memberColumns+` FROM members
		WHERE status = 'Active' AND membership_expiry_date >= ? AND membership_expiry_date <= ?
		ORDER BY membership_expiry_date ASC LIMIT ?`,
		from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListRenewalPriorityMembers returns recently expired or soon-expiring members
// for the dashboard follow-up list.
func (q *Queries) ListRenewalPriorityMembers(ctx context.Context, from, to time.Time, limit int64) ([]Member, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+memberColumns+` FROM members
		WHERE status IN ('Active', 'Expired')
			AND membership_expiry_date >= ? AND membership_expiry_date <= ?
		ORDER BY membership_expiry_date ASC LIMIT ?`,
		from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
