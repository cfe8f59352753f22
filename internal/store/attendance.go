package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

type Attendance struct {
	ID             int64      `json:"id"`
	MemberID       int64      `json:"memberId"`
	Day            string     `json:"day"`
	Session        string     `json:"session"`
	CheckInTime    time.Time  `json:"checkInTime"`
	CheckOutTime   *time.Time `json:"checkOutTime"`
	IsAutoCheckout bool       `json:"isAutoCheckout"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type AttendanceWithMember struct {
	Attendance
	MemberName               string `json:"memberName"`
	MemberRegistrationNumber string `json:"memberRegistrationNumber"`
	MemberPhone              string `json:"memberPhone"`
}

const attendanceColumns = `a.id, a.member_id, a.day, a.session, a.check_in_time,
	a.check_out_time, a.is_auto_checkout, a.created_at`

func scanAttendance(row interface{ Scan(...any) error }) (Attendance, error) {
	var a Attendance
	var checkOut sql.NullTime
	err := row.Scan(
		&a.ID, &a.MemberID, &a.Day, &a.Session, &a.CheckInTime,
		&checkOut, &a.IsAutoCheckout, &a.CreatedAt,
	)
	if err != nil {
		return Attendance{}, err
	}
	if checkOut.Valid {
		t := checkOut.Time
		a.CheckOutTime = &t
	}
	return a, nil
}

type CreateAttendanceParams struct {
	MemberID    int64
	Day         string
	Session     string
	CheckInTime time.Time
}

func (q *Queries) CreateAttendance(ctx context.Context, arg CreateAttendanceParams) (Attendance, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO attendance (member_id, day, session, check_in_time)
		VALUES (?, ?, ?, ?)`,
		arg.MemberID, arg.Day, arg.Session, arg.CheckInTime,
	)
	if err != nil {
		return Attendance{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Attendance{}, err
	}
	return q.GetAttendanceByID(ctx, id)
}

func (q *Queries) GetAttendanceByID(ctx context.Context, id int64) (Attendance, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance a WHERE a.id = ?`, id)
	return scanAttendance(row)
}

// ListMemberAttendanceForDay returns a member's records for one gym-local day,
// oldest check-in first.
func (q *Queries) ListMemberAttendanceForDay(ctx context.Context, memberID int64, day string) ([]Attendance, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+attendanceColumns+` FROM attendance a
		WHERE a.member_id = ? AND a.day = ?
		ORDER BY a.check_in_time ASC`, memberID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Attendance{}
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

func (q *Queries) SetCheckOut(ctx context.Context, id int64, checkOutTime time.Time, isAuto bool) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE attendance
		SET check_out_time = ?, is_auto_checkout = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		checkOutTime, isAuto, id)
	return err
}

type ListAttendanceParams struct {
	Day      string
	MemberID *int64
	Limit    int64
	Offset   int64
}

func attendanceFilter(arg ListAttendanceParams) (string, []any) {
	var clauses []string
	var args []any
	if arg.Day != "" {
		clauses = append(clauses, "a.day = ?")
		args = append(args, arg.Day)
	}
	if arg.MemberID != nil {
		clauses = append(clauses, "a.member_id = ?")
		args = append(args, *arg.MemberID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (q *Queries) ListAttendance(ctx context.Context, arg ListAttendanceParams) ([]AttendanceWithMember, error) {
	where, args := attendanceFilter(arg)
	args = append(args, arg.Limit, arg.Offset)

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+attendanceColumns+`, m.full_name, m.registration_number, m.phone
		FROM attendance a JOIN members m ON m.id = a.member_id`+where+`
		ORDER BY a.check_in_time DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAttendanceWithMember(rows)
}

func (q *Queries) CountAttendance(ctx context.Context, arg ListAttendanceParams) (int64, error) {
	where, args := attendanceFilter(arg)
	var count int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM attendance a"+where, args...).Scan(&count)
	return count, err
}

// ListOpenAttendanceForDay returns the day's records without a checkout, i.e.
// the members currently inside.
func (q *Queries) ListOpenAttendanceForDay(ctx context.Context, day string) ([]AttendanceWithMember, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+attendanceColumns+`, m.full_name, m.registration_number, m.phone
		FROM attendance a JOIN members m ON m.id = a.member_id
		WHERE a.day = ? AND a.check_out_time IS NULL
		ORDER BY a.check_in_time DESC`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAttendanceWithMember(rows)
}

func collectAttendanceWithMember(rows *sql.Rows) ([]AttendanceWithMember, error) {
	records := []AttendanceWithMember{}
	for rows.Next() {
		var a AttendanceWithMember
		var checkOut sql.NullTime
		err := rows.Scan(
			&a.ID, &a.MemberID, &a.Day, &a.Session, &a.CheckInTime,
			&checkOut, &a.IsAutoCheckout, &a.CreatedAt,
			&a.MemberName, &a.MemberRegistrationNumber, &a.MemberPhone,
		)
		if err != nil {
			return nil, err
		}
		if checkOut.Valid {
			t := checkOut.Time
			a.CheckOutTime = &t
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

func (q *Queries) CountAttendanceForDay(ctx context.Context, day string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM attendance WHERE day = ?", day).Scan(&count)
	return count, err
}

func (q *Queries) CountOpenAttendanceForDay(ctx context.Context, day string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM attendance WHERE day = ? AND check_out_time IS NULL", day).Scan(&count)
	return count, err
}

// AutoCheckoutOpenForDay closes every open record for the day, marking it as
// an automatic checkout, and returns how many rows changed.
func (q *Queries) AutoCheckoutOpenForDay(ctx context.Context, day string, checkOutTime time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE attendance
		SET check_out_time = ?, is_auto_checkout = 1, updated_at = CURRENT_TIMESTAMP
		WHERE day = ? AND check_out_time IS NULL`,
		checkOutTime, day)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (q *Queries) ListRecentAttendanceForMember(ctx context.Context, memberID, limit int64) ([]Attendance, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+attendanceColumns+` FROM attendance a
		WHERE a.member_id = ?
		ORDER BY a.day DESC, a.check_in_time DESC LIMIT ?`, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Attendance{}
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

func (q *Queries) DeleteAttendanceForMember(ctx context.Context, memberID int64) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM attendance WHERE member_id = ?", memberID)
	return err
}
