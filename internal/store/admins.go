package store

import (
	"context"
	"database/sql"
	"time"
)

type Admin struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin"`
	CreatedAt    time.Time  `json:"createdAt"`
}

const adminColumns = `id, username, email, name, password_hash, role, is_active, last_login, created_at`

func scanAdmin(row interface{ Scan(...any) error }) (Admin, error) {
	var a Admin
	var lastLogin sql.NullTime
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.IsActive, &lastLogin, &a.CreatedAt)
	if err != nil {
		return Admin{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLogin = &t
	}
	return a, nil
}

func (q *Queries) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM admins").Scan(&count)
	return count, err
}

type CreateAdminParams struct {
	Username     string
	Email        string
	Name         string
	PasswordHash string
	Role         string
}

func (q *Queries) CreateAdmin(ctx context.Context, arg CreateAdminParams) (Admin, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO admins (username, email, name, password_hash, role)
		VALUES (?, ?, ?, ?, ?)`,
		arg.Username, arg.Email, arg.Name, arg.PasswordHash, arg.Role,
	)
	if err != nil {
		return Admin{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Admin{}, err
	}
	return q.GetAdminByID(ctx, id)
}

func (q *Queries) GetAdminByID(ctx context.Context, id int64) (Admin, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE id = ?`, id)
	return scanAdmin(row)
}

// GetActiveAdminByIdentifier matches an active admin by username or email.
func (q *Queries) GetActiveAdminByIdentifier(ctx context.Context, identifier string) (Admin, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+adminColumns+` FROM admins
		WHERE (username = ? OR email = ?) AND is_active = 1`,
		identifier, identifier)
	return scanAdmin(row)
}

func (q *Queries) UpdateAdminLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE admins SET last_login = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		at, id)
	return err
}
