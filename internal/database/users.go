package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seyone-projects/reda-backend/internal/models"
)

const userColumns = `id, username, fullname, email, mobile_number, address, dob, photo,
	password_hash, role, created_at, updated_at`

// DuplicateError is returned when a UNIQUE column collides.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return e.Field + " already exists"
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (
				username, fullname, email, mobile_number, address, dob, photo,
				password_hash, role, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	var dob sql.NullTime
	if user.DOB != nil {
		dob = sql.NullTime{Time: *user.DOB, Valid: true}
	}
	result, err := db.ExecContext(ctx, query,
		user.Username,
		user.Fullname,
		strings.ToLower(user.Email),
		user.MobileNumber,
		user.Address,
		dob,
		user.Photo,
		user.PasswordHash,
		user.Role,
		now,
		now,
	)
	if err != nil {
		if cols, ok := isUniqueViolation(err); ok {
			return &DuplicateError{Field: uniqueField(cols)}
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// uniqueField maps "users.mobile_number" to "mobile_number".
func uniqueField(columns string) string {
	first, _, _ := strings.Cut(columns, ",")
	if _, col, ok := strings.Cut(strings.TrimSpace(first), "."); ok {
		return col
	}
	if first == "" {
		return "record"
	}
	return first
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (db *DB) GetUserByMobile(ctx context.Context, mobile string) (*models.User, error) {
	return db.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE mobile_number = ?`, mobile)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
}

// EmailOrMobileExists reports whether either value is already registered.
func (db *DB) EmailOrMobileExists(ctx context.Context, email, mobile string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ? OR mobile_number = ?)`,
		strings.ToLower(email), mobile).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

func (db *DB) ListUsersByRole(ctx context.Context, role string) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY created_at DESC, id DESC`, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (db *DB) UpdateUserPhoto(ctx context.Context, id int64, photo string) error {
	result, err := db.ExecContext(ctx, `UPDATE users SET photo = ?, updated_at = ? WHERE id = ?`, photo, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user photo: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) queryUser(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u   models.User
		dob sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Fullname, &u.Email, &u.MobileNumber, &u.Address, &dob, &u.Photo,
		&u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dob.Valid {
		t := dob.Time
		u.DOB = &t
	}
	return &u, nil
}
