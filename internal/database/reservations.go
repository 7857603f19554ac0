package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seyone-projects/reda-backend/internal/booking"
	"github.com/seyone-projects/reda-backend/internal/models"
)

const reservationColumns = `id, resource_id, association_id, user_id, booking_date, booking_kind,
	time_slot, start_time, end_time, is_cancelled, created_at, updated_at`

// ReservationStore answers validator queries against a *sql.DB or a *sql.Tx.
type ReservationStore struct {
	q querier
}

// Reservations returns a store reading outside any transaction.
func (db *DB) Reservations() *ReservationStore {
	return &ReservationStore{q: db.DB}
}

func (s *ReservationStore) FindOne(ctx context.Context, f booking.Filter) (*models.Reservation, error) {
	where, args := filterClause(f)
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE ` + where + ` ORDER BY id ASC LIMIT 1`
	r, err := scanReservation(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	return r, nil
}

func (s *ReservationStore) FindLatestEnding(ctx context.Context, f booking.Filter) (*models.Reservation, error) {
	where, args := filterClause(f)
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE ` + where + ` ORDER BY end_time DESC, id DESC LIMIT 1`
	r, err := scanReservation(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest reservation: %w", err)
	}
	return r, nil
}

func (s *ReservationStore) FreeBookingExists(ctx context.Context, resourceID, associationID string, date time.Time) (bool, error) {
	f := booking.Filter{
		Scope: booking.Scope{ResourceID: resourceID, AssociationID: associationID, Date: date},
		Kinds: []models.BookingKind{models.KindFree},
	}
	where, args := filterClause(f)
	var exists bool
	err := s.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reservations WHERE `+where+`)`, args...).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check free booking: %w", err)
	}
	return exists, nil
}

// filterClause mirrors booking.Filter.Matches in SQL. Times are stored as
// zero-padded HH:MM, so string comparison orders them correctly.
func filterClause(f booking.Filter) (string, []any) {
	startOfDay, endOfDay := booking.DayBounds(f.Date)
	conds := []string{
		"is_cancelled = 0",
		"resource_id = ?",
		"association_id = ?",
		"booking_date BETWEEN ? AND ?",
	}
	args := []any{f.ResourceID, f.AssociationID, startOfDay.Format(dateLayout), endOfDay.Format(dateLayout)}

	if len(f.Kinds) > 0 {
		conds = append(conds, "booking_kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, string(k))
		}
	}
	if len(f.Slots) > 0 {
		conds = append(conds, "time_slot IN ("+placeholders(len(f.Slots))+")")
		for _, s := range f.Slots {
			args = append(args, string(s))
		}
	}
	if f.Timed || f.Overlapping != nil {
		conds = append(conds, "start_time != ''", "end_time != ''")
	}
	if f.Overlapping != nil {
		conds = append(conds, "start_time < ?", "end_time > ?")
		args = append(args, f.Overlapping.End.String(), f.Overlapping.Start.String())
	}
	return strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r       models.Reservation
		dateStr string
		kind    string
		slot    string
	)
	err := row.Scan(
		&r.ID, &r.ResourceID, &r.AssociationID, &r.UserID, &dateStr, &kind,
		&slot, &r.StartTime, &r.EndTime, &r.IsCancelled, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Kind = models.BookingKind(kind)
	r.TimeSlot = models.TimeSlot(slot)
	r.BookingDate, err = time.Parse(dateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	return &r, nil
}

// normalizeClock rewrites a stored time as zero-padded HH:MM, which the
// overlap filters compare as text. Empty stays empty.
func normalizeClock(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	c, err := booking.ParseClock(s)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

func insertReservation(ctx context.Context, q querier, r *models.Reservation) error {
	var err error
	if r.StartTime, err = normalizeClock(r.StartTime); err != nil {
		return fmt.Errorf("start time: %w", err)
	}
	if r.EndTime, err = normalizeClock(r.EndTime); err != nil {
		return fmt.Errorf("end time: %w", err)
	}

	query := `INSERT INTO reservations (
				resource_id, association_id, user_id, booking_date, booking_kind,
				time_slot, start_time, end_time, is_cancelled, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		r.ResourceID,
		r.AssociationID,
		r.UserID,
		r.BookingDate.Format(dateLayout),
		string(r.Kind),
		string(r.TimeSlot),
		r.StartTime,
		r.EndTime,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.IsCancelled = false
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// CreateReservation inserts without conflict validation; times are still
// normalized. Only tests call it, to seed reservations directly.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	return insertReservation(ctx, db.DB, r)
}

// CreateReservationWithLock validates req and inserts it inside one immediate
// transaction, so no other writer can slip a conflicting reservation between
// the check and the insert. A rejected request returns a nil reservation and
// the rejection Result with a nil error.
func (db *DB) CreateReservationWithLock(
	ctx context.Context,
	v *booking.Validator,
	req booking.Request,
	userID int64,
) (*models.Reservation, booking.Result, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, booking.Result{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	store := &ReservationStore{q: tx}
	res, err := v.WithStore(store, store).ValidateParsed(ctx, req)
	if err != nil {
		return nil, booking.Result{}, fmt.Errorf("failed to validate in tx: %w", err)
	}
	if !res.Admitted {
		return nil, res, nil
	}

	r := &models.Reservation{
		ResourceID:    req.ResourceID,
		AssociationID: req.AssociationID,
		UserID:        userID,
		BookingDate:   req.Date,
		Kind:          req.Kind,
		TimeSlot:      req.Slot,
	}
	if req.Kind == models.KindHourly {
		r.StartTime = req.Range.Start.String()
		r.EndTime = req.Range.End.String()
	}
	if err := insertReservation(ctx, tx, r); err != nil {
		return nil, booking.Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return nil, booking.Result{}, fmt.Errorf("failed to commit reservation: %w", err)
	}

	db.logger.Debug().Int64("reservation_id", r.ID).Str("resource_id", r.ResourceID).Msg("Reservation created")
	return r, res, nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// CancelReservation flips is_cancelled. Cancelling twice returns ErrAlreadyCancelled.
func (db *DB) CancelReservation(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE reservations SET is_cancelled = 1, updated_at = ? WHERE id = ? AND is_cancelled = 0`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to cancel reservation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	if _, err := db.GetReservation(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyCancelled
}

// ReservationQuery filters ListReservations. Zero fields are ignored.
type ReservationQuery struct {
	ResourceID       string
	AssociationID    string
	UserID           int64
	From             time.Time
	To               time.Time
	IncludeCancelled bool
}

func (db *DB) ListReservations(ctx context.Context, q ReservationQuery) ([]*models.Reservation, error) {
	var (
		conds []string
		args  []any
	)
	if !q.IncludeCancelled {
		conds = append(conds, "is_cancelled = 0")
	}
	if q.ResourceID != "" {
		conds = append(conds, "resource_id = ?")
		args = append(args, q.ResourceID)
	}
	if q.AssociationID != "" {
		conds = append(conds, "association_id = ?")
		args = append(args, q.AssociationID)
	}
	if q.UserID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, q.UserID)
	}
	if !q.From.IsZero() {
		conds = append(conds, "booking_date >= ?")
		args = append(args, q.From.Format(dateLayout))
	}
	if !q.To.IsZero() {
		conds = append(conds, "booking_date <= ?")
		args = append(args, q.To.Format(dateLayout))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY booking_date ASC, start_time ASC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
