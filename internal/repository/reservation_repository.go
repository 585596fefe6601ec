package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/boardgame-meetup/internal/model"
)

// ReservationRepo provides CRUD operations for reservations.  All
// writes are Tx variants: reservations only change together with the
// owning session's seat counter, so callers always hold a
// transaction.  All timestamp fields are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// CreateTx inserts a new reservation within the scope of an existing
// transaction.  It populates the generated ID and timestamps on the
// provided record.  The caller must commit or rollback the transaction.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	now := time.Now().UTC()
	const q = `INSERT INTO reservations (session_id, user_id, status, message, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	out, err := tx.ExecContext(ctx, q, res.SessionID, res.UserID, res.Status, res.Message, now, now)
	if err != nil {
		return err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	res.CreatedAt, res.UpdatedAt = now, now
	return nil
}

// HasConfirmedTx reports whether userID already holds a CONFIRMED
// reservation for sessionID.
func (r *ReservationRepo) HasConfirmedTx(ctx context.Context, tx *sql.Tx, sessionID, userID uint64) (bool, error) {
	const q = `SELECT id FROM reservations WHERE session_id = ? AND user_id = ? AND status = ? LIMIT 1`
	var id uint64
	err := tx.QueryRowContext(ctx, q, sessionID, userID, model.StatusConfirmed).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetTx loads a reservation together with the host of its session.  It
// returns ErrReservationNotFound when no row matches.
func (r *ReservationRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, uint64, error) {
	const q = `SELECT r.id, r.session_id, r.user_id, r.status, r.message, r.created_at, r.updated_at, s.host_id
	           FROM reservations r JOIN sessions s ON s.id = r.session_id
	           WHERE r.id = ?`
	var (
		res    model.Reservation
		msg    sql.NullString
		hostID uint64
	)
	err := tx.QueryRowContext(ctx, q, id).Scan(&res.ID, &res.SessionID, &res.UserID, &res.Status, &msg, &res.CreatedAt, &res.UpdatedAt, &hostID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrReservationNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	if msg.Valid {
		res.Message = &msg.String
	}
	return &res, hostID, nil
}

// DeleteWithStatusTx removes a reservation row only while it is in the
// given status and reports whether a row was removed.  Matching on the
// status in the DELETE itself means the row lock and the status check
// are one step, so a concurrent status change cannot slip in between.
func (r *ReservationRepo) DeleteWithStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ? AND status = ?`, id, status)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TransitionTx moves a reservation from one status to another.  It
// reports false when the reservation was not in status `from`, which
// lets callers tie a counter change to exactly one transition.
func (r *ReservationRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const detailSelect = `SELECT r.id, r.session_id, r.user_id, r.status, r.message, r.created_at, r.updated_at,
       u.id, u.display_name, u.email,
       s.id, s.title, s.game_name, s.starts_at,
       h.id, h.display_name, h.email,
       l.id, l.name, l.address
FROM reservations r
JOIN users u ON u.id = r.user_id
JOIN sessions s ON s.id = r.session_id
JOIN users h ON h.id = s.host_id
JOIN locations l ON l.id = s.location_id`

func scanDetail(sc interface{ Scan(...any) error }) (model.ReservationDetail, error) {
	var (
		d   model.ReservationDetail
		msg sql.NullString
	)
	err := sc.Scan(
		&d.ID, &d.SessionID, &d.UserID, &d.Status, &msg, &d.CreatedAt, &d.UpdatedAt,
		&d.User.ID, &d.User.DisplayName, &d.User.Email,
		&d.Session.ID, &d.Session.Title, &d.Session.GameName, &d.Session.StartsAt,
		&d.Host.ID, &d.Host.DisplayName, &d.Host.Email,
		&d.Location.ID, &d.Location.Name, &d.Location.Address,
	)
	if msg.Valid {
		d.Message = &msg.String
	}
	return d, err
}

// GetDetailTx returns the enriched reservation inside the caller's transaction.
func (r *ReservationRepo) GetDetailTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.ReservationDetail, error) {
	d, err := scanDetail(tx.QueryRowContext(ctx, detailSelect+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDetail returns the enriched reservation.
func (r *ReservationRepo) GetDetail(ctx context.Context, id uint64) (*model.ReservationDetail, error) {
	d, err := scanDetail(r.db.QueryRowContext(ctx, detailSelect+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// List returns every reservation, newest first.
func (r *ReservationRepo) List(ctx context.Context) ([]model.ReservationDetail, error) {
	return r.list(ctx, detailSelect+` ORDER BY r.created_at DESC, r.id DESC`)
}

// ListByUser returns the reservations held by userID, newest first.
// When no reservations exist an empty slice is returned.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.ReservationDetail, error) {
	return r.list(ctx, detailSelect+` WHERE r.user_id = ? ORDER BY r.created_at DESC, r.id DESC`, userID)
}

// ListBySession returns the reservations of one session in booking order.
func (r *ReservationRepo) ListBySession(ctx context.Context, sessionID uint64) ([]model.ReservationDetail, error) {
	return r.list(ctx, detailSelect+` WHERE r.session_id = ? ORDER BY r.created_at, r.id`, sessionID)
}

func (r *ReservationRepo) list(ctx context.Context, q string, args ...any) ([]model.ReservationDetail, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ReservationDetail, 0)
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
