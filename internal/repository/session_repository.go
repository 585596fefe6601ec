// Package repository contains data access logic for play sessions. A
// Session is a scheduled game night hosted by a user at a location. The
// seats_taken column is owned by the reservation ledger: the only
// statements that change it are IncrementSeatTx and DecrementSeatTx,
// and both must run inside the transaction that inserts or removes the
// matching reservation row.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/boardgame-meetup/internal/model"
)

// SessionRepo manages persistence for sessions.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo constructs a SessionRepo with the given DB handle.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// DB exposes the underlying sql.DB.  It allows callers to begin
// transactions spanning multiple repositories.
func (r *SessionRepo) DB() *sql.DB {
	return r.db
}

const sessionColumns = `id, host_id, location_id, title, game_name, starts_at, seats_max, seats_taken, created_at, updated_at`

func scanSession(sc interface{ Scan(...any) error }) (model.Session, error) {
	var s model.Session
	err := sc.Scan(&s.ID, &s.HostID, &s.LocationID, &s.Title, &s.GameName, &s.StartsAt, &s.SeatsMax, &s.SeatsTaken, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Create inserts a new session with zero seats taken and assigns the
// generated ID back to the session struct.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	now := time.Now().UTC()
	const q = `INSERT INTO sessions (host_id, location_id, title, game_name, starts_at, seats_max, seats_taken, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, s.HostID, s.LocationID, s.Title, s.GameName, s.StartsAt.UTC(), s.SeatsMax, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.SeatsTaken = 0
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

// GetByID retrieves a session by its ID.  It returns ErrSessionNotFound
// if there is no matching row.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByIDTx is GetByID inside the caller's transaction.
func (r *SessionRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Session, error) {
	s, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListUpcoming returns sessions starting at or after `from`, soonest first.
func (r *SessionRepo) ListUpcoming(ctx context.Context, from time.Time) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE starts_at >= ? ORDER BY starts_at, id`, from.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteByIDAndHost removes a session owned by hostID.  Reservations
// cascade.  It returns ErrSessionNotFound when the session does not
// exist and ErrForbidden when it belongs to another host.
func (r *SessionRepo) DeleteByIDAndHost(ctx context.Context, id, hostID uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND host_id = ?`, id, hostID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var owner uint64
	err = r.db.QueryRowContext(ctx, `SELECT host_id FROM sessions WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	return ErrForbidden
}

// IncrementSeatTx atomically takes one seat if any is left.  The
// conditional UPDATE doubles as the per-session serialisation point:
// it holds the session row's write lock until the transaction ends, so
// concurrent reservations on the same session queue up behind it.  It
// reports false when no row was changed, meaning the session is either
// full or missing.
func (r *SessionRepo) IncrementSeatTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET seats_taken = seats_taken + 1, updated_at = ? WHERE id = ? AND seats_taken < seats_max`,
		time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DecrementSeatTx releases one seat.  It never lets seats_taken drop
// below zero and reports false when nothing was released.
func (r *SessionRepo) DecrementSeatTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET seats_taken = seats_taken - 1, updated_at = ? WHERE id = ? AND seats_taken > 0`,
		time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
