package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/boardgame-meetup/internal/model"
)

// LocationRepo manages persistence for locations.
type LocationRepo struct {
	db *sql.DB
}

// NewLocationRepo constructs a LocationRepo with the given DB handle.
func NewLocationRepo(db *sql.DB) *LocationRepo { return &LocationRepo{db: db} }

// Create inserts a location and fills in its ID and timestamps.
func (r *LocationRepo) Create(ctx context.Context, l *model.Location) error {
	now := time.Now().UTC()
	l.Name = strings.TrimSpace(l.Name)
	l.Address = strings.TrimSpace(l.Address)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO locations (name, address, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		l.Name, l.Address, l.CreatedBy, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	l.CreatedAt, l.UpdatedAt = now, now
	return nil
}

// GetByID retrieves a location.  It returns ErrLocationNotFound if
// there is no matching row.
func (r *LocationRepo) GetByID(ctx context.Context, id uint64) (*model.Location, error) {
	const q = `SELECT id, name, address, created_by, created_at, updated_at FROM locations WHERE id = ?`
	var l model.Location
	err := r.db.QueryRowContext(ctx, q, id).Scan(&l.ID, &l.Name, &l.Address, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// List returns all locations ordered by name.
func (r *LocationRepo) List(ctx context.Context) ([]model.Location, error) {
	const q = `SELECT id, name, address, created_by, created_at, updated_at FROM locations ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Location, 0)
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Address, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
