package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/boardgame-meetup/internal/model"
)

// GroupRepo persists groups and the membership relation.  The
// membership table is the source of truth for every member-only check.
type GroupRepo struct {
	db *sql.DB
}

// NewGroupRepo returns a GroupRepo bound to db.
func NewGroupRepo(db *sql.DB) *GroupRepo { return &GroupRepo{db: db} }

// Create inserts a group and enrols its creator as ADMIN in a single
// transaction.
func (r *GroupRepo) Create(ctx context.Context, g *model.Group) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	now := time.Now().UTC()
	g.Name = strings.TrimSpace(g.Name)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO play_groups (name, description, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		g.Name, g.Description, g.CreatedBy, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		id, g.CreatedBy, model.GroupRoleAdmin, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	g.ID = uint64(id)
	g.CreatedAt, g.UpdatedAt = now, now
	return nil
}

func scanGroup(sc interface{ Scan(...any) error }) (model.Group, error) {
	var (
		g    model.Group
		desc sql.NullString
	)
	err := sc.Scan(&g.ID, &g.Name, &desc, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt)
	if desc.Valid {
		g.Description = &desc.String
	}
	return g, err
}

// GetByID returns a group or ErrGroupNotFound.
func (r *GroupRepo) GetByID(ctx context.Context, id uint64) (*model.Group, error) {
	g, err := scanGroup(r.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_by, created_at, updated_at FROM play_groups WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListByUser returns the groups userID belongs to.
func (r *GroupRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.description, g.created_by, g.created_at, g.updated_at
		 FROM play_groups g JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ? ORDER BY g.name, g.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// AddMember enrols userID with the given role.  It returns ErrConflict
// when the user is already a member.
func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID uint64, role string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		groupID, userID, role, time.Now().UTC())
	if isDuplicateKey(err) {
		return ErrConflict
	}
	return err
}

// RemoveMember deletes the membership row; it is not an error when
// none exists.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
	return err
}

// MemberRole returns the role of userID in groupID and false when the
// user is not a member.
func (r *GroupRepo) MemberRole(ctx context.Context, groupID, userID uint64) (string, bool, error) {
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

// CountAdmins returns how many ADMIN members a group has.
func (r *GroupRepo) CountAdmins(ctx context.Context, groupID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = ? AND role = ?`, groupID, model.GroupRoleAdmin).Scan(&n)
	return n, err
}

// Members returns the member roster in join order.
func (r *GroupRepo) Members(ctx context.Context, groupID uint64) ([]model.GroupMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.group_id, m.user_id, u.display_name, m.role, m.joined_at
		 FROM group_members m JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = ? ORDER BY m.joined_at, m.user_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.GroupMember, 0)
	for rows.Next() {
		var m model.GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.DisplayName, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
