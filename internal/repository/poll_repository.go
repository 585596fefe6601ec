package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/boardgame-meetup/internal/model"
)

// PollRepo persists date polls.  A poll's candidate dates live in
// poll_dates (position preserves declaration order) and its votes in
// poll_votes, one row per (poll, user), so two users voting at once
// touch different rows and can never overwrite each other.
type PollRepo struct {
	db         *sql.DB
	upsertVote string
}

// NewPollRepo returns a PollRepo bound to db.
func NewPollRepo(db *sql.DB) *PollRepo {
	q := sqliteUpsertVote
	if isMySQL(db) {
		q = mysqlUpsertVote
	}
	return &PollRepo{db: db, upsertVote: q}
}

// Create inserts the poll and its ordered dates in one transaction.
func (r *PollRepo) Create(ctx context.Context, p *model.Poll) error {
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
	p.Title = strings.TrimSpace(p.Title)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO polls (group_id, title, created_by, created_at) VALUES (?, ?, ?, ?)`,
		p.GroupID, p.Title, p.CreatedBy, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for i, d := range p.Dates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO poll_dates (poll_id, position, date_value) VALUES (?, ?, ?)`, id, i, d); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	p.ID = uint64(id)
	p.CreatedAt = now
	p.Votes = []model.Vote{}
	return nil
}

// GetByID loads a poll with its dates and votes.  It returns
// ErrPollNotFound when the poll does not exist.
func (r *PollRepo) GetByID(ctx context.Context, id uint64) (*model.Poll, error) {
	var p model.Poll
	err := r.db.QueryRowContext(ctx,
		`SELECT id, group_id, title, created_by, created_at FROM polls WHERE id = ?`, id).
		Scan(&p.ID, &p.GroupID, &p.Title, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPollNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Dates, err = r.dates(ctx, id); err != nil {
		return nil, err
	}
	if p.Votes, err = r.votes(ctx, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PollRepo) dates(ctx context.Context, pollID uint64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT date_value FROM poll_dates WHERE poll_id = ? ORDER BY position`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PollRepo) votes(ctx context.Context, pollID uint64) ([]model.Vote, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, chosen_date, voted_at FROM poll_votes WHERE poll_id = ? ORDER BY voted_at, id`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Vote, 0)
	for rows.Next() {
		var v model.Vote
		if err := rows.Scan(&v.UserID, &v.Date, &v.VotedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListByGroup returns a group's polls, newest first, with dates and votes.
func (r *PollRepo) ListByGroup(ctx context.Context, groupID uint64) ([]model.Poll, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM polls WHERE group_id = ? ORDER BY created_at DESC, id DESC`, groupID)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	out := make([]model.Poll, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetByID(ctx, id)
		if errors.Is(err, ErrPollNotFound) {
			continue // deleted in between
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// UpsertVote sets userID's vote to date in a single statement,
// replacing any earlier choice.  voted_at is refreshed on every call so
// votes read back in the order of each voter's latest choice.  It
// returns ErrPollNotFound when the poll was deleted underneath.
func (r *PollRepo) UpsertVote(ctx context.Context, pollID, userID uint64, date string) error {
	_, err := r.db.ExecContext(ctx, r.upsertVote, pollID, userID, date, time.Now().UTC())
	if isForeignKeyViolation(err) {
		return ErrPollNotFound
	}
	return err
}

// DeleteVote removes userID's vote.  A missing vote is not an error.
func (r *PollRepo) DeleteVote(ctx context.Context, pollID, userID uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM poll_votes WHERE poll_id = ? AND user_id = ?`, pollID, userID)
	return err
}

// Delete removes a poll; dates and votes cascade.
func (r *PollRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM polls WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPollNotFound
	}
	return nil
}
