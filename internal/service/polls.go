package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/iliyamo/boardgame-meetup/internal/model"
	"github.com/iliyamo/boardgame-meetup/internal/repository"
)

const (
	minPollDates   = 2
	maxPollDates   = 20
	maxDateLen     = 64
	maxTitleLen    = 150
	voteRetryLimit = 5
	voteRetryBase  = 10 * time.Millisecond
)

// Polls runs date polls inside groups: creation, single-choice voting,
// vote removal and tallying.  Every write is member-only.
type Polls struct {
	Repo    *repository.PollRepo
	Members Membership
	Logger  *slog.Logger
}

// NewPolls wires the poll engine.
func NewPolls(repo *repository.PollRepo, members MembershipStore, logger *slog.Logger) *Polls {
	if repo == nil || members == nil {
		panic("nil dependency passed to NewPolls")
	}
	return &Polls{Repo: repo, Members: Membership{Store: members}, Logger: logger}
}

func (s *Polls) log() *slog.Logger { return resolveLogger(s.Logger) }

func (s *Polls) requireMember(ctx context.Context, groupID, actorID uint64) error {
	ok, err := s.Members.IsMember(ctx, groupID, actorID)
	if err != nil {
		return internalError(s.log(), "membership check", err)
	}
	if !ok {
		return fail(ErrNotAMember, "you are not a member of this group")
	}
	return nil
}

func (s *Polls) load(ctx context.Context, pollID uint64) (*model.Poll, error) {
	p, err := s.Repo.GetByID(ctx, pollID)
	if err != nil {
		if errors.Is(err, repository.ErrPollNotFound) {
			return nil, fail(ErrNotFound, "poll not found")
		}
		return nil, internalError(s.log(), "load poll", err)
	}
	return p, nil
}

// normalizeDates trims every candidate and rejects blanks, duplicates
// and lists shorter than two.  Order is kept as given.
func normalizeDates(dates []string) ([]string, error) {
	if len(dates) < minPollDates {
		return nil, fail(ErrInvalidArgument, "a poll needs at least two dates")
	}
	if len(dates) > maxPollDates {
		return nil, fail(ErrInvalidArgument, "a poll can have at most 20 dates")
	}
	out := make([]string, 0, len(dates))
	seen := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if d == "" || len(d) > maxDateLen {
			return nil, fail(ErrInvalidArgument, "dates must be non-empty and at most 64 characters")
		}
		if _, dup := seen[d]; dup {
			return nil, fail(ErrInvalidArgument, "dates must be unique")
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}

// CreatePoll opens a new poll in groupID with an empty vote map.
func (s *Polls) CreatePoll(ctx context.Context, groupID uint64, title string, dates []string, actorID uint64) (*model.Poll, error) {
	if err := s.requireMember(ctx, groupID, actorID); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" || len(title) > maxTitleLen {
		return nil, fail(ErrInvalidArgument, "title is required and must be at most 150 characters")
	}
	clean, err := normalizeDates(dates)
	if err != nil {
		return nil, err
	}
	p := &model.Poll{GroupID: groupID, Title: title, CreatedBy: actorID, Dates: clean}
	if err := s.Repo.Create(ctx, p); err != nil {
		return nil, internalError(s.log(), "create poll", err)
	}
	s.log().Info("poll created", "poll_id", p.ID, "group_id", groupID, "dates", len(clean))
	return p, nil
}

// Vote records actorID's single choice, replacing any earlier one.  A
// user may only vote for themselves.
func (s *Polls) Vote(ctx context.Context, pollID, actorID uint64, dateChoice string, authenticatedActorID uint64) (*model.Poll, error) {
	p, err := s.load(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, p.GroupID, authenticatedActorID); err != nil {
		return nil, err
	}
	if actorID != authenticatedActorID {
		return nil, fail(ErrForbidden, "you can only vote for yourself")
	}
	dateChoice = strings.TrimSpace(dateChoice)
	if !p.HasDate(dateChoice) {
		return nil, fail(ErrInvalidArgument, "date is not one of the poll's options")
	}

	for attempt := 1; ; attempt++ {
		err = s.Repo.UpsertVote(ctx, pollID, actorID, dateChoice)
		if err == nil || !repository.IsRetryable(err) || attempt == voteRetryLimit {
			break
		}
		s.log().Warn("vote conflict, retrying", "poll_id", pollID, "user_id", actorID, "attempt", attempt, "error", err)
		if !sleep(ctx, retryDelay(attempt)) {
			err = ctx.Err()
			break
		}
	}
	if errors.Is(err, repository.ErrPollNotFound) {
		return nil, fail(ErrNotFound, "poll not found")
	}
	if err != nil {
		return nil, internalError(s.log(), "vote", err)
	}
	return s.load(ctx, pollID)
}

// retryDelay doubles from voteRetryBase per attempt, with up to the
// same again of random jitter so colliding voters spread out.
func retryDelay(attempt int) time.Duration {
	d := voteRetryBase << (attempt - 1)
	return d + rand.N(d)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RemoveVote withdraws actorID's vote.  Removing a vote that does not
// exist succeeds and leaves the poll unchanged.
func (s *Polls) RemoveVote(ctx context.Context, pollID, actorID, authenticatedActorID uint64) (*model.Poll, error) {
	p, err := s.load(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, p.GroupID, authenticatedActorID); err != nil {
		return nil, err
	}
	if actorID != authenticatedActorID {
		return nil, fail(ErrForbidden, "you can only remove your own vote")
	}
	if _, voted := p.VoteOf(actorID); !voted {
		return p, nil
	}
	if err := s.Repo.DeleteVote(ctx, pollID, actorID); err != nil {
		return nil, internalError(s.log(), "remove vote", err)
	}
	return s.load(ctx, pollID)
}

// GetPollWithTally returns the poll and its tally computed from the
// current votes and the group's roster.
func (s *Polls) GetPollWithTally(ctx context.Context, pollID uint64) (*model.PollTally, error) {
	p, err := s.load(ctx, pollID)
	if err != nil {
		return nil, err
	}
	roster, err := s.Members.Roster(ctx, p.GroupID)
	if err != nil {
		return nil, internalError(s.log(), "load roster", err)
	}
	t := ComputeTally(*p, roster)
	return &t, nil
}

// ListPolls returns a group's polls to one of its members.
func (s *Polls) ListPolls(ctx context.Context, groupID, actorID uint64) ([]model.Poll, error) {
	if err := s.requireMember(ctx, groupID, actorID); err != nil {
		return nil, err
	}
	polls, err := s.Repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, internalError(s.log(), "list polls", err)
	}
	return polls, nil
}

// DeletePoll removes a poll.  Only group admins may do so.
func (s *Polls) DeletePoll(ctx context.Context, pollID, actorID uint64) error {
	p, err := s.load(ctx, pollID)
	if err != nil {
		return err
	}
	role, ok, err := s.Members.Role(ctx, p.GroupID, actorID)
	if err != nil {
		return internalError(s.log(), "membership check", err)
	}
	if !ok {
		return fail(ErrNotAMember, "you are not a member of this group")
	}
	if role != model.GroupRoleAdmin {
		return fail(ErrForbidden, "only group admins can delete polls")
	}
	if err := s.Repo.Delete(ctx, pollID); err != nil {
		if errors.Is(err, repository.ErrPollNotFound) {
			return fail(ErrNotFound, "poll not found")
		}
		return internalError(s.log(), "delete poll", err)
	}
	s.log().Info("poll deleted", "poll_id", pollID, "by", actorID)
	return nil
}
