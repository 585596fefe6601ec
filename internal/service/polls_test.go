package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/iliyamo/boardgame-meetup/internal/model"
	"github.com/iliyamo/boardgame-meetup/internal/repository"
	"github.com/iliyamo/boardgame-meetup/internal/testutil"
)

type pollFixture struct {
	db       *sql.DB
	polls    *Polls
	admin    model.User
	member   model.User
	outsider model.User
	group    model.Group
}

func setupPolls(t *testing.T) pollFixture {
	t.Helper()
	return newPollFixture(t, testutil.SetupTestDB(t))
}

func newPollFixture(t *testing.T, db *sql.DB) pollFixture {
	t.Helper()
	admin := testutil.CreateUser(t, db, "admin")
	member := testutil.CreateUser(t, db, "member")
	outsider := testutil.CreateUser(t, db, "outsider")
	g := testutil.CreateGroup(t, db, admin.ID, member.ID)
	polls := NewPolls(repository.NewPollRepo(db), repository.NewGroupRepo(db), nil)
	return pollFixture{db: db, polls: polls, admin: admin, member: member, outsider: outsider, group: g}
}

var octoberDates = []string{"2025-10-25", "2025-10-26", "2025-11-01"}

func (f pollFixture) createPoll(t *testing.T) *model.Poll {
	t.Helper()
	p, err := f.polls.CreatePoll(context.Background(), f.group.ID, "Next game night", octoberDates, f.admin.ID)
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	return p
}

func TestCreatePoll(t *testing.T) {
	f := setupPolls(t)
	ctx := context.Background()

	p, err := f.polls.CreatePoll(ctx, f.group.ID, " Next game night ", []string{" 2025-10-25", "2025-10-26 "}, f.member.ID)
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	if p.Title != "Next game night" || len(p.Dates) != 2 || p.Dates[0] != "2025-10-25" || p.Dates[1] != "2025-10-26" {
		t.Errorf("poll = %+v", p)
	}
	if len(p.Votes) != 0 {
		t.Errorf("new poll has votes: %v", p.Votes)
	}

	tests := []struct {
		name  string
		title string
		dates []string
		actor uint64
		want  error
	}{
		{"outsider", "x", octoberDates, f.outsider.ID, ErrNotAMember},
		{"one date", "x", []string{"2025-10-25"}, f.admin.ID, ErrInvalidArgument},
		{"blank date", "x", []string{"2025-10-25", "  "}, f.admin.ID, ErrInvalidArgument},
		{"duplicate after trim", "x", []string{"2025-10-25", " 2025-10-25"}, f.admin.ID, ErrInvalidArgument},
		{"blank title", "  ", octoberDates, f.admin.ID, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.polls.CreatePoll(ctx, f.group.ID, tt.title, tt.dates, tt.actor)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVoteReplacesEarlierChoice(t *testing.T) {
	f := setupPolls(t)
	ctx := context.Background()
	p := f.createPoll(t)

	if _, err := f.polls.Vote(ctx, p.ID, f.member.ID, "2025-10-25", f.member.ID); err != nil {
		t.Fatalf("Vote A: %v", err)
	}
	got, err := f.polls.Vote(ctx, p.ID, f.member.ID, "2025-11-01", f.member.ID)
	if err != nil {
		t.Fatalf("Vote B: %v", err)
	}
	if len(got.Votes) != 1 {
		t.Fatalf("votes = %+v, want exactly one", got.Votes)
	}
	if d, _ := got.VoteOf(f.member.ID); d != "2025-11-01" {
		t.Errorf("vote = %q, want 2025-11-01", d)
	}
}

func TestVoteRejections(t *testing.T) {
	f := setupPolls(t)
	ctx := context.Background()
	p := f.createPoll(t)

	tests := []struct {
		name          string
		pollID        uint64
		actor, authed uint64
		date          string
		want          error
	}{
		{"missing poll", 9999, f.member.ID, f.member.ID, "2025-10-25", ErrNotFound},
		{"outsider", p.ID, f.outsider.ID, f.outsider.ID, "2025-10-25", ErrNotAMember},
		{"for someone else", p.ID, f.admin.ID, f.member.ID, "2025-10-25", ErrForbidden},
		{"not a candidate", p.ID, f.member.ID, f.member.ID, "2025-12-24", ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.polls.Vote(ctx, tt.pollID, tt.actor, tt.date, tt.authed)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	after, err := f.polls.GetPollWithTally(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPollWithTally: %v", err)
	}
	if after.TotalVotes != 0 {
		t.Errorf("rejected votes were stored: %+v", after.Poll.Votes)
	}
}

func TestRemoveVoteIdempotent(t *testing.T) {
	f := setupPolls(t)
	ctx := context.Background()
	p := f.createPoll(t)
	if _, err := f.polls.Vote(ctx, p.ID, f.admin.ID, "2025-10-26", f.admin.ID); err != nil {
		t.Fatalf("Vote admin: %v", err)
	}
	if _, err := f.polls.Vote(ctx, p.ID, f.member.ID, "2025-10-25", f.member.ID); err != nil {
		t.Fatalf("Vote member: %v", err)
	}

	once, err := f.polls.RemoveVote(ctx, p.ID, f.member.ID, f.member.ID)
	if err != nil {
		t.Fatalf("RemoveVote: %v", err)
	}
	twice, err := f.polls.RemoveVote(ctx, p.ID, f.member.ID, f.member.ID)
	if err != nil {
		t.Fatalf("second RemoveVote: %v", err)
	}
	if len(once.Votes) != 1 || len(twice.Votes) != 1 || twice.Votes[0].UserID != f.admin.ID {
		t.Errorf("after one remove %+v, after two %+v", once.Votes, twice.Votes)
	}

	if _, err := f.polls.RemoveVote(ctx, p.ID, f.admin.ID, f.member.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("remove other's vote error = %v, want ErrForbidden", err)
	}
	if _, err := f.polls.RemoveVote(ctx, p.ID, f.outsider.ID, f.outsider.ID); !errors.Is(err, ErrNotAMember) {
		t.Errorf("outsider remove error = %v, want ErrNotAMember", err)
	}
}

func TestGetPollWithTally(t *testing.T) {
	f := setupPolls(t)
	ctx := context.Background()
	p := f.createPoll(t)
	if _, err := f.polls.Vote(ctx, p.ID, f.admin.ID, "2025-10-25", f.admin.ID); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if _, err := f.polls.Vote(ctx, p.ID, f.member.ID, "2025-10-26", f.member.ID); err != nil {
		t.Fatalf("Vote: %v", err)
	}

	tally, err := f.polls.GetPollWithTally(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPollWithTally: %v", err)
	}
	want := map[string]int{"2025-10-25": 1, "2025-10-26": 1, "2025-11-01": 0}
	for d, n := range want {
		if tally.VoteCounts[d] != n {
			t.Errorf("VoteCounts[%s] = %d, want %d", d, tally.VoteCounts[d], n)
		}
	}
	if tally.BestDate == nil || *tally.BestDate != "2025-10-25" {
		t.Errorf("BestDate = %v, want 2025-10-25", tally.BestDate)
	}
	if tally.TotalVotes != 2 {
		t.Errorf("TotalVotes = %d, want 2", tally.TotalVotes)
	}
	if v := tally.VoteDetails["2025-10-26"]; len(v) != 1 || v[0].DisplayName != "member" {
		t.Errorf("VoteDetails = %+v", tally.VoteDetails)
	}

	// A voter who left the group is still counted but no longer named.
	if err := repository.NewGroupRepo(f.db).RemoveMember(ctx, f.group.ID, f.member.ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	tally, err = f.polls.GetPollWithTally(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPollWithTally: %v", err)
	}
	if tally.VoteCounts["2025-10-26"] != 1 || len(tally.VoteDetails["2025-10-26"]) != 0 {
		t.Errorf("after leave counts = %v details = %v", tally.VoteCounts, tally.VoteDetails)
	}

	if _, err := f.polls.GetPollWithTally(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing poll error = %v, want ErrNotFound", err)
	}
}

func TestConcurrentVotesFromDifferentMembers(t *testing.T) {
	f := newPollFixture(t, testutil.SetupPooledTestDB(t, 8))
	ctx := context.Background()
	groups := repository.NewGroupRepo(f.db)
	p := f.createPoll(t)

	const voters = 8
	ids := make([]uint64, voters)
	for i := range ids {
		u := testutil.CreateUser(t, f.db, fmt.Sprintf("voter%d", i))
		if err := groups.AddMember(ctx, f.group.ID, u.ID, model.GroupRoleMember); err != nil {
			t.Fatalf("AddMember: %v", err)
		}
		ids[i] = u.ID
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	want := make(map[string]int)
	for i, id := range ids {
		date := octoberDates[i%len(octoberDates)]
		want[date]++
		wg.Add(1)
		go func(id uint64, date string) {
			defer wg.Done()
			<-start
			if _, err := f.polls.Vote(ctx, p.ID, id, date, id); err != nil {
				t.Errorf("Vote(%d): %v", id, err)
			}
		}(id, date)
	}
	close(start)
	wg.Wait()

	tally, err := f.polls.GetPollWithTally(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPollWithTally: %v", err)
	}
	if tally.TotalVotes != voters {
		t.Errorf("TotalVotes = %d, want %d", tally.TotalVotes, voters)
	}
	for date, n := range want {
		if tally.VoteCounts[date] != n {
			t.Errorf("VoteCounts[%s] = %d, want %d", date, tally.VoteCounts[date], n)
		}
	}
}

func TestConcurrentRevotesKeepOneRow(t *testing.T) {
	f := newPollFixture(t, testutil.SetupPooledTestDB(t, 8))
	ctx := context.Background()
	p := f.createPoll(t)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(date string) {
			defer wg.Done()
			<-start
			if _, err := f.polls.Vote(ctx, p.ID, f.member.ID, date, f.member.ID); err != nil {
				t.Errorf("Vote(%s): %v", date, err)
			}
		}(octoberDates[i%len(octoberDates)])
	}
	close(start)
	wg.Wait()

	got, err := f.polls.GetPollWithTally(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPollWithTally: %v", err)
	}
	if got.TotalVotes != 1 {
		t.Errorf("TotalVotes = %d, want 1", got.TotalVotes)
	}
}

func TestRevoteMovesToEnd(t *testing.T) {
	f := setupPolls(t)
	ctx := context.Background()
	p := f.createPoll(t)

	for _, v := range []struct {
		user uint64
		date string
	}{
		{f.member.ID, "2025-10-25"},
		{f.admin.ID, "2025-10-26"},
		{f.member.ID, "2025-11-01"},
	} {
		if _, err := f.polls.Vote(ctx, p.ID, v.user, v.date, v.user); err != nil {
			t.Fatalf("Vote: %v", err)
		}
	}
	got, err := f.polls.GetPollWithTally(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPollWithTally: %v", err)
	}
	votes := got.Poll.Votes
	if len(votes) != 2 || votes[0].UserID != f.admin.ID || votes[1].UserID != f.member.ID {
		t.Errorf("votes = %+v, want admin then member", votes)
	}
}

func TestRetryDelay(t *testing.T) {
	for attempt := 1; attempt <= 4; attempt++ {
		floor := voteRetryBase << (attempt - 1)
		for i := 0; i < 50; i++ {
			if d := retryDelay(attempt); d < floor || d >= 2*floor {
				t.Fatalf("retryDelay(%d) = %v, want in [%v, %v)", attempt, d, floor, 2*floor)
			}
		}
	}
}

func TestListPolls(t *testing.T) {
	f := setupPolls(t)
	ctx := context.Background()
	first := f.createPoll(t)
	second := f.createPoll(t)

	got, err := f.polls.ListPolls(ctx, f.group.ID, f.member.ID)
	if err != nil {
		t.Fatalf("ListPolls: %v", err)
	}
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("ListPolls = %+v, want newest first", got)
	}
	if _, err := f.polls.ListPolls(ctx, f.group.ID, f.outsider.ID); !errors.Is(err, ErrNotAMember) {
		t.Errorf("outsider error = %v, want ErrNotAMember", err)
	}
}

func TestDeletePollAdminOnly(t *testing.T) {
	f := setupPolls(t)
	ctx := context.Background()
	p := f.createPoll(t)
	if _, err := f.polls.Vote(ctx, p.ID, f.member.ID, "2025-10-25", f.member.ID); err != nil {
		t.Fatalf("Vote: %v", err)
	}

	if err := f.polls.DeletePoll(ctx, p.ID, f.outsider.ID); !errors.Is(err, ErrNotAMember) {
		t.Errorf("outsider delete error = %v, want ErrNotAMember", err)
	}
	if err := f.polls.DeletePoll(ctx, p.ID, f.member.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("member delete error = %v, want ErrForbidden", err)
	}
	if err := f.polls.DeletePoll(ctx, p.ID, f.admin.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := f.polls.GetPollWithTally(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete error = %v, want ErrNotFound", err)
	}
	if err := f.polls.DeletePoll(ctx, p.ID, f.admin.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestErrorKindsAreExclusive(t *testing.T) {
	kinds := []error{ErrNotFound, ErrCapacityExceeded, ErrDuplicate, ErrForbidden, ErrNotAMember, ErrInvalidArgument, ErrInternal}
	err := fail(ErrDuplicate, "dup")
	matched := 0
	for _, k := range kinds {
		if errors.Is(err, k) {
			matched++
		}
	}
	if matched != 1 {
		t.Errorf("error matched %d kinds, want 1", matched)
	}
	var se *Error
	if !errors.As(err, &se) || se.Message != "dup" {
		t.Errorf("errors.As = %+v", se)
	}
}
