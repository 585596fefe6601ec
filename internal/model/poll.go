package model

import "time"

// Poll is a date poll inside a group.  Dates are kept in the order
// the creator declared them; that order decides ties.  Votes holds at
// most one entry per user, ordered by when the vote was cast.
type Poll struct {
    ID        uint64    `json:"id"`         // polls.id
    GroupID   uint64    `json:"group_id"`   // polls.group_id
    Title     string    `json:"title"`      // polls.title
    CreatedBy uint64    `json:"created_by"` // polls.created_by
    Dates     []string  `json:"dates"`      // poll_dates ordered by position
    Votes     []Vote    `json:"votes"`      // poll_votes ordered by id
    CreatedAt time.Time `json:"created_at"` // polls.created_at
}

// Vote is one user's choice in a poll.
type Vote struct {
    UserID  uint64    `json:"user_id"` // poll_votes.user_id
    Date    string    `json:"date"`    // poll_votes.chosen_date
    VotedAt time.Time `json:"voted_at"` // poll_votes.voted_at
}

// VoteOf returns the date chosen by userID, if any.
func (p Poll) VoteOf(userID uint64) (string, bool) {
    for _, v := range p.Votes {
        if v.UserID == userID {
            return v.Date, true
        }
    }
    return "", false
}

// HasDate reports whether d is one of the poll's candidate dates.
func (p Poll) HasDate(d string) bool {
    for _, x := range p.Dates {
        if x == d {
            return true
        }
    }
    return false
}

// Voter identifies who picked a date in a tally.
type Voter struct {
    UserID      uint64 `json:"user_id"`
    DisplayName string `json:"display_name"`
}

// PollTally is a poll together with its derived aggregates.
type PollTally struct {
    Poll        Poll               `json:"poll"`
    VoteCounts  map[string]int     `json:"vote_counts"`
    VoteDetails map[string][]Voter `json:"vote_details"`
    BestDate    *string            `json:"best_date"`
    TotalVotes  int                `json:"total_votes"`
}
