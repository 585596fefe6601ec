package service

import "github.com/iliyamo/boardgame-meetup/internal/model"

// ComputeTally derives counts, voter rosters and the leading date from
// a poll.  Every candidate date is present in VoteCounts, zero included.
// Voters missing from roster still count but are left out of
// VoteDetails.  BestDate is the first date, in declaration order, that
// reaches the highest count; it is nil while nobody has voted.
func ComputeTally(p model.Poll, roster map[uint64]string) model.PollTally {
	counts := make(map[string]int, len(p.Dates))
	details := make(map[string][]model.Voter, len(p.Dates))
	for _, d := range p.Dates {
		counts[d] = 0
		details[d] = []model.Voter{}
	}
	for _, v := range p.Votes {
		if _, ok := counts[v.Date]; !ok {
			continue
		}
		counts[v.Date]++
		if name, ok := roster[v.UserID]; ok {
			details[v.Date] = append(details[v.Date], model.Voter{UserID: v.UserID, DisplayName: name})
		}
	}

	var best *string
	bestCount := 0
	for i := range p.Dates {
		d := p.Dates[i]
		if counts[d] > bestCount {
			best = &p.Dates[i]
			bestCount = counts[d]
		}
	}
	if best != nil {
		b := *best
		best = &b
	}

	return model.PollTally{
		Poll:        p,
		VoteCounts:  counts,
		VoteDetails: details,
		BestDate:    best,
		TotalVotes:  len(p.Votes),
	}
}
