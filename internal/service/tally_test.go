package service

import (
	"testing"

	"github.com/iliyamo/boardgame-meetup/internal/model"
)

func TestComputeTally(t *testing.T) {
	dates := []string{"2025-10-25", "2025-10-26", "2025-11-01"}
	roster := map[uint64]string{1: "Ana", 2: "Ben", 3: "Cleo"}

	tests := []struct {
		name       string
		votes      []model.Vote
		wantCounts map[string]int
		wantBest   string // empty means nil
		wantTotal  int
	}{
		{
			name:       "no votes",
			wantCounts: map[string]int{"2025-10-25": 0, "2025-10-26": 0, "2025-11-01": 0},
		},
		{
			name:       "tie goes to first declared date",
			votes:      []model.Vote{{UserID: 1, Date: "2025-10-25"}, {UserID: 2, Date: "2025-10-26"}},
			wantCounts: map[string]int{"2025-10-25": 1, "2025-10-26": 1, "2025-11-01": 0},
			wantBest:   "2025-10-25",
			wantTotal:  2,
		},
		{
			name:       "tie order ignores vote order",
			votes:      []model.Vote{{UserID: 2, Date: "2025-11-01"}, {UserID: 1, Date: "2025-10-26"}},
			wantCounts: map[string]int{"2025-10-25": 0, "2025-10-26": 1, "2025-11-01": 1},
			wantBest:   "2025-10-26",
			wantTotal:  2,
		},
		{
			name: "plurality wins",
			votes: []model.Vote{
				{UserID: 1, Date: "2025-10-25"},
				{UserID: 2, Date: "2025-11-01"},
				{UserID: 3, Date: "2025-11-01"},
			},
			wantCounts: map[string]int{"2025-10-25": 1, "2025-10-26": 0, "2025-11-01": 2},
			wantBest:   "2025-11-01",
			wantTotal:  3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTally(model.Poll{Dates: dates, Votes: tt.votes}, roster)
			for d, want := range tt.wantCounts {
				if got.VoteCounts[d] != want {
					t.Errorf("VoteCounts[%s] = %d, want %d", d, got.VoteCounts[d], want)
				}
			}
			if len(got.VoteCounts) != len(dates) {
				t.Errorf("VoteCounts has %d keys, want %d", len(got.VoteCounts), len(dates))
			}
			switch {
			case tt.wantBest == "" && got.BestDate != nil:
				t.Errorf("BestDate = %q, want nil", *got.BestDate)
			case tt.wantBest != "" && (got.BestDate == nil || *got.BestDate != tt.wantBest):
				t.Errorf("BestDate = %v, want %q", got.BestDate, tt.wantBest)
			}
			if got.TotalVotes != tt.wantTotal {
				t.Errorf("TotalVotes = %d, want %d", got.TotalVotes, tt.wantTotal)
			}
		})
	}
}

func TestComputeTallyDetails(t *testing.T) {
	p := model.Poll{
		Dates: []string{"sat", "sun"},
		Votes: []model.Vote{
			{UserID: 2, Date: "sat"},
			{UserID: 9, Date: "sat"}, // left the group
			{UserID: 1, Date: "sat"},
		},
	}
	got := ComputeTally(p, map[uint64]string{1: "Ana", 2: "Ben"})

	if got.VoteCounts["sat"] != 3 || got.TotalVotes != 3 {
		t.Errorf("counts = %v total = %d, want sat=3 total=3", got.VoteCounts, got.TotalVotes)
	}
	sat := got.VoteDetails["sat"]
	if len(sat) != 2 || sat[0].DisplayName != "Ben" || sat[1].DisplayName != "Ana" {
		t.Errorf("VoteDetails[sat] = %+v, want [Ben Ana]", sat)
	}
	if sun, ok := got.VoteDetails["sun"]; !ok || len(sun) != 0 {
		t.Errorf("VoteDetails[sun] = %v, want empty list", sun)
	}
}

func TestComputeTallyBestDateIsCopy(t *testing.T) {
	p := model.Poll{Dates: []string{"a", "b"}, Votes: []model.Vote{{UserID: 1, Date: "b"}}}
	got := ComputeTally(p, nil)
	*got.BestDate = "changed"
	if p.Dates[1] != "b" {
		t.Errorf("poll dates mutated through BestDate: %v", p.Dates)
	}
}
