package service

import (
	"context"
	"testing"

	"github.com/iliyamo/boardgame-meetup/internal/model"
	"github.com/iliyamo/boardgame-meetup/internal/repository"
	"github.com/iliyamo/boardgame-meetup/internal/testutil"
)

func TestMembership(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, db, "admin")
	member := testutil.CreateUser(t, db, "member")
	outsider := testutil.CreateUser(t, db, "outsider")
	g := testutil.CreateGroup(t, db, admin.ID, member.ID)
	m := Membership{Store: repository.NewGroupRepo(db)}

	tests := []struct {
		name     string
		actor    uint64
		wantOK   bool
		wantRole string
	}{
		{"admin", admin.ID, true, model.GroupRoleAdmin},
		{"member", member.ID, true, model.GroupRoleMember},
		{"outsider", outsider.ID, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := m.IsMember(ctx, g.ID, tt.actor)
			if err != nil {
				t.Fatalf("IsMember: %v", err)
			}
			if ok != tt.wantOK {
				t.Errorf("IsMember = %v, want %v", ok, tt.wantOK)
			}
			role, ok, err := m.Role(ctx, g.ID, tt.actor)
			if err != nil {
				t.Fatalf("Role: %v", err)
			}
			if ok != tt.wantOK || role != tt.wantRole {
				t.Errorf("Role = %q, %v; want %q, %v", role, ok, tt.wantRole, tt.wantOK)
			}
		})
	}

	roster, err := m.Roster(ctx, g.ID)
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(roster) != 2 || roster[admin.ID] != admin.DisplayName || roster[member.ID] != member.DisplayName {
		t.Errorf("roster = %v", roster)
	}

	// Unknown groups have nobody in them.
	if ok, err := m.IsMember(ctx, g.ID+100, admin.ID); err != nil || ok {
		t.Errorf("IsMember(unknown group) = %v, %v", ok, err)
	}
}
