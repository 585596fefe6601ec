package service

import (
	"context"

	"github.com/iliyamo/boardgame-meetup/internal/model"
)

// MembershipStore is the persisted membership relation.
type MembershipStore interface {
	MemberRole(ctx context.Context, groupID, userID uint64) (string, bool, error)
	Members(ctx context.Context, groupID uint64) ([]model.GroupMember, error)
}

// Membership answers group membership questions.  It never fails for
// "not a member"; it just answers false.
type Membership struct {
	Store MembershipStore
}

// IsMember reports whether actorID belongs to groupID.
func (m Membership) IsMember(ctx context.Context, groupID, actorID uint64) (bool, error) {
	_, ok, err := m.Store.MemberRole(ctx, groupID, actorID)
	return ok, err
}

// Role returns actorID's role in groupID, with ok=false for non-members.
func (m Membership) Role(ctx context.Context, groupID, actorID uint64) (role string, ok bool, err error) {
	return m.Store.MemberRole(ctx, groupID, actorID)
}

// Roster maps every current member of groupID to their display name.
func (m Membership) Roster(ctx context.Context, groupID uint64) (map[uint64]string, error) {
	members, err := m.Store.Members(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]string, len(members))
	for _, mem := range members {
		out[mem.UserID] = mem.DisplayName
	}
	return out, nil
}
