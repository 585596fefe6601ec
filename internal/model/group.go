package model

import "time"

// Group member roles.
const (
    GroupRoleAdmin  = "ADMIN"
    GroupRoleMember = "MEMBER"
)

// Group is a circle of players that runs date polls together.
type Group struct {
    ID          uint64    `json:"id"`                    // groups.id
    Name        string    `json:"name"`                  // groups.name
    Description *string   `json:"description,omitempty"` // groups.description (nullable)
    CreatedBy   uint64    `json:"created_by"`            // groups.created_by
    CreatedAt   time.Time `json:"created_at"`            // groups.created_at
    UpdatedAt   time.Time `json:"updated_at"`            // groups.updated_at
}

// GroupMember is a row of the membership relation.  There is exactly
// one row per (GroupID, UserID).
type GroupMember struct {
    GroupID     uint64    `json:"group_id"`     // group_members.group_id
    UserID      uint64    `json:"user_id"`      // group_members.user_id
    DisplayName string    `json:"display_name"` // users.display_name
    Role        string    `json:"role"`         // group_members.role
    JoinedAt    time.Time `json:"joined_at"`    // group_members.joined_at
}
