package model

import "time"

// Location is a venue where sessions are played: a café, a club room
// or somebody's living room.
type Location struct {
    ID        uint64    `json:"id"`         // locations.id
    Name      string    `json:"name"`       // locations.name
    Address   string    `json:"address"`    // locations.address
    CreatedBy uint64    `json:"created_by"` // locations.created_by
    CreatedAt time.Time `json:"created_at"` // locations.created_at
    UpdatedAt time.Time `json:"updated_at"` // locations.updated_at
}
