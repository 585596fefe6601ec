package model

import "time"

// Reservation statuses.
const (
    StatusConfirmed = "CONFIRMED"
    StatusCancelled = "CANCELLED"
)

// Reservation records a user's seat at a session.  At most one
// CONFIRMED reservation exists per (SessionID, UserID).
//
// Fields:
//  ID        – primary key identifier.
//  SessionID – session the seat belongs to.
//  UserID    – user holding the seat.
//  Status    – CONFIRMED or CANCELLED.
//  Message   – optional note for the host.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Reservation struct {
    ID        uint64    `json:"id"`                // reservations.id
    SessionID uint64    `json:"session_id"`        // reservations.session_id
    UserID    uint64    `json:"user_id"`           // reservations.user_id
    Status    string    `json:"status"`            // reservations.status
    Message   *string   `json:"message,omitempty"` // reservations.message (nullable)
    CreatedAt time.Time `json:"created_at"`        // reservations.created_at
    UpdatedAt time.Time `json:"updated_at"`        // reservations.updated_at
}

// UserSummary is the public projection of a user.
type UserSummary struct {
    ID          uint64 `json:"id"`
    DisplayName string `json:"display_name"`
    Email       string `json:"email,omitempty"`
}

// SessionSummary is the part of a session a reservation confirmation needs.
type SessionSummary struct {
    ID       uint64    `json:"id"`
    Title    string    `json:"title"`
    GameName string    `json:"game_name"`
    StartsAt time.Time `json:"starts_at"`
}

// LocationSummary is the part of a location a reservation confirmation needs.
type LocationSummary struct {
    ID      uint64 `json:"id"`
    Name    string `json:"name"`
    Address string `json:"address"`
}

// ReservationDetail is a reservation enriched with the reserving user,
// the session, its host and its location.
type ReservationDetail struct {
    Reservation
    User     UserSummary     `json:"user"`
    Session  SessionSummary  `json:"session"`
    Host     UserSummary     `json:"host"`
    Location LocationSummary `json:"location"`
}
