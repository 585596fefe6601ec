package model

import "time"

// Seat limits for a session.
const (
    MinSeats = 2
    MaxSeats = 12
)

// Session represents a scheduled play session hosted by a user at a
// location.  SeatsTaken is a denormalised count of CONFIRMED
// reservations and is only ever changed by the reservation ledger,
// inside the same transaction that inserts or removes the
// reservation row.
//
// Fields:
//  ID         – primary key identifier.
//  HostID     – user hosting the session.
//  LocationID – where the session takes place.
//  Title      – short headline shown in listings.
//  GameName   – game that will be played.
//  StartsAt   – when the session begins (UTC).
//  SeatsMax   – capacity, between MinSeats and MaxSeats.
//  SeatsTaken – number of confirmed reservations, 0..SeatsMax.
type Session struct {
    ID         uint64    `json:"id"`          // sessions.id
    HostID     uint64    `json:"host_id"`     // sessions.host_id
    LocationID uint64    `json:"location_id"` // sessions.location_id
    Title      string    `json:"title"`       // sessions.title
    GameName   string    `json:"game_name"`   // sessions.game_name
    StartsAt   time.Time `json:"starts_at"`   // sessions.starts_at
    SeatsMax   int       `json:"seats_max"`   // sessions.seats_max
    SeatsTaken int       `json:"seats_taken"` // sessions.seats_taken
    CreatedAt  time.Time `json:"created_at"`  // sessions.created_at
    UpdatedAt  time.Time `json:"updated_at"`  // sessions.updated_at
}

// SeatsLeft returns the number of seats still available.
func (s Session) SeatsLeft() int { return s.SeatsMax - s.SeatsTaken }
