package service

import "context"

// Notification kinds sent after a reservation.
const (
	KindReservationConfirmed = "reservation_confirmed" // to the guest
	KindReservationReceived  = "reservation_received"  // to the host
)

// Notifier delivers a templated notification to a recipient address.
// Implementations may be slow or fail; the ledger calls them off the
// request path and only logs errors.
type Notifier interface {
	Notify(ctx context.Context, kind, recipient string, data map[string]any) error
}
