package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/boardgame-meetup/internal/model"
	"github.com/iliyamo/boardgame-meetup/internal/repository"
)

const maxMessageLen = 500

// Ledger owns the seat counters of sessions and the reservation rows
// that back them.  Invariant: for every session, seats_taken equals the
// number of CONFIRMED reservations and stays within 0..seats_max.  Both
// are only changed together, inside one transaction.
type Ledger struct {
	DB            *sql.DB
	Sessions      *repository.SessionRepo
	Reservations  *repository.ReservationRepo
	Users         *repository.UserRepo
	Notifier      Notifier
	Logger        *slog.Logger
	NotifyTimeout time.Duration

	// dispatch runs post-commit side effects; nil means a new goroutine.
	dispatch func(func())
}

// NewLedger wires a Ledger.  notifier may be nil to disable notifications.
func NewLedger(db *sql.DB, sessions *repository.SessionRepo, reservations *repository.ReservationRepo, users *repository.UserRepo, notifier Notifier, logger *slog.Logger) *Ledger {
	if db == nil || sessions == nil || reservations == nil || users == nil {
		panic("nil dependency passed to NewLedger")
	}
	return &Ledger{
		DB:            db,
		Sessions:      sessions,
		Reservations:  reservations,
		Users:         users,
		Notifier:      notifier,
		Logger:        logger,
		NotifyTimeout: 10 * time.Second,
	}
}

func (l *Ledger) log() *slog.Logger { return resolveLogger(l.Logger) }

// withTx runs fn in a transaction and commits when fn returns nil.
func (l *Ledger) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return internalError(l.log(), op+": begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return internalError(l.log(), op+": commit", err)
	}
	committed = true
	return nil
}

// Reserve takes one seat at sessionID for actorID.  The seat is taken
// with a conditional increment first; that statement locks the session
// row, so the existence, capacity and duplicate checks that follow
// cannot race with another Reserve or Cancel on the same session.  Any
// failure rolls the increment back.
func (l *Ledger) Reserve(ctx context.Context, sessionID, actorID uint64, message *string) (*model.ReservationDetail, error) {
	if message != nil {
		m := strings.TrimSpace(*message)
		if len(m) > maxMessageLen {
			return nil, fail(ErrInvalidArgument, "message is too long")
		}
		if m == "" {
			message = nil
		} else {
			message = &m
		}
	}

	var detail *model.ReservationDetail
	err := l.withTx(ctx, "reserve", func(tx *sql.Tx) error {
		took, err := l.Sessions.IncrementSeatTx(ctx, tx, sessionID)
		if err != nil {
			return internalError(l.log(), "reserve: take seat", err)
		}
		if !took {
			if _, err := l.Sessions.GetByIDTx(ctx, tx, sessionID); err != nil {
				if errors.Is(err, repository.ErrSessionNotFound) {
					return fail(ErrNotFound, "session not found")
				}
				return internalError(l.log(), "reserve: load session", err)
			}
			// A guest already seated at a full session is told so.
			dup, err := l.Reservations.HasConfirmedTx(ctx, tx, sessionID, actorID)
			if err != nil {
				return internalError(l.log(), "reserve: duplicate check", err)
			}
			if dup {
				return fail(ErrDuplicate, "you already have a seat at this session")
			}
			return fail(ErrCapacityExceeded, "session is full")
		}
		if _, err := l.Users.GetByIDTx(ctx, tx, actorID); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return fail(ErrNotFound, "user not found")
			}
			return internalError(l.log(), "reserve: load user", err)
		}
		dup, err := l.Reservations.HasConfirmedTx(ctx, tx, sessionID, actorID)
		if err != nil {
			return internalError(l.log(), "reserve: duplicate check", err)
		}
		if dup {
			return fail(ErrDuplicate, "you already have a seat at this session")
		}
		res := &model.Reservation{
			SessionID: sessionID,
			UserID:    actorID,
			Status:    model.StatusConfirmed,
			Message:   message,
		}
		if err := l.Reservations.CreateTx(ctx, tx, res); err != nil {
			return internalError(l.log(), "reserve: insert", err)
		}
		detail, err = l.Reservations.GetDetailTx(ctx, tx, res.ID)
		if err != nil {
			return internalError(l.log(), "reserve: load detail", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log().Info("reservation confirmed", "reservation_id", detail.ID, "session_id", sessionID, "user_id", actorID)
	l.notifyReserved(*detail)
	return detail, nil
}

// Cancel removes a reservation and releases its seat when it was
// CONFIRMED.  The seat counter and the row change in one transaction.
func (l *Ledger) Cancel(ctx context.Context, reservationID uint64) (*model.Reservation, error) {
	return l.cancel(ctx, reservationID, nil)
}

// CancelFor is Cancel restricted to the reserving user or the host of
// the reservation's session.
func (l *Ledger) CancelFor(ctx context.Context, reservationID, actorID uint64) (*model.Reservation, error) {
	return l.cancel(ctx, reservationID, &actorID)
}

func (l *Ledger) cancel(ctx context.Context, reservationID uint64, actorID *uint64) (*model.Reservation, error) {
	var out *model.Reservation
	err := l.withTx(ctx, "cancel", func(tx *sql.Tx) error {
		res, hostID, err := l.Reservations.GetTx(ctx, tx, reservationID)
		if err != nil {
			if errors.Is(err, repository.ErrReservationNotFound) {
				return fail(ErrNotFound, "reservation not found")
			}
			return internalError(l.log(), "cancel: load", err)
		}
		if actorID != nil && *actorID != res.UserID && *actorID != hostID {
			return fail(ErrForbidden, "only the guest or the host can cancel this reservation")
		}
		deleted, err := l.Reservations.DeleteWithStatusTx(ctx, tx, reservationID, model.StatusConfirmed)
		if err != nil {
			return internalError(l.log(), "cancel: delete", err)
		}
		if deleted {
			released, err := l.Sessions.DecrementSeatTx(ctx, tx, res.SessionID)
			if err != nil {
				return internalError(l.log(), "cancel: release seat", err)
			}
			if !released {
				return internalError(l.log(), "cancel: release seat", errors.New("seat counter already at zero"))
			}
		} else {
			// Already CANCELLED by the host, its seat was released then.
			deleted, err = l.Reservations.DeleteWithStatusTx(ctx, tx, reservationID, model.StatusCancelled)
			if err != nil {
				return internalError(l.log(), "cancel: delete", err)
			}
			if !deleted {
				return fail(ErrNotFound, "reservation not found")
			}
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log().Info("reservation cancelled", "reservation_id", reservationID, "session_id", out.SessionID)
	return out, nil
}

// SetStatus lets the session host flip a CONFIRMED reservation to
// CANCELLED without deleting it.  The seat is released exactly once:
// repeating the call is a no-op, and a cancelled reservation cannot be
// confirmed again (the guest has to reserve anew).
func (l *Ledger) SetStatus(ctx context.Context, reservationID, hostID uint64, status string) (*model.Reservation, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != model.StatusConfirmed && status != model.StatusCancelled {
		return nil, fail(ErrInvalidArgument, "status must be CONFIRMED or CANCELLED")
	}
	var out *model.Reservation
	err := l.withTx(ctx, "set status", func(tx *sql.Tx) error {
		res, owner, err := l.Reservations.GetTx(ctx, tx, reservationID)
		if err != nil {
			if errors.Is(err, repository.ErrReservationNotFound) {
				return fail(ErrNotFound, "reservation not found")
			}
			return internalError(l.log(), "set status: load", err)
		}
		if owner != hostID {
			return fail(ErrForbidden, "only the host can change a reservation status")
		}
		if status == model.StatusConfirmed {
			if res.Status != model.StatusConfirmed {
				return fail(ErrInvalidArgument, "a cancelled reservation cannot be confirmed again")
			}
			out = res
			return nil
		}
		moved, err := l.Reservations.TransitionTx(ctx, tx, reservationID, model.StatusConfirmed, model.StatusCancelled)
		if err != nil {
			return internalError(l.log(), "set status: update", err)
		}
		if moved {
			released, err := l.Sessions.DecrementSeatTx(ctx, tx, res.SessionID)
			if err != nil {
				return internalError(l.log(), "set status: release seat", err)
			}
			if !released {
				return internalError(l.log(), "set status: release seat", errors.New("seat counter already at zero"))
			}
		}
		res.Status = model.StatusCancelled
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns reservations, newest first.  With a non-nil actorID only
// that user's reservations are returned.
func (l *Ledger) List(ctx context.Context, actorID *uint64) ([]model.ReservationDetail, error) {
	var (
		items []model.ReservationDetail
		err   error
	)
	if actorID != nil {
		items, err = l.Reservations.ListByUser(ctx, *actorID)
	} else {
		items, err = l.Reservations.List(ctx)
	}
	if err != nil {
		return nil, internalError(l.log(), "list reservations", err)
	}
	return items, nil
}

// Get returns one reservation to its guest or to the session host.
func (l *Ledger) Get(ctx context.Context, reservationID, actorID uint64) (*model.ReservationDetail, error) {
	d, err := l.Reservations.GetDetail(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return nil, fail(ErrNotFound, "reservation not found")
		}
		return nil, internalError(l.log(), "get reservation", err)
	}
	if d.UserID != actorID && d.Host.ID != actorID {
		return nil, fail(ErrForbidden, "forbidden")
	}
	return d, nil
}

// notifyReserved tells the guest and the host about a new reservation.
// It runs detached from the request; failures and panics are logged.
func (l *Ledger) notifyReserved(d model.ReservationDetail) {
	if l.Notifier == nil {
		return
	}
	data := map[string]any{
		"reservation_id":   d.ID,
		"session_id":       d.Session.ID,
		"session_title":    d.Session.Title,
		"game_name":        d.Session.GameName,
		"starts_at":        d.Session.StartsAt.UTC().Format(time.RFC3339),
		"location_name":    d.Location.Name,
		"location_address": d.Location.Address,
		"guest_name":       d.User.DisplayName,
		"host_name":        d.Host.DisplayName,
	}
	if d.Message != nil {
		data["message"] = *d.Message
	}
	run := l.dispatch
	if run == nil {
		run = func(f func()) { go f() }
	}
	timeout := l.NotifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	run(func() {
		defer func() {
			if p := recover(); p != nil {
				l.log().Error("notifier panicked", "reservation_id", d.ID, "panic", p)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		sends := []struct{ kind, to string }{
			{KindReservationConfirmed, d.User.Email},
			{KindReservationReceived, d.Host.Email},
		}
		for _, s := range sends {
			if err := l.Notifier.Notify(ctx, s.kind, s.to, data); err != nil {
				l.log().Warn("notification failed", "kind", s.kind, "reservation_id", d.ID, "error", err)
			}
		}
	})
}
