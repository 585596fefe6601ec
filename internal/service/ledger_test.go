package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/iliyamo/boardgame-meetup/internal/model"
	"github.com/iliyamo/boardgame-meetup/internal/repository"
	"github.com/iliyamo/boardgame-meetup/internal/testutil"
)

type sentNotification struct {
	kind, to string
	data     map[string]any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, kind, recipient string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: kind, to: recipient, data: data})
	return n.err
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(context.Context, string, string, map[string]any) error {
	panic("smtp exploded")
}

func newTestLedger(t *testing.T, db *sql.DB, n Notifier) *Ledger {
	t.Helper()
	l := NewLedger(db, repository.NewSessionRepo(db), repository.NewReservationRepo(db), repository.NewUserRepo(db), n, nil)
	l.dispatch = func(f func()) { f() }
	return l
}

type ledgerFixture struct {
	db      *sql.DB
	host    model.User
	session model.Session
}

func setupLedger(t *testing.T, seats int) ledgerFixture {
	t.Helper()
	return newLedgerFixture(t, testutil.SetupTestDB(t), seats)
}

// setupPooledLedger backs the fixture with several connections so
// concurrent Reserve and Cancel calls hold open transactions at once.
func setupPooledLedger(t *testing.T, seats int) ledgerFixture {
	t.Helper()
	return newLedgerFixture(t, testutil.SetupPooledTestDB(t, 8), seats)
}

func newLedgerFixture(t *testing.T, db *sql.DB, seats int) ledgerFixture {
	t.Helper()
	host := testutil.CreateUser(t, db, "host")
	loc := testutil.CreateLocation(t, db, host.ID)
	s := testutil.CreateSession(t, db, host.ID, loc.ID, seats)
	return ledgerFixture{db: db, host: host, session: s}
}

func assertConsistent(t *testing.T, db *sql.DB, sessionID uint64) {
	t.Helper()
	taken := testutil.SeatsTaken(t, db, sessionID)
	confirmed := testutil.ConfirmedCount(t, db, sessionID)
	if taken != confirmed {
		t.Errorf("seats_taken = %d but %d CONFIRMED reservations exist", taken, confirmed)
	}
}

// assertOverlapped fails unless the pool had to open a second
// connection, which only happens when two callers held one at once.
func assertOverlapped(t *testing.T, db *sql.DB) {
	t.Helper()
	if n := db.Stats().OpenConnections; n < 2 {
		t.Errorf("open connections = %d, work never ran side by side", n)
	}
}

func TestReserveFillsLastSeat(t *testing.T) {
	f := setupLedger(t, 5)
	l := newTestLedger(t, f.db, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		u := testutil.CreateUser(t, f.db, fmt.Sprintf("early%d", i))
		if _, err := l.Reserve(ctx, f.session.ID, u.ID, nil); err != nil {
			t.Fatalf("Reserve %d: %v", i, err)
		}
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 4 {
		t.Fatalf("seats_taken = %d, want 4", got)
	}

	x := testutil.CreateUser(t, f.db, "x")
	d, err := l.Reserve(ctx, f.session.ID, x.ID, nil)
	if err != nil {
		t.Fatalf("Reserve X: %v", err)
	}
	if d.Status != model.StatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", d.Status)
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 5 {
		t.Errorf("seats_taken = %d, want 5", got)
	}

	y := testutil.CreateUser(t, f.db, "y")
	_, err = l.Reserve(ctx, f.session.ID, y.ID, nil)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Reserve Y error = %v, want ErrCapacityExceeded", err)
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 5 {
		t.Errorf("seats_taken = %d after rejected reserve, want 5", got)
	}
	assertConsistent(t, f.db, f.session.ID)
}

func TestReserveDuplicate(t *testing.T) {
	f := setupLedger(t, 4)
	l := newTestLedger(t, f.db, nil)
	ctx := context.Background()
	x := testutil.CreateUser(t, f.db, "x")

	if _, err := l.Reserve(ctx, f.session.ID, x.ID, nil); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	_, err := l.Reserve(ctx, f.session.ID, x.ID, nil)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second Reserve error = %v, want ErrDuplicate", err)
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 1 {
		t.Errorf("seats_taken = %d, want 1", got)
	}
	assertConsistent(t, f.db, f.session.ID)
}

func TestReserveDuplicateAtFullSession(t *testing.T) {
	f := setupLedger(t, 2)
	l := newTestLedger(t, f.db, nil)
	ctx := context.Background()
	x := testutil.CreateUser(t, f.db, "x")
	y := testutil.CreateUser(t, f.db, "y")
	z := testutil.CreateUser(t, f.db, "z")

	for _, u := range []model.User{x, y} {
		if _, err := l.Reserve(ctx, f.session.ID, u.ID, nil); err != nil {
			t.Fatalf("Reserve %s: %v", u.DisplayName, err)
		}
	}
	if _, err := l.Reserve(ctx, f.session.ID, x.ID, nil); !errors.Is(err, ErrDuplicate) {
		t.Errorf("seated guest error = %v, want ErrDuplicate", err)
	}
	if _, err := l.Reserve(ctx, f.session.ID, z.ID, nil); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("new guest error = %v, want ErrCapacityExceeded", err)
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 2 {
		t.Errorf("seats_taken = %d, want 2", got)
	}
	assertConsistent(t, f.db, f.session.ID)
}

func TestReserveErrors(t *testing.T) {
	f := setupLedger(t, 2)
	l := newTestLedger(t, f.db, nil)
	ctx := context.Background()
	x := testutil.CreateUser(t, f.db, "x")

	tests := []struct {
		name      string
		sessionID uint64
		actorID   uint64
		message   *string
		want      error
	}{
		{"missing session", 9999, x.ID, nil, ErrNotFound},
		{"missing actor", f.session.ID, 9999, nil, ErrNotFound},
		{"message too long", f.session.ID, x.ID, ptr(fmt.Sprintf("%0501d", 0)), ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Reserve(ctx, tt.sessionID, tt.actorID, tt.message)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 0 {
		t.Errorf("seats_taken = %d after failed reserves, want 0", got)
	}
}

func TestReserveReturnsDetail(t *testing.T) {
	f := setupLedger(t, 3)
	l := newTestLedger(t, f.db, nil)
	x := testutil.CreateUser(t, f.db, "x")

	d, err := l.Reserve(context.Background(), f.session.ID, x.ID, ptr("  bringing snacks  "))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if d.User.ID != x.ID || d.User.DisplayName != "x" {
		t.Errorf("user = %+v", d.User)
	}
	if d.Host.ID != f.host.ID {
		t.Errorf("host = %+v, want id %d", d.Host, f.host.ID)
	}
	if d.Session.ID != f.session.ID || d.Session.GameName != "Catan" {
		t.Errorf("session = %+v", d.Session)
	}
	if d.Location.Name != "Dragon's Den" {
		t.Errorf("location = %+v", d.Location)
	}
	if d.Message == nil || *d.Message != "bringing snacks" {
		t.Errorf("message = %v, want trimmed note", d.Message)
	}
}

func TestConcurrentReserveLastSeat(t *testing.T) {
	f := setupPooledLedger(t, 2)
	l := newTestLedger(t, f.db, nil)
	ctx := context.Background()

	first := testutil.CreateUser(t, f.db, "first")
	if _, err := l.Reserve(ctx, f.session.ID, first.ID, nil); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	racers := []model.User{testutil.CreateUser(t, f.db, "a"), testutil.CreateUser(t, f.db, "b")}
	var ok, full atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, u := range racers {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			<-start
			_, err := l.Reserve(ctx, f.session.ID, id, nil)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrCapacityExceeded):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u.ID)
	}
	close(start)
	wg.Wait()

	if ok.Load() != 1 || full.Load() != 1 {
		t.Errorf("successes = %d, capacity errors = %d, want 1 and 1", ok.Load(), full.Load())
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 2 {
		t.Errorf("seats_taken = %d, want 2", got)
	}
	assertConsistent(t, f.db, f.session.ID)
}

func TestConcurrentReserveManyActors(t *testing.T) {
	const seats, actors = 5, 12
	f := setupPooledLedger(t, seats)
	l := newTestLedger(t, f.db, nil)

	ids := make([]uint64, actors)
	for i := range ids {
		ids[i] = testutil.CreateUser(t, f.db, fmt.Sprintf("player%d", i)).ID
	}

	var ok, full atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, id := range ids {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			<-start
			_, err := l.Reserve(context.Background(), f.session.ID, id, nil)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrCapacityExceeded):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	if ok.Load() != seats || full.Load() != actors-seats {
		t.Errorf("successes = %d, capacity errors = %d, want %d and %d", ok.Load(), full.Load(), seats, actors-seats)
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != seats {
		t.Errorf("seats_taken = %d, want %d", got, seats)
	}
	assertConsistent(t, f.db, f.session.ID)
	assertOverlapped(t, f.db)
}

func TestCancelFreesSeat(t *testing.T) {
	f := setupLedger(t, 2)
	l := newTestLedger(t, f.db, nil)
	ctx := context.Background()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	c := testutil.CreateUser(t, f.db, "c")

	ra, err := l.Reserve(ctx, f.session.ID, a.ID, nil)
	if err != nil {
		t.Fatalf("Reserve a: %v", err)
	}
	if _, err := l.Reserve(ctx, f.session.ID, b.ID, nil); err != nil {
		t.Fatalf("Reserve b: %v", err)
	}

	if _, err := l.Cancel(ctx, ra.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 1 {
		t.Errorf("seats_taken = %d after cancel, want 1", got)
	}
	if _, err := l.Reserve(ctx, f.session.ID, c.ID, nil); err != nil {
		t.Fatalf("Reserve c into freed seat: %v", err)
	}
	assertConsistent(t, f.db, f.session.ID)

	if _, err := l.Cancel(ctx, ra.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Cancel error = %v, want ErrNotFound", err)
	}
}

func TestCancelForAuthorization(t *testing.T) {
	f := setupLedger(t, 3)
	l := newTestLedger(t, f.db, nil)
	ctx := context.Background()
	guest := testutil.CreateUser(t, f.db, "guest")
	stranger := testutil.CreateUser(t, f.db, "stranger")

	r1, _ := l.Reserve(ctx, f.session.ID, guest.ID, nil)
	if _, err := l.CancelFor(ctx, r1.ID, stranger.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger cancel error = %v, want ErrForbidden", err)
	}
	if _, err := l.CancelFor(ctx, r1.ID, guest.ID); err != nil {
		t.Fatalf("guest cancel: %v", err)
	}

	r2, _ := l.Reserve(ctx, f.session.ID, guest.ID, nil)
	if _, err := l.CancelFor(ctx, r2.ID, f.host.ID); err != nil {
		t.Fatalf("host cancel: %v", err)
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 0 {
		t.Errorf("seats_taken = %d, want 0", got)
	}
}

func TestConcurrentCancelReleasesOnce(t *testing.T) {
	f := setupPooledLedger(t, 3)
	l := newTestLedger(t, f.db, nil)
	ctx := context.Background()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	ra, _ := l.Reserve(ctx, f.session.ID, a.ID, nil)
	if _, err := l.Reserve(ctx, f.session.ID, b.ID, nil); err != nil {
		t.Fatalf("Reserve b: %v", err)
	}

	const cancellers = 6
	var ok atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < cancellers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := l.Cancel(ctx, ra.ID)
			switch {
			case err == nil:
				ok.Add(1)
			case !errors.Is(err, ErrNotFound):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if ok.Load() != 1 {
		t.Errorf("successful cancels = %d, want 1", ok.Load())
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 1 {
		t.Errorf("seats_taken = %d, want 1", got)
	}
	assertConsistent(t, f.db, f.session.ID)
}

func TestSetStatusDecrementsOnce(t *testing.T) {
	f := setupLedger(t, 3)
	l := newTestLedger(t, f.db, nil)
	ctx := context.Background()
	guest := testutil.CreateUser(t, f.db, "guest")
	r, _ := l.Reserve(ctx, f.session.ID, guest.ID, nil)

	if _, err := l.SetStatus(ctx, r.ID, guest.ID, model.StatusCancelled); !errors.Is(err, ErrForbidden) {
		t.Fatalf("guest SetStatus error = %v, want ErrForbidden", err)
	}
	for i := 0; i < 2; i++ {
		got, err := l.SetStatus(ctx, r.ID, f.host.ID, "cancelled")
		if err != nil {
			t.Fatalf("SetStatus #%d: %v", i+1, err)
		}
		if got.Status != model.StatusCancelled {
			t.Errorf("status = %s, want CANCELLED", got.Status)
		}
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 0 {
		t.Errorf("seats_taken = %d, want 0", got)
	}
	if _, err := l.SetStatus(ctx, r.ID, f.host.ID, model.StatusConfirmed); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("re-confirm error = %v, want ErrInvalidArgument", err)
	}
	if _, err := l.SetStatus(ctx, r.ID, f.host.ID, "MAYBE"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad status error = %v, want ErrInvalidArgument", err)
	}

	// The guest may book again; deleting the cancelled row releases nothing.
	if _, err := l.Reserve(ctx, f.session.ID, guest.ID, nil); err != nil {
		t.Fatalf("re-reserve after host cancel: %v", err)
	}
	if _, err := l.Cancel(ctx, r.ID); err != nil {
		t.Fatalf("Cancel cancelled row: %v", err)
	}
	if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 1 {
		t.Errorf("seats_taken = %d, want 1", got)
	}
	assertConsistent(t, f.db, f.session.ID)
}

func TestListAndGet(t *testing.T) {
	f := setupLedger(t, 4)
	l := newTestLedger(t, f.db, nil)
	ctx := context.Background()
	a := testutil.CreateUser(t, f.db, "a")
	b := testutil.CreateUser(t, f.db, "b")
	ra, _ := l.Reserve(ctx, f.session.ID, a.ID, nil)
	rb, _ := l.Reserve(ctx, f.session.ID, b.ID, nil)

	all, err := l.List(ctx, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ID != rb.ID || all[1].ID != ra.ID {
		t.Errorf("List order = %+v, want newest first", all)
	}
	mine, err := l.List(ctx, &a.ID)
	if err != nil {
		t.Fatalf("List mine: %v", err)
	}
	if len(mine) != 1 || mine[0].UserID != a.ID {
		t.Errorf("List(a) = %+v", mine)
	}

	if _, err := l.Get(ctx, ra.ID, a.ID); err != nil {
		t.Errorf("Get by guest: %v", err)
	}
	if _, err := l.Get(ctx, ra.ID, f.host.ID); err != nil {
		t.Errorf("Get by host: %v", err)
	}
	if _, err := l.Get(ctx, ra.ID, b.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Get by other guest error = %v, want ErrForbidden", err)
	}
	if _, err := l.Get(ctx, 9999, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing error = %v, want ErrNotFound", err)
	}
}

func TestReserveNotifiesGuestAndHost(t *testing.T) {
	f := setupLedger(t, 3)
	n := &recordingNotifier{}
	l := newTestLedger(t, f.db, n)
	guest := testutil.CreateUser(t, f.db, "guest")

	if _, err := l.Reserve(context.Background(), f.session.ID, guest.ID, nil); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(n.sent) != 2 {
		t.Fatalf("sent %d notifications, want 2", len(n.sent))
	}
	if n.sent[0].kind != KindReservationConfirmed || n.sent[0].to != guest.Email {
		t.Errorf("first notification = %+v", n.sent[0])
	}
	if n.sent[1].kind != KindReservationReceived || n.sent[1].to != f.host.Email {
		t.Errorf("second notification = %+v", n.sent[1])
	}
	if n.sent[0].data["game_name"] != "Catan" {
		t.Errorf("data = %v", n.sent[0].data)
	}
}

func TestNotifierFailureDoesNotFailReserve(t *testing.T) {
	notifiers := map[string]Notifier{
		"error": &recordingNotifier{err: errors.New("broker down")},
		"panic": panickingNotifier{},
	}
	for name, n := range notifiers {
		t.Run(name, func(t *testing.T) {
			f := setupLedger(t, 3)
			l := newTestLedger(t, f.db, n)
			guest := testutil.CreateUser(t, f.db, "guest")
			if _, err := l.Reserve(context.Background(), f.session.ID, guest.ID, nil); err != nil {
				t.Fatalf("Reserve: %v", err)
			}
			if got := testutil.SeatsTaken(t, f.db, f.session.ID); got != 1 {
				t.Errorf("seats_taken = %d, want 1", got)
			}
		})
	}
}

func ptr(s string) *string { return &s }
