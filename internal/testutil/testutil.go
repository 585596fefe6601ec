// Package testutil opens throwaway SQLite databases carrying the same
// tables as the MySQL schema and provides fixtures and HTTP helpers for
// package tests.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/iliyamo/boardgame-meetup/internal/model"
	"github.com/iliyamo/boardgame-meetup/internal/repository"
)

// Password is the plain password every fixture user is created with.
const Password = "correct-horse"

// JWTSecret signs access tokens in handler tests.
const JWTSecret = "test-secret"

var sqliteSchema = []string{
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		display_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'USER',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE refresh_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token_hash TEXT NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE locations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		created_by INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		host_id INTEGER NOT NULL REFERENCES users(id),
		location_id INTEGER NOT NULL REFERENCES locations(id),
		title TEXT NOT NULL,
		game_name TEXT NOT NULL,
		starts_at DATETIME NOT NULL,
		seats_max INTEGER NOT NULL,
		seats_taken INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (seats_taken >= 0 AND seats_taken <= seats_max)
	)`,
	`CREATE TABLE reservations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		message TEXT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX idx_reservation_session_user ON reservations(session_id, user_id, status)`,
	`CREATE TABLE play_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NULL,
		created_by INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE group_members (
		group_id INTEGER NOT NULL REFERENCES play_groups(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role TEXT NOT NULL DEFAULT 'MEMBER',
		joined_at DATETIME NOT NULL,
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE TABLE polls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL REFERENCES play_groups(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		created_by INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE poll_dates (
		poll_id INTEGER NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		date_value TEXT NOT NULL,
		PRIMARY KEY (poll_id, position),
		UNIQUE (poll_id, date_value)
	)`,
	`CREATE TABLE poll_votes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		poll_id INTEGER NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL,
		chosen_date TEXT NOT NULL,
		voted_at DATETIME NOT NULL,
		UNIQUE (poll_id, user_id),
		FOREIGN KEY (poll_id, chosen_date) REFERENCES poll_dates(poll_id, date_value) ON DELETE CASCADE
	)`,
}

// SetupTestDB opens a fresh file-backed SQLite database under t.TempDir
// with the full schema.  The pool holds a single connection, so
// transactions from concurrent goroutines queue instead of failing with
// SQLITE_BUSY.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return openTestDB(t, 1, "")
}

// SetupPooledTestDB is SetupTestDB with conns connections, for tests
// whose transactions must run side by side.  The database is in WAL
// mode so readers never wait on a writer, and every transaction begins
// IMMEDIATE: writers queue on busy_timeout rather than failing when a
// read lock cannot be upgraded.
func SetupPooledTestDB(t *testing.T, conns int) *sql.DB {
	t.Helper()
	db := openTestDB(t, conns, "&_pragma=journal_mode(WAL)&_txlock=immediate")
	db.SetMaxIdleConns(conns)
	return db
}

func openTestDB(t *testing.T, conns int, params string) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "meetup.db")
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite" + params
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(conns)
	t.Cleanup(func() { db.Close() })

	for i, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to create schema (statement %d): %v", i, err)
		}
	}
	return db
}

// CreateUser inserts a USER with the fixture password and returns it.
func CreateUser(t *testing.T, db *sql.DB, name string) model.User {
	t.Helper()

	users := repository.NewUserRepo(db)
	email := fmt.Sprintf("%s@example.com", name)
	id, err := users.Create(context.Background(), email, Password, name, model.RoleUser, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	u, err := users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to load test user: %v", err)
	}
	return u
}

// CreateLocation inserts a location owned by createdBy.
func CreateLocation(t *testing.T, db *sql.DB, createdBy uint64) model.Location {
	t.Helper()

	l := model.Location{Name: "Dragon's Den", Address: "1 Meeple Street", CreatedBy: createdBy}
	if err := repository.NewLocationRepo(db).Create(context.Background(), &l); err != nil {
		t.Fatalf("Failed to create test location: %v", err)
	}
	return l
}

// CreateSession inserts a session hosted by hostID starting tomorrow.
func CreateSession(t *testing.T, db *sql.DB, hostID, locationID uint64, seats int) model.Session {
	t.Helper()

	s := model.Session{
		HostID:     hostID,
		LocationID: locationID,
		Title:      "Friday game night",
		GameName:   "Catan",
		StartsAt:   time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second),
		SeatsMax:   seats,
	}
	if err := repository.NewSessionRepo(db).Create(context.Background(), &s); err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}
	return s
}

// CreateGroup inserts a group created by createdBy, who becomes its
// ADMIN, and enrols every other listed user as MEMBER.
func CreateGroup(t *testing.T, db *sql.DB, createdBy uint64, members ...uint64) model.Group {
	t.Helper()

	groups := repository.NewGroupRepo(db)
	g := model.Group{Name: "Tuesday Tabletop", CreatedBy: createdBy}
	if err := groups.Create(context.Background(), &g); err != nil {
		t.Fatalf("Failed to create test group: %v", err)
	}
	for _, m := range members {
		if err := groups.AddMember(context.Background(), g.ID, m, model.GroupRoleMember); err != nil {
			t.Fatalf("Failed to add test member: %v", err)
		}
	}
	return g
}

// SeatsTaken reads the stored seat counter of a session.
func SeatsTaken(t *testing.T, db *sql.DB, sessionID uint64) int {
	t.Helper()

	var n int
	if err := db.QueryRow(`SELECT seats_taken FROM sessions WHERE id = ?`, sessionID).Scan(&n); err != nil {
		t.Fatalf("Failed to read seats_taken: %v", err)
	}
	return n
}

// ConfirmedCount counts CONFIRMED reservations for a session.
func ConfirmedCount(t *testing.T, db *sql.DB, sessionID uint64) int {
	t.Helper()

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM reservations WHERE session_id = ? AND status = ?`,
		sessionID, model.StatusConfirmed).Scan(&n)
	if err != nil {
		t.Fatalf("Failed to count reservations: %v", err)
	}
	return n
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
