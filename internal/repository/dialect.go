package repository

import (
	"database/sql"

	"github.com/go-sql-driver/mysql"
)

// isMySQL reports whether db talks to MySQL.  Anything else is treated
// as SQLite, which the tests run on.
func isMySQL(db *sql.DB) bool {
	_, ok := db.Driver().(*mysql.MySQLDriver)
	return ok
}

// Single-statement vote upserts.  The unique (poll_id, user_id) key
// makes the insert fall through to an update of the existing row.
const (
	mysqlUpsertVote = `INSERT INTO poll_votes (poll_id, user_id, chosen_date, voted_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE chosen_date = VALUES(chosen_date), voted_at = VALUES(voted_at)`
	sqliteUpsertVote = `INSERT INTO poll_votes (poll_id, user_id, chosen_date, voted_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (poll_id, user_id) DO UPDATE SET chosen_date = excluded.chosen_date, voted_at = excluded.voted_at`
)
