package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed by the application on MySQL.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range mysqlSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}

// The mysql driver rejects multiple statements per Exec unless
// multiStatements=true, so the schema is kept as a list.
// "groups" is reserved in MySQL 8, hence play_groups.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		display_name VARCHAR(100) NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'USER',
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS locations (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(150) NOT NULL,
		address VARCHAR(255) NOT NULL,
		created_by BIGINT UNSIGNED NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CONSTRAINT fk_location_user FOREIGN KEY (created_by) REFERENCES users(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		host_id BIGINT UNSIGNED NOT NULL,
		location_id BIGINT UNSIGNED NOT NULL,
		title VARCHAR(150) NOT NULL,
		game_name VARCHAR(150) NOT NULL,
		starts_at DATETIME NOT NULL,
		seats_max INT NOT NULL,
		seats_taken INT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CONSTRAINT chk_seats CHECK (seats_taken >= 0 AND seats_taken <= seats_max),
		CONSTRAINT fk_session_host FOREIGN KEY (host_id) REFERENCES users(id),
		CONSTRAINT fk_session_location FOREIGN KEY (location_id) REFERENCES locations(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		session_id BIGINT UNSIGNED NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		status VARCHAR(16) NOT NULL,
		message VARCHAR(500) NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		KEY idx_reservation_session_user (session_id, user_id, status),
		KEY idx_reservation_user (user_id, created_at),
		CONSTRAINT fk_reservation_session FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
		CONSTRAINT fk_reservation_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS play_groups (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(150) NOT NULL,
		description VARCHAR(500) NULL,
		created_by BIGINT UNSIGNED NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CONSTRAINT fk_group_creator FOREIGN KEY (created_by) REFERENCES users(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id BIGINT UNSIGNED NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'MEMBER',
		joined_at DATETIME NOT NULL,
		PRIMARY KEY (group_id, user_id),
		CONSTRAINT fk_member_group FOREIGN KEY (group_id) REFERENCES play_groups(id) ON DELETE CASCADE,
		CONSTRAINT fk_member_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS polls (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		group_id BIGINT UNSIGNED NOT NULL,
		title VARCHAR(150) NOT NULL,
		created_by BIGINT UNSIGNED NOT NULL,
		created_at DATETIME NOT NULL,
		CONSTRAINT fk_poll_group FOREIGN KEY (group_id) REFERENCES play_groups(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS poll_dates (
		poll_id BIGINT UNSIGNED NOT NULL,
		position INT NOT NULL,
		date_value VARCHAR(64) NOT NULL,
		PRIMARY KEY (poll_id, position),
		UNIQUE KEY uq_poll_date (poll_id, date_value),
		CONSTRAINT fk_date_poll FOREIGN KEY (poll_id) REFERENCES polls(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS poll_votes (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		poll_id BIGINT UNSIGNED NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		chosen_date VARCHAR(64) NOT NULL,
		voted_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_poll_vote (poll_id, user_id),
		KEY idx_vote_order (poll_id, voted_at),
		CONSTRAINT fk_vote_poll FOREIGN KEY (poll_id) REFERENCES polls(id) ON DELETE CASCADE,
		CONSTRAINT fk_vote_date FOREIGN KEY (poll_id, chosen_date) REFERENCES poll_dates(poll_id, date_value) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
