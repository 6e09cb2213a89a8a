package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"streakguard/internal/logger"
)

type Database struct {
	db *sql.DB
}

// New opens (creating if needed) the sqlite file at path. Writers take the
// lock at BEGIN so concurrent actions on the same user queue up behind the
// busy timeout instead of failing mid-transaction.
func New(path string) (*Database, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_foreign_keys=on&_journal_mode=WAL&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{db: db}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("database initialized", "path", path)
	return d, nil
}

func (d *Database) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			telegram_chat_id INTEGER,
			streak_shields INTEGER NOT NULL DEFAULT 0 CHECK(streak_shields >= 0),
			freeze_tokens INTEGER NOT NULL DEFAULT 0 CHECK(freeze_tokens >= 0),
			revive_tokens INTEGER NOT NULL DEFAULT 0 CHECK(revive_tokens >= 0),
			protection_enabled INTEGER NOT NULL DEFAULT 1,
			auto_use_shield INTEGER NOT NULL DEFAULT 0,
			min_streak_to_auto_protect INTEGER NOT NULL DEFAULT 3,
			notification_time TEXT NOT NULL DEFAULT '20:00',
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS habits (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			frequency TEXT NOT NULL DEFAULT 'daily',
			active INTEGER NOT NULL DEFAULT 1,
			current_streak INTEGER NOT NULL DEFAULT 0 CHECK(current_streak >= 0),
			longest_streak INTEGER NOT NULL DEFAULT 0,
			total_completions INTEGER NOT NULL DEFAULT 0,
			last_completed_date TEXT,
			protection_state TEXT NOT NULL DEFAULT 'normal'
				CHECK(protection_state IN ('normal', 'protected', 'frozen')),
			protected_until TEXT,
			protected_by TEXT,
			frozen_start TEXT,
			frozen_end TEXT,
			frozen_days_remaining INTEGER NOT NULL DEFAULT 0,
			warning_date TEXT,
			warning_sent INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			CHECK(longest_streak >= current_streak)
		)`,

		`CREATE TABLE IF NOT EXISTS tracking (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			habit_id TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
			date TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('completed', 'failed', 'skipped', 'frozen')),
			is_protected INTEGER NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			mood TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(user_id, habit_id, date)
		)`,

		`CREATE TABLE IF NOT EXISTS item_usage (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			item_type TEXT NOT NULL,
			habit_id TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			used_at TEXT NOT NULL,
			protected_date TEXT,
			freeze_days INTEGER NOT NULL DEFAULT 0,
			streak_saved INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS achievements (
			user_id TEXT NOT NULL,
			habit_id TEXT NOT NULL,
			milestone INTEGER NOT NULL,
			unlocked_at TEXT NOT NULL,
			PRIMARY KEY(user_id, habit_id, milestone)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_tracking_habit_date ON tracking(habit_id, date)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_telegram_chat ON users(telegram_chat_id)`,
		`CREATE INDEX IF NOT EXISTS idx_habits_user ON habits(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_habits_protection ON habits(protection_state)`,
		`CREATE INDEX IF NOT EXISTS idx_item_usage_user ON item_usage(user_id, used_at)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) GetDB() *sql.DB {
	return d.db
}
