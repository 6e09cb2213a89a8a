package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"streakguard/internal/utils"
)

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	Db *Database
	q  querier
	tx bool
}

func NewRepository(db *Database) *Repository {
	return &Repository{Db: db, q: db.db}
}

// WithTx runs fn against a repository bound to one transaction. Nested calls
// reuse the outer transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.tx {
		return fn(r)
	}

	sqlTx, err := r.Db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Repository{Db: r.Db, q: sqlTx, tx: true}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: utils.FormatDate(*t), Valid: true}
}

func parseNullDate(ns sql.NullString, field string) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := utils.ParseDate(ns.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return &t, nil
}

// Users

func (r *Repository) CreateUser(ctx context.Context, user User) error {
	if user.Settings == (ProtectionSettings{}) {
		user.Settings = DefaultProtectionSettings()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, name, telegram_chat_id, streak_shields, freeze_tokens, revive_tokens,
			protection_enabled, auto_use_shield, min_streak_to_auto_protect, notification_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.TelegramChatID,
		user.Inventory.StreakShields, user.Inventory.FreezeTokens, user.Inventory.ReviveTokens,
		user.Settings.Enabled, user.Settings.AutoUseShield, user.Settings.MinStreakToAutoProtect,
		user.Settings.NotificationTime, formatTime(user.CreatedAt))
	return err
}

const userColumns = `id, name, telegram_chat_id, streak_shields, freeze_tokens, revive_tokens,
	protection_enabled, auto_use_shield, min_streak_to_auto_protect, notification_time, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var chatID sql.NullInt64
	var createdAt string

	err := row.Scan(&u.ID, &u.Name, &chatID,
		&u.Inventory.StreakShields, &u.Inventory.FreezeTokens, &u.Inventory.ReviveTokens,
		&u.Settings.Enabled, &u.Settings.AutoUseShield, &u.Settings.MinStreakToAutoProtect,
		&u.Settings.NotificationTime, &createdAt)
	if err != nil {
		return User{}, err
	}
	if chatID.Valid {
		id := chatID.Int64
		u.TelegramChatID = &id
	}
	u.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return User{}, fmt.Errorf("failed to parse created_at for user %s: %w", u.ID, err)
	}
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, err
}

// ListProtectedUsers returns users with protection enabled, optionally only
// those whose notification time equals hhmm.
func (r *Repository) ListProtectedUsers(ctx context.Context, hhmm string) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE protection_enabled = 1`
	var args []any
	if hhmm != "" {
		query += ` AND notification_time = ?`
		args = append(args, hhmm)
	}
	query += ` ORDER BY id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Repository) UpdateProtectionSettings(ctx context.Context, userID string, s ProtectionSettings) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET protection_enabled = ?, auto_use_shield = ?, min_streak_to_auto_protect = ?, notification_time = ?
		WHERE id = ?`,
		s.Enabled, s.AutoUseShield, s.MinStreakToAutoProtect, s.NotificationTime, userID)
	if err != nil {
		return err
	}
	return expectOneRow(res, fmt.Sprintf("user %s", userID))
}

// SetTelegramChatID links chatID to userID. A chat belongs to one user at a
// time, so any previous owner of the chat is unlinked first.
func (r *Repository) SetTelegramChatID(ctx context.Context, userID string, chatID int64) error {
	return r.WithTx(ctx, func(tx *Repository) error {
		if _, err := tx.q.ExecContext(ctx,
			`UPDATE users SET telegram_chat_id = NULL WHERE telegram_chat_id = ? AND id <> ?`, chatID, userID); err != nil {
			return fmt.Errorf("failed to unlink chat %d: %w", chatID, err)
		}
		res, err := tx.q.ExecContext(ctx, `UPDATE users SET telegram_chat_id = ? WHERE id = ?`, chatID, userID)
		if err != nil {
			return err
		}
		return expectOneRow(res, fmt.Sprintf("user %s", userID))
	})
}

// GetTelegramChatID returns ErrNotFound when the user has not linked a chat.
func (r *Repository) GetTelegramChatID(ctx context.Context, userID string) (int64, error) {
	var chatID sql.NullInt64
	err := r.q.QueryRowContext(ctx, `SELECT telegram_chat_id FROM users WHERE id = ?`, userID).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !chatID.Valid) {
		return 0, fmt.Errorf("telegram chat for user %s: %w", userID, ErrNotFound)
	}
	return chatID.Int64, err
}

func (r *Repository) GetUserByChatID(ctx context.Context, chatID int64) (User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_chat_id = ?`, chatID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user for chat %d: %w", chatID, ErrNotFound)
	}
	return u, err
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// Inventory

func (r *Repository) GetInventory(ctx context.Context, userID string) (Inventory, error) {
	var inv Inventory
	err := r.q.QueryRowContext(ctx, `
		SELECT streak_shields, freeze_tokens, revive_tokens FROM users WHERE id = ?`, userID).
		Scan(&inv.StreakShields, &inv.FreezeTokens, &inv.ReviveTokens)
	if errors.Is(err, sql.ErrNoRows) {
		return Inventory{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return inv, err
}

// DebitItem decrements a count only when at least qty is available. It
// reports false, without error, when the balance is short.
func (r *Repository) DebitItem(ctx context.Context, userID string, item ItemType, qty int) (bool, error) {
	col, err := item.column()
	if err != nil {
		return false, err
	}
	res, err := r.q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %[1]s = %[1]s - ? WHERE id = ? AND %[1]s >= ?`, col),
		qty, userID, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Repository) CreditItem(ctx context.Context, userID string, item ItemType, qty int) error {
	col, err := item.column()
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %[1]s = %[1]s + ? WHERE id = ?`, col), qty, userID)
	if err != nil {
		return err
	}
	return expectOneRow(res, fmt.Sprintf("user %s", userID))
}

func (r *Repository) AppendUsage(ctx context.Context, u ItemUsage) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO item_usage (id, user_id, item_type, habit_id, quantity, used_at, protected_date, freeze_days, streak_saved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.UserID, string(u.ItemType), u.HabitID, u.Quantity, formatTime(u.UsedAt),
		nullDate(u.ProtectedDate), u.FreezeDays, u.StreakSaved)
	return err
}

// ListUsage returns the newest entries first.
func (r *Repository) ListUsage(ctx context.Context, userID string, limit int) ([]ItemUsage, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, item_type, habit_id, quantity, used_at, protected_date, freeze_days, streak_saved
		FROM item_usage
		WHERE user_id = ?
		ORDER BY used_at DESC, rowid DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usages := []ItemUsage{}
	for rows.Next() {
		var u ItemUsage
		var itemType, usedAt string
		var protectedDate sql.NullString
		if err := rows.Scan(&u.ID, &u.UserID, &itemType, &u.HabitID, &u.Quantity, &usedAt,
			&protectedDate, &u.FreezeDays, &u.StreakSaved); err != nil {
			return nil, err
		}
		u.ItemType = ItemType(itemType)
		if u.UsedAt, err = parseTime(usedAt); err != nil {
			return nil, fmt.Errorf("failed to parse used_at: %w", err)
		}
		if u.ProtectedDate, err = parseNullDate(protectedDate, "protected_date"); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

// Habits

func (r *Repository) CreateHabit(ctx context.Context, h Habit) error {
	p := h.Protection.toRow()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO habits (id, user_id, name, category, frequency, active, current_streak, longest_streak,
			total_completions, last_completed_date, protection_state, protected_until, protected_by,
			frozen_start, frozen_end, frozen_days_remaining, warning_date, warning_sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.UserID, h.Name, string(h.Category), string(h.Frequency), h.Active,
		h.CurrentStreak, h.LongestStreak, h.TotalCompletions, nullDate(h.LastCompletedDate),
		p.State, p.Until, p.ProtectedBy, p.FrozenStart, p.FrozenEnd, p.DaysRemaining,
		nullDate(h.Warning.Date), h.Warning.Sent, formatTime(h.CreatedAt))
	return err
}

const habitColumns = `id, user_id, name, category, frequency, active, current_streak, longest_streak,
	total_completions, last_completed_date, protection_state, protected_until, protected_by,
	frozen_start, frozen_end, frozen_days_remaining, warning_date, warning_sent, created_at`

func scanHabit(row rowScanner) (Habit, error) {
	var h Habit
	var category, frequency, createdAt string
	var lastCompleted, warningDate sql.NullString
	var p protectionRow

	err := row.Scan(&h.ID, &h.UserID, &h.Name, &category, &frequency, &h.Active,
		&h.CurrentStreak, &h.LongestStreak, &h.TotalCompletions, &lastCompleted,
		&p.State, &p.Until, &p.ProtectedBy, &p.FrozenStart, &p.FrozenEnd, &p.DaysRemaining,
		&warningDate, &h.Warning.Sent, &createdAt)
	if err != nil {
		return Habit{}, err
	}

	if h.Category, err = ParseCategory(category); err != nil {
		return Habit{}, err
	}
	if h.Frequency, err = ParseFrequency(frequency); err != nil {
		return Habit{}, err
	}
	if h.LastCompletedDate, err = parseNullDate(lastCompleted, "last_completed_date"); err != nil {
		return Habit{}, err
	}
	if h.Warning.Date, err = parseNullDate(warningDate, "warning_date"); err != nil {
		return Habit{}, err
	}
	if h.Protection, err = protectionFromRow(p); err != nil {
		return Habit{}, fmt.Errorf("habit %s: %w", h.ID, err)
	}
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return Habit{}, fmt.Errorf("failed to parse created_at for habit %s: %w", h.ID, err)
	}
	return h, nil
}

// GetHabit loads a habit owned by userID.
func (r *Repository) GetHabit(ctx context.Context, userID, habitID string) (Habit, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE id = ? AND user_id = ?`, habitID, userID)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Habit{}, fmt.Errorf("habit %s: %w", habitID, ErrNotFound)
	}
	return h, err
}

func (r *Repository) queryHabits(ctx context.Context, where string, args ...any) ([]Habit, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var habits []Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

func (r *Repository) ListActiveHabits(ctx context.Context, userID string) ([]Habit, error) {
	return r.queryHabits(ctx, `user_id = ? AND active = 1`, userID)
}

func (r *Repository) ListAllActiveHabits(ctx context.Context) ([]Habit, error) {
	return r.queryHabits(ctx, `active = 1`)
}

// ListHabitsInState returns habits whose protection state is one of kinds.
func (r *Repository) ListHabitsInState(ctx context.Context, kinds ...ProtectionKind) ([]Habit, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")
	args := make([]any, len(kinds))
	for i, k := range kinds {
		args[i] = string(k)
	}
	return r.queryHabits(ctx, `protection_state IN (`+placeholders+`)`, args...)
}

// UpdateStreak keeps longest_streak monotonic in SQL so concurrent writers
// can never lower it.
func (r *Repository) UpdateStreak(ctx context.Context, habitID string, current int) (longest int, err error) {
	_, err = r.q.ExecContext(ctx, `
		UPDATE habits
		SET current_streak = ?, longest_streak = MAX(longest_streak, ?)
		WHERE id = ?`, current, current, habitID)
	if err != nil {
		return 0, err
	}
	err = r.q.QueryRowContext(ctx, `SELECT longest_streak FROM habits WHERE id = ?`, habitID).Scan(&longest)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("habit %s: %w", habitID, ErrNotFound)
	}
	return longest, err
}

func (r *Repository) SaveProtection(ctx context.Context, habitID string, p Protection) error {
	row := p.toRow()
	res, err := r.q.ExecContext(ctx, `
		UPDATE habits
		SET protection_state = ?, protected_until = ?, protected_by = ?,
			frozen_start = ?, frozen_end = ?, frozen_days_remaining = ?
		WHERE id = ?`,
		row.State, row.Until, row.ProtectedBy, row.FrozenStart, row.FrozenEnd, row.DaysRemaining, habitID)
	if err != nil {
		return err
	}
	return expectOneRow(res, fmt.Sprintf("habit %s", habitID))
}

// CompareAndSaveProtection writes next only if the stored state still equals
// prev. It reports false when another writer got there first.
func (r *Repository) CompareAndSaveProtection(ctx context.Context, habitID string, prev, next Protection) (bool, error) {
	p, n := prev.toRow(), next.toRow()
	res, err := r.q.ExecContext(ctx, `
		UPDATE habits
		SET protection_state = ?, protected_until = ?, protected_by = ?,
			frozen_start = ?, frozen_end = ?, frozen_days_remaining = ?
		WHERE id = ? AND protection_state = ?
			AND protected_until IS ? AND frozen_end IS ?`,
		n.State, n.Until, n.ProtectedBy, n.FrozenStart, n.FrozenEnd, n.DaysRemaining,
		habitID, p.State, p.Until, p.FrozenEnd)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *Repository) SetWarning(ctx context.Context, habitID string, w Warning) error {
	_, err := r.q.ExecContext(ctx, `UPDATE habits SET warning_date = ?, warning_sent = ? WHERE id = ?`,
		nullDate(w.Date), w.Sent, habitID)
	return err
}

// MarkWarningSent claims today's warning slot. It reports false if a warning
// for day was already recorded.
func (r *Repository) MarkWarningSent(ctx context.Context, habitID string, day time.Time) (bool, error) {
	d := utils.FormatDate(day)
	res, err := r.q.ExecContext(ctx, `
		UPDATE habits SET warning_date = ?, warning_sent = 1
		WHERE id = ? AND NOT (warning_sent = 1 AND warning_date IS ?)`, d, habitID, d)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Tracking

const trackingColumns = `id, user_id, habit_id, date, status, is_protected, notes, mood, created_at, updated_at`

func scanTracking(row rowScanner) (DailyTrackingRecord, error) {
	var rec DailyTrackingRecord
	var date, status, createdAt, updatedAt string

	err := row.Scan(&rec.ID, &rec.UserID, &rec.HabitID, &date, &status, &rec.IsProtected,
		&rec.Notes, &rec.Mood, &createdAt, &updatedAt)
	if err != nil {
		return DailyTrackingRecord{}, err
	}
	if rec.Date, err = utils.ParseDate(date); err != nil {
		return DailyTrackingRecord{}, err
	}
	if rec.Status, err = ParseTrackingStatus(status); err != nil {
		return DailyTrackingRecord{}, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return DailyTrackingRecord{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return DailyTrackingRecord{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return rec, nil
}

func (r *Repository) GetTracking(ctx context.Context, userID, habitID string, date time.Time) (DailyTrackingRecord, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+trackingColumns+` FROM tracking
		WHERE user_id = ? AND habit_id = ? AND date = ?`, userID, habitID, utils.FormatDate(date))
	rec, err := scanTracking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DailyTrackingRecord{}, fmt.Errorf("tracking %s %s: %w", habitID, utils.FormatDate(date), ErrNotFound)
	}
	return rec, err
}

// InsertTrackingIfAbsent creates rec unless a record already exists for its
// (user, habit, date) key. It reports whether a row was created.
func (r *Repository) InsertTrackingIfAbsent(ctx context.Context, rec DailyTrackingRecord, now time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO tracking (user_id, habit_id, date, status, is_protected, notes, mood, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, habit_id, date) DO NOTHING`,
		rec.UserID, rec.HabitID, utils.FormatDate(rec.Date), string(rec.Status), rec.IsProtected,
		rec.Notes, rec.Mood, formatTime(now), formatTime(now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpsertTracking is the write used by the completion path: it replaces status,
// notes and mood but never clears an existing protection flag.
func (r *Repository) UpsertTracking(ctx context.Context, rec DailyTrackingRecord, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO tracking (user_id, habit_id, date, status, is_protected, notes, mood, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, habit_id, date) DO UPDATE SET
			status = excluded.status,
			is_protected = MAX(tracking.is_protected, excluded.is_protected),
			notes = excluded.notes,
			mood = excluded.mood,
			updated_at = excluded.updated_at`,
		rec.UserID, rec.HabitID, utils.FormatDate(rec.Date), string(rec.Status), rec.IsProtected,
		rec.Notes, rec.Mood, formatTime(now), formatTime(now))
	return err
}

// ProtectTracking sets is_protected on a failed or skipped day that is not yet
// protected. It reports false when the row is missing or not eligible.
func (r *Repository) ProtectTracking(ctx context.Context, userID, habitID string, date, now time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE tracking SET is_protected = 1, updated_at = ?
		WHERE user_id = ? AND habit_id = ? AND date = ?
			AND is_protected = 0 AND status IN ('failed', 'skipped')`,
		formatTime(now), userID, habitID, utils.FormatDate(date))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListTracking returns records with from <= date <= to keyed by date string.
func (r *Repository) ListTracking(ctx context.Context, userID, habitID string, from, to time.Time) (map[string]DailyTrackingRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+trackingColumns+` FROM tracking
		WHERE user_id = ? AND habit_id = ? AND date BETWEEN ? AND ?`,
		userID, habitID, utils.FormatDate(from), utils.FormatDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[string]DailyTrackingRecord)
	for rows.Next() {
		rec, err := scanTracking(rows)
		if err != nil {
			return nil, err
		}
		records[utils.FormatDate(rec.Date)] = rec
	}
	return records, rows.Err()
}

func (r *Repository) CountTracking(ctx context.Context, userID, habitID string, from, to time.Time) (StatusCounts, error) {
	var c StatusCounts
	err := r.q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'frozen' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_protected = 1 THEN 1 ELSE 0 END), 0)
		FROM tracking
		WHERE user_id = ? AND habit_id = ? AND date BETWEEN ? AND ?`,
		userID, habitID, utils.FormatDate(from), utils.FormatDate(to)).
		Scan(&c.Completed, &c.Failed, &c.Skipped, &c.Frozen, &c.Protected)
	return c, err
}

// Achievements

// UnlockAchievement records a milestone once; it reports false when it was
// already unlocked.
func (r *Repository) UnlockAchievement(ctx context.Context, a Achievement) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO achievements (user_id, habit_id, milestone, unlocked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, habit_id, milestone) DO NOTHING`,
		a.UserID, a.HabitID, a.Milestone, formatTime(a.UnlockedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
