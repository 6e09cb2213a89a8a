package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"streakguard/internal/database"
	"streakguard/internal/logger"
	"streakguard/internal/observability"
	"streakguard/internal/utils"
)

const (
	MaxFreezeDays   = 30
	MaxPastDays     = 30
	actionShield    = "shield"
	actionFreeze    = "freeze"
	actionRevive    = "revive"
	outcomeSuccess  = "success"
	outcomeInternal = "internal_error"
)

// FreezeCost is the token price of freezing days consecutive days.
func FreezeCost(days int) int {
	switch {
	case days <= 5:
		return 1
	case days <= 10:
		return 2
	case days <= 15:
		return 3
	default:
		return 4
	}
}

type ShieldResult struct {
	Tracking  database.DailyTrackingRecord `json:"tracking"`
	Streak    StreakResult                 `json:"habit"`
	Inventory database.Inventory           `json:"inventory"`
}

type FreezeResult struct {
	FrozenDays    int                `json:"frozenDays"`
	RequestedDays int                `json:"requestedDays"`
	TokensSpent   int                `json:"tokensSpent"`
	Streak        StreakResult       `json:"habit"`
	Inventory     database.Inventory `json:"inventory"`
}

type ReviveResult struct {
	ProtectedDate time.Time          `json:"protectedDate"`
	Streak        StreakResult       `json:"habit"`
	Inventory     database.Inventory `json:"inventory"`
}

// RecoveryActions spends inventory to protect, freeze or revive a habit.
// Each action validates and mutates inside one immediate transaction, so the
// checks always see the state the writes apply to.
type RecoveryActions struct {
	repository   *database.Repository
	ledger       *InventoryLedger
	streaks      *StreakCalculator
	achievements AchievementService
	clock        Clock
	metrics      *observability.Metrics
}

func NewRecoveryActions(repo *database.Repository, ledger *InventoryLedger, streaks *StreakCalculator,
	achievements AchievementService, clock Clock, metrics *observability.Metrics) *RecoveryActions {
	return &RecoveryActions{
		repository:   repo,
		ledger:       ledger,
		streaks:      streaks,
		achievements: achievements,
		clock:        clock,
		metrics:      metrics,
	}
}

func loadActiveHabit(ctx context.Context, repo *database.Repository, userID, habitID string) (database.Habit, error) {
	habit, err := repo.GetHabit(ctx, userID, habitID)
	if errors.Is(err, database.ErrNotFound) {
		return database.Habit{}, ErrHabitNotFound
	}
	if err != nil {
		return database.Habit{}, fmt.Errorf("failed to load habit: %w", err)
	}
	if !habit.Active {
		return database.Habit{}, ErrHabitNotFound
	}
	return habit, nil
}

func requireItems(ctx context.Context, repo *database.Repository, userID string, item database.ItemType, qty int) error {
	inv, err := snapshot(ctx, repo, userID)
	if err != nil {
		return err
	}
	if have := inv.Count(item); have < qty {
		return ErrInsufficientInventory.WithMessage("Not enough %s: need %d, have %d", itemLabel(item), qty, have)
	}
	return nil
}

// UseShield protects one day (today when date is nil) of a habit.
func (ra *RecoveryActions) UseShield(ctx context.Context, userID, habitID string, date *time.Time) (ShieldResult, error) {
	var result ShieldResult
	today := ra.streaks.Today()
	target := today
	if date != nil {
		target = utils.StartOfDay(*date)
	}

	err := ra.repository.WithTx(ctx, func(tx *database.Repository) error {
		if target.After(today) {
			return ErrFutureDateNotAllowed
		}
		if target.Before(utils.AddDays(today, -MaxPastDays)) {
			return ErrTooFarInPast
		}
		habit, err := loadActiveHabit(ctx, tx, userID, habitID)
		if err != nil {
			return err
		}
		if target.Before(ra.streaks.CreatedDay(habit)) {
			return ErrDateNotEligible.WithMessage("Cannot protect a day before the habit was created")
		}
		if err := requireItems(ctx, tx, userID, database.ItemStreakShield, 1); err != nil {
			return err
		}

		now := ra.clock.Now()
		existing, err := tx.GetTracking(ctx, userID, habitID, target)
		switch {
		case errors.Is(err, database.ErrNotFound):
			rec, err := database.NewTrackingRecord(userID, habitID, target, string(database.StatusFailed))
			if err != nil {
				return err
			}
			rec.IsProtected = true
			created, err := tx.InsertTrackingIfAbsent(ctx, rec, now)
			if err != nil {
				return fmt.Errorf("failed to create tracking: %w", err)
			}
			if !created {
				return ErrAlreadyProtected
			}
		case err != nil:
			return fmt.Errorf("failed to load tracking: %w", err)
		case existing.Status == database.StatusCompleted:
			return ErrAlreadyCompleted
		case existing.IsProtected:
			return ErrAlreadyProtected
		case existing.Status == database.StatusFrozen:
			return ErrAlreadyProtected.WithMessage("This date is already frozen")
		default:
			ok, err := tx.ProtectTracking(ctx, userID, habitID, target, now)
			if err != nil {
				return fmt.Errorf("failed to protect tracking: %w", err)
			}
			if !ok {
				return ErrAlreadyProtected
			}
		}

		if err := tx.SaveProtection(ctx, habitID, habit.Protection.Shield(target, database.ProtectedByManual)); err != nil {
			return fmt.Errorf("failed to save protection: %w", err)
		}
		if err := tx.SetWarning(ctx, habitID, database.Warning{Date: habit.Warning.Date, Sent: false}); err != nil {
			return fmt.Errorf("failed to reset warning: %w", err)
		}

		streak, err := ra.streaks.recompute(ctx, tx, userID, habitID)
		if err != nil {
			return err
		}

		entry := database.ItemUsage{HabitID: habitID, ProtectedDate: &target, StreakSaved: streak.CurrentStreak}
		if err := ra.ledger.consume(ctx, tx, userID, database.ItemStreakShield, 1, entry); err != nil {
			return err
		}

		if result.Tracking, err = tx.GetTracking(ctx, userID, habitID, target); err != nil {
			return fmt.Errorf("failed to reload tracking: %w", err)
		}
		result.Streak = streak
		result.Inventory, err = snapshot(ctx, tx, userID)
		return err
	})

	ra.finish(ctx, actionShield, userID, habitID, err)
	if err != nil {
		return ShieldResult{}, err
	}
	ra.metrics.RecordConsumed(string(database.ItemStreakShield), 1)
	logger.Info("shield used", "user_id", userID, "habit_id", habitID, "date", utils.FormatDate(target),
		"streak", result.Streak.CurrentStreak)
	return result, nil
}

// UseFreezeToken pre-marks days consecutive days starting at startDate
// (today when nil) as frozen. Days that already have a record are left as
// they are; only newly frozen days are counted.
func (ra *RecoveryActions) UseFreezeToken(ctx context.Context, userID, habitID string, days int, startDate *time.Time) (FreezeResult, error) {
	var result FreezeResult
	today := ra.streaks.Today()
	start := today
	if startDate != nil {
		start = utils.StartOfDay(*startDate)
	}
	cost := FreezeCost(days)

	err := ra.repository.WithTx(ctx, func(tx *database.Repository) error {
		if days < 1 || days > MaxFreezeDays {
			return ErrInvalidDaysRange
		}
		if start.After(today) {
			return ErrFutureStartDate
		}
		if start.Before(utils.AddDays(today, -MaxPastDays)) {
			return ErrTooFarInPast
		}
		habit, err := loadActiveHabit(ctx, tx, userID, habitID)
		if err != nil {
			return err
		}
		if err := requireItems(ctx, tx, userID, database.ItemFreezeToken, cost); err != nil {
			return err
		}

		now := ra.clock.Now()
		end := utils.AddDays(start, days-1)
		frozen, err := habit.Protection.Freeze(ra.streaks.Wall(), start, end, days)
		if errors.Is(err, database.ErrAlreadyFrozen) {
			return ErrAlreadyFrozen
		}
		if err != nil {
			return err
		}

		created := 0
		for d := start; !d.After(end); d = utils.AddDays(d, 1) {
			rec, err := database.NewTrackingRecord(userID, habitID, d, string(database.StatusFrozen))
			if err != nil {
				return err
			}
			ok, err := tx.InsertTrackingIfAbsent(ctx, rec, now)
			if err != nil {
				return fmt.Errorf("failed to freeze %s: %w", utils.FormatDate(d), err)
			}
			if ok {
				created++
			}
		}
		if created == 0 {
			return ErrNoDaysToFreeze
		}

		// A range that ended before today leaves nothing for the state machine to guard.
		if !end.Before(today) {
			if err := tx.SaveProtection(ctx, habitID, frozen.WithDaysRemaining(today)); err != nil {
				return fmt.Errorf("failed to save protection: %w", err)
			}
		}

		streak, err := ra.streaks.recompute(ctx, tx, userID, habitID)
		if err != nil {
			return err
		}

		entry := database.ItemUsage{HabitID: habitID, FreezeDays: created, StreakSaved: streak.CurrentStreak}
		if err := ra.ledger.consume(ctx, tx, userID, database.ItemFreezeToken, cost, entry); err != nil {
			return err
		}

		result.FrozenDays = created
		result.RequestedDays = days
		result.TokensSpent = cost
		result.Streak = streak
		result.Inventory, err = snapshot(ctx, tx, userID)
		return err
	})

	ra.finish(ctx, actionFreeze, userID, habitID, err)
	if err != nil {
		return FreezeResult{}, err
	}
	ra.metrics.RecordConsumed(string(database.ItemFreezeToken), cost)
	logger.Info("freeze token used", "user_id", userID, "habit_id", habitID, "start", utils.FormatDate(start),
		"requested", days, "frozen", result.FrozenDays, "cost", cost)
	return result, nil
}

// UseReviveToken restores a broken streak by protecting one failed day
// (the most recent break when date is nil) and recomputing.
func (ra *RecoveryActions) UseReviveToken(ctx context.Context, userID, habitID string, date *time.Time) (ReviveResult, error) {
	var result ReviveResult
	today := ra.streaks.Today()

	err := ra.repository.WithTx(ctx, func(tx *database.Repository) error {
		habit, err := loadActiveHabit(ctx, tx, userID, habitID)
		if err != nil {
			return err
		}

		before, err := ra.streaks.recompute(ctx, tx, userID, habitID)
		if err != nil {
			return err
		}
		if before.CurrentStreak > 0 {
			return ErrStreakStillActive
		}
		if before.LongestStreak == 0 {
			return ErrNoStreakToRevive
		}
		if err := requireItems(ctx, tx, userID, database.ItemReviveToken, 1); err != nil {
			return err
		}

		var target time.Time
		if date != nil {
			target = utils.StartOfDay(*date)
		} else {
			records, err := tx.ListTracking(ctx, userID, habitID, utils.AddDays(today, -MaxPastDays), today)
			if err != nil {
				return fmt.Errorf("failed to load tracking: %w", err)
			}
			var ok bool
			if target, ok = LastBreak(habit, records, today, MaxPastDays+1, ra.streaks.loc); !ok {
				return ErrDateNotEligible.WithMessage("No missed day in the last %d days to revive", MaxPastDays)
			}
		}
		if target.After(today) || target.Before(utils.AddDays(today, -MaxPastDays)) {
			return ErrDateNotEligible.WithMessage("Revive date must be within the last %d days", MaxPastDays)
		}

		now := ra.clock.Now()
		existing, err := tx.GetTracking(ctx, userID, habitID, target)
		switch {
		case errors.Is(err, database.ErrNotFound):
			if !target.Before(today) || target.Before(ra.streaks.CreatedDay(habit)) {
				return ErrDateNotEligible
			}
			rec, err := database.NewTrackingRecord(userID, habitID, target, string(database.StatusFailed))
			if err != nil {
				return err
			}
			rec.IsProtected = true
			if _, err := tx.InsertTrackingIfAbsent(ctx, rec, now); err != nil {
				return fmt.Errorf("failed to create tracking: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to load tracking: %w", err)
		case existing.IsProtected:
			return ErrAlreadyProtected
		case existing.Status != database.StatusFailed && existing.Status != database.StatusSkipped:
			return ErrDateNotEligible
		default:
			ok, err := tx.ProtectTracking(ctx, userID, habitID, target, now)
			if err != nil {
				return fmt.Errorf("failed to protect tracking: %w", err)
			}
			if !ok {
				return ErrAlreadyProtected
			}
		}

		after, err := ra.streaks.recompute(ctx, tx, userID, habitID)
		if err != nil {
			return err
		}
		if after.CurrentStreak == 0 {
			return ErrDateNotEligible.WithMessage("Protecting %s does not restore the streak", utils.FormatDate(target))
		}

		entry := database.ItemUsage{HabitID: habitID, ProtectedDate: &target, StreakSaved: after.CurrentStreak}
		if err := ra.ledger.consume(ctx, tx, userID, database.ItemReviveToken, 1, entry); err != nil {
			return err
		}

		result.ProtectedDate = target
		result.Streak = after
		result.Inventory, err = snapshot(ctx, tx, userID)
		return err
	})

	ra.finish(ctx, actionRevive, userID, habitID, err)
	if err != nil {
		return ReviveResult{}, err
	}
	ra.metrics.RecordConsumed(string(database.ItemReviveToken), 1)
	logger.Info("revive token used", "user_id", userID, "habit_id", habitID,
		"date", utils.FormatDate(result.ProtectedDate), "streak", result.Streak.CurrentStreak)
	return result, nil
}

// finish records the outcome and, on success, lets achievements react to the
// new streak. Achievement failures never change the action result.
func (ra *RecoveryActions) finish(ctx context.Context, action, userID, habitID string, err error) {
	if err != nil {
		if ae, ok := AsActionError(err); ok {
			ra.metrics.RecordAction(action, ae.Code)
			logger.Debug("recovery action rejected", "action", action, "user_id", userID, "habit_id", habitID, "code", ae.Code)
			return
		}
		ra.metrics.RecordAction(action, outcomeInternal)
		logger.Error("recovery action failed", "action", action, "user_id", userID, "habit_id", habitID, "error", err)
		return
	}

	ra.metrics.RecordAction(action, outcomeSuccess)
	if ra.achievements == nil {
		return
	}
	if err := ra.achievements.CheckAndUnlockAchievements(ctx, habitID, userID); err != nil {
		logger.Warn("achievement check failed", "user_id", userID, "habit_id", habitID, "error", err)
	}
}
