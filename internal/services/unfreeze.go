package services

import (
	"context"
	"fmt"
	"time"

	"streakguard/internal/database"
	"streakguard/internal/logger"
	"streakguard/internal/observability"
	"streakguard/internal/utils"
)

const sweepUnfreeze = "unfreeze"

type UnfreezeReport struct {
	Checked    int `json:"checked"`
	Unfrozen   int `json:"unfrozen"`
	Unshielded int `json:"unshielded"`
	Refreshed  int `json:"refreshed"`
	Failures   int `json:"failures"`
}

// UnfreezeReconciler returns expired Frozen and Protected habits to Normal.
// Frozen tracking records are history and are never touched.
type UnfreezeReconciler struct {
	repository *database.Repository
	clock      Clock
	loc        *time.Location
	metrics    *observability.Metrics
}

func NewUnfreezeReconciler(repo *database.Repository, clock Clock, loc *time.Location, metrics *observability.Metrics) *UnfreezeReconciler {
	if loc == nil {
		loc = time.UTC
	}
	return &UnfreezeReconciler{repository: repo, clock: clock, loc: loc, metrics: metrics}
}

func (ur *UnfreezeReconciler) Run(ctx context.Context) UnfreezeReport {
	started := time.Now()
	var report UnfreezeReport
	defer func() {
		ur.metrics.ObserveSweep(sweepUnfreeze, time.Since(started).Seconds())
	}()

	habits, err := ur.repository.ListHabitsInState(ctx, database.ProtectionFrozen, database.ProtectionProtected)
	if err != nil {
		logger.Error("failed to list protected habits", "error", err)
		ur.metrics.RecordSweepFailure(sweepUnfreeze)
		report.Failures++
		return report
	}

	now := ur.clock.Now()
	wall := utils.LocalWall(now, ur.loc)
	today := utils.LocalDay(now, ur.loc)
	for _, h := range habits {
		report.Checked++
		if err := ur.reconcile(ctx, h, wall, today, &report); err != nil {
			report.Failures++
			ur.metrics.RecordSweepFailure(sweepUnfreeze)
			logger.Error("unfreeze failed", "user_id", h.UserID, "habit_id", h.ID, "error", err)
		}
	}

	logger.Info("unfreeze sweep finished", "checked", report.Checked, "unfrozen", report.Unfrozen,
		"unshielded", report.Unshielded, "refreshed", report.Refreshed, "failures", report.Failures)
	return report
}

func (ur *UnfreezeReconciler) reconcile(ctx context.Context, h database.Habit, wall, today time.Time, report *UnfreezeReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	prev := h.Protection
	next, expired := prev.Expire(wall)
	if !expired {
		next = prev.WithDaysRemaining(today)
		if next == prev {
			return nil
		}
	}

	// A user action may have changed the state since it was listed; that
	// writer wins and this habit is picked up on the next run.
	ok, err := ur.repository.CompareAndSaveProtection(ctx, h.ID, prev, next)
	if err != nil {
		return fmt.Errorf("failed to save protection: %w", err)
	}
	if !ok {
		logger.Debug("protection changed during sweep", "habit_id", h.ID)
		return nil
	}

	switch {
	case !expired:
		report.Refreshed++
	case prev.Kind() == database.ProtectionFrozen:
		report.Unfrozen++
		ur.metrics.RecordUnfrozen()
		logger.Info("habit unfrozen", "user_id", h.UserID, "habit_id", h.ID)
	default:
		report.Unshielded++
	}
	return nil
}
