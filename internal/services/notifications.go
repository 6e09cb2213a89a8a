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

const sweepRisk = "risk"

// SweepReport summarises one pass over users or habits.
type SweepReport struct {
	Users    int `json:"users"`
	Habits   int `json:"habits"`
	Warned   int `json:"warned"`
	Cleared  int `json:"cleared"`
	Failures int `json:"failures"`
}

// RiskScheduler warns users at most once a day per habit when an unfinished
// habit is about to break its streak. It never spends inventory.
type RiskScheduler struct {
	notifier   Notifier
	repository *database.Repository
	streaks    *StreakCalculator
	clock      Clock
	loc        *time.Location
	metrics    *observability.Metrics
}

func NewRiskScheduler(notifier Notifier, repo *database.Repository, streaks *StreakCalculator,
	clock Clock, loc *time.Location, metrics *observability.Metrics) *RiskScheduler {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &RiskScheduler{
		notifier:   notifier,
		repository: repo,
		streaks:    streaks,
		clock:      clock,
		loc:        loc,
		metrics:    metrics,
	}
}

// CheckAndSendWarnings is the per-minute tick: it evaluates users whose
// notification time is the current local minute.
func (rs *RiskScheduler) CheckAndSendWarnings(ctx context.Context) SweepReport {
	currentTime := rs.clock.Now().In(rs.loc).Format(utils.ClockLayout)
	logger.Debug("checking streak risk", "time", currentTime)

	users, err := rs.repository.ListProtectedUsers(ctx, currentTime)
	if err != nil {
		logger.Error("failed to list users for risk check", "time", currentTime, "error", err)
		rs.metrics.RecordSweepFailure(sweepRisk)
		return SweepReport{Failures: 1}
	}
	return rs.sweep(ctx, users)
}

// SendMissedWarnings catches up after a restart: every user whose
// notification time already passed today is evaluated once. Users warned
// before the restart are skipped by the per-day guard.
func (rs *RiskScheduler) SendMissedWarnings(ctx context.Context) SweepReport {
	users, err := rs.repository.ListProtectedUsers(ctx, "")
	if err != nil {
		logger.Error("failed to list users for missed warnings", "error", err)
		rs.metrics.RecordSweepFailure(sweepRisk)
		return SweepReport{Failures: 1}
	}

	now := rs.clock.Now()
	due := users[:0]
	for _, u := range users {
		if utils.ClockReached(now, rs.loc, u.Settings.NotificationTime) {
			due = append(due, u)
		}
	}
	logger.Info("checking missed warnings", "users", len(due))
	return rs.sweep(ctx, due)
}

// RunForAllUsers evaluates every enabled user regardless of notification time.
func (rs *RiskScheduler) RunForAllUsers(ctx context.Context) SweepReport {
	users, err := rs.repository.ListProtectedUsers(ctx, "")
	if err != nil {
		logger.Error("failed to list users for risk sweep", "error", err)
		rs.metrics.RecordSweepFailure(sweepRisk)
		return SweepReport{Failures: 1}
	}
	return rs.sweep(ctx, users)
}

func (rs *RiskScheduler) sweep(ctx context.Context, users []database.User) SweepReport {
	started := time.Now()
	var report SweepReport
	for _, u := range users {
		report.Users++
		if err := rs.checkUser(ctx, u, &report); err != nil {
			report.Failures++
			rs.metrics.RecordSweepFailure(sweepRisk)
			logger.Error("risk check failed", "user_id", u.ID, "error", err)
		}
	}
	rs.metrics.ObserveSweep(sweepRisk, time.Since(started).Seconds())
	if report.Users > 0 {
		logger.Info("risk sweep finished", "users", report.Users, "habits", report.Habits,
			"warned", report.Warned, "cleared", report.Cleared, "failures", report.Failures)
	}
	return report
}

func (rs *RiskScheduler) checkUser(ctx context.Context, u database.User, report *SweepReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if !u.Settings.Enabled {
		return nil
	}

	habits, err := rs.repository.ListActiveHabits(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("failed to list habits: %w", err)
	}
	for _, h := range habits {
		report.Habits++
		if err := rs.checkHabit(ctx, u, h, report); err != nil {
			report.Failures++
			rs.metrics.RecordSweepFailure(sweepRisk)
			logger.Error("risk check failed", "user_id", u.ID, "habit_id", h.ID, "error", err)
		}
	}
	return nil
}

func (rs *RiskScheduler) checkHabit(ctx context.Context, u database.User, h database.Habit, report *SweepReport) error {
	today := utils.LocalDay(rs.clock.Now(), rs.loc)

	rec, err := rs.repository.GetTracking(ctx, u.ID, h.ID, today)
	switch {
	case err == nil && rec.Passes():
		if h.Warning.Sent {
			if err := rs.repository.SetWarning(ctx, h.ID, database.Warning{}); err != nil {
				return fmt.Errorf("failed to clear warning: %w", err)
			}
			report.Cleared++
		}
		return nil
	case err != nil && !errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("failed to load tracking: %w", err)
	}

	if h.Warning.SentOn(today) {
		return nil
	}
	if h.Protection.Covers(utils.LocalWall(rs.clock.Now(), rs.loc)) {
		return nil
	}

	streak, err := rs.streaks.Recompute(ctx, u.ID, h.ID)
	if err != nil {
		return err
	}
	if streak.CurrentStreak == 0 {
		return nil
	}
	h.CurrentStreak = streak.CurrentStreak

	claimed, err := rs.repository.MarkWarningSent(ctx, h.ID, today)
	if err != nil {
		return fmt.Errorf("failed to mark warning: %w", err)
	}
	if !claimed {
		return nil
	}

	hoursLeft := utils.HoursLeftInDay(rs.clock.Now(), rs.loc)
	n := riskWarning(h, hoursLeft, u.Inventory)
	if err := rs.notifier.SendToUser(ctx, u.ID, n); err != nil {
		rs.metrics.RecordNotifyFailure()
		logger.Warn("failed to deliver risk warning", "user_id", u.ID, "habit_id", h.ID, "error", err)
		return nil
	}
	report.Warned++
	rs.metrics.RecordWarningSent()
	logger.Info("risk warning sent", "user_id", u.ID, "habit_id", h.ID, "streak", h.CurrentStreak, "hours_left", hoursLeft)
	return nil
}
