package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"streakguard/internal/database"
	"streakguard/internal/utils"
)

const DefaultScanCapDays = 400

type StreakResult struct {
	CurrentStreak int `json:"currentStreak"`
	LongestStreak int `json:"longestStreak"`
}

type StreakCalculator struct {
	repository *database.Repository
	clock      Clock
	loc        *time.Location
	scanCap    int
}

func NewStreakCalculator(repo *database.Repository, clock Clock, loc *time.Location, scanCap int) *StreakCalculator {
	if scanCap <= 0 {
		scanCap = DefaultScanCapDays
	}
	if loc == nil {
		loc = time.UTC
	}
	return &StreakCalculator{repository: repo, clock: clock, loc: loc, scanCap: scanCap}
}

// Today is the current calendar day in the service timezone, as midnight UTC.
func (sc *StreakCalculator) Today() time.Time {
	return utils.LocalDay(sc.clock.Now(), sc.loc)
}

// Wall is the current local wall time on the scale protection deadlines use.
func (sc *StreakCalculator) Wall() time.Time {
	return utils.LocalWall(sc.clock.Now(), sc.loc)
}

// CreatedDay is the calendar day the habit was created on, in the service timezone.
func (sc *StreakCalculator) CreatedDay(h database.Habit) time.Time {
	return utils.LocalDay(h.CreatedAt, sc.loc)
}

// Recompute derives the current streak from tracking history and stores it.
// The longest streak only ever grows. Read and write share one transaction so
// a concurrent recovery action cannot be overwritten with a stale value.
func (sc *StreakCalculator) Recompute(ctx context.Context, userID, habitID string) (StreakResult, error) {
	var res StreakResult
	err := sc.repository.WithTx(ctx, func(tx *database.Repository) error {
		var err error
		res, err = sc.recompute(ctx, tx, userID, habitID)
		return err
	})
	return res, err
}

func (sc *StreakCalculator) recompute(ctx context.Context, repo *database.Repository, userID, habitID string) (StreakResult, error) {
	habit, err := repo.GetHabit(ctx, userID, habitID)
	if errors.Is(err, database.ErrNotFound) {
		return StreakResult{}, ErrHabitNotFound
	}
	if err != nil {
		return StreakResult{}, fmt.Errorf("failed to load habit: %w", err)
	}

	today := sc.Today()
	records, err := repo.ListTracking(ctx, userID, habitID, utils.AddDays(today, -(sc.scanCap-1)), today)
	if err != nil {
		return StreakResult{}, fmt.Errorf("failed to load tracking: %w", err)
	}

	current := CountStreak(habit, records, today, sc.scanCap, sc.loc)
	longest, err := repo.UpdateStreak(ctx, habitID, current)
	if err != nil {
		return StreakResult{}, fmt.Errorf("failed to save streak: %w", err)
	}
	return StreakResult{CurrentStreak: current, LongestStreak: longest}, nil
}

type dayOutcome int

const (
	dayPass dayOutcome = iota
	dayFail
	dayPending
	dayNeutral
	dayBeforeHabit
)

// classifyDay decides how one calendar day affects the streak. Today with no
// record is still pending. For non-daily habits an untracked day is neutral.
func classifyDay(h database.Habit, rec database.DailyTrackingRecord, tracked bool, d, today, created time.Time) dayOutcome {
	if tracked {
		if rec.Passes() {
			return dayPass
		}
		return dayFail
	}
	if d.Equal(today) {
		return dayPending
	}
	if h.Protection.FreezesDay(d) {
		return dayPass
	}
	if d.Before(created) {
		return dayBeforeHabit
	}
	if h.Frequency != database.FrequencyDaily {
		return dayNeutral
	}
	return dayFail
}

// CountStreak walks back from today one day at a time for at most scanCap
// days and counts passing days until the first failing one. loc decides the
// calendar day the habit was created on.
func CountStreak(h database.Habit, records map[string]database.DailyTrackingRecord, today time.Time, scanCap int, loc *time.Location) int {
	created := utils.LocalDay(h.CreatedAt, loc)
	streak := 0
	for i := 0; i < scanCap; i++ {
		d := utils.AddDays(today, -i)
		rec, tracked := records[utils.FormatDate(d)]
		switch classifyDay(h, rec, tracked, d, today, created) {
		case dayPass:
			streak++
		case dayPending, dayNeutral:
			continue
		default:
			return streak
		}
	}
	return streak
}

// LastBreak returns the most recent day that ended the streak, if any.
func LastBreak(h database.Habit, records map[string]database.DailyTrackingRecord, today time.Time, scanCap int, loc *time.Location) (time.Time, bool) {
	created := utils.LocalDay(h.CreatedAt, loc)
	for i := 0; i < scanCap; i++ {
		d := utils.AddDays(today, -i)
		rec, tracked := records[utils.FormatDate(d)]
		switch classifyDay(h, rec, tracked, d, today, created) {
		case dayFail:
			return d, true
		case dayBeforeHabit:
			return time.Time{}, false
		}
	}
	return time.Time{}, false
}
