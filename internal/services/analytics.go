package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"streakguard/internal/database"
	"streakguard/internal/utils"
)

const (
	DefaultStatsDays = 30
	MaxStatsDays     = 365
)

type HabitStats struct {
	HabitID        string                `json:"habitId"`
	From           string                `json:"from"`
	To             string                `json:"to"`
	Days           int                   `json:"days"`
	Counts         database.StatusCounts `json:"counts"`
	Untracked      int                   `json:"untracked"`
	CompletionRate float64               `json:"completionRate"`
	CurrentStreak  int                   `json:"currentStreak"`
	LongestStreak  int                   `json:"longestStreak"`
	Protection     database.Protection   `json:"protection"`
	Insights       string                `json:"insights"`
}

type HabitStatsService struct {
	repository *database.Repository
	streaks    *StreakCalculator
}

func NewHabitStatsService(repo *database.Repository, streaks *StreakCalculator) *HabitStatsService {
	return &HabitStatsService{repository: repo, streaks: streaks}
}

// GetHabitStats summarises the last days calendar days up to today.
func (hs *HabitStatsService) GetHabitStats(ctx context.Context, userID, habitID string, days int) (*HabitStats, error) {
	if days == 0 {
		days = DefaultStatsDays
	}
	if days < 1 || days > MaxStatsDays {
		return nil, &ActionError{KindValidation, "INVALID_DAYS_RANGE", fmt.Sprintf("Days must be between 1 and %d", MaxStatsDays)}
	}

	habit, err := hs.repository.GetHabit(ctx, userID, habitID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrHabitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load habit: %w", err)
	}

	today := hs.streaks.Today()
	from := utils.AddDays(today, -(days - 1))
	if created := hs.streaks.CreatedDay(habit); from.Before(created) {
		from = created
	}
	if from.After(today) {
		from = today
	}

	counts, err := hs.repository.CountTracking(ctx, userID, habitID, from, today)
	if err != nil {
		return nil, fmt.Errorf("failed to count tracking: %w", err)
	}
	streak, err := hs.streaks.Recompute(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}

	span := utils.DaysBetween(from, today) + 1
	tracked := counts.Completed + counts.Failed + counts.Skipped + counts.Frozen
	stats := &HabitStats{
		HabitID:       habitID,
		From:          utils.FormatDate(from),
		To:            utils.FormatDate(today),
		Days:          span,
		Counts:        counts,
		Untracked:     max(span-tracked, 0),
		CurrentStreak: streak.CurrentStreak,
		LongestStreak: streak.LongestStreak,
		Protection:    habit.Protection,
	}
	// Frozen days are excused, not expected.
	if expected := span - counts.Frozen; expected > 0 {
		stats.CompletionRate = float64(counts.Completed) / float64(expected) * 100
	}
	stats.Insights = hs.generateInsights(stats)
	return stats, nil
}

func (hs *HabitStatsService) generateInsights(s *HabitStats) string {
	var insights []string

	switch {
	case s.CompletionRate < 50:
		insights = append(insights, "💪 Less than half of the days are done, pick a smaller daily goal")
	case s.CompletionRate > 80:
		insights = append(insights, "🎯 Great consistency, keep it up")
	default:
		insights = append(insights, "📈 Good progress, there is room to grow")
	}

	if s.Counts.Protected > 0 {
		insights = append(insights, fmt.Sprintf("🛡 %d days were saved by a shield or revive", s.Counts.Protected))
	}
	if s.CurrentStreak > 0 && s.CurrentStreak == s.LongestStreak {
		insights = append(insights, fmt.Sprintf("%s You are on your best streak: %d days", utils.StreakEmoji(s.CurrentStreak), s.CurrentStreak))
	}
	if s.Untracked > s.Days/2 {
		insights = append(insights, "📝 Most days are not tracked yet")
	}

	return strings.Join(insights, "\n")
}
