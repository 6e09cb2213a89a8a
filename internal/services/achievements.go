package services

import (
	"context"
	"errors"
	"fmt"

	"streakguard/internal/database"
	"streakguard/internal/logger"
)

// AchievementService reacts to streak changes after a successful action.
type AchievementService interface {
	CheckAndUnlockAchievements(ctx context.Context, habitID, userID string) error
}

type Milestone struct {
	Days   int
	Reward database.ItemType
	Qty    int
}

var DefaultMilestones = []Milestone{
	{Days: 7, Reward: database.ItemStreakShield, Qty: 1},
	{Days: 30, Reward: database.ItemFreezeToken, Qty: 1},
	{Days: 100, Reward: database.ItemReviveToken, Qty: 1},
}

// MilestoneAchievements credits a reward the first time a habit's current
// streak reaches each milestone.
type MilestoneAchievements struct {
	repository *database.Repository
	ledger     *InventoryLedger
	clock      Clock
	milestones []Milestone
}

func NewMilestoneAchievements(repo *database.Repository, ledger *InventoryLedger, clock Clock) *MilestoneAchievements {
	return &MilestoneAchievements{
		repository: repo,
		ledger:     ledger,
		clock:      clock,
		milestones: DefaultMilestones,
	}
}

func (ma *MilestoneAchievements) CheckAndUnlockAchievements(ctx context.Context, habitID, userID string) error {
	habit, err := ma.repository.GetHabit(ctx, userID, habitID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrHabitNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load habit: %w", err)
	}

	for _, m := range ma.milestones {
		if habit.CurrentStreak < m.Days {
			continue
		}
		var unlocked bool
		err := ma.repository.WithTx(ctx, func(tx *database.Repository) error {
			var err error
			unlocked, err = tx.UnlockAchievement(ctx, database.Achievement{
				UserID:     userID,
				HabitID:    habitID,
				Milestone:  m.Days,
				UnlockedAt: ma.clock.Now(),
			})
			if err != nil || !unlocked {
				return err
			}
			return ma.ledger.credit(ctx, tx, userID, m.Reward, m.Qty)
		})
		if err != nil {
			return fmt.Errorf("failed to unlock %d-day milestone: %w", m.Days, err)
		}
		if unlocked {
			ma.ledger.metrics.RecordCredited(string(m.Reward), m.Qty)
			logger.Info("milestone unlocked", "user_id", userID, "habit_id", habitID, "days", m.Days, "reward", m.Reward)
		}
	}
	return nil
}
