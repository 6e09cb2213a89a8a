package services

import (
	"context"
	"fmt"

	"streakguard/internal/database"
	"streakguard/internal/logger"
)

type NotificationType string

const (
	NotificationStreakRisk NotificationType = "streak_risk"
)

// Notification is the push payload handed to a Notifier.
type Notification struct {
	Type           NotificationType   `json:"type"`
	Title          string             `json:"title"`
	Body           string             `json:"body"`
	HabitID        string             `json:"habitId"`
	HabitName      string             `json:"habitName"`
	CurrentStreak  int                `json:"currentStreak"`
	HoursRemaining int                `json:"hoursRemaining"`
	Inventory      database.Inventory `json:"inventory"`
}

// Notifier delivers pushes on a best-effort basis. Errors are reported to
// the caller only so they can be logged.
type Notifier interface {
	SendToUser(ctx context.Context, userID string, n Notification) error
}

// LogNotifier is used when no push transport is configured.
type LogNotifier struct{}

func (LogNotifier) SendToUser(_ context.Context, userID string, n Notification) error {
	logger.Info("notification", "user_id", userID, "type", n.Type, "habit_id", n.HabitID, "body", n.Body)
	return nil
}

func riskWarning(h database.Habit, hoursLeft int, inv database.Inventory) Notification {
	return Notification{
		Type:  NotificationStreakRisk,
		Title: fmt.Sprintf("Your %d-day streak is at risk", h.CurrentStreak),
		Body: fmt.Sprintf("%s is not done yet and %d hours are left today. Complete it or use a shield (%d left).",
			h.Name, hoursLeft, inv.StreakShields),
		HabitID:        h.ID,
		HabitName:      h.Name,
		CurrentStreak:  h.CurrentStreak,
		HoursRemaining: hoursLeft,
		Inventory:      inv,
	}
}
