package services

import (
	"time"

	"streakguard/internal/database"
	"streakguard/internal/observability"
)

type Options struct {
	Clock       Clock
	Location    *time.Location
	ScanCapDays int
	Metrics     *observability.Metrics
}

type ServiceManager struct {
	Streaks      *StreakCalculator
	Inventory    *InventoryLedger
	Recovery     *RecoveryActions
	Risk         *RiskScheduler
	Unfreeze     *UnfreezeReconciler
	Stats        *HabitStatsService
	Achievements AchievementService
	Settings     *SettingsService
	repository   *database.Repository
	opts         Options
}

func NewServiceManager(db *database.Database, opts Options) *ServiceManager {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	repo := database.NewRepository(db)

	streaks := NewStreakCalculator(repo, opts.Clock, opts.Location, opts.ScanCapDays)
	ledger := NewInventoryLedger(repo, opts.Clock, opts.Metrics)
	achievements := NewMilestoneAchievements(repo, ledger, opts.Clock)

	return &ServiceManager{
		Streaks:      streaks,
		Inventory:    ledger,
		Recovery:     NewRecoveryActions(repo, ledger, streaks, achievements, opts.Clock, opts.Metrics),
		Risk:         NewRiskScheduler(LogNotifier{}, repo, streaks, opts.Clock, opts.Location, opts.Metrics),
		Unfreeze:     NewUnfreezeReconciler(repo, opts.Clock, opts.Location, opts.Metrics),
		Stats:        NewHabitStatsService(repo, streaks),
		Achievements: achievements,
		Settings:     NewSettingsService(repo),
		repository:   repo,
		opts:         opts,
	}
}

// SetNotifier swaps the push transport used by the risk scheduler.
func (sm *ServiceManager) SetNotifier(n Notifier) {
	sm.Risk = NewRiskScheduler(n, sm.repository, sm.Streaks, sm.opts.Clock, sm.opts.Location, sm.opts.Metrics)
}

// Location is the timezone calendar days are resolved in.
func (sm *ServiceManager) Location() *time.Location {
	return sm.opts.Location
}

func (sm *ServiceManager) Repository() *database.Repository {
	return sm.repository
}
