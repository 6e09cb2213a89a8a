package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"streakguard/internal/database"
	"streakguard/internal/observability"
)

const UsageHistoryLimit = 10

type InventoryLedger struct {
	repository *database.Repository
	clock      Clock
	metrics    *observability.Metrics
}

func NewInventoryLedger(repo *database.Repository, clock Clock, metrics *observability.Metrics) *InventoryLedger {
	return &InventoryLedger{repository: repo, clock: clock, metrics: metrics}
}

// Consume debits qty items and appends entry to the usage log in one
// transaction. entry carries the action-specific fields (habit, protected
// date, freeze days, streak saved).
func (l *InventoryLedger) Consume(ctx context.Context, userID string, item database.ItemType, qty int, entry database.ItemUsage) error {
	err := l.repository.WithTx(ctx, func(tx *database.Repository) error {
		return l.consume(ctx, tx, userID, item, qty, entry)
	})
	if err != nil {
		return err
	}
	l.metrics.RecordConsumed(string(item), qty)
	return nil
}

func (l *InventoryLedger) consume(ctx context.Context, repo *database.Repository, userID string, item database.ItemType, qty int, entry database.ItemUsage) error {
	if qty <= 0 {
		return &ActionError{KindValidation, "INVALID_QUANTITY", "Quantity must be positive"}
	}

	ok, err := repo.DebitItem(ctx, userID, item, qty)
	if err != nil {
		return fmt.Errorf("failed to debit %s: %w", item, err)
	}
	if !ok {
		inv, err := repo.GetInventory(ctx, userID)
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read inventory: %w", err)
		}
		return ErrInsufficientInventory.WithMessage("Not enough %s: need %d, have %d", itemLabel(item), qty, inv.Count(item))
	}

	entry.ID = uuid.NewString()
	entry.UserID = userID
	entry.ItemType = item
	entry.Quantity = qty
	entry.UsedAt = l.clock.Now()
	if err := repo.AppendUsage(ctx, entry); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Credit always adds; it is the only path for granting items.
func (l *InventoryLedger) Credit(ctx context.Context, userID string, item database.ItemType, qty int) error {
	if err := l.credit(ctx, l.repository, userID, item, qty); err != nil {
		return err
	}
	l.metrics.RecordCredited(string(item), qty)
	return nil
}

func (l *InventoryLedger) credit(ctx context.Context, repo *database.Repository, userID string, item database.ItemType, qty int) error {
	if qty <= 0 {
		return &ActionError{KindValidation, "INVALID_QUANTITY", "Quantity must be positive"}
	}
	err := repo.CreditItem(ctx, userID, item, qty)
	if errors.Is(err, database.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

func (l *InventoryLedger) Snapshot(ctx context.Context, userID string) (database.Inventory, error) {
	return snapshot(ctx, l.repository, userID)
}

func snapshot(ctx context.Context, repo *database.Repository, userID string) (database.Inventory, error) {
	inv, err := repo.GetInventory(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return database.Inventory{}, ErrUserNotFound
	}
	return inv, err
}

// History returns the newest usage entries first.
func (l *InventoryLedger) History(ctx context.Context, userID string, limit int) ([]database.ItemUsage, error) {
	if limit <= 0 {
		limit = UsageHistoryLimit
	}
	return l.repository.ListUsage(ctx, userID, limit)
}

func itemLabel(item database.ItemType) string {
	switch item {
	case database.ItemStreakShield:
		return "streak shields"
	case database.ItemFreezeToken:
		return "freeze tokens"
	case database.ItemReviveToken:
		return "revive tokens"
	}
	return string(item)
}

type SettingsService struct {
	repository *database.Repository
}

func NewSettingsService(repo *database.Repository) *SettingsService {
	return &SettingsService{repository: repo}
}

func (s *SettingsService) Get(ctx context.Context, userID string) (database.ProtectionSettings, error) {
	user, err := s.repository.GetUser(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return database.ProtectionSettings{}, ErrUserNotFound
	}
	if err != nil {
		return database.ProtectionSettings{}, err
	}
	return user.Settings, nil
}

func (s *SettingsService) Update(ctx context.Context, userID string, settings database.ProtectionSettings) error {
	if err := settings.Validate(); err != nil {
		return ErrInvalidSettings.WithMessage("Invalid protection settings: %v", err)
	}
	err := s.repository.UpdateProtectionSettings(ctx, userID, settings)
	if errors.Is(err, database.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
