package services

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streakguard/internal/database"
)

func TestUnfreezeRefreshesThenClearsExpiredFreeze(t *testing.T) {
	env := newTestEnv(t, at("2026-03-10 12:00"))
	env.seed(t, database.Inventory{FreezeTokens: 1})
	ctx := context.Background()

	_, err := env.sm.Recovery.UseFreezeToken(ctx, "user-1", "habit-1", 3, nil)
	require.NoError(t, err)

	env.clock.Set(at("2026-03-12 00:05"))
	report := env.sm.Unfreeze.Run(ctx)
	assert.Equal(t, 1, report.Refreshed)
	assert.Zero(t, report.Unfrozen)
	h := env.habit(t, "habit-1")
	require.Equal(t, database.ProtectionFrozen, h.Protection.Kind())
	_, _, remaining, _ := h.Protection.Window()
	assert.Equal(t, 1, remaining)

	env.clock.Set(at("2026-03-12 23:00"))
	report = env.sm.Unfreeze.Run(ctx)
	assert.Zero(t, report.Unfrozen, "still inside the last frozen day")
	assert.Zero(t, report.Refreshed)

	env.clock.Set(at("2026-03-13 00:05"))
	report = env.sm.Unfreeze.Run(ctx)
	assert.Equal(t, 1, report.Unfrozen)
	assert.Equal(t, database.ProtectionNormal, env.habit(t, "habit-1").Protection.Kind())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.UnfrozenTotal))

	counts, err := env.repo.CountTracking(ctx, "user-1", "habit-1", day("2026-03-10"), day("2026-03-12"))
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Frozen, "frozen history is kept")

	report = env.sm.Unfreeze.Run(ctx)
	assert.Zero(t, report.Checked)
}

func TestUnfreezeClearsExpiredShield(t *testing.T) {
	env := newTestEnv(t, at("2026-03-10 12:00"))
	env.seed(t, database.Inventory{StreakShields: 1})
	ctx := context.Background()

	_, err := env.sm.Recovery.UseShield(ctx, "user-1", "habit-1", nil)
	require.NoError(t, err)

	env.clock.Set(at("2026-03-11 23:00"))
	report := env.sm.Unfreeze.Run(ctx)
	assert.Zero(t, report.Unshielded)

	env.clock.Set(at("2026-03-12 00:05"))
	report = env.sm.Unfreeze.Run(ctx)
	assert.Equal(t, 1, report.Unshielded)
	assert.Equal(t, database.ProtectionNormal, env.habit(t, "habit-1").Protection.Kind())

	rec, err := env.repo.GetTracking(ctx, "user-1", "habit-1", day("2026-03-10"))
	require.NoError(t, err)
	assert.True(t, rec.IsProtected, "day-level protection is permanent")
}

func TestUnfreezeLetsNewFreezeStartAfterExpiry(t *testing.T) {
	env := newTestEnv(t, at("2026-03-10 12:00"))
	env.seed(t, database.Inventory{FreezeTokens: 2})
	ctx := context.Background()

	_, err := env.sm.Recovery.UseFreezeToken(ctx, "user-1", "habit-1", 1, nil)
	require.NoError(t, err)

	env.clock.Set(at("2026-03-11 09:00"))
	env.sm.Unfreeze.Run(ctx)
	_, err = env.sm.Recovery.UseFreezeToken(ctx, "user-1", "habit-1", 2, nil)
	require.NoError(t, err)

	res, err := env.sm.Streaks.Recompute(ctx, "user-1", "habit-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.CurrentStreak)
}
