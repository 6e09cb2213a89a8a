package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streakguard/internal/database"
)

func records(t *testing.T, statuses map[string]string) map[string]database.DailyTrackingRecord {
	t.Helper()
	out := make(map[string]database.DailyTrackingRecord, len(statuses))
	for d, st := range statuses {
		protected := false
		if st == "failed+protected" {
			st, protected = "failed", true
		}
		rec, err := database.NewTrackingRecord("user-1", "habit-1", day(d), st)
		require.NoError(t, err)
		rec.IsProtected = protected
		out[d] = rec
	}
	return out
}

func testHabit(t *testing.T, frequency string) database.Habit {
	t.Helper()
	h, err := database.NewHabit("habit-1", "user-1", "Run", "fitness", frequency, day("2026-03-01"))
	require.NoError(t, err)
	return h
}

func TestCountStreak(t *testing.T) {
	today := day("2026-03-10")
	daily := testHabit(t, "daily")

	cases := []struct {
		name    string
		records map[string]string
		want    int
	}{
		{"empty", nil, 0},
		{"today pending", map[string]string{"2026-03-09": "completed", "2026-03-08": "completed"}, 2},
		{"today completed", map[string]string{"2026-03-10": "completed", "2026-03-09": "completed"}, 2},
		{"today failed", map[string]string{"2026-03-10": "failed", "2026-03-09": "completed"}, 0},
		{"gap breaks", map[string]string{"2026-03-09": "completed", "2026-03-07": "completed"}, 1},
		{"skipped breaks", map[string]string{"2026-03-09": "completed", "2026-03-08": "skipped", "2026-03-07": "completed"}, 1},
		{"protected passes", map[string]string{"2026-03-09": "completed", "2026-03-08": "failed+protected", "2026-03-07": "completed"}, 3},
		{"frozen passes", map[string]string{"2026-03-09": "frozen", "2026-03-08": "completed"}, 2},
		{"old run behind a gap", map[string]string{
			"2026-03-01": "completed", "2026-03-02": "completed", "2026-03-03": "completed",
			"2026-02-28": "completed",
		}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CountStreak(daily, records(t, tc.records), today, DefaultScanCapDays, time.UTC))
		})
	}
}

func TestCountStreakStopsAtHabitCreation(t *testing.T) {
	h := testHabit(t, "daily")
	recs := map[string]string{}
	for d := day("2026-03-01"); d.Before(day("2026-03-10")); d = d.AddDate(0, 0, 1) {
		recs[d.Format("2006-01-02")] = "completed"
	}
	assert.Equal(t, 9, CountStreak(h, records(t, recs), day("2026-03-10"), DefaultScanCapDays, time.UTC))
}

func TestCountStreakRespectsScanCap(t *testing.T) {
	h := testHabit(t, "daily")
	h.CreatedAt = day("2025-01-01")
	recs := map[string]string{}
	for d := day("2025-06-01"); !d.After(day("2026-03-10")); d = d.AddDate(0, 0, 1) {
		recs[d.Format("2006-01-02")] = "completed"
	}
	assert.Equal(t, 30, CountStreak(h, records(t, recs), day("2026-03-10"), 30, time.UTC))
}

func TestCountStreakNonDailyIgnoresGaps(t *testing.T) {
	h := testHabit(t, "weekly")
	recs := records(t, map[string]string{"2026-03-09": "completed", "2026-03-02": "completed"})
	assert.Equal(t, 2, CountStreak(h, recs, day("2026-03-10"), DefaultScanCapDays, time.UTC))

	recs = records(t, map[string]string{"2026-03-09": "completed", "2026-03-05": "failed", "2026-03-02": "completed"})
	assert.Equal(t, 1, CountStreak(h, recs, day("2026-03-10"), DefaultScanCapDays, time.UTC))
}

func TestCountStreakFrozenWindowCoversUntrackedDays(t *testing.T) {
	h := testHabit(t, "daily")
	h.Protection = database.FrozenBetween(day("2026-03-06"), day("2026-03-08"), 3)
	recs := records(t, map[string]string{"2026-03-09": "completed", "2026-03-05": "completed"})
	assert.Equal(t, 5, CountStreak(h, recs, day("2026-03-10"), DefaultScanCapDays, time.UTC))
}

func TestLastBreak(t *testing.T) {
	h := testHabit(t, "daily")
	recs := records(t, map[string]string{"2026-03-09": "failed", "2026-03-08": "completed"})

	d, ok := LastBreak(h, recs, day("2026-03-10"), 31, time.UTC)
	require.True(t, ok)
	assert.Equal(t, day("2026-03-09"), d)

	_, ok = LastBreak(h, records(t, map[string]string{"2026-03-01": "completed"}), day("2026-03-01"), 31, time.UTC)
	assert.False(t, ok)
}

func TestRecomputeKeepsLongestMonotonic(t *testing.T) {
	env := newTestEnv(t, at("2026-03-05 10:00"))
	env.seed(t, database.Inventory{})
	env.completeRange(t, "habit-1", "2026-03-01", "2026-03-04")
	ctx := context.Background()

	res, err := env.sm.Streaks.Recompute(ctx, "user-1", "habit-1")
	require.NoError(t, err)
	assert.Equal(t, StreakResult{CurrentStreak: 4, LongestStreak: 4}, res)

	env.clock.Advance(48 * time.Hour)
	res, err = env.sm.Streaks.Recompute(ctx, "user-1", "habit-1")
	require.NoError(t, err)
	assert.Equal(t, StreakResult{CurrentStreak: 0, LongestStreak: 4}, res)

	h := env.habit(t, "habit-1")
	assert.Equal(t, 0, h.CurrentStreak)
	assert.Equal(t, 4, h.LongestStreak)

	_, err = env.sm.Streaks.Recompute(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, ErrHabitNotFound)
}

func TestCreationDayUsesServiceTimezone(t *testing.T) {
	// 23:00 on March 6th in UTC-5 is already March 7th in UTC.
	h, err := database.NewHabit("habit-1", "user-1", "Run", "fitness", "daily", at("2026-03-07 04:00"))
	require.NoError(t, err)
	recs := records(t, map[string]string{"2026-03-07": "completed", "2026-03-08": "completed", "2026-03-09": "completed"})
	east := time.FixedZone("UTC-5", -5*60*60)

	_, ok := LastBreak(h, recs, day("2026-03-10"), 31, time.UTC)
	assert.False(t, ok)

	d, ok := LastBreak(h, recs, day("2026-03-10"), 31, east)
	require.True(t, ok)
	assert.Equal(t, day("2026-03-06"), d, "untracked creation day counts as missed")
	assert.Equal(t, 3, CountStreak(h, recs, day("2026-03-10"), 31, east))

	env := newTestEnvIn(t, at("2026-03-10 17:00"), east)
	assert.Equal(t, day("2026-03-06"), env.sm.Streaks.CreatedDay(h))
}

func TestRecomputeDoesNotOverwriteConcurrentShield(t *testing.T) {
	env := newTestEnv(t, at("2026-03-10 12:00"))
	env.seed(t, database.Inventory{StreakShields: 1})
	env.sm.SetNotifier(&recordingNotifier{})
	env.completeRange(t, "habit-1", "2026-03-01", "2026-03-04")
	env.completeRange(t, "habit-1", "2026-03-06", "2026-03-09")
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			env.sm.Risk.RunForAllUsers(ctx)
		}
	}()
	go func() {
		defer wg.Done()
		_, err := env.sm.Recovery.UseShield(ctx, "user-1", "habit-1", datePtr("2026-03-05"))
		assert.NoError(t, err)
	}()
	wg.Wait()

	h := env.habit(t, "habit-1")
	recs, err := env.repo.ListTracking(ctx, "user-1", "habit-1", day("2026-02-01"), day("2026-03-10"))
	require.NoError(t, err)
	assert.Equal(t, CountStreak(h, recs, day("2026-03-10"), DefaultScanCapDays, time.UTC), h.CurrentStreak)
	assert.Equal(t, 9, h.CurrentStreak)
	assert.Equal(t, 9, h.LongestStreak)
}
