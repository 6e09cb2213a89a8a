package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"streakguard/internal/database"
	"streakguard/internal/observability"
)

type testEnv struct {
	sm      *ServiceManager
	repo    *database.Repository
	clock   *FakeClock
	metrics *observability.Metrics
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	return newTestEnvIn(t, now, time.UTC)
}

func newTestEnvIn(t *testing.T, now time.Time, loc *time.Location) *testEnv {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := NewFakeClock(now)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	sm := NewServiceManager(db, Options{Clock: clock, Location: loc, Metrics: metrics})
	return &testEnv{sm: sm, repo: sm.Repository(), clock: clock, metrics: metrics}
}

// seed creates user-1 with inv and a daily habit-1 created on 2026-02-01.
func (e *testEnv) seed(t *testing.T, inv database.Inventory) {
	t.Helper()
	e.seedUser(t, "user-1", inv, database.DefaultProtectionSettings())
	e.seedHabit(t, "user-1", "habit-1")
}

func (e *testEnv) seedUser(t *testing.T, id string, inv database.Inventory, settings database.ProtectionSettings) {
	t.Helper()
	require.NoError(t, e.repo.CreateUser(context.Background(), database.User{
		ID: id, Name: id, Inventory: inv, Settings: settings, CreatedAt: day("2026-02-01"),
	}))
}

func (e *testEnv) seedHabit(t *testing.T, userID, habitID string) {
	t.Helper()
	h, err := database.NewHabit(habitID, userID, "Read", "learning", "daily", day("2026-02-01"))
	require.NoError(t, err)
	require.NoError(t, e.repo.CreateHabit(context.Background(), h))
}

func (e *testEnv) track(t *testing.T, habitID, date, status string) {
	t.Helper()
	e.trackFor(t, "user-1", habitID, date, status)
}

func (e *testEnv) trackFor(t *testing.T, userID, habitID, date, status string) {
	t.Helper()
	rec, err := database.NewTrackingRecord(userID, habitID, day(date), status)
	require.NoError(t, err)
	require.NoError(t, e.repo.UpsertTracking(context.Background(), rec, e.clock.Now()))
}

// completeRange marks every day from..to (inclusive) as completed.
func (e *testEnv) completeRange(t *testing.T, habitID, from, to string) {
	t.Helper()
	for d := day(from); !d.After(day(to)); d = d.AddDate(0, 0, 1) {
		e.track(t, habitID, d.Format("2006-01-02"), "completed")
	}
}

func (e *testEnv) inventory(t *testing.T) database.Inventory {
	t.Helper()
	inv, err := e.repo.GetInventory(context.Background(), "user-1")
	require.NoError(t, err)
	return inv
}

func (e *testEnv) habit(t *testing.T, habitID string) database.Habit {
	t.Helper()
	h, err := e.repo.GetHabit(context.Background(), "user-1", habitID)
	require.NoError(t, err)
	return h
}

func datePtr(s string) *time.Time {
	d := day(s)
	return &d
}

type sentNotification struct {
	UserID string
	N      Notification
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []sentNotification
	err   error
	panic string
}

func (r *recordingNotifier) SendToUser(_ context.Context, userID string, n Notification) error {
	if r.panic != "" && userID == r.panic {
		panic("notifier exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentNotification{UserID: userID, N: n})
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}
