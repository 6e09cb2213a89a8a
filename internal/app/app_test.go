package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streakguard/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Port = "0"
	cfg.Database.Path = filepath.Join(t.TempDir(), "app.db")
	cfg.Scheduler.Timezone = "Europe/Moscow"
	cfg.Scheduler.RiskSpec = "* * * * *"
	cfg.Scheduler.UnfreezeSpec = "5 0 * * *"
	cfg.Streak.ScanCapDays = 400
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewRegistersCronJobs(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	defer a.Stop()

	assert.Len(t, a.cron.Entries(), 2)
	assert.Nil(t, a.bot)
	assert.NotNil(t, a.Services().Risk)
}

func TestNewRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.UnfreezeSpec = "every midnight"

	_, err := New(cfg)
	assert.ErrorContains(t, err, "invalid unfreeze schedule")
}

func TestStartReturnsOnCancel(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	defer a.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}
}
