package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"streakguard/internal/api"
	"streakguard/internal/config"
	"streakguard/internal/database"
	"streakguard/internal/logger"
	"streakguard/internal/observability"
	"streakguard/internal/services"
	"streakguard/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	config   *config.Config
	db       *database.Database
	bot      *telegram.Bot
	services *services.ServiceManager
	cron     *cron.Cron
	server   *http.Server
	registry *prometheus.Registry
}

func New(cfg *config.Config) (*Application, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	serviceManager := services.NewServiceManager(db, services.Options{
		Clock:       services.SystemClock{},
		Location:    loc,
		ScanCapDays: cfg.Streak.ScanCapDays,
		Metrics:     observability.NewMetrics(registry),
	})

	app := &Application{
		config:   cfg,
		db:       db,
		services: serviceManager,
		cron:     cron.New(cron.WithLocation(loc)),
		registry: registry,
	}

	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram.Token, serviceManager)
		if err != nil {
			db.Close()
			return nil, err
		}
		app.bot = bot
		serviceManager.SetNotifier(bot)
	} else {
		logger.Warn("TG_TOKEN is not set, risk warnings are only logged")
	}

	if err := app.setupCronJobs(); err != nil {
		db.Close()
		return nil, err
	}

	return app, nil
}

func (a *Application) Services() *services.ServiceManager {
	return a.services
}

// Start runs the HTTP server, the bot and the cron jobs until ctx is
// cancelled or one of them fails.
func (a *Application) Start(ctx context.Context) error {
	logger.Info("starting application", "port", a.config.Server.Port, "timezone", a.config.Scheduler.Timezone)

	a.server = &http.Server{
		Addr:              ":" + a.config.Server.Port,
		Handler:           api.NewRouter(a.services, a.registry),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	a.cron.Start()

	logger.Info("checking missed risk warnings")
	a.services.Risk.SendMissedWarnings(ctx)
	a.services.Unfreeze.Run(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.bot != nil {
		g.Go(func() error {
			a.bot.Start(gctx)
			return nil
		})
		logger.Info("telegram bot started", "username", a.bot.GetUsername())
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		<-a.cron.Stop().Done()
		return a.server.Shutdown(shutdownCtx)
	})

	logger.Info("application started", "addr", a.server.Addr)
	return g.Wait()
}

func (a *Application) Stop() error {
	logger.Info("stopping application")
	if err := a.db.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
		return err
	}
	logger.Info("application stopped")
	return nil
}

func (a *Application) setupCronJobs() error {
	// Per-minute tick; each user is evaluated at their own notification time.
	_, err := a.cron.AddFunc(a.config.Scheduler.RiskSpec, func() {
		a.services.Risk.CheckAndSendWarnings(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid risk schedule %q: %w", a.config.Scheduler.RiskSpec, err)
	}

	// Shortly after local midnight
	_, err = a.cron.AddFunc(a.config.Scheduler.UnfreezeSpec, func() {
		a.services.Unfreeze.Run(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid unfreeze schedule %q: %w", a.config.Scheduler.UnfreezeSpec, err)
	}
	return nil
}
