package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"streakguard/internal/app"
	"streakguard/internal/logger"
)

var (
	recomputeUser  string
	recomputeHabit string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Telegram bot and the schedulers",
		RunE:  runServe,
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run a scheduler pass once and print its report",
	}
	sweepRiskCmd = &cobra.Command{
		Use:   "risk",
		Short: "Send streak risk warnings to every enabled user regardless of their notification time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.Application) error {
				report := a.Services().Risk.RunForAllUsers(cmd.Context())
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	sweepUnfreezeCmd = &cobra.Command{
		Use:   "unfreeze",
		Short: "Clear expired freezes and shields",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.Application) error {
				report := a.Services().Unfreeze.Run(cmd.Context())
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	recomputeCmd = &cobra.Command{
		Use:   "recompute",
		Short: "Recalculate and store the current and longest streak of one habit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.Application) error {
				res, err := a.Services().Streaks.Recompute(cmd.Context(), recomputeUser, recomputeHabit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer application.Stop()

	if err := application.Start(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
