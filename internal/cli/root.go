// Package cli wires the streakguard binary: the long-running server and
// one-shot maintenance commands that share its configuration.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"streakguard/internal/app"
	"streakguard/internal/config"
	"streakguard/internal/logger"
)

var (
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "streakguard",
		Short: "Habit streak tracking with shields, freezes and revives",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			return logger.Init(logger.Config{Debug: cfg.Log.Debug, Dir: cfg.Log.Dir})
		},
		SilenceUsage: true,
		RunE:         runServe,
	}
)

func init() {
	rootCmd.AddCommand(serveCmd, sweepCmd, recomputeCmd)
	sweepCmd.AddCommand(sweepRiskCmd, sweepUnfreezeCmd)

	recomputeCmd.Flags().StringVar(&recomputeUser, "user", "", "user id")
	recomputeCmd.Flags().StringVar(&recomputeHabit, "habit", "", "habit id")
	_ = recomputeCmd.MarkFlagRequired("user")
	_ = recomputeCmd.MarkFlagRequired("habit")
}

// Execute runs the command line. Without a subcommand the server starts.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

// withApp builds the application for a one-shot command and closes it after.
func withApp(fn func(a *app.Application) error) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Stop()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
