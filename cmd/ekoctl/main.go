// Command ekoctl runs operator tasks against the marketplace database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ekoctl",
		Short:         "Operate the EkoMarket backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		migrateCmd(),
		reconcileTokensCmd(),
		recomputeStatsCmd(),
		expireHotspotsCmd(),
	)
	return cmd
}

// env is what every subcommand needs to talk to the database.
type env struct {
	cfg  *config.Config
	log  *logger.Logger
	pool *pgxpool.Pool
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
