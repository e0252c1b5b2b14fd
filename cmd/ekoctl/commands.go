package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"ekomarket_backend/internal/hotspots"
	"ekomarket_backend/internal/profiles"
	"ekomarket_backend/internal/scheduler"
	"ekomarket_backend/internal/tokens"
	"ekomarket_backend/migrations"
	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/db"
	"ekomarket_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func connect(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Env)

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &env{cfg: cfg, log: log, pool: pool}, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	run := func(action func(ctx context.Context, cfg *config.Config) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return action(ctx, cfg)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: run(func(ctx context.Context, cfg *config.Config) error {
				if err := db.RunMigrations(ctx, cfg, migrations.FS); err != nil {
					return err
				}
				fmt.Println("migrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: run(func(ctx context.Context, cfg *config.Config) error {
				return db.RollbackOne(ctx, cfg, migrations.FS)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			RunE: run(func(ctx context.Context, cfg *config.Config) error {
				statuses, err := db.MigrationStatus(ctx, cfg, migrations.FS)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tSTATE\tSOURCE")
				for _, s := range statuses {
					fmt.Fprintf(w, "%d\t%s\t%s\n", s.Source.Version, s.State, s.Source.Path)
				}
				return w.Flush()
			}),
		},
	)
	return cmd
}

func reconcileTokensCmd() *cobra.Command {
	var (
		collector  string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile-tokens",
		Short: "Check every ledger balance against the sum of its entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			svc := tokens.NewService(tokens.NewRepository(e.pool), nil, nil, e.log)

			var results []tokens.ReconcileResult
			if collector != "" {
				id, err := uuid.Parse(collector)
				if err != nil {
					return fmt.Errorf("invalid --collector: %w", err)
				}
				result, err := svc.Reconcile(ctx, id)
				if err != nil {
					return err
				}
				results = []tokens.ReconcileResult{result}
			} else {
				results, err = svc.ReconcileAll(ctx)
				if err != nil {
					return err
				}
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			inconsistent := 0
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COLLECTOR\tENTRIES\tBALANCE\tSUM\tOK")
			for _, r := range results {
				if !r.Consistent {
					inconsistent++
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%v\n", r.CollectorID, r.Entries, r.LatestBalance, r.Sum, r.Consistent)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if inconsistent > 0 {
				return fmt.Errorf("%d ledger(s) out of balance", inconsistent)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&collector, "collector", "", "Reconcile a single collector ID")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
	return cmd
}

func recomputeStatsCmd() *cobra.Command {
	var (
		user  string
		role  string
		async bool
	)

	cmd := &cobra.Command{
		Use:   "recompute-stats",
		Short: "Rebuild denormalized profile stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			if async {
				return enqueueRecompute(ctx, user, role)
			}

			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			var cache profiles.StatsCache
			if e.cfg.GetRedisURL() != "" {
				client, err := profiles.NewRedisClient(e.cfg.GetRedisURL())
				if err != nil {
					return err
				}
				defer func() { _ = client.Close() }()
				cache = profiles.NewRedisCache(client)
			}

			svc := profiles.NewService(profiles.NewRepository(e.pool), cache, profiles.Config{
				StatsTTL:    e.cfg.GetStatsCacheTTL(),
				PhoneRegion: e.cfg.GetPhoneDefaultRegion(),
			}, e.log)

			if user != "" {
				id, err := uuid.Parse(user)
				if err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
				if err := svc.RecomputeUser(ctx, id, role); err != nil {
					return err
				}
				fmt.Printf("recomputed stats for %s\n", id)
				return nil
			}

			n, err := svc.RecomputeAll(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("recomputed %d profile(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Recompute a single user ID")
	cmd.Flags().StringVar(&role, "role", "", "Restrict --user to collector or brand")
	cmd.Flags().BoolVar(&async, "async", false, "Queue the recompute for the scheduler worker instead of running it here")
	return cmd
}

func enqueueRecompute(ctx context.Context, user, role string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if user != "" {
		if _, err := uuid.Parse(user); err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.EnqueueStatsRecompute(ctx, scheduler.StatsRecomputePayload{UserID: user, Role: role}); err != nil {
		return fmt.Errorf("enqueue recompute: %w", err)
	}
	fmt.Println("stats recompute queued")
	return nil
}

func expireHotspotsCmd() *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:   "expire-hotspots",
		Short: "Mark active hotspots past their expiry as expired",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			if async {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				client, err := scheduler.NewClient(cfg)
				if err != nil {
					return err
				}
				defer func() { _ = client.Close() }()
				if err := client.EnqueueHotspotSweep(ctx); err != nil {
					return fmt.Errorf("enqueue sweep: %w", err)
				}
				fmt.Println("hotspot sweep queued")
				return nil
			}

			e, err := connect(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			svc := hotspots.NewService(hotspots.NewRepository(e.pool), nil, nil, e.cfg.GetHotspotDefaultTTL(), nil, e.log)
			n, err := svc.ExpireDue(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("expired %d hotspot(s)\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "Queue the sweep for the scheduler worker instead of running it here")
	return cmd
}
