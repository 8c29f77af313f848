package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/config"
	"github.com/slotworld/datamodel/internal/persist"
)

func newMigrateCmd(load func(*cobra.Command) (*config.Config, error)) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back one) world state schema migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			db, err := persist.NewDB(ctx, cfg.Database, persist.Options{AppName: "worldhost-migrate"}, log)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer db.Close()

			version, err := persist.RunMigrations(ctx, db.Pool, down)
			if err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			log.Info("schema migrated", zap.Int64("version", version), zap.Bool("down", down))
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}
