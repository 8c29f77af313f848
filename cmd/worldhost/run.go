package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/slotworld/datamodel/internal/component"
	"github.com/slotworld/datamodel/internal/config"
	coresys "github.com/slotworld/datamodel/internal/core/system"
	"github.com/slotworld/datamodel/internal/data"
	"github.com/slotworld/datamodel/internal/metric"
	gonet "github.com/slotworld/datamodel/internal/net"
	"github.com/slotworld/datamodel/internal/persist"
	"github.com/slotworld/datamodel/internal/replication"
	"github.com/slotworld/datamodel/internal/scripting"
	"github.com/slotworld/datamodel/internal/system"
	"github.com/slotworld/datamodel/internal/world"
)

func newRunCmd(load func(*cobra.Command) (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the world tick loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	var metrics *metric.Metrics
	if cfg.Metrics.Enabled {
		metrics = metric.New()
	}

	sessionID := uuid.New()
	if cfg.World.SessionID != "" {
		if sessionID, err = uuid.Parse(cfg.World.SessionID); err != nil {
			return fmt.Errorf("world.session_id: %w", err)
		}
	}

	domain := byte(cfg.World.Domain)
	printBanner(cfg.World.Name, domain)

	// 1. Scripts and component types
	printSection("types")
	eng, err := scripting.NewEngine(cfg.World.ScriptsDir, log.Named("lua"))
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer eng.Close()
	types := world.NewTypeRegistry()
	component.Register(types, eng)
	printStat("component types", len(types.Names()))

	w := world.New(
		world.WithLogger(log),
		world.WithName(cfg.World.Name),
		world.WithDomain(domain),
		world.WithSessionID(sessionID),
		world.WithTypes(types),
		world.WithMetrics(metrics),
		world.WithMaxChangePasses(cfg.World.MaxChangePasses),
	)
	defer w.Destroy()

	// 2. Scene
	if cfg.World.Scene != "" {
		table, err := data.LoadSceneTable(cfg.World.ScenesDir)
		if err != nil {
			return fmt.Errorf("load scenes: %w", err)
		}
		printStat("scene templates", table.Count())
		sc := table.Get(cfg.World.Scene)
		if sc == nil {
			return fmt.Errorf("scene %q not found in %s", cfg.World.Scene, cfg.World.ScenesDir)
		}
		slots, err := data.Spawn(w, w.Root(), sc)
		if err != nil {
			return err
		}
		printStat("spawned slots", len(slots))
	}
	fmt.Println()

	// 3. Persistence
	var persistSys *system.PersistenceSystem
	if cfg.Persistence.Enabled {
		printSection("database")
		dbctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		db, err := persist.NewDB(dbctx, cfg.Database, persist.Options{
			AppName:   "worldhost/" + cfg.World.Name,
			OpTimeout: cfg.Persistence.Timeout,
		}, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if _, err := persist.RunMigrations(dbctx, db.Pool, false); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")

		repo := persist.NewWorldRepo(db, log)
		snap, err := repo.Load(dbctx, sessionID)
		switch {
		case errors.Is(err, persist.ErrNoSnapshot):
			printOK("new session, nothing to restore")
		case err != nil:
			return fmt.Errorf("load snapshot: %w", err)
		default:
			res := persist.Restore(w, snap)
			printStat("restored fields", res.Restored)
			if res.Missing > 0 || res.Corrupt > 0 {
				log.Warn("snapshot did not fully match the world",
					zap.Int("missing", res.Missing),
					zap.Int("corrupt", res.Corrupt))
			}
		}
		persistSys = system.NewPersistenceSystem(w, repo, log, cfg.Persistence.IntervalTicks, cfg.Persistence.Timeout)
		fmt.Println()
	}

	// 4. Systems
	runner := coresys.NewRunner(log)
	store := gonet.NewSessionStore()
	enc := replication.NewEncoder(cfg.Replication.MaxBatchBytes, metrics)
	if cfg.Replication.Enabled {
		// Connections negotiated by the session layer are attached to hub.
		hub := gonet.NewHub(cfg.Replication.InQueueSize, cfg.Replication.OutQueueSize,
			cfg.Replication.MaxFramesPerSec, log)
		runner.Register(system.NewInputSystem(w, hub, store, enc, cfg.Replication.MaxFramesPerTick, log))
	}
	runner.Register(system.NewWorldSystem(w))
	runner.Register(system.NewOutputSystem(w, store, enc, log))
	if persistSys != nil {
		runner.Register(persistSys)
	}
	if !w.IsAuthority() {
		runner.Register(system.NewTrashPurgeSystem(w, cfg.Trash.PurgeAfterTicks, log))
	}

	// 5. Tick loop and metrics endpoint
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		httpSrv := &http.Server{Addr: cfg.Metrics.BindAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(sctx)
		})
		printReady("metrics on " + cfg.Metrics.BindAddress)
	}
	printReady(fmt.Sprintf("tick loop started (tick: %s)", cfg.World.TickRate))
	fmt.Println()

	g.Go(func() error {
		ticker := time.NewTicker(cfg.World.TickRate)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				runner.Tick(cfg.World.TickRate)
			}
		}
	})

	err = g.Wait()
	log.Info("shutting down", zap.Uint64("tick", w.Tick()))
	if persistSys != nil {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Persistence.Timeout)
		defer cancel()
		if serr := persistSys.SaveNow(sctx); serr != nil {
			log.Error("final save failed", zap.Error(serr))
		}
	}
	return err
}
