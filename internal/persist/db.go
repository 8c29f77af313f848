// Package persist stores world snapshots in PostgreSQL: allocator positions
// and persistent member values, keyed by world session.
package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/config"
)

const defaultPingTimeout = 5 * time.Second

// Options are what a world host adds on top of the [database] section.
type Options struct {
	// AppName is reported as application_name, so server-side sessions
	// show which world they belong to.
	AppName string
	// OpTimeout bounds every repository call. Zero leaves the caller's
	// context alone.
	OpTimeout time.Duration
	// PingTimeout bounds the connection check in NewDB.
	PingTimeout time.Duration
}

// DB is the connection pool shared by the snapshot repository.
type DB struct {
	Pool      *pgxpool.Pool
	opTimeout time.Duration
	log       *zap.Logger
}

// poolConfig turns the [database] section and opts into a pgx pool config.
func poolConfig(cfg config.DatabaseConfig, opts Options) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolCfg.MinConns = int32(min(cfg.MaxIdleConns, int(poolCfg.MaxConns)))
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if opts.AppName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = opts.AppName
	}
	return poolCfg, nil
}

// NewDB opens the pool and checks that the server answers.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, opts Options, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	poolCfg, err := poolConfig(cfg, opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	ping := opts.PingTimeout
	if ping <= 0 {
		ping = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, ping)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	log.Info("database connected",
		zap.String("app", opts.AppName),
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Int32("min_conns", poolCfg.MinConns),
		zap.Duration("op_timeout", opts.OpTimeout))
	return &DB{Pool: pool, opTimeout: opts.OpTimeout, log: log}, nil
}

// opContext derives the context one repository call runs under.
func (db *DB) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, db.opTimeout)
}

// Close logs the pool's lifetime counters and closes it.
func (db *DB) Close() {
	st := db.Pool.Stat()
	db.log.Debug("database closing",
		zap.Int64("acquires", st.AcquireCount()),
		zap.Int64("empty_acquires", st.EmptyAcquireCount()),
		zap.Duration("acquire_wait", st.AcquireDuration()))
	db.Pool.Close()
}
