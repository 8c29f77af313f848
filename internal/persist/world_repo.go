package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/core/refid"
)

// ErrNoSnapshot is returned by Load for an unknown session.
var ErrNoSnapshot = errors.New("no snapshot for session")

// WorldRepo stores world snapshots.
type WorldRepo struct {
	db  *DB
	log *zap.Logger
}

func NewWorldRepo(db *DB, log *zap.Logger) *WorldRepo {
	return &WorldRepo{db: db, log: log}
}

// Save replaces the stored snapshot of s.Session in a single transaction.
func (r *WorldRepo) Save(ctx context.Context, s *Snapshot) error {
	ctx, cancel := r.db.opContext(ctx)
	defer cancel()
	start := time.Now()
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO world_sessions (session_id, name, tick)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE
		 SET name = EXCLUDED.name, tick = EXCLUDED.tick, updated_at = now()`,
		s.Session, s.Name, int64(s.Tick),
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	batch := &pgx.Batch{}
	for domain, seq := range s.Positions {
		batch.Queue(
			`INSERT INTO allocation_positions (session_id, domain, highest_seq)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (session_id, domain) DO UPDATE
			 SET highest_seq = GREATEST(allocation_positions.highest_seq, EXCLUDED.highest_seq)`,
			s.Session, int16(domain), int64(seq))
	}
	batch.Queue(`DELETE FROM field_snapshots WHERE session_id = $1`, s.Session)
	for _, f := range s.Fields {
		batch.Queue(
			`INSERT INTO field_snapshots (session_id, ref_id, owner_id, name, data)
			 VALUES ($1, $2, $3, $4, $5)`,
			s.Session, int64(f.RefID), int64(f.Owner), f.Name, f.Data)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("snapshot commit: %w", err)
	}
	r.log.Debug("snapshot saved",
		zap.Stringer("session", s.Session),
		zap.Uint64("tick", s.Tick),
		zap.Int("fields", len(s.Fields)),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Load reads the stored snapshot of session.
func (r *WorldRepo) Load(ctx context.Context, session uuid.UUID) (*Snapshot, error) {
	ctx, cancel := r.db.opContext(ctx)
	defer cancel()
	s := &Snapshot{Session: session, Positions: make(map[byte]uint64)}
	var tick int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT name, tick FROM world_sessions WHERE session_id = $1`, session,
	).Scan(&s.Name, &tick)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w %s", ErrNoSnapshot, session)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s.Tick = uint64(tick)

	rows, err := r.db.Pool.Query(ctx,
		`SELECT domain, highest_seq FROM allocation_positions WHERE session_id = $1`, session)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	for rows.Next() {
		var domain int16
		var seq int64
		if err := rows.Scan(&domain, &seq); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan position: %w", err)
		}
		s.Positions[byte(domain)] = uint64(seq)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}

	fields, err := r.db.Pool.Query(ctx,
		`SELECT ref_id, owner_id, name, data FROM field_snapshots
		 WHERE session_id = $1 ORDER BY ref_id`, session)
	if err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	defer fields.Close()
	for fields.Next() {
		var id, owner int64
		var f FieldRow
		if err := fields.Scan(&id, &owner, &f.Name, &f.Data); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		f.RefID, f.Owner = refid.RefID(id), refid.RefID(owner)
		s.Fields = append(s.Fields, f)
	}
	if err := fields.Err(); err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	return s, nil
}
