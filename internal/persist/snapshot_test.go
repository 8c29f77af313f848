package persist

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/config"
	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/math3d"
	"github.com/slotworld/datamodel/internal/world"
)

type note struct {
	world.ComponentBase
	Text  field.Value[string]
	Cache field.Value[int32]
}

func noteTypes() *world.TypeRegistry {
	types := world.NewTypeRegistry()
	b := world.Describe("note", func() *note { return &note{} })
	world.Field(b, "Text", func(n *note) *field.Value[string] { return &n.Text }, "")
	world.Field(b, "Cache", func(n *note) *field.Value[int32] { return &n.Cache }, 0, field.NonPersistent)
	types.MustRegister(b.Build())
	return types
}

// build creates the same small graph on every call.
func build(t *testing.T, w *world.World) (*world.Slot, *note) {
	t.Helper()
	s, err := w.AddSlot("desk")
	require.NoError(t, err)
	n, err := world.Attach[*note](s)
	require.NoError(t, err)
	return s, n
}

func TestCaptureRestore(t *testing.T) {
	src := world.New(world.WithTypes(noteTypes()))
	s, n := build(t, src)
	s.Position.Set(math3d.Float3{X: 4})
	n.Text.Set("hello")
	n.Cache.Set(99)
	require.NoError(t, src.Local(func() error {
		_, err := src.AddSlot("preview")
		return err
	}))

	snap := Capture(src)
	assert.Equal(t, src.SessionID(), snap.Session)
	assert.NotContains(t, snap.Positions, refid.DomainLocal)
	for i, row := range snap.Fields {
		assert.False(t, row.RefID.IsLocal())
		assert.NotEqual(t, "Cache", row.Name, "non-persistent members are skipped")
		if i > 0 {
			assert.Less(t, uint64(snap.Fields[i-1].RefID), uint64(row.RefID))
		}
	}

	dst := world.New(world.WithTypes(noteTypes()))
	ds, dn := build(t, dst)
	res := Restore(dst, snap)
	assert.Zero(t, res.Missing)
	assert.Zero(t, res.Corrupt)
	assert.Equal(t, len(snap.Fields), res.Restored)
	assert.Equal(t, math3d.Float3{X: 4}, ds.Position.Get())
	assert.Equal(t, "hello", dn.Text.Get())
	assert.Zero(t, dn.Cache.Get())

	fresh, err := dst.AddSlot("new")
	require.NoError(t, err)
	assert.Greater(t, fresh.ReferenceID().Sequence(), snap.Positions[refid.DomainAuthority])
}

func TestRestore_Mismatches(t *testing.T) {
	w := world.New(world.WithTypes(noteTypes()))
	s, _ := build(t, w)
	snap := &Snapshot{Fields: []FieldRow{
		{RefID: refid.FromParts(0, 4000), Name: "Text", Data: []byte{0}},
		{RefID: s.Position.ReferenceID(), Name: "Scale", Data: make([]byte, 12)},
		{RefID: s.Position.ReferenceID(), Name: "Position", Data: []byte{1}},
		{RefID: s.ReferenceID(), Name: "desk", Data: nil},
	}}
	res := Restore(w, snap)
	assert.Equal(t, RestoreResult{Missing: 3, Corrupt: 1}, res)
}

// TestWorldRepo_RoundTrip needs a scratch PostgreSQL database.
func TestWorldRepo_RoundTrip(t *testing.T) {
	dsn := os.Getenv("WORLDHOST_TEST_DSN")
	if dsn == "" {
		t.Skip("WORLDHOST_TEST_DSN not set")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 2, MaxIdleConns: 1},
		Options{AppName: "worldhost-test", OpTimeout: 10 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()
	_, err = RunMigrations(ctx, db.Pool, false)
	require.NoError(t, err)

	w := world.New(world.WithTypes(noteTypes()))
	_, n := build(t, w)
	n.Text.Set("persisted")
	snap := Capture(w)

	repo := NewWorldRepo(db, zap.NewNop())
	require.NoError(t, repo.Save(ctx, snap))
	got, err := repo.Load(ctx, snap.Session)
	require.NoError(t, err)
	assert.Equal(t, snap.Fields, got.Fields)
	assert.Equal(t, snap.Positions, got.Positions)

	_, err = repo.Load(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}
