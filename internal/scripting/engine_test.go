package scripting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/core/refid"
)

func writeScript(t *testing.T, dir, sub, name, src string) {
	t.Helper()
	p := filepath.Join(dir, sub)
	require.NoError(t, os.MkdirAll(p, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p, name), []byte(src), 0o644))
}

func TestEngine_LoadsScriptDirs(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "lib", "util.lua", `function double(x) return x * 2 end`)
	writeScript(t, dir, "behaviour", "grow.lua", `
function grow(ctx)
  return double(ctx.value) + ctx.dt
end`)
	writeScript(t, dir, "behaviour", "README.txt", `not lua`)

	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	assert.True(t, e.HasFunction("grow"))
	assert.False(t, e.HasFunction("missing"))

	v, ok, err := e.CallUpdate("grow", UpdateContext{ID: refid.FromParts(0, 9), Dt: 500 * time.Millisecond, Value: 3})
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 6.5, v, 1e-6)
}

func TestEngine_LoadErrorIsReported(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "hook", "bad.lua", `function (`)
	_, err := NewEngine(dir, nil)
	assert.ErrorContains(t, err, "load hook scripts")
}

func TestEngine_CallUpdate(t *testing.T) {
	e, err := NewEngine("", nil)
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.DoString(`
function keep(ctx) return nil end
function boom(ctx) error("kaput") end
function ident(ctx) return ctx.id end`))

	_, ok, err := e.CallUpdate("keep", UpdateContext{})
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = e.CallUpdate("boom", UpdateContext{})
	assert.ErrorContains(t, err, "kaput")

	_, _, err = e.CallUpdate("nope", UpdateContext{})
	assert.Error(t, err)

	_, ok, err = e.CallUpdate("ident", UpdateContext{ID: refid.FromParts(1, 2)})
	require.NoError(t, err)
	assert.False(t, ok, "string return is not a value")
}

func TestEngine_NumberHook(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	e, err := NewEngine("", zap.New(core))
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.DoString(`
function cap(requested, current)
  if requested < 0 then return nil end
  if requested > 10 then return 10 end
  return requested
end
function broken(requested, current) error("nope") end`))

	v := field.NewValue[float32](1)
	v.Link(field.Hook(refid.Null, e.NumberHook("cap")))

	v.Set(5)
	assert.Equal(t, float32(5), v.Get())
	v.Set(50)
	assert.Equal(t, float32(10), v.Get())
	v.Set(-1)
	assert.Equal(t, float32(10), v.Get(), "nil suppresses")

	v.Link(field.Hook(refid.Null, e.NumberHook("broken")))
	v.Set(3)
	assert.Equal(t, float32(10), v.Get())
	assert.Equal(t, 1, logs.FilterMessage("lua hook error").Len())

	v.Link(field.Hook(refid.Null, e.NumberHook("absent")))
	v.Set(3)
	assert.Equal(t, 1, logs.FilterMessage("lua hook function not found").Len())
}
