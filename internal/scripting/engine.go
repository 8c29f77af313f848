package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/core/refid"
)

// Engine wraps a single gopher-lua VM for behaviour scripts and hook
// callbacks. Single-goroutine access only (world tick).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory. An empty dir loads nothing.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if scriptsDir == "" {
		return e, nil
	}

	// Shared helpers first, then behaviours and hooks
	for _, sub := range []string{"lib", "behaviour", "hook"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DoString runs a chunk of Lua source, typically to define functions.
func (e *Engine) DoString(src string) error {
	if err := e.vm.DoString(src); err != nil {
		return fmt.Errorf("lua: %w", err)
	}
	return nil
}

// HasFunction reports whether name is a global Lua function.
func (e *Engine) HasFunction(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// UpdateContext is handed to a behaviour's update function.
type UpdateContext struct {
	ID    refid.RefID
	Dt    time.Duration
	Tick  uint64
	Value float32
}

// CallUpdate calls fn(ctx) where ctx = {id, dt, tick, value}. A numeric
// return becomes the new value; nil keeps the current one.
func (e *Engine) CallUpdate(fn string, ctx UpdateContext) (float32, bool, error) {
	f, ok := e.vm.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return 0, false, fmt.Errorf("lua function %s not found", fn)
	}

	t := e.vm.NewTable()
	t.RawSetString("id", lua.LString(ctx.ID.String()))
	t.RawSetString("dt", lua.LNumber(ctx.Dt.Seconds()))
	t.RawSetString("tick", lua.LNumber(ctx.Tick))
	t.RawSetString("value", lua.LNumber(ctx.Value))

	if err := e.vm.CallByParam(lua.P{
		Fn:      f,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		return 0, false, fmt.Errorf("lua %s: %w", fn, err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok {
		return 0, false, nil
	}
	return float32(n), true, nil
}

// NumberHook returns a hook callback that forwards every redirected write
// to the Lua function fn(requested, current). A numeric return is stored;
// nil, a non-number or a script error suppresses the write.
func (e *Engine) NumberHook(fn string) field.HookFunc[float32] {
	return func(f *field.Value[float32], requested float32) {
		lf, ok := e.vm.GetGlobal(fn).(*lua.LFunction)
		if !ok {
			e.log.Error("lua hook function not found", zap.String("func", fn))
			return
		}
		if err := e.vm.CallByParam(lua.P{
			Fn:      lf,
			NRet:    1,
			Protect: true,
		}, lua.LNumber(requested), lua.LNumber(f.Get())); err != nil {
			e.log.Error("lua hook error",
				zap.String("func", fn),
				zap.Stringer("field", f.ReferenceID()),
				zap.Error(err))
			return
		}

		result := e.vm.Get(-1)
		e.vm.Pop(1)
		if n, ok := result.(lua.LNumber); ok {
			f.Set(float32(n))
		}
	}
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
