// Package component holds the stock components of a scene.
package component

import (
	"github.com/slotworld/datamodel/internal/scripting"
	"github.com/slotworld/datamodel/internal/world"
)

// Register adds the stock component types to types. Script is only
// available with a Lua engine.
func Register(types *world.TypeRegistry, eng *scripting.Engine) {
	types.MustRegister(spinnerType(), clampType())
	if eng != nil {
		types.MustRegister(scriptType(eng))
	}
}
