package event

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slotworld/datamodel/internal/core/refid"
)

func TestBus_DeliversNextTickInOrder(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(e SlotDestroyed) { got = append(got, "destroyed "+e.Slot.String()) })
	Subscribe(b, func(e ComponentAttached) { got = append(got, "attached "+e.Type) })

	Emit(b, ComponentAttached{Type: "Spinner"})
	Emit(b, SlotDestroyed{Slot: refid.FromParts(0, 1)})
	Emit(b, ComponentAttached{Type: "Clamp"})
	assert.Equal(t, 3, b.Pending())

	b.DispatchAll()
	assert.Empty(t, got, "nothing is readable before the swap")

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []string{"attached Spinner", "destroyed ID0:1", "attached Clamp"}, got)
	assert.Zero(t, b.Pending())

	got = nil
	b.SwapBuffers()
	b.DispatchAll()
	assert.Empty(t, got)
}

func TestBus_EmitDuringDispatchGoesToNextTick(t *testing.T) {
	b := NewBus()
	var count int
	Subscribe(b, func(e FocusChanged) {
		count++
		if e.To < 2 {
			Emit(b, FocusChanged{From: e.To, To: e.To + 1})
		}
	})
	Emit(b, FocusChanged{From: 0, To: 1})
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 1, count)
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 2, count)
}
