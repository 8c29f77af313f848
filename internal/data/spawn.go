package data

import (
	"fmt"
	"sort"
	"strings"

	"github.com/slotworld/datamodel/internal/math3d"
	"github.com/slotworld/datamodel/internal/world"
)

type spawned struct {
	slot *world.Slot
	tpl  *SlotTemplate
}

// Spawn instantiates sc under parent, or under the world root when parent is
// nil, and returns the top-level slots. All slots are created before any
// component so "@Name" field values can refer to slots defined later in the
// document. On error everything spawned so far is destroyed.
func Spawn(w *world.World, parent *world.Slot, sc *Scene) ([]*world.Slot, error) {
	if parent == nil {
		parent = w.Root()
	}
	var (
		top    []*world.Slot
		all    []spawned
		byName = make(map[string]*world.Slot)
	)
	fail := func(err error) ([]*world.Slot, error) {
		for _, s := range top {
			s.Destroy()
		}
		return nil, fmt.Errorf("spawn %s: %w", sc.Name, err)
	}

	var create func(p *world.Slot, t *SlotTemplate) (*world.Slot, error)
	create = func(p *world.Slot, t *SlotTemplate) (*world.Slot, error) {
		s, err := addSlot(w, p, t)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", t.Name, err)
		}
		if _, taken := byName[t.Name]; !taken {
			byName[t.Name] = s
		}
		all = append(all, spawned{slot: s, tpl: t})
		for i := range t.Children {
			if _, err := create(s, &t.Children[i]); err != nil {
				return s, err
			}
		}
		return s, nil
	}

	for i := range sc.Slots {
		s, err := create(parent, &sc.Slots[i])
		if s != nil {
			top = append(top, s)
		}
		if err != nil {
			return fail(err)
		}
	}

	for _, sp := range all {
		for _, ct := range sp.tpl.Components {
			if err := attach(w, sp.slot, ct, byName); err != nil {
				return fail(fmt.Errorf("slot %s: %w", sp.tpl.Name, err))
			}
		}
	}
	return top, nil
}

func addSlot(w *world.World, p *world.Slot, t *SlotTemplate) (*world.Slot, error) {
	var s *world.Slot
	mk := func() error {
		var err error
		s, err = p.AddSlot(t.Name)
		return err
	}
	var err error
	if t.Local {
		err = w.Local(mk)
	} else {
		err = mk()
	}
	if err != nil {
		return nil, err
	}

	if t.Position != nil {
		s.Position.Set(math3d.Float3{X: t.Position[0], Y: t.Position[1], Z: t.Position[2]})
	}
	if t.Rotation != nil {
		q := math3d.FloatQ{X: t.Rotation[0], Y: t.Rotation[1], Z: t.Rotation[2], W: t.Rotation[3]}
		s.Rotation.Set(q.Normalized())
	}
	if t.Scale != nil {
		s.Scale.Set(math3d.Float3{X: t.Scale[0], Y: t.Scale[1], Z: t.Scale[2]})
	}
	if t.Active != nil {
		s.ActiveSelf.Set(*t.Active)
	}
	if t.OrderOffset != 0 {
		s.OrderOffset.Set(t.OrderOffset)
	}
	return s, nil
}

func attach(w *world.World, s *world.Slot, ct ComponentTemplate, byName map[string]*world.Slot) error {
	var c world.Component
	mk := func() error {
		var err error
		c, err = s.AttachComponent(ct.Type)
		return err
	}
	var err error
	if s.IsLocal() {
		err = w.Local(mk)
	} else {
		err = mk()
	}
	if err != nil {
		return err
	}

	// Assign in name order so allocation and change order are reproducible.
	names := make([]string, 0, len(ct.Fields))
	for n := range ct.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		m, ok := c.Member(n)
		if !ok {
			return fmt.Errorf("component %s has no member %q", ct.Type, n)
		}
		v := ct.Fields[n]
		if ref, ok := v.(string); ok && strings.HasPrefix(ref, "@") {
			target, found := byName[ref[1:]]
			if !found {
				return fmt.Errorf("%s.%s: no slot named %q in scene", ct.Type, n, ref[1:])
			}
			v = target.ReferenceID().String()
		}
		if err := m.Assign(v); err != nil {
			return fmt.Errorf("%s.%s: %w", ct.Type, n, err)
		}
	}
	return nil
}
