package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scene is a template for a subtree of slots loaded from YAML.
type Scene struct {
	Name  string         `yaml:"name"`
	Slots []SlotTemplate `yaml:"slots"`
}

// SlotTemplate describes one slot, its components and its children.
type SlotTemplate struct {
	Name        string              `yaml:"name"`
	Position    []float32           `yaml:"position"` // x, y, z
	Rotation    []float32           `yaml:"rotation"` // x, y, z, w
	Scale       []float32           `yaml:"scale"`    // x, y, z
	Active      *bool               `yaml:"active"`
	OrderOffset int64               `yaml:"order_offset"`
	Local       bool                `yaml:"local"` // never replicated
	Components  []ComponentTemplate `yaml:"components"`
	Children    []SlotTemplate      `yaml:"children"`
}

// ComponentTemplate names a registered component type and the member values
// to assign after it is attached. A string value "@Name" refers to the slot
// named Name spawned from the same scene.
type ComponentTemplate struct {
	Type   string         `yaml:"type"`
	Fields map[string]any `yaml:"fields"`
}

// ParseScene decodes and validates a scene document.
func ParseScene(b []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scene has no name")
	}
	for i := range s.Slots {
		if err := s.Slots[i].validate(s.Name); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// LoadScene loads one scene from a YAML file.
func LoadScene(path string) (*Scene, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	s, err := ParseScene(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (t *SlotTemplate) validate(scene string) error {
	if t.Name == "" {
		return fmt.Errorf("scene %s: slot without name", scene)
	}
	for _, v := range []struct {
		what string
		got  []float32
		want int
	}{
		{"position", t.Position, 3},
		{"rotation", t.Rotation, 4},
		{"scale", t.Scale, 3},
	} {
		if v.got != nil && len(v.got) != v.want {
			return fmt.Errorf("scene %s: slot %s: %s needs %d numbers, got %d", scene, t.Name, v.what, v.want, len(v.got))
		}
	}
	for _, c := range t.Components {
		if c.Type == "" {
			return fmt.Errorf("scene %s: slot %s: component without type", scene, t.Name)
		}
	}
	for i := range t.Children {
		if err := t.Children[i].validate(scene); err != nil {
			return err
		}
	}
	return nil
}

// SceneTable holds all scenes of a directory indexed by name.
type SceneTable struct {
	scenes map[string]*Scene
}

// LoadSceneTable loads every .yaml/.yml file in dir.
func LoadSceneTable(dir string) (*SceneTable, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scene dir: %w", err)
	}
	t := &SceneTable{scenes: make(map[string]*Scene)}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		s, err := LoadScene(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := t.scenes[s.Name]; dup {
			return nil, fmt.Errorf("duplicate scene %q in %s", s.Name, e.Name())
		}
		t.scenes[s.Name] = s
	}
	return t, nil
}

// Get returns a scene by name. Returns nil if not found.
func (t *SceneTable) Get(name string) *Scene {
	return t.scenes[name]
}

// Count returns the number of loaded scenes.
func (t *SceneTable) Count() int {
	return len(t.scenes)
}

// Names lists the scene names, sorted.
func (t *SceneTable) Names() []string {
	out := make([]string, 0, len(t.scenes))
	for n := range t.scenes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
