package params

import (
	"maps"
	"slices"
)

// Weight is a per-blend-shape value.
type Weight struct {
	Name  string  `yaml:"name" json:"name"`
	Value float32 `yaml:"value" json:"value"`
}

// Weights is an ordered blend-shape table. Names are unique.
type Weights []Weight

// Set updates name in place, or appends it.
func (w *Weights) Set(name string, value float32) {
	for i := range *w {
		if (*w)[i].Name == name {
			(*w)[i].Value = value
			return
		}
	}
	*w = append(*w, Weight{Name: name, Value: value})
}

// Remove deletes name and reports whether it was present.
func (w *Weights) Remove(name string) bool {
	i := slices.IndexFunc(*w, func(e Weight) bool { return e.Name == name })
	if i < 0 {
		return false
	}
	*w = slices.Delete(*w, i, i+1)
	return true
}

// Clear removes every entry.
func (w *Weights) Clear() {
	*w = (*w)[:0]
}

// Get returns the value of name.
func (w Weights) Get(name string) (float32, bool) {
	for _, e := range w {
		if e.Name == name {
			return e.Value, true
		}
	}
	return 0, false
}

// Map returns the table as a map, or nil when empty.
func (w Weights) Map() map[string]float32 {
	if len(w) == 0 {
		return nil
	}
	m := make(map[string]float32, len(w))
	for _, e := range w {
		m[e.Name] = e.Value
	}
	return m
}

// Param documents one tunable.
type Param struct {
	Group   string  `json:"group"`
	Name    string  `json:"name"`
	Default float32 `json:"default"`
}

// Names lists every documented parameter with its default, grouped and
// sorted by name.
func Names() []Param {
	var out []Param
	add := func(group string, m map[string]float32) {
		for _, name := range slices.Sorted(maps.Keys(m)) {
			out = append(out, Param{Group: group, Name: name, Default: m[name]})
		}
	}
	add("face", DefaultFace().Map())
	add("emotion", DefaultEmotion().Map())
	add("emotion_state", EmotionState{}.Map())
	return out
}
