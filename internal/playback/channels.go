package playback

import (
	"fmt"
	"strings"
)

// ChannelMap matches received channel names against caller targets.
type ChannelMap struct {
	received []string
	byName   map[string]int
}

// NewChannelMap indexes the received channel list. When a name repeats, the
// first occurrence is the one matched by name.
func NewChannelMap(received []string) *ChannelMap {
	m := &ChannelMap{received: received, byName: make(map[string]int, len(received))}
	for i, name := range received {
		key := strings.ToLower(name)
		if _, ok := m.byName[key]; !ok {
			m.byName[key] = i
		}
	}
	return m
}

// Mapping routes received weights to output slots.
type Mapping struct {
	// Names are the output slot names: the targets, then any received
	// channels no target matched.
	Names []string
	// Source holds, per output slot, the received channel index or -1 when
	// the target has no received channel.
	Source []int
}

// MapTo matches targets case-insensitively. Received channels with no target
// are appended after the targets in received order. Every unmatched name on
// either side is reported as a warning.
func (m *ChannelMap) MapTo(targets []string) (Mapping, []string) {
	var warnings []string
	mp := Mapping{
		Names:  make([]string, 0, len(targets)+len(m.received)),
		Source: make([]int, 0, len(targets)+len(m.received)),
	}
	used := make([]bool, len(m.received))
	for _, target := range targets {
		src, ok := m.byName[strings.ToLower(target)]
		if !ok || used[src] {
			src = -1
			warnings = append(warnings, fmt.Sprintf("target %q has no received channel", target))
		} else {
			used[src] = true
		}
		mp.Names = append(mp.Names, target)
		mp.Source = append(mp.Source, src)
	}
	for i, name := range m.received {
		if used[i] {
			continue
		}
		if len(targets) > 0 {
			warnings = append(warnings, fmt.Sprintf("received channel %q matched no target, appended at output %d", name, len(mp.Names)))
		}
		mp.Names = append(mp.Names, name)
		mp.Source = append(mp.Source, i)
	}
	return mp, warnings
}

// Apply reorders received weights into output slots. Slots without a source
// are zero.
func (mp Mapping) Apply(weights []float32) []float32 {
	out := make([]float32, len(mp.Source))
	for i, src := range mp.Source {
		if src >= 0 && src < len(weights) {
			out[i] = weights[src]
		}
	}
	return out
}
