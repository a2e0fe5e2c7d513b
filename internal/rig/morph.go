// Package rig holds headless rendering primitives: morph targets with live
// influences and clip players with playback heads.
package rig

import (
	"sync"

	"github.com/normanking/avatarsync/internal/lipsync"
)

// MorphTarget is a named deformation with a scalar influence in [0,1].
type MorphTarget struct {
	name string

	mu        sync.RWMutex
	influence float64
}

func (t *MorphTarget) Name() string {
	return t.name
}

// SetInfluence clamps v to [0,1].
func (t *MorphTarget) SetInfluence(v float64) {
	t.mu.Lock()
	t.influence = clamp(v, 0, 1)
	t.mu.Unlock()
}

func (t *MorphTarget) Influence() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.influence
}

// MorphTargetManager is the face mesh's set of morph targets.
// Influences are written by the frame driver and read by renderers.
type MorphTargetManager struct {
	targets []*MorphTarget
	byName  map[string]*MorphTarget
}

// NewMorphTargetManager creates targets in the given order. Duplicate names
// keep index order; lookup by name returns the first.
func NewMorphTargetManager(names ...string) *MorphTargetManager {
	m := &MorphTargetManager{
		targets: make([]*MorphTarget, len(names)),
		byName:  make(map[string]*MorphTarget, len(names)),
	}
	for i, n := range names {
		t := &MorphTarget{name: n}
		m.targets[i] = t
		if _, dup := m.byName[n]; !dup {
			m.byName[n] = t
		}
	}
	return m
}

func (m *MorphTargetManager) Count() int {
	return len(m.targets)
}

func (m *MorphTargetManager) Target(i int) lipsync.MorphTarget {
	return m.targets[i]
}

func (m *MorphTargetManager) TargetByName(name string) (lipsync.MorphTarget, bool) {
	t, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return t, true
}

// Influences snapshots every target's influence in index order.
func (m *MorphTargetManager) Influences() []float64 {
	out := make([]float64, len(m.targets))
	for i, t := range m.targets {
		out[i] = t.Influence()
	}
	return out
}

// Reset zeroes all influences.
func (m *MorphTargetManager) Reset() {
	for _, t := range m.targets {
		t.SetInfluence(0)
	}
}

// NewVisemeFace returns a placeholder face with one "viseme_<name>" target per
// Oculus viseme, matching Ready Player Me avatars.
func NewVisemeFace() *MorphTargetManager {
	names := make([]string, len(lipsync.OculusVisemes))
	for i, v := range lipsync.OculusVisemes {
		names[i] = lipsync.VisemeTarget(v)
	}
	return NewMorphTargetManager(names...)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
