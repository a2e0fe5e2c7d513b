package lipsync

import "strings"

// MorphTarget is one blendable deformation on the avatar's face mesh.
type MorphTarget interface {
	Name() string
	SetInfluence(v float64)
}

// MorphTargets is the avatar's morph-target interface.
type MorphTargets interface {
	Count() int
	Target(i int) MorphTarget
	TargetByName(name string) (MorphTarget, bool)
}

// Weights holds one influence in [0,1] per morph target.
type Weights []float64

// Active returns the index of the first non-zero weight, or -1.
func (w Weights) Active() int {
	for i, v := range w {
		if v != 0 {
			return i
		}
	}
	return -1
}

// TargetNames lists target names in index order.
func TargetNames(targets MorphTargets) []string {
	if targets == nil {
		return nil
	}
	names := make([]string, targets.Count())
	for i := range names {
		names[i] = targets.Target(i).Name()
	}
	return names
}

// Resolve maps a viseme value to a target index: an exact name first, then
// the first name containing value case-insensitively. Returns -1 if neither.
func Resolve(names []string, value string) int {
	for i, n := range names {
		if n == value {
			return i
		}
	}
	lower := strings.ToLower(value)
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), lower) {
			return i
		}
	}
	return -1
}

// Sample computes the weights at elapsed seconds. The first event containing
// elapsed wins and its target goes to 1.0; everything else stays 0.
func Sample(track Track, names []string, elapsed float64) Weights {
	w := make(Weights, len(names))
	i := track.Find(elapsed)
	if i < 0 {
		return w
	}
	if idx := Resolve(names, track[i].Value); idx >= 0 {
		w[idx] = 1.0
	}
	return w
}
