// Package asset loads avatar characters from glTF/GLB files: the face's morph
// targets, the named animation clips and the skeleton.
package asset

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/avatarsync/internal/anim"
	"github.com/normanking/avatarsync/internal/rig"
	"github.com/qmuntal/gltf"
)

// ErrLoadFailure wraps every error surfaced while loading a character.
var ErrLoadFailure = errors.New("avatar load failed")

// Placement positions the avatar root in the scene.
type Placement struct {
	Scale  float32
	Offset mgl32.Vec3
}

// DefaultPlacement matches the framing used for Ready Player Me avatars.
func DefaultPlacement() Placement {
	return Placement{Scale: 1.5, Offset: mgl32.Vec3{0, -1.2, 0}}
}

// Matrix returns the root model matrix.
func (p Placement) Matrix() mgl32.Mat4 {
	model := mgl32.Translate3D(p.Offset[0], p.Offset[1], p.Offset[2])
	return model.Mul4(mgl32.Scale3D(p.Scale, p.Scale, p.Scale))
}

// Character is a loaded avatar.
type Character struct {
	Path       string
	Targets    *rig.MorphTargetManager // nil when the model has no facial rig
	Animations []*rig.Clip
	Skeleton   *rig.Skeleton
	Placement  Placement

	// Expressions retargeted from separate files, see LoadExpressions.
	Talking  []*rig.Clip
	Standing []*rig.Clip
}

// Clips exposes the animations and expressions for bulk registration.
func (c *Character) Clips() []anim.Clip {
	all := c.Players()
	out := make([]anim.Clip, len(all))
	for i, a := range all {
		out[i] = a
	}
	return out
}

// Players returns the clip playback heads to advance each frame.
func (c *Character) Players() rig.Players {
	out := make(rig.Players, 0, len(c.Animations)+len(c.Talking)+len(c.Standing))
	out = append(out, c.Animations...)
	out = append(out, c.Talking...)
	return append(out, c.Standing...)
}

// Load opens a .gltf or .glb file and extracts the character.
func Load(path string, placement Placement) (*Character, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w: %w", path, ErrLoadFailure, err)
	}
	if len(doc.Meshes) == 0 {
		return nil, fmt.Errorf("load %s: %w: no meshes in file", path, ErrLoadFailure)
	}

	ch := &Character{
		Path:      path,
		Targets:   morphTargets(doc),
		Skeleton:  skeleton(doc),
		Placement: placement,
	}
	for i, a := range doc.Animations {
		ch.Animations = append(ch.Animations, clip(doc, i, a))
	}
	return ch, nil
}

// LoadResult is delivered by LoadAsync.
type LoadResult struct {
	Character *Character
	Err       error
}

// LoadAsync loads in a goroutine. The channel yields exactly one result,
// or a context error if ctx ends first.
func LoadAsync(ctx context.Context, path string, placement Placement) <-chan LoadResult {
	out := make(chan LoadResult, 1)
	go func() {
		done := make(chan LoadResult, 1)
		go func() {
			c, err := Load(path, placement)
			done <- LoadResult{Character: c, Err: err}
		}()
		select {
		case r := <-done:
			out <- r
		case <-ctx.Done():
			out <- LoadResult{Err: fmt.Errorf("load %s: %w: %w", path, ErrLoadFailure, ctx.Err())}
		}
	}()
	return out
}

// morphTargets returns the first mesh primitive carrying morph targets.
// Names come from the mesh's extras.targetNames, else target_N.
func morphTargets(doc *gltf.Document) *rig.MorphTargetManager {
	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			if len(prim.Targets) == 0 {
				continue
			}
			names := make([]string, len(prim.Targets))
			for i := range names {
				names[i] = fmt.Sprintf("target_%d", i)
			}
			if extras, ok := mesh.Extras.(map[string]any); ok {
				if targetNames, ok := extras["targetNames"].([]any); ok {
					for i, name := range targetNames {
						if s, ok := name.(string); ok && i < len(names) {
							names[i] = s
						}
					}
				}
			}
			return rig.NewMorphTargetManager(names...)
		}
	}
	return nil
}

func skeleton(doc *gltf.Document) *rig.Skeleton {
	if len(doc.Skins) == 0 {
		return nil
	}
	var bones []string
	for _, joint := range doc.Skins[0].Joints {
		if joint >= 0 && joint < len(doc.Nodes) {
			bones = append(bones, doc.Nodes[joint].Name)
		}
	}
	return rig.NewSkeleton(bones...)
}

// clip spans the union of the channels' sampler input ranges.
func clip(doc *gltf.Document, idx int, a *gltf.Animation) *rig.Clip {
	name := a.Name
	if name == "" {
		name = fmt.Sprintf("animation_%d", idx)
	}

	from, to := math.Inf(1), 0.0
	channels := make([]rig.Channel, 0, len(a.Channels))
	for _, ch := range a.Channels {
		if ch.Sampler >= 0 && ch.Sampler < len(a.Samplers) {
			input := a.Samplers[ch.Sampler].Input
			if input >= 0 && input < len(doc.Accessors) {
				acc := doc.Accessors[input]
				if len(acc.Min) > 0 && acc.Min[0] < from {
					from = acc.Min[0]
				}
				if len(acc.Max) > 0 && acc.Max[0] > to {
					to = acc.Max[0]
				}
			}
		}

		target := ""
		if ch.Target.Node != nil && *ch.Target.Node < len(doc.Nodes) {
			target = doc.Nodes[*ch.Target.Node].Name
		}
		channels = append(channels, rig.Channel{Target: target, Path: pathName(ch.Target.Path)})
	}
	if math.IsInf(from, 1) || from > to {
		from = 0
	}
	return rig.NewClip(name, from, to, channels...)
}

func pathName(p gltf.TRSProperty) string {
	switch p {
	case gltf.TRSTranslation:
		return "translation"
	case gltf.TRSRotation:
		return "rotation"
	case gltf.TRSScale:
		return "scale"
	case gltf.TRSWeights:
		return "weights"
	default:
		return ""
	}
}
