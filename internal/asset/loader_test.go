package asset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeAvatar saves a minimal avatar: a body mesh, a head mesh with three
// named viseme targets, a three-bone skin and two animations.
func writeAvatar(t *testing.T, dir string) string {
	t.Helper()

	hips, head := 0, 2
	doc := gltf.NewDocument()
	doc.Nodes = []*gltf.Node{{Name: "Hips"}, {Name: "Spine"}, {Name: "Head"}}
	doc.Skins = []*gltf.Skin{{Joints: []int{0, 1, 2}}}
	doc.Accessors = []*gltf.Accessor{
		{ComponentType: gltf.ComponentFloat, Type: gltf.AccessorVec3, Count: 3},
		{ComponentType: gltf.ComponentFloat, Type: gltf.AccessorScalar, Count: 2, Min: []float64{0}, Max: []float64{2.5}},
		{ComponentType: gltf.ComponentFloat, Type: gltf.AccessorScalar, Count: 2, Min: []float64{0.5}, Max: []float64{4}},
		{ComponentType: gltf.ComponentFloat, Type: gltf.AccessorVec4, Count: 2},
	}
	doc.Meshes = []*gltf.Mesh{
		{
			Name:       "Body",
			Primitives: []*gltf.Primitive{{Attributes: gltf.PrimitiveAttributes{gltf.POSITION: 0}}},
		},
		{
			Name:   "Wolf3D_Head",
			Extras: map[string]any{"targetNames": []string{"viseme_sil", "viseme_aa", "viseme_E"}},
			Primitives: []*gltf.Primitive{{
				Attributes: gltf.PrimitiveAttributes{gltf.POSITION: 0},
				Targets: []gltf.PrimitiveAttributes{
					{gltf.POSITION: 0},
					{gltf.POSITION: 0},
					{gltf.POSITION: 0},
				},
			}},
		},
	}
	doc.Animations = []*gltf.Animation{
		{
			Name:     "Idle",
			Samplers: []*gltf.AnimationSampler{{Input: 1, Output: 3}},
			Channels: []*gltf.AnimationChannel{{Sampler: 0, Target: gltf.AnimationChannelTarget{Node: &hips, Path: gltf.TRSRotation}}},
		},
		{
			Samplers: []*gltf.AnimationSampler{{Input: 1, Output: 3}, {Input: 2, Output: 3}},
			Channels: []*gltf.AnimationChannel{
				{Sampler: 0, Target: gltf.AnimationChannelTarget{Node: &hips, Path: gltf.TRSTranslation}},
				{Sampler: 1, Target: gltf.AnimationChannelTarget{Node: &head, Path: gltf.TRSRotation}},
			},
		},
	}

	path := filepath.Join(dir, "avatar.gltf")
	require.NoError(t, gltf.Save(doc, path))
	return path
}

func TestLoad_ExtractsCharacter(t *testing.T) {
	path := writeAvatar(t, t.TempDir())

	ch, err := Load(path, DefaultPlacement())
	require.NoError(t, err)

	require.NotNil(t, ch.Targets)
	assert.Equal(t, 3, ch.Targets.Count())
	assert.Equal(t, "viseme_aa", ch.Targets.Target(1).Name())

	require.Len(t, ch.Animations, 2)
	idle := ch.Animations[0]
	assert.Equal(t, "Idle", idle.Name())
	assert.Equal(t, 0.0, idle.From)
	assert.Equal(t, 2.5, idle.To)
	assert.Equal(t, "Hips", idle.Channels[0].Target)
	assert.Equal(t, "rotation", idle.Channels[0].Path)

	unnamed := ch.Animations[1]
	assert.Equal(t, "animation_1", unnamed.Name())
	assert.Equal(t, 0.0, unnamed.From)
	assert.Equal(t, 4.0, unnamed.To)
	assert.Equal(t, "translation", unnamed.Channels[0].Path)
	assert.Equal(t, "Head", unnamed.Channels[1].Target)

	assert.Equal(t, []string{"Hips", "Spine", "Head"}, ch.Skeleton.Bones())
	assert.Len(t, ch.Clips(), 2)
	assert.Len(t, ch.Players(), 2)
}

func TestLoad_DefaultTargetNames(t *testing.T) {
	dir := t.TempDir()
	doc := gltf.NewDocument()
	doc.Accessors = []*gltf.Accessor{{ComponentType: gltf.ComponentFloat, Type: gltf.AccessorVec3, Count: 1}}
	doc.Meshes = []*gltf.Mesh{{
		Primitives: []*gltf.Primitive{{
			Attributes: gltf.PrimitiveAttributes{gltf.POSITION: 0},
			Targets:    []gltf.PrimitiveAttributes{{gltf.POSITION: 0}, {gltf.POSITION: 0}},
		}},
	}}
	path := filepath.Join(dir, "plain.gltf")
	require.NoError(t, gltf.Save(doc, path))

	ch, err := Load(path, DefaultPlacement())
	require.NoError(t, err)
	require.NotNil(t, ch.Targets)
	assert.Equal(t, "target_0", ch.Targets.Target(0).Name())
	assert.Equal(t, "target_1", ch.Targets.Target(1).Name())
	assert.Nil(t, ch.Skeleton)
	assert.Empty(t, ch.Animations)
}

func TestLoad_NoMorphTargets(t *testing.T) {
	dir := t.TempDir()
	doc := gltf.NewDocument()
	doc.Accessors = []*gltf.Accessor{{ComponentType: gltf.ComponentFloat, Type: gltf.AccessorVec3, Count: 1}}
	doc.Meshes = []*gltf.Mesh{{Primitives: []*gltf.Primitive{{Attributes: gltf.PrimitiveAttributes{gltf.POSITION: 0}}}}}
	path := filepath.Join(dir, "statue.gltf")
	require.NoError(t, gltf.Save(doc, path))

	ch, err := Load(path, DefaultPlacement())
	require.NoError(t, err)
	assert.Nil(t, ch.Targets)
}

func TestLoad_Failures(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.glb"), DefaultPlacement())
	assert.ErrorIs(t, err, ErrLoadFailure)

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.gltf")
	require.NoError(t, gltf.Save(gltf.NewDocument(), empty))
	_, err = Load(empty, DefaultPlacement())
	assert.ErrorIs(t, err, ErrLoadFailure)
}

func TestLoadAsync(t *testing.T) {
	path := writeAvatar(t, t.TempDir())

	select {
	case r := <-LoadAsync(context.Background(), path, DefaultPlacement()):
		require.NoError(t, r.Err)
		assert.Len(t, r.Character.Animations, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("async load did not complete")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := <-LoadAsync(ctx, filepath.Join(t.TempDir(), "missing.glb"), DefaultPlacement())
	assert.ErrorIs(t, r.Err, ErrLoadFailure)
}

func TestPlacement_Matrix(t *testing.T) {
	p := DefaultPlacement()
	m := p.Matrix()

	origin := m.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, -1.2, origin.Y(), 1e-6)

	unit := m.Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 1.5, unit.X(), 1e-6)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeAvatar(t, dir)

	results := make(chan *Character, 4)
	w, err := NewWatcher(path, DefaultPlacement(), func(ch *Character, err error) {
		if err != nil {
			return
		}
		select {
		case results <- ch:
		default:
		}
	}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	select {
	case ch := <-results:
		assert.Len(t, ch.Animations, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}
}
