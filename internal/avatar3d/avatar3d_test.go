package avatar3d

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/normanking/avatarsync/internal/anim"
	"github.com/normanking/avatarsync/internal/asset"
	"github.com/normanking/avatarsync/internal/audio"
	"github.com/normanking/avatarsync/internal/lipsync"
	"github.com/normanking/avatarsync/internal/rig"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

type recorder struct {
	mu     sync.Mutex
	states []FrameState
}

func (r *recorder) Broadcast(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, v.(FrameState))
}

func newSession(t *testing.T, opts Options) *AvatarSession {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return epoch }
	}
	return NewAvatarSession(opts, nil, zerolog.Nop())
}

func character() *asset.Character {
	idle := rig.NewClip("Idle", 0, 2, rig.Channel{Target: "Hips", Path: "rotation"})
	talk := rig.NewClip("Talk", 0, 4, rig.Channel{Target: "Head", Path: "rotation"})
	return &asset.Character{
		Path:       "avatar.glb",
		Targets:    rig.NewVisemeFace(),
		Animations: []*rig.Clip{idle, talk},
		Placement:  asset.DefaultPlacement(),
	}
}

func influence(t *testing.T, targets lipsync.MorphTargets, name string) float64 {
	t.Helper()
	target, ok := targets.TargetByName(name)
	require.True(t, ok, name)
	return target.(*rig.MorphTarget).Influence()
}

func TestEndToEnd_IdleThenTalk(t *testing.T) {
	s := newSession(t, Options{DefaultClip: "Idle"})
	ch := character()
	idle, talk := ch.Animations[0], ch.Animations[1]

	require.NoError(t, s.Attach(ch))
	assert.True(t, idle.Playing())
	active, ok := s.Registry.Active()
	require.True(t, ok)
	assert.Equal(t, "Idle", active)

	require.NoError(t, s.Play("Talk", true))
	assert.False(t, idle.Playing())
	assert.Equal(t, 1, idle.Stops())
	assert.True(t, talk.Playing())
	assert.Equal(t, []string{"Idle", "Talk"}, s.Registry.Names())
}

func TestAttach_FallsBackToFirstClip(t *testing.T) {
	s := newSession(t, Options{DefaultClip: "Breathing"})
	require.NoError(t, s.Attach(character()))

	active, _ := s.Registry.Active()
	assert.Equal(t, "Idle", active)
}

func TestAttach_NoClips(t *testing.T) {
	s := newSession(t, Options{DefaultClip: "Idle"})
	err := s.Attach(&asset.Character{Path: "statue.glb"})
	assert.ErrorIs(t, err, anim.ErrNotFound)
	assert.Nil(t, s.Targets())
}

func TestFrame_NoSessionIsNoOp(t *testing.T) {
	s := newSession(t, Options{})
	face := rig.NewVisemeFace()
	s.BindTargets(face)
	face.Target(3).SetInfluence(0.7)

	st := s.Frame(at(1), 0.016)
	assert.Empty(t, st.SessionID)
	assert.Nil(t, st.Weights)
	assert.Equal(t, 0.7, face.Influences()[3])
	assert.Equal(t, uint64(1), st.Frame)
}

func TestSpeak_NoMorphTargetsLeavesAudioStopped(t *testing.T) {
	s := newSession(t, Options{})
	handle := audio.NewSilent()

	_, err := s.Speak(handle, []lipsync.Event{{Start: 0, End: 1, Value: "viseme_aa"}})
	assert.ErrorIs(t, err, lipsync.ErrNoMorphTargets)
	assert.Equal(t, 0, handle.Plays())
	assert.Nil(t, s.Scheduler.Current())
}

func TestFrame_OverlapFirstMatchWins(t *testing.T) {
	s := newSession(t, Options{})
	face := rig.NewVisemeFace()
	s.BindTargets(face)

	handle := audio.NewSilent()
	_, err := s.Speak(handle, []lipsync.Event{
		{Start: 0, End: 2, Value: "viseme_aa"},
		{Start: 1, End: 3, Value: "viseme_E"},
	})
	require.NoError(t, err)
	assert.True(t, handle.Playing())

	st := s.Frame(at(1.5), 0.016)
	assert.Equal(t, "viseme_aa", st.Viseme)
	assert.InDelta(t, 1.5, st.Elapsed, 1e-9)
	assert.Equal(t, 1.0, influence(t, face, "viseme_aa"))
	assert.Equal(t, 0.0, influence(t, face, "viseme_E"))

	st = s.Frame(at(2.5), 0.016)
	assert.Equal(t, "viseme_E", st.Viseme)
	assert.Equal(t, 0.0, influence(t, face, "viseme_aa"))
	assert.Equal(t, 1.0, influence(t, face, "viseme_E"))
}

func TestFrame_GapClearsFace(t *testing.T) {
	s := newSession(t, Options{})
	face := rig.NewVisemeFace()
	s.BindTargets(face)

	_, err := s.Speak(nil, []lipsync.Event{{Start: 0, End: 1, Value: "viseme_aa"}})
	require.NoError(t, err)

	s.Frame(at(0.5), 0.016)
	assert.Equal(t, 1.0, influence(t, face, "viseme_aa"))

	st := s.Frame(at(1.5), 0.016)
	assert.Empty(t, st.Viseme)
	assert.Equal(t, -1, lipsync.Weights(face.Influences()).Active())
}

func TestFrame_SubstringFallback(t *testing.T) {
	s := newSession(t, Options{})
	face := rig.NewMorphTargetManager("jawOpen", "viseme_EE")
	s.BindTargets(face)

	_, err := s.Speak(nil, []lipsync.Event{{Start: 0, End: 1, Value: "ee"}})
	require.NoError(t, err)

	s.Frame(at(0.5), 0.016)
	assert.Equal(t, []float64{0, 1}, face.Influences())
}

func TestSpeak_DropsMalformedEvents(t *testing.T) {
	s := newSession(t, Options{})
	s.BindTargets(rig.NewVisemeFace())

	session, err := s.Speak(nil, []lipsync.Event{
		{Start: 0.5, End: 0.4, Value: "viseme_aa"},
		{Start: 0, End: 0.3, Value: "viseme_O"},
		{Start: 0.3, End: 0.6, Value: ""},
	})
	require.NoError(t, err)
	require.Len(t, session.Track, 1)
	assert.Equal(t, "viseme_O", session.Track[0].Value)
}

func TestSpeak_Supersedes(t *testing.T) {
	s := newSession(t, Options{StopSupersededAudio: true})
	s.BindTargets(rig.NewVisemeFace())

	first := audio.NewSilent()
	old, err := s.Speak(first, []lipsync.Event{{Start: 0, End: 5, Value: "viseme_aa"}})
	require.NoError(t, err)

	second := audio.NewSilent()
	current, err := s.Speak(second, []lipsync.Event{{Start: 0, End: 5, Value: "viseme_O"}})
	require.NoError(t, err)

	assert.True(t, old.Superseded())
	assert.False(t, first.Playing())
	assert.True(t, second.Playing())

	st := s.Frame(at(1), 0.016)
	assert.Equal(t, current.ID.String(), st.SessionID)
	assert.Equal(t, "viseme_O", st.Viseme)
}

func TestFrame_WarnsOnceWithoutTargets(t *testing.T) {
	var buf bytes.Buffer
	s := NewAvatarSession(Options{Clock: func() time.Time { return epoch }}, nil, zerolog.New(&buf))
	s.BindTargets(rig.NewVisemeFace())
	_, err := s.Speak(nil, []lipsync.Event{{Start: 0, End: 1, Value: "viseme_aa"}})
	require.NoError(t, err)

	s.BindTargets(nil)
	for i := 0; i < 3; i++ {
		st := s.Frame(at(0.5), 0.016)
		assert.Nil(t, st.Weights)
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "No morph targets bound"))
}

func TestFrame_RebindAfterBegin(t *testing.T) {
	s := newSession(t, Options{})
	s.BindTargets(rig.NewVisemeFace())
	_, err := s.Speak(nil, []lipsync.Event{{Start: 0, End: 1, Value: "viseme_aa"}})
	require.NoError(t, err)

	reloaded := rig.NewMorphTargetManager("viseme_aa", "viseme_O")
	s.BindTargets(reloaded)
	s.Frame(at(0.5), 0.016)
	assert.Equal(t, []float64{1, 0}, reloaded.Influences())
}

func TestFrame_RebindSameCountResolvesByName(t *testing.T) {
	s := newSession(t, Options{})
	first := rig.NewMorphTargetManager("viseme_aa", "viseme_E")
	s.BindTargets(first)
	_, err := s.Speak(nil, []lipsync.Event{{Start: 0, End: 2, Value: "viseme_aa"}})
	require.NoError(t, err)
	s.Frame(at(0.5), 0.016)
	require.Equal(t, []float64{1, 0}, first.Influences())

	reordered := rig.NewMorphTargetManager("viseme_E", "viseme_aa")
	s.BindTargets(reordered)
	st := s.Frame(at(1), 0.016)
	assert.Equal(t, []float64{0, 1}, reordered.Influences())
	assert.Equal(t, []float64{0, 1}, st.Weights)
	assert.Equal(t, []float64{0, 0}, first.Influences(), "unbound face is cleared")
}

func TestAttach_ReplacesPreviousClips(t *testing.T) {
	s := newSession(t, Options{DefaultClip: "Idle"})
	first := character()
	first.Animations = append(first.Animations, rig.NewClip("Wave", 0, 1))
	require.NoError(t, s.Attach(first))
	require.NoError(t, s.Play("Wave", false))

	second := character()
	require.NoError(t, s.Attach(second))
	assert.Equal(t, []string{"Idle", "Talk"}, s.Registry.Names())
	assert.ErrorIs(t, s.Play("Wave", false), anim.ErrNotFound)

	require.NoError(t, s.Play("Talk", true))
	s.Frame(at(0.5), 0.5)
	assert.InDelta(t, 0.5, second.Animations[1].Head(), 1e-9)
	assert.Equal(t, 0.0, first.Animations[1].Head())
}

func expressiveCharacter() *asset.Character {
	ch := character()
	head := rig.Channel{Target: "Head", Path: "rotation"}
	ch.Talking = []*rig.Clip{
		rig.NewClip("M_Talking_Variations_001", 0, 1, head),
		rig.NewClip("M_Talking_Variations_002", 0, 1, head),
	}
	ch.Standing = []*rig.Clip{rig.NewClip("M_Standing_Expressions_001", 0, 3, head)}
	return ch
}

func TestExpressions_StandingIdleAndTalkingOnSpeak(t *testing.T) {
	s := newSession(t, Options{})
	s.Registry.SetPicker(func(n int) int { return n - 1 })
	ch := expressiveCharacter()

	require.NoError(t, s.Attach(ch))
	active, _ := s.Registry.Active()
	assert.Equal(t, "M_Standing_Expressions_001", active)
	assert.True(t, ch.Standing[0].Playing())

	_, err := s.Speak(nil, []lipsync.Event{{Start: 0, End: 2, Value: "viseme_aa"}})
	require.NoError(t, err)
	active, _ = s.Registry.Active()
	assert.Equal(t, "M_Talking_Variations_002", active)
	assert.False(t, ch.Standing[0].Playing())

	st := s.Frame(at(0.5), 0.5)
	assert.Equal(t, "M_Talking_Variations_002", st.Clip)

	st = s.Frame(at(1.25), 0.75)
	assert.Equal(t, "M_Standing_Expressions_001", st.Clip)
	assert.True(t, ch.Standing[0].Playing())
	assert.Equal(t, "viseme_aa", st.Viseme)
}

func TestExpressions_DefaultClipWinsOverStanding(t *testing.T) {
	s := newSession(t, Options{DefaultClip: "Idle"})
	require.NoError(t, s.Attach(expressiveCharacter()))
	active, _ := s.Registry.Active()
	assert.Equal(t, "Idle", active)
}

func TestExpressions_ExplicitPlayIsNotOverridden(t *testing.T) {
	s := newSession(t, Options{DefaultClip: "Idle"})
	ch := expressiveCharacter()
	require.NoError(t, s.Attach(ch))
	_, err := s.Speak(nil, []lipsync.Event{{Start: 0, End: 2, Value: "viseme_aa"}})
	require.NoError(t, err)

	require.NoError(t, s.Play("Talk", true))
	st := s.Frame(at(1.5), 1.5)
	assert.Equal(t, "Talk", st.Clip)
}

func TestSpeak_NoTargetsKeepsIdleClip(t *testing.T) {
	s := newSession(t, Options{})
	ch := expressiveCharacter()
	ch.Targets = nil
	require.NoError(t, s.Attach(ch))

	_, err := s.Speak(nil, []lipsync.Event{{Start: 0, End: 1, Value: "viseme_aa"}})
	assert.ErrorIs(t, err, lipsync.ErrNoMorphTargets)
	active, _ := s.Registry.Active()
	assert.Equal(t, "M_Standing_Expressions_001", active)
}

func TestFrame_ClipSpeed(t *testing.T) {
	s := newSession(t, Options{DefaultClip: "Idle", ClipSpeed: 2})
	ch := character()
	require.NoError(t, s.Attach(ch))

	s.Frame(at(0.25), 0.25)
	assert.InDelta(t, 0.5, ch.Animations[0].Head(), 1e-9)
}

func TestFrame_AdvancesClips(t *testing.T) {
	s := newSession(t, Options{DefaultClip: "Idle"})
	ch := character()
	require.NoError(t, s.Attach(ch))

	s.Frame(at(0.25), 0.25)
	s.Frame(at(0.5), 0.25)
	assert.InDelta(t, 0.5, ch.Animations[0].Head(), 1e-9)
	assert.Equal(t, 0.0, ch.Animations[1].Head())
}

func TestPost_AppliesOnNextFrame(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, Options{DefaultClip: "Idle", Broadcaster: rec})
	require.NoError(t, s.Attach(character()))

	done := make(chan struct{})
	go func() {
		s.Post(func(a *AvatarSession) { a.Play("Talk", true) })
		close(done)
	}()
	<-done

	active, _ := s.Registry.Active()
	assert.Equal(t, "Idle", active)

	st := s.Frame(at(0.016), 0.016)
	assert.Equal(t, "Talk", st.Clip)
	require.Len(t, rec.states, 1)
	assert.Equal(t, "Talk", rec.states[0].Clip)
	assert.Equal(t, st, s.Last())
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := NewAvatarSession(Options{}, nil, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, s.Driver.Frames(), uint64(0))
}
