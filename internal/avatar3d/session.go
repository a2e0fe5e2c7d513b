package avatar3d

import (
	"sync"
	"time"

	"github.com/normanking/avatarsync/internal/anim"
	"github.com/normanking/avatarsync/internal/asset"
	"github.com/normanking/avatarsync/internal/audio"
	"github.com/normanking/avatarsync/internal/bus"
	"github.com/normanking/avatarsync/internal/lipsync"
	"github.com/normanking/avatarsync/internal/metrics"
	"github.com/normanking/avatarsync/internal/rig"
	"github.com/rs/zerolog"
)

// Broadcaster receives every FrameState.
type Broadcaster interface {
	Broadcast(v any)
}

type Options struct {
	DefaultClip         string  // played on Attach, falling back to the first clip
	ClipSpeed           float64 // playback rate applied to every clip; 0 keeps 1x
	StopSupersededAudio bool
	Clock               func() time.Time
	Broadcaster         Broadcaster
}

// AvatarSession is one avatar: its clip registry, viseme scheduler and frame
// driver plus the rig handles they act on. Everything except Post must be
// called from the frame goroutine.
type AvatarSession struct {
	Registry  *anim.Registry
	Scheduler *lipsync.Scheduler
	Driver    *FrameDriver

	character   *asset.Character
	targets     lipsync.MorphTargets
	players     rig.Players
	oneShot     *rig.Clip // talking expression that returns to idle when done
	defaultClip string
	clipSpeed   float64
	broadcaster Broadcaster

	eventBus *bus.EventBus
	logger   zerolog.Logger

	mu    sync.Mutex
	inbox []func(*AvatarSession)

	last FrameState
}

func NewAvatarSession(opts Options, eventBus *bus.EventBus, logger zerolog.Logger) *AvatarSession {
	schedOpts := []lipsync.Option{lipsync.WithStopSuperseded(opts.StopSupersededAudio)}
	if opts.Clock != nil {
		schedOpts = append(schedOpts, lipsync.WithClock(opts.Clock))
	}
	scheduler := lipsync.NewScheduler(eventBus, logger, schedOpts...)

	return &AvatarSession{
		Registry:    anim.NewRegistry(eventBus, logger),
		Scheduler:   scheduler,
		Driver:      NewFrameDriver(scheduler, logger),
		defaultClip: opts.DefaultClip,
		clipSpeed:   opts.ClipSpeed,
		broadcaster: opts.Broadcaster,
		eventBus:    eventBus,
		logger:      logger.With().Str("component", "avatar").Logger(),
	}
}

// Attach binds a loaded character: its clips are registered, its morph
// targets bound and the idle clip started looping. Attaching again (after a
// reload) replaces the previous character's clips and targets.
func (s *AvatarSession) Attach(ch *asset.Character) error {
	s.Registry.Clear()
	s.oneShot = nil
	s.character = ch
	s.players = ch.Players()
	if s.clipSpeed > 0 {
		for _, c := range s.players {
			c.SetSpeed(s.clipSpeed)
		}
	}
	s.BindTargets(nil)
	if ch.Targets != nil {
		s.BindTargets(ch.Targets)
	}

	s.Registry.RegisterGroup(ch)
	s.eventBus.Publish(bus.Event{
		Type: bus.EventAssetLoaded,
		Data: map[string]any{"path": ch.Path, "clips": len(ch.Animations)},
	})

	name, err := s.playIdle()
	if err != nil {
		s.logger.Warn().Err(err).Str("path", ch.Path).Msg("Character has no clips to play")
		return err
	}
	s.logger.Info().Str("path", ch.Path).Str("clip", name).Msg("Character attached")
	return nil
}

// playIdle loops a random standing expression when no default clip is
// configured, else the default clip, else the first registered clip.
func (s *AvatarSession) playIdle() (string, error) {
	if s.defaultClip == "" && s.character != nil && len(s.character.Standing) > 0 {
		return s.Registry.PlayRandom(asset.ExpressionNames(s.character.Standing), true)
	}
	var preferred []string
	if s.defaultClip != "" {
		preferred = append(preferred, s.defaultClip)
	}
	return s.Registry.PlayPreferred(true, preferred...)
}

// playTalking starts a random talking expression once, if the character has any.
func (s *AvatarSession) playTalking() {
	if s.character == nil || len(s.character.Talking) == 0 {
		return
	}
	name, err := s.Registry.PlayRandom(asset.ExpressionNames(s.character.Talking), false)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cannot play talking expression")
		return
	}
	for _, c := range s.character.Talking {
		if c.Name() == name {
			s.oneShot = c
		}
	}
}

// settleOneShot resumes idle once a talking expression has run out.
// Anything played over it in the meantime is left alone.
func (s *AvatarSession) settleOneShot() {
	if s.oneShot == nil {
		return
	}
	if active, _ := s.Registry.Active(); active != s.oneShot.Name() {
		s.oneShot = nil
		return
	}
	if s.oneShot.Playing() {
		return
	}
	s.oneShot = nil
	if _, err := s.playIdle(); err != nil {
		s.logger.Warn().Err(err).Msg("Cannot resume idle clip")
	}
}

// BindTargets points the scheduler and driver at targets, for faces that do
// not come from a loaded character.
func (s *AvatarSession) BindTargets(targets lipsync.MorphTargets) {
	s.targets = targets
	s.Driver.Bind(targets)
}

// Speak ingests events, drops malformed ones and begins a session playing
// handle. The previous session, if any, is superseded. When the character
// has talking expressions one of them plays once over the reply.
func (s *AvatarSession) Speak(handle audio.Handle, events []lipsync.Event) (*lipsync.Session, error) {
	track, err := lipsync.NewTrack(events)
	if err != nil {
		dropped := lipsync.Dropped(err)
		metrics.VisemesDropped.Add(float64(dropped))
		s.logger.Warn().Err(err).Int("dropped", dropped).Msg("Dropped malformed visemes")
		s.eventBus.Publish(bus.Event{
			Type: bus.EventVisemeDropped,
			Data: map[string]any{"dropped": dropped},
		})
	}
	session, err := s.Scheduler.Begin(handle, track, s.targets)
	if err != nil {
		return nil, err
	}
	s.playTalking()
	return session, nil
}

func (s *AvatarSession) Play(name string, loop bool) error {
	return s.Registry.Play(name, loop)
}

func (s *AvatarSession) Stop() {
	s.Registry.Stop()
}

// Post queues cmd to run at the start of the next Frame. Safe from any goroutine.
func (s *AvatarSession) Post(cmd func(*AvatarSession)) {
	s.mu.Lock()
	s.inbox = append(s.inbox, cmd)
	s.mu.Unlock()
}

func (s *AvatarSession) drain() {
	s.mu.Lock()
	cmds := s.inbox
	s.inbox = nil
	s.mu.Unlock()
	for _, cmd := range cmds {
		cmd(s)
	}
}

// Frame runs queued commands, advances clip heads by dt seconds and drives
// the face for now.
func (s *AvatarSession) Frame(now time.Time, dt float64) FrameState {
	s.drain()
	s.players.Advance(dt)
	s.settleOneShot()

	st := s.Driver.Tick(now)
	if name, ok := s.Registry.Active(); ok {
		st.Clip = name
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(st)
	}
	s.last = st
	return st
}

// Last returns the most recent frame.
func (s *AvatarSession) Last() FrameState {
	return s.last
}

func (s *AvatarSession) Character() *asset.Character {
	return s.character
}

func (s *AvatarSession) Targets() lipsync.MorphTargets {
	return s.targets
}
