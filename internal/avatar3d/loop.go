package avatar3d

import (
	"context"
	"time"
)

// maxFrameDelta caps dt after stalls so clips do not jump.
const maxFrameDelta = 0.1

// Run drives Frame every interval until ctx is done.
func (s *AvatarSession) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second / 60
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := s.Scheduler.Now()
	frames := uint64(0)
	fpsTimer := last

	s.logger.Info().Dur("interval", interval).Msg("Render loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Uint64("frames", s.Driver.Frames()).Msg("Render loop ended")
			return ctx.Err()
		case <-ticker.C:
		}

		now := s.Scheduler.Now()
		dt := now.Sub(last).Seconds()
		last = now
		if dt > maxFrameDelta {
			dt = maxFrameDelta
		}
		st := s.Frame(now, dt)

		frames++
		if now.Sub(fpsTimer) >= 10*time.Second {
			s.logger.Debug().
				Uint64("fps", frames/uint64(now.Sub(fpsTimer)/time.Second)).
				Str("clip", st.Clip).
				Str("viseme", st.Viseme).
				Msg("Render stats")
			frames = 0
			fpsTimer = now
		}
	}
}
