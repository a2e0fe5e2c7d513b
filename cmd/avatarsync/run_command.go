package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/normanking/avatarsync/internal/asset"
	"github.com/normanking/avatarsync/internal/audio"
	"github.com/normanking/avatarsync/internal/avatar3d"
	"github.com/normanking/avatarsync/internal/bus"
	"github.com/normanking/avatarsync/internal/chat"
	"github.com/normanking/avatarsync/internal/config"
	"github.com/normanking/avatarsync/internal/lipsync"
	"github.com/normanking/avatarsync/internal/logging"
	"github.com/normanking/avatarsync/internal/rig"
	"github.com/normanking/avatarsync/internal/stream"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var modelFlag string
	var trackFlag string
	var messages []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load the avatar and drive it until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if modelFlag != "" {
				cfg.Avatar.ModelPath = modelFlag
			}
			logs, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			defer logs.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = runAvatar(runCtx, cfg, logs, trackFlag, messages)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&modelFlag, "model", "", "Override avatar.model_path")
	cmd.Flags().StringVar(&trackFlag, "track", "", "Speak a local track file once the avatar is attached")
	cmd.Flags().StringArrayVar(&messages, "say", nil, "Send a chat message after the greeting (repeatable)")
	return cmd
}

func runAvatar(ctx context.Context, cfg *config.Config, logs *logging.Logger, trackPath string, messages []string) error {
	logger := logs.Zerolog()
	log := logs.Component("run")
	if path := logs.Path(); path != "" {
		log.Info().Str("path", path).Msg("Writing log file")
	}
	eventBus := bus.NewEventBus()
	eventBus.Subscribe(bus.EventAudioError, func(e bus.Event) {
		log.Warn().Interface("data", e.Data).Msg("Audio playback failed")
	})

	var broadcaster avatar3d.Broadcaster
	if cfg.Stream.Enabled {
		hub := stream.NewHub(logger)
		broadcaster = hub
		server := stream.NewServer(cfg.Stream.Addr, hub, logger)
		server.ServeLogs(logs)
		go func() {
			if err := server.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Stream server stopped")
			}
		}()
	}

	avatar := avatar3d.NewAvatarSession(avatar3d.Options{
		DefaultClip:         cfg.Avatar.DefaultClip,
		ClipSpeed:           cfg.Avatar.ClipSpeed,
		StopSupersededAudio: cfg.LipSync.StopSupersededAudio,
		Broadcaster:         broadcaster,
	}, eventBus, logger)

	player := audio.NewHTTPPlayer(nil, eventBus, logger)
	client := chat.NewClient(&chat.ClientConfig{
		ServerURL: cfg.Speech.ServerURL,
		Timeout:   cfg.Speech.Timeout,
	}, eventBus, logger)

	say := func(message string) {
		client.SendAsync(ctx, message, func(reply *chat.Reply, err error) {
			if err != nil {
				return
			}
			handle := player.Open(reply.AudioURL)
			avatar.Post(func(a *avatar3d.AvatarSession) {
				if _, err := a.Speak(handle, reply.Visemes); err != nil {
					log.Warn().Err(err).Msg("Cannot speak reply")
				}
			})
		})
	}

	attach := func(ch *asset.Character) {
		if err := ch.LoadExpressions(cfg.Avatar.Expressions.Talking, cfg.Avatar.Expressions.Standing); err != nil {
			log.Warn().Err(err).Msg("Some expressions were skipped")
		}
		avatar.Post(func(a *avatar3d.AvatarSession) {
			if err := a.Attach(ch); err != nil {
				log.Warn().Err(err).Str("path", ch.Path).Msg("Cannot attach character")
			}
		})
	}

	place := placement(cfg)
	go func() {
		result := <-asset.LoadAsync(ctx, cfg.Avatar.ModelPath, place)
		if result.Err != nil {
			log.Error().Err(result.Err).Msg("Avatar load failed, using placeholder face")
			eventBus.Publish(bus.Event{
				Type: bus.EventAssetLoadFailed,
				Data: map[string]any{"path": cfg.Avatar.ModelPath, "error": result.Err.Error()},
			})
			avatar.Post(func(a *avatar3d.AvatarSession) { a.BindTargets(rig.NewVisemeFace()) })
		} else {
			attach(result.Character)
		}

		if trackPath != "" {
			speakTrackFile(avatar, player, trackPath, log)
		}
		if cfg.Speech.Greeting != "" {
			say(cfg.Speech.Greeting)
		}
		for _, m := range messages {
			say(m)
		}
	}()

	if cfg.Avatar.WatchModel {
		watcher, err := asset.NewWatcher(cfg.Avatar.ModelPath, place, func(ch *asset.Character, err error) {
			if err != nil {
				return
			}
			attach(ch)
		}, logger)
		if err != nil {
			log.Warn().Err(err).Msg("Model watcher unavailable")
		} else {
			go watcher.Run(ctx)
		}
	}

	return avatar.Run(ctx, cfg.Frame.Interval())
}

func speakTrackFile(avatar *avatar3d.AvatarSession, player *audio.HTTPPlayer, path string, log zerolog.Logger) {
	u, _, err := lipsync.LoadTrackFile(path)
	if u == nil {
		log.Error().Err(err).Str("path", path).Msg("Cannot read track file")
		return
	}
	var handle audio.Handle = audio.NewSilent()
	if u.AudioURL != "" {
		handle = player.Open(u.AudioURL)
	}
	avatar.Post(func(a *avatar3d.AvatarSession) {
		if _, err := a.Speak(handle, u.Visemes); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Cannot speak track file")
		}
	})
}
