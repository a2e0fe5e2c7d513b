package main

import (
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/avatarsync/internal/asset"
	"github.com/normanking/avatarsync/internal/config"
	"github.com/normanking/avatarsync/internal/logging"
)

type commandContext struct {
	configFlag *string
	logLevel   *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *logging.Logger
	loggerErr  error
}

func newCommandContext(configFlag, logLevel *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		logLevel:   logLevel,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevel != nil && *c.logLevel != "" {
			cfg.Log.Level = *c.logLevel
			if err := cfg.Validate(); err != nil {
				c.configErr = err
				return
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*logging.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.New(&logging.Config{
			Dir:     cfg.Log.Dir,
			Level:   logging.LogLevel(cfg.Log.Level),
			Console: true,
		})
	})
	return c.logger, c.loggerErr
}

func placement(cfg *config.Config) asset.Placement {
	return asset.Placement{
		Scale:  cfg.Avatar.Scale,
		Offset: mgl32.Vec3{0, cfg.Avatar.OffsetY, 0},
	}
}
