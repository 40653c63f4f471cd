package main

import (
	"io"
	"strings"
	"sync"

	"voice-pipeline-go/internal/app"
	"voice-pipeline-go/internal/config"
	"voice-pipeline-go/internal/logger"
	"voice-pipeline-go/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// logger writes structured logs to stderr so command output stays clean.
func (c *commandContext) logger(stderr io.Writer) (*logger.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return app.NewLogger(cfg, stderr), nil
}

func (c *commandContext) control(stderr io.Writer) (*app.Control, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	log, err := c.logger(stderr)
	if err != nil {
		return nil, err
	}
	return app.NewControl(cfg, log), nil
}

func (c *commandContext) withStore(fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := app.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func (c *commandContext) withApp(opts app.Options, fn func(*app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
