package main

import (
	"github.com/spf13/cobra"

	"github.com/bpm4b/bpm4b/internal/config"
	"github.com/bpm4b/bpm4b/internal/logger"
)

// commandContext carries the global flags shared by all subcommands.
type commandContext struct {
	configFile string
	envFile    string
	logLevel   string
}

// options builds config load options from the global flags. Subcommands
// adjust the returned overrides before loading.
func (c *commandContext) options() config.Options {
	return config.Options{
		ConfigFile: c.configFile,
		EnvFile:    c.envFile,
		Overrides: config.Overrides{
			LogLevel: c.logLevel,
		},
	}
}

func (c *commandContext) loadConfig(mutate ...func(*config.Overrides)) (*config.Config, error) {
	opts := c.options()
	for _, m := range mutate {
		m(&opts.Overrides)
	}
	return config.Load(opts)
}

// newLogger writes to the command's stderr so stdout stays clean for output
// such as the metadata document.
func newLogger(cmd *cobra.Command, cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Writer:      cmd.ErrOrStderr(),
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	})
}
