package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garnizeh/medequip/internal/config"
	"github.com/garnizeh/medequip/pkg/logger"
)

// cli carries what every subcommand needs once flags are parsed.
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "medequip",
		Short:        "Hospital equipment maintenance tracker",
		SilenceUsage: true,
		Version:      fmt.Sprintf("%s (built %s)", version, buildTime),
		RunE:         c.runServe,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to config YAML file")

	root.AddCommand(
		c.serveCmd(),
		c.migrateCmd(),
		c.backupCmd(),
		c.restoreCmd(),
		c.askCmd(),
	)
	return root
}

func (c *cli) load() error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	l, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = l.With(zap.String("env", cfg.Env))
	return nil
}
