package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/subflow/internal/cache"
	"github.com/MimeLyc/subflow/internal/config"
	"github.com/MimeLyc/subflow/internal/persistence"
	"github.com/MimeLyc/subflow/pkg/log"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var levelFlag string

	ctx := &commandContext{configFlag: &configFlag, levelFlag: &levelFlag}

	rootCmd := &cobra.Command{
		Use:           "subflow",
		Short:         "Translate SRT, ASS and WebVTT subtitles batch by batch",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (.toml or .yaml)")
	rootCmd.PersistentFlags().StringVar(&levelFlag, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newTranslateCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newWorkerCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))

	return rootCmd
}

type commandContext struct {
	configFlag *string
	levelFlag  *string
}

// loadConfig reads the configuration and installs the global logger
func (c *commandContext) loadConfig(opts ...config.Option) (*config.Config, error) {
	var path string
	if c.configFlag != nil {
		path = strings.TrimSpace(*c.configFlag)
	}

	cfg, err := config.Load(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Log.Level
	if c.levelFlag != nil && *c.levelFlag != "" {
		level = *c.levelFlag
	}
	log.InitLogger(log.ParseLevel(level))
	return cfg, nil
}

// openStore returns nil when no database is configured
func openStore(cfg *config.Config) (*persistence.SQLiteStore, error) {
	if cfg.Storage.DBPath == "" {
		return nil, nil
	}
	store, err := persistence.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	return store, nil
}

// openCache returns nil when no cache file is configured
func openCache(cfg *config.Config) (*cache.BoltCache, error) {
	if cfg.Storage.CachePath == "" {
		return nil, nil
	}
	c, err := cache.Open(cfg.Storage.CachePath, cfg.Storage.CacheTTL.Std())
	if err != nil {
		return nil, err
	}
	return c, nil
}
