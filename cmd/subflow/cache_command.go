package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/subflow/internal/config"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Show the size of the translation cache and drop expired entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(config.SkipEngineCheck())
			if err != nil {
				return err
			}
			c, err := openCache(cfg)
			if err != nil {
				return err
			}
			if c == nil {
				return errors.New("no translation cache configured (set CACHE_PATH)")
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			if prune {
				removed, err := c.Prune()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d expired entries\n", removed)
			}

			n, err := c.Len()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d cached batches in %s (ttl %s)\n", n, cfg.Storage.CachePath, cfg.Storage.CacheTTL)
			return nil
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "Remove expired entries")

	return cmd
}
