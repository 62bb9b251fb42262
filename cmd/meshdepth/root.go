package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Faultbox/meshdepth/internal/config"
	"github.com/Faultbox/meshdepth/internal/logger"
)

// commandContext carries the flags shared by every subcommand and the
// config they resolve to.
type commandContext struct {
	overrides config.Overrides
	cfg       *config.Config
}

// ensureConfig loads the config once and initializes the global logger.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(&c.overrides)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "meshdepth",
		Short:         "Normalize mesh sequences and render consistent depth maps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.overrides.ConfigPath, "config", "c", "", "Configuration file path")
	flags.BoolVar(&ctx.overrides.Debug, "debug", false, "Enable debug logging")
	flags.StringVar(&ctx.overrides.LogFile, "log-file", "", "Also write logs to a rotating file")
	flags.StringVar(&ctx.overrides.LedgerPath, "ledger", "", "Run history database path")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
