package main

import (
	"context"
	"fmt"
	"os"

	"olympspa/internal/config"
	"olympspa/internal/storage"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "ledger",
		Short:         "Operator tools for the spa reservation ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to config.yaml")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log store activity to stderr")

	root.AddCommand(newListCmd(opts))
	root.AddCommand(newConflictsCmd(opts))
	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newBackupCmd(opts))
	root.AddCommand(newSyncFailuresCmd(opts))
	root.AddCommand(newProbeCmd(opts))

	return root
}

func (o *rootOptions) load() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := zerolog.Nop()
	if o.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("component", "ledger-cli").Logger()
	}
	return cfg, &logger, nil
}

func (o *rootOptions) openStore(ctx context.Context) (*config.Config, storage.Store, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}
