// Package cli implements the docbridge command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/docbridge/internal/client"
	"github.com/rzpsarthak13/docbridge/internal/collection"
	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/logger"
	"github.com/rzpsarthak13/docbridge/internal/registry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	LogLevel    string
	Development bool

	open  Opener
	flush func()
}

// Client is the part of the docbridge client the commands use.
type Client interface {
	Collections() []string
	Targets(name string) (registry.Targets, error)
	SetTargets(ctx context.Context, name string, targets registry.Targets) error
	RestoreTargets(ctx context.Context) (int, error)
	CreateTables(ctx context.Context) error
	Backfill(ctx context.Context, name string, from collection.ReadTarget) (int, error)
	TargetCollection(name, target string) (core.Collection, error)
	Queue() core.BackfillQueue
	Close() error
}

// Opener connects a client for the loaded configuration.
type Opener func(ctx context.Context, configMgr *registry.ConfigManager) (Client, error)

// OpenClient opens every backend named by the configuration.
func OpenClient(ctx context.Context, configMgr *registry.ConfigManager) (Client, error) {
	c, err := client.Open(ctx, configMgr)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewRootCommand creates the root command. open connects the commands that
// need live stores.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "docbridge",
		Short: "Route document collections between MongoDB and Postgres",
		Long: `docbridge compiles document-store selectors and aggregation pipelines
into parameterized Postgres SQL, and switches collections between MongoDB
and Postgres while backfilling the documents already stored.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			flush, err := logger.Install(opts.LogLevel, opts.Development)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
			}
			opts.flush = flush
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.flush != nil {
				opts.flush()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.yaml, .yml or .json); DOCBRIDGE_* variables override it")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.Development, "dev", false, "human readable logs")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewTargetsCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewBackfillCommand(opts))

	return cmd
}

// loadConfig loads the config file, or the defaults when none is given, and
// applies the environment on top.
func (o *RootOptions) loadConfig() (*registry.ConfigManager, error) {
	configMgr := registry.NewConfigManager()
	if o.ConfigPath == "" {
		if err := configMgr.LoadFromEnv(); err != nil {
			return nil, err
		}
		return configMgr, nil
	}
	if err := configMgr.LoadFromFile(o.ConfigPath); err != nil {
		return nil, err
	}
	if err := configMgr.ApplyEnv(); err != nil {
		return nil, err
	}
	return configMgr, nil
}

// withClient runs fn with a connected client and closes it afterwards.
func (o *RootOptions) withClient(ctx context.Context, fn func(Client) error) (err error) {
	configMgr, err := o.loadConfig()
	if err != nil {
		return err
	}
	c, err := o.open(ctx, configMgr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(c)
}
