package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogix/internal/config"
	logpkg "github.com/kailas-cloud/catalogix/internal/logger"
	"github.com/kailas-cloud/catalogix/internal/version"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	env      string
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "catalogix",
		Short:         "Catalog intelligence pipeline: document extraction, embeddings and semantic product search",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.env, "env", config.GetEnv(), "configuration environment (config/<env>.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newServeCmd(g),
		newEnsureCollectionCmd(g),
		newReindexCmd(g),
		newSearchCmd(g),
		newExtractCmd(),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and builds the logger.
func (g *globals) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.env)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	logger, err := logpkg.NewLogger(g.env, level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
