package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/okian/meeple/internal/config"
	"github.com/okian/meeple/pkg/logger"
)

// configEnv names the YAML file read by config.Load.
const configEnv = "MEEPLE_CONFIG"

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "meeple",
		Short:        "Tiered board game recommendation engine",
		Long:         "Scores board games for users with the richest strategy the catalog supports, falling back tier by tier.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "YAML config file (default: $"+configEnv+")")

	root.AddCommand(
		newServeCmd(opts),
		newScoreCmd(opts),
		newRecommendCmd(opts),
		newRetrainCmd(opts),
		newSeedCmd(opts),
	)
	return root
}

// setup loads configuration and initializes the global logger.
func setup(cmd *cobra.Command, opts *rootOptions) (*config.Config, logger.Logger, error) {
	if opts.configFile != "" {
		if err := os.Setenv(configEnv, opts.configFile); err != nil {
			return nil, nil, fmt.Errorf("set %s: %w", configEnv, err)
		}
	}
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.InitWithFormat(cfg.LogFormat, cmd.ErrOrStderr()); err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(cmd.Context(), "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, log, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
