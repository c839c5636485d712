package main

import (
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/meeple/internal/app"
)

func newRetrainCmd(opts *rootOptions) *cobra.Command {
	var (
		maxAge time.Duration
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "retrain",
		Short: "Retrain every stale trained tier and persist the artifacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			age := cfg.RetrainMaxAge()
			if cmd.Flags().Changed("max-age") {
				age = maxAge
			}
			if force {
				age = 0
			}

			svc := service.New(service.WithConfig(cfg), service.WithLogger(log.Named("service")))
			if err := svc.Start(cmd.Context()); err != nil {
				return err
			}
			defer svc.Stop()

			results, err := svc.RetrainNow(cmd.Context(), age)
			if perr := printJSON(cmd.OutOrStdout(), results); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Retrain models older than this (default: retrain_max_age_ms)")
	cmd.Flags().BoolVar(&force, "force", false, "Retrain regardless of model age")
	return cmd
}
