package main

import (
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/meeple/internal/app"
	"github.com/okian/meeple/internal/seed"
	"github.com/okian/meeple/pkg/logger"
)

const defaultProbeTimeout = 10 * time.Second

type seedOptions struct {
	seed.Config
	probeURL     string
	probeUsers   int
	probeLimit   int
	probeTimeout time.Duration
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	so := &seedOptions{Config: seed.DefaultConfig()}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a deterministic synthetic catalog and collections",
		Long: "Generates games and user collections from a seed and writes them to the configured feature store. " +
			"With --probe, asks a running server for recommendations for the generated users and checks the answers.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			svc := service.New(service.WithConfig(cfg), service.WithLogger(log.Named("service")))
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			catalog, err := svc.Catalog()
			if err != nil {
				return err
			}
			stats, err := seed.Run(ctx, catalog, so.Config)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), stats); err != nil {
				return err
			}
			if so.probeURL == "" {
				return nil
			}

			users := seed.Generate(so.Config).Users
			if so.probeUsers > 0 && so.probeUsers < len(users) {
				users = users[:so.probeUsers]
			}
			report, err := seed.Probe(ctx, so.probeURL, users, so.probeLimit, so.Workers, so.probeTimeout)
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
			if err != nil {
				log.Error(ctx, "probe failed", logger.Error(err))
			}
			return err
		},
	}

	f := cmd.Flags()
	f.IntVar(&so.Games, "games", so.Games, "Catalog size")
	f.IntVar(&so.Users, "users", so.Users, "Number of users with a collection")
	f.IntVar(&so.GamesPerUser, "games-per-user", so.GamesPerUser, "Collection size per user")
	f.Float64Var(&so.RatedShare, "rated-share", so.RatedShare, "Share of owned games with a personal rating")
	f.Float64Var(&so.RankedShare, "ranked-share", so.RankedShare, "Share of catalog games with a rating and rank")
	f.Uint64Var(&so.Seed, "seed", so.Seed, "Generator seed")
	f.IntVar(&so.Workers, "workers", so.Workers, "Concurrent writers and probe workers")
	f.StringVar(&so.OutputFile, "output", "", "Also write the generated data set to this JSON file")
	f.StringVar(&so.probeURL, "probe", "", "Base URL of a running server to probe after seeding")
	f.IntVar(&so.probeUsers, "probe-users", 50, "Number of generated users to probe (0 = all)")
	f.IntVar(&so.probeLimit, "probe-limit", 10, "Recommendations requested per probed user")
	f.DurationVar(&so.probeTimeout, "probe-timeout", defaultProbeTimeout, "HTTP timeout per probe request")
	return cmd
}
