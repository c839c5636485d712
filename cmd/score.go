package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	service "github.com/okian/meeple/internal/app"
	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/internal/domain/types"
)

func parseHint(raw string) (*model.Tier, error) {
	if raw == "" {
		return nil, nil //nolint:nilnil // absent hint
	}
	t, err := model.ParseTier(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func newScoreCmd(opts *rootOptions) *cobra.Command {
	var tierHint string
	cmd := &cobra.Command{
		Use:   "score <userID> <gameID>",
		Short: "Score one game for one user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("gameID must be an integer: %w", err)
			}
			hint, err := parseHint(tierHint)
			if err != nil {
				return err
			}
			cfg, log, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			svc := service.New(service.WithConfig(cfg), service.WithLogger(log.Named("service")))
			if err := svc.Start(cmd.Context()); err != nil {
				return err
			}
			defer svc.Stop()

			res, err := svc.ScoreForUser(cmd.Context(), args[0], gameID, hint)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), types.NewScore(res))
		},
	}
	cmd.Flags().StringVar(&tierHint, "tier", "", "Start the chain at this tier (rich, reduced, content, fallback)")
	return cmd
}

func newRecommendCmd(opts *rootOptions) *cobra.Command {
	var (
		tierHint string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "recommend <userID>",
		Short: "Rank unowned games for one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hint, err := parseHint(tierHint)
			if err != nil {
				return err
			}
			cfg, log, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			svc := service.New(service.WithConfig(cfg), service.WithLogger(log.Named("service")))
			if err := svc.Start(cmd.Context()); err != nil {
				return err
			}
			defer svc.Stop()

			results, err := svc.Recommend(cmd.Context(), args[0], limit, hint)
			if err != nil {
				return err
			}
			out := types.Recommendations{UserID: args[0], Items: make([]types.Score, 0, len(results))}
			for _, r := range results {
				out.Items = append(out.Items, types.NewScore(r))
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&tierHint, "tier", "", "Start the chain at this tier")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of games to return (max 100)")
	return cmd
}
