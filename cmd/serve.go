package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/okian/meeple/internal/adapters/http/api"
	"github.com/okian/meeple/internal/adapters/http/swagger"
	service "github.com/okian/meeple/internal/app"
	"github.com/okian/meeple/pkg/logger"
	"github.com/okian/meeple/pkg/metrics"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the retrain scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			// Root context with cancel on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc := service.New(service.WithConfig(cfg), service.WithLogger(log.Named("service")))
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			metrics.StartSystemCollector(ctx)
			go startServiceMetricsUpdater(ctx, svc, log)

			r := chi.NewRouter()
			api.NewServer(svc,
				api.WithLogger(log.Named("http")),
				api.WithRetrainMaxAge(cfg.RetrainMaxAge()),
			).Register(ctx, r)
			swagger.Register(ctx, r)

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           r,
				ReadTimeout:       readTimeout,
				WriteTimeout:      writeTimeout,
				IdleTimeout:       idleTimeout,
				ReadHeaderTimeout: readHeaderTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}
			log.Info(ctx, "shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(ctx, "server shutdown failed", logger.Error(err))
			}
			log.Info(ctx, "server stopped")
			return nil
		},
	}
}

// startServiceMetricsUpdater refreshes catalog and queue gauges from the
// service snapshot until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service, log logger.Logger) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := svc.Stats(ctx)
			if err != nil {
				log.Debug(ctx, "stats refresh failed", logger.Error(err))
				continue
			}
			metrics.UpdateQueueSize(st.QueueLength)
		}
	}
}
