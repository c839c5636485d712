package seed

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/meeple/internal/adapters/repository"
	"github.com/okian/meeple/pkg/logger"
)

const outputFilePermission = 0o600

// Run generates the data set and writes it through w. Collections are
// written by cfg.Workers goroutines.
func Run(ctx context.Context, w repository.Writer, cfg Config) (Stats, error) {
	start := time.Now()
	log := logger.Get().Named("seed")
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	ds := Generate(cfg)
	log.Info(ctx, "generated data set",
		logger.Int("games", len(ds.Games)),
		logger.Int("users", len(ds.Users)),
		logger.Any("seed", cfg.Seed),
	)

	if err := w.UpsertGames(ctx, ds.Games); err != nil {
		return Stats{}, fmt.Errorf("write games: %w", err)
	}

	stats := Stats{Games: len(ds.Games), Users: len(ds.Users)}
	for _, entries := range ds.Collections {
		stats.Entries += len(entries)
		for _, e := range entries {
			if e.Rating != nil {
				stats.Rated++
			}
		}
	}

	users := make(chan string)
	errs := make(chan error, cfg.Workers)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range users {
				if err := w.ReplaceCollection(ctx, u, ds.Collections[u]); err != nil {
					errs <- fmt.Errorf("write collection %s: %w", u, err)
					return
				}
			}
		}()
	}

	var runErr error
feed:
	for _, u := range ds.Users {
		select {
		case users <- u:
		case err := <-errs:
			runErr = err
			break feed
		case <-ctx.Done():
			runErr = ctx.Err()
			break feed
		}
	}
	close(users)
	wg.Wait()
	close(errs)
	if runErr == nil {
		runErr = <-errs
	}
	if runErr != nil {
		return Stats{}, runErr
	}

	if cfg.OutputFile != "" {
		if err := save(cfg.OutputFile, ds); err != nil {
			log.Warn(ctx, "failed to save data set", logger.Error(err))
		}
	}

	stats.Duration = time.Since(start)
	log.Info(ctx, "seed complete",
		logger.Int("entries", stats.Entries),
		logger.Int("rated", stats.Rated),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func save(path string, ds Dataset) error {
	raw, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal data set: %w", err)
	}
	return os.WriteFile(path, raw, outputFilePermission)
}
