package seed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/meeple/internal/domain/types"
	"github.com/okian/meeple/pkg/logger"
)

// ProbeReport summarizes a probe run against a live server.
type ProbeReport struct {
	Requests   int            `json:"requests"`
	Failures   int            `json:"failures"`
	Strategies map[string]int `json:"strategies"`
	Problems   []string       `json:"problems,omitempty"`
}

// Probe asks a running server for recommendations for each user and checks
// every answer: scores in [0,1], a strategy tag, and ordering by score
// descending then id ascending.
func Probe(ctx context.Context, baseURL string, users []string, limit, workers int, timeout time.Duration) (ProbeReport, error) {
	if workers < 1 {
		workers = 1
	}
	client := &http.Client{Timeout: timeout}
	report := ProbeReport{Strategies: map[string]int{}}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan string)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				recs, err := fetchRecommendations(ctx, client, baseURL, u, limit)
				mu.Lock()
				report.Requests++
				if err != nil {
					report.Failures++
					report.Problems = append(report.Problems, err.Error())
				} else {
					for _, s := range recs.Items {
						report.Strategies[s.Strategy]++
					}
					report.Problems = append(report.Problems, verify(u, recs.Items)...)
				}
				mu.Unlock()
			}
		}()
	}

	for _, u := range users {
		select {
		case jobs <- u:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	logger.Get().Named("probe").Info(ctx, "probe complete",
		logger.Int("requests", report.Requests),
		logger.Int("failures", report.Failures),
		logger.Int("problems", len(report.Problems)),
	)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if len(report.Problems) > 0 {
		return report, fmt.Errorf("probe found %d problems, first: %s", len(report.Problems), report.Problems[0])
	}
	return report, nil
}

func fetchRecommendations(ctx context.Context, client *http.Client, baseURL, userID string, limit int) (types.Recommendations, error) {
	var recs types.Recommendations
	u := fmt.Sprintf("%s/users/%s/recommendations?limit=%d", baseURL, url.PathEscape(userID), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return recs, fmt.Errorf("build request for %s: %w", userID, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return recs, fmt.Errorf("recommendations for %s: %w", userID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return recs, fmt.Errorf("read response for %s: %w", userID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return recs, fmt.Errorf("recommendations for %s: status %d", userID, resp.StatusCode)
	}
	if err := json.Unmarshal(body, &recs); err != nil {
		return recs, fmt.Errorf("decode response for %s: %w", userID, err)
	}
	return recs, nil
}

// verify returns one message per broken rule.
func verify(userID string, items []types.Score) []string {
	var problems []string
	for i, s := range items {
		if s.Score < 0 || s.Score > 1 {
			problems = append(problems, fmt.Sprintf("%s: game %d score %.3f outside [0,1]", userID, s.GameID, s.Score))
		}
		if s.Strategy == "" {
			problems = append(problems, fmt.Sprintf("%s: game %d has no strategy", userID, s.GameID))
		}
		if i == 0 {
			continue
		}
		prev := items[i-1]
		if prev.Score < s.Score || (prev.Score == s.Score && prev.GameID > s.GameID) {
			problems = append(problems, fmt.Sprintf("%s: games %d and %d out of order", userID, prev.GameID, s.GameID))
		}
	}
	return problems
}
