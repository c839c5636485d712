package latent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/meeple/internal/domain/model"
)

// Params controls training and fold-in.
type Params struct {
	Factors        int     `json:"factors"`
	Iterations     int     `json:"iterations"`
	Regularization float64 `json:"regularization"`
	Alpha          float64 `json:"alpha"`
	Workers        int     `json:"-"`
}

// DefaultParams returns the rich-tier defaults.
func DefaultParams() Params {
	return Params{
		Factors:        32,
		Iterations:     10,
		Regularization: 0.05,
		Alpha:          40,
		Workers:        4,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Factors <= 0 {
		p.Factors = d.Factors
	}
	if p.Iterations <= 0 {
		p.Iterations = d.Iterations
	}
	if p.Regularization <= 0 {
		p.Regularization = d.Regularization
	}
	if p.Alpha <= 0 {
		p.Alpha = d.Alpha
	}
	if p.Workers <= 0 {
		p.Workers = d.Workers
	}
	return p
}

// confidence maps a 0-10 rating to 1 + alpha·r/10.
func (p Params) confidence(rating float64) float64 {
	switch {
	case rating < 0:
		rating = 0
	case rating > 10:
		rating = 10
	}
	return 1 + p.Alpha*rating/10
}

type entry struct {
	idx  int
	conf float64
}

// Train fits item factors on snapshot. The vocabulary is every snapshot game
// with at least one rating; games nobody rated stay out of it and are treated
// as cold starts at prediction time. Training is deterministic for a given
// snapshot and parameters.
func Train(ctx context.Context, snapshot model.Snapshot, params Params, now time.Time) (*Model, error) {
	params = params.withDefaults()

	known := make(map[int64]struct{}, len(snapshot.Games))
	for _, g := range snapshot.Games {
		known[g.ID] = struct{}{}
	}

	// last rating per (user, game) wins
	type pair struct {
		user string
		game int64
	}
	values := make(map[pair]float64, len(snapshot.Ratings))
	for _, r := range snapshot.Ratings {
		if _, ok := known[r.GameID]; !ok || r.UserID == "" {
			continue
		}
		values[pair{r.UserID, r.GameID}] = r.Value
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrTrainingFailed, snapshot.Scope, ErrNoInteractions)
	}

	userSet := make(map[string]struct{})
	itemSet := make(map[int64]struct{})
	for p := range values {
		userSet[p.user] = struct{}{}
		itemSet[p.game] = struct{}{}
	}
	users := make([]string, 0, len(userSet))
	for u := range userSet {
		users = append(users, u)
	}
	sort.Strings(users)
	items := make([]int64, 0, len(itemSet))
	for id := range itemSet {
		items = append(items, id)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })

	userIdx := make(map[string]int, len(users))
	for i, u := range users {
		userIdx[u] = i
	}
	itemIdx := make(map[int64]int, len(items))
	for i, id := range items {
		itemIdx[id] = i
	}

	userItems := make([][]entry, len(users))
	itemUsers := make([][]entry, len(items))
	for p, v := range values {
		u, i := userIdx[p.user], itemIdx[p.game]
		c := params.confidence(v)
		userItems[u] = append(userItems[u], entry{idx: i, conf: c})
		itemUsers[i] = append(itemUsers[i], entry{idx: u, conf: c})
	}
	// map iteration order must not leak into floating point sums
	for _, es := range userItems {
		sort.Slice(es, func(a, b int) bool { return es[a].idx < es[b].idx })
	}
	for _, es := range itemUsers {
		sort.Slice(es, func(a, b int) bool { return es[a].idx < es[b].idx })
	}

	k := params.Factors
	x := initFactors(len(users), k)
	y := initFactors(len(items), k)

	for iter := 0; iter < params.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", model.ErrTrainingFailed, snapshot.Scope, err)
		}
		update(x, y, userItems, params)
		update(y, x, itemUsers, params)
	}

	meta := Meta{
		Tier:          snapshot.Scope,
		TrainedAt:     now.UTC(),
		CorpusSize:    len(snapshot.Games),
		SchemaVersion: SchemaVersion,
	}
	m, err := NewModel(meta, params, items, y)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrTrainingFailed, snapshot.Scope, err)
	}
	return m, nil
}

func initFactors(n, k int) [][]float64 {
	out := make([][]float64, n)
	for r := range out {
		out[r] = make([]float64, k)
		for f := 0; f < k; f++ {
			out[r][f] = 0.1 * (float64((r*k+f)%1000)/1000.0 - 0.5)
		}
	}
	return out
}

// update solves every row of target with the other side held fixed. Rows are
// split into contiguous chunks across params.Workers goroutines.
func update(target, fixed [][]float64, links [][]entry, params Params) {
	k := params.Factors
	base := gram(fixed, k)

	n := len(target)
	chunk := (n + params.Workers - 1) / params.Workers
	var wg sync.WaitGroup
	for w := 0; w < params.Workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for r := start; r < end; r++ {
				rows := make([][]float64, len(links[r]))
				conf := make([]float64, len(links[r]))
				for j, e := range links[r] {
					rows[j] = fixed[e.idx]
					conf[j] = e.conf
				}
				a, b := normalMatrix(base, params.Regularization, rows, conf)
				target[r] = solve(a, b)
			}
		}(start, end)
	}
	wg.Wait()
}
