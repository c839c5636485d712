package scoring_test

import (
	"errors"
	"testing"

	"github.com/okian/meeple/internal/domain/latent"
	"github.com/okian/meeple/internal/domain/model"
	scoring "github.com/okian/meeple/internal/domain/scoring"
	"github.com/okian/meeple/internal/domain/tier"
	. "github.com/smartystreets/goconvey/convey"
)

func strategyGame(id int64) model.Game {
	return model.Game{
		ID:         id,
		Name:       "Game",
		Rating:     7,
		Rank:       int(id),
		Votes:      100,
		Categories: []string{"Economic"},
		Mechanics:  []string{"Worker Placement"},
	}
}

// request builds a scoring request for a profile owning ids [first, first+n).
func request(catalog int, candidate model.Game, known bool, first int64, n int) *scoring.Request {
	owned := make([]model.OwnedGame, 0, n)
	meta := make(map[int64]model.Game, n)
	for i := 0; i < n; i++ {
		id := first + int64(i)
		owned = append(owned, model.OwnedGame{GameID: id, Status: model.StatusOwn})
		meta[id] = strategyGame(id)
	}
	return &scoring.Request{
		Profile:        model.NewUserProfile("user-1", owned),
		Candidate:      candidate,
		CandidateKnown: known,
		CatalogCount:   catalog,
		Stats:          model.CatalogStats{Count: catalog, RatedCount: catalog, MeanQuality: 6.5},
		Owned:          meta,
		Models:         map[model.Tier]*latent.Model{},
	}
}

func identityModel(t model.Tier, corpus int, items ...int64) *latent.Model {
	rows := make([][]float64, len(items))
	for i := range items {
		rows[i] = []float64{0.6, 0.4}
	}
	m, err := latent.NewModel(latent.Meta{Tier: t, CorpusSize: corpus, SchemaVersion: latent.SchemaVersion}, latent.Params{}, items, rows)
	if err != nil {
		panic(err)
	}
	return m
}

func tags(attempts []model.Attempt) []string {
	out := make([]string, len(attempts))
	for i, a := range attempts {
		out[i] = a.Tag
	}
	return out
}

func TestChainScenarios(t *testing.T) {
	chain := scoring.NewChain(tier.NewGate())

	Convey("Given five games rated 4 through 8 and an unrated profile", t, func() {
		cand := model.Game{ID: 5, Rating: 8, Votes: 100}
		req := request(5, cand, true, 1, 2)
		req.Stats.MeanQuality = 6

		Convey("Then only the rating fallback is eligible and returns the catalog mean", func() {
			res := chain.Score(req, nil)
			So(res.Strategy(), ShouldEqual, model.TagRatingFallback)
			So(res.Score(), ShouldAlmostEqual, 0.6, 1e-9)
			So(tags(res.Attempts()), ShouldResemble, []string{
				model.TagRichModel, model.TagReducedModel, model.TagContent, model.TagRatingFallback,
			})
			So(errors.Is(res.Attempts()[0].Err, scoring.ErrBelowThreshold), ShouldBeTrue)
			So(res.Attempts()[3].Err, ShouldBeNil)
		})
	})

	Convey("Given a catalog nobody has rated or ranked", t, func() {
		req := request(5, model.Game{ID: 3}, true, 1, 2)
		req.Stats = model.CatalogStats{Count: 5}

		Convey("Then the chain ends with a neutral no-data result", func() {
			res := chain.Score(req, nil)
			So(res.Strategy(), ShouldEqual, model.TagNoData)
			So(res.Score(), ShouldEqual, 0.5)
			So(res.Explanation(), ShouldNotBeEmpty)
			last := res.Attempts()[len(res.Attempts())-1]
			So(errors.Is(last.Err, scoring.ErrNoRatedGames), ShouldBeTrue)
		})
	})

	Convey("Given 12,000 games and a rich model that knows the candidate", t, func() {
		cand := strategyGame(500)
		req := request(12000, cand, true, 100, 3)
		req.Models[model.TierRich] = identityModel(model.TierRich, 12000, 100, 101, 102, 500)

		Convey("Then the rich model scores it", func() {
			res := chain.Score(req, nil)
			So(res.Strategy(), ShouldEqual, model.TagRichModel)
			So(res.Score(), ShouldBeBetweenOrEqual, 0, 1)
			So(res.Explanation()[0].Feature, ShouldEqual, "latent_affinity")
			So(res.Attempts(), ShouldHaveLength, 1)
		})

		Convey("And the model was trained on too small a corpus", func() {
			req.Models[model.TierRich] = identityModel(model.TierRich, 9000, 100, 101, 102, 500)

			Convey("Then the artifact is not used", func() {
				res := chain.Score(req, nil)
				So(res.Strategy(), ShouldNotEqual, model.TagRichModel)
				So(errors.Is(res.Attempts()[0].Err, model.ErrModelUnavailable), ShouldBeTrue)
			})
		})

		Convey("Then a hint for a poorer tier skips the richer ones", func() {
			hint := model.TierFallback
			res := chain.Score(req, &hint)
			So(res.Strategy(), ShouldEqual, model.TagRatingFallback)
			So(res.Attempts(), ShouldHaveLength, 1)
		})
	})

	Convey("Given a reduced model that has never seen the candidate", t, func() {
		cand := strategyGame(500)

		Convey("When the profile shares fifteen games with the catalog", func() {
			req := request(200, cand, true, 100, 15)
			req.Models[model.TierReduced] = identityModel(model.TierReduced, 200, req.Profile.GameIDs()...)

			Convey("Then content similarity takes over", func() {
				res := chain.Score(req, nil)
				So(res.Strategy(), ShouldEqual, model.TagContent)
				So(tags(res.Attempts()), ShouldResemble, []string{model.TagRichModel, model.TagReducedModel, model.TagContent})
				So(errors.Is(res.Attempts()[1].Err, model.ErrModelUnavailable), ShouldBeTrue)
			})
		})

		Convey("When the profile shares only fourteen", func() {
			req := request(200, cand, true, 100, 14)
			req.Models[model.TierReduced] = identityModel(model.TierReduced, 200, req.Profile.GameIDs()...)

			Convey("Then the rating fallback answers", func() {
				res := chain.Score(req, nil)
				So(res.Strategy(), ShouldEqual, model.TagRatingFallback)
				So(errors.Is(res.Attempts()[2].Err, model.ErrInsufficientProfileOverlap), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unchanged request", t, func() {
		req := request(200, strategyGame(500), true, 100, 20)

		Convey("Then scoring it twice gives identical results", func() {
			So(chain.Score(req, nil), ShouldResemble, chain.Score(req, nil))
		})
	})
}

func TestContentSimilarity(t *testing.T) {
	Convey("Given a content strategy with a small overlap requirement", t, func() {
		s := scoring.NewContentSimilarity(tier.NewGate(), scoring.WithMinOverlap(2), scoring.WithQualityBlend(0.3))

		Convey("When the candidate matches every profile game exactly", func() {
			cand := strategyGame(500)
			req := request(20, cand, true, 100, 3)
			So(s.CanHandle(req), ShouldBeNil)
			out, err := s.Execute(req)
			So(err, ShouldBeNil)

			Convey("Then the score blends full similarity with quality", func() {
				// similarity differs only in rank closeness
				So(out.Score, ShouldBeBetweenOrEqual, 0.7*0.9+0.3*0.7, 0.7+0.3*0.7)
				parts := s.Explain(req, out)
				So(parts[0].Feature, ShouldEqual, "profile_similarity")
				So(parts[1].Feature, ShouldEqual, "game_quality")
				So(parts[1].Value, ShouldAlmostEqual, 0.21, 1e-9)
				So(parts, ShouldHaveLength, 5)
			})
		})

		Convey("When the candidate is not in the catalog", func() {
			req := request(20, model.Game{ID: 999}, false, 100, 3)
			So(errors.Is(s.CanHandle(req), scoring.ErrUnknownCandidate), ShouldBeTrue)
		})

		Convey("When the candidate is the only shared game", func() {
			req := request(20, strategyGame(100), true, 100, 2)
			So(errors.Is(s.CanHandle(req), model.ErrInsufficientProfileOverlap), ShouldBeTrue)
		})
	})
}

func TestRatingFallback(t *testing.T) {
	Convey("Given the default rating fallback", t, func() {
		s := scoring.NewRatingFallback()
		req := request(10, model.Game{ID: 1, Rating: 8, Votes: 50}, true, 2, 1)
		req.Stats.MeanQuality = 6

		Convey("Then a voted game scores the catalog mean, not its own rating", func() {
			out, err := s.Execute(req)
			So(err, ShouldBeNil)
			So(out.Score, ShouldAlmostEqual, 0.6, 1e-9)
			parts := s.Explain(req, out)
			So(parts, ShouldHaveLength, 1)
			So(parts[0].Feature, ShouldEqual, "catalog_mean")
			So(parts[0].Value, ShouldAlmostEqual, out.Score, 1e-9)
		})

		Convey("Then games of every rating score the same", func() {
			for _, rating := range []float64{4, 5, 6, 7, 8} {
				req.Candidate = model.Game{ID: 1, Rating: rating, Votes: 100}
				out, err := s.Execute(req)
				So(err, ShouldBeNil)
				So(out.Score, ShouldAlmostEqual, 0.6, 1e-9)
			}
		})

		Convey("Then an unknown game scores the catalog mean", func() {
			req.CandidateKnown = false
			out, err := s.Execute(req)
			So(err, ShouldBeNil)
			So(out.Score, ShouldEqual, 0.6)
		})

		Convey("Then a catalog without ratings is refused", func() {
			req.Stats = model.CatalogStats{Count: 10}
			_, err := s.Execute(req)
			So(errors.Is(err, scoring.ErrNoRatedGames), ShouldBeTrue)
		})
	})

	Convey("Given a rating fallback with Bayesian shrink", t, func() {
		s := scoring.NewRatingFallback(scoring.WithBayesianShrink(50))
		req := request(10, model.Game{ID: 1, Rating: 8, Votes: 50}, true, 2, 1)
		req.Stats.MeanQuality = 6

		Convey("Then a voted game is shrunk toward the catalog mean", func() {
			out, err := s.Execute(req)
			So(err, ShouldBeNil)
			So(out.Score, ShouldAlmostEqual, 0.7, 1e-9)
			parts := s.Explain(req, out)
			So(parts, ShouldHaveLength, 2)
			So(parts[0].Value+parts[1].Value, ShouldAlmostEqual, out.Score, 1e-9)
		})

		Convey("Then a game without votes scores the catalog mean", func() {
			req.Candidate.Votes = 0
			out, err := s.Execute(req)
			So(err, ShouldBeNil)
			So(out.Score, ShouldAlmostEqual, 0.6, 1e-9)
		})
	})
}

func TestChainMonotonicInCorpusSize(t *testing.T) {
	chain := scoring.NewChain(tier.NewGate())

	Convey("Given published rich and reduced models and a profile of fifteen games", t, func() {
		cand := strategyGame(500)
		vocab := []int64{500}
		for id := int64(100); id < 115; id++ {
			vocab = append(vocab, id)
		}
		rich := identityModel(model.TierRich, 12000, vocab...)
		reduced := identityModel(model.TierReduced, 150, vocab...)

		cases := []struct {
			count int
			want  string
		}{
			{12000, model.TagRichModel},
			{150, model.TagReducedModel},
			{20, model.TagContent},
			{5, model.TagRatingFallback},
		}

		Convey("Then shrinking the catalog never selects a richer tier", func() {
			prev := model.TierRich
			for _, c := range cases {
				req := request(c.count, cand, true, 100, 15)
				req.Models[model.TierRich] = rich
				req.Models[model.TierReduced] = reduced

				res := chain.Score(req, nil)
				So(res.Strategy(), ShouldEqual, c.want)

				got, err := model.ParseTier(res.Strategy())
				So(err, ShouldBeNil)
				So(int(got), ShouldBeGreaterThanOrEqualTo, int(prev))
				prev = got
			}
		})
	})
}

func TestRank(t *testing.T) {
	Convey("Given results with tied scores", t, func() {
		results := []model.ScoreResult{
			model.NewScoreResult(9, 0.5, model.TagContent, nil, nil),
			model.NewScoreResult(3, 0.8, model.TagContent, nil, nil),
			model.NewScoreResult(4, 0.5, model.TagContent, nil, nil),
			model.NewScoreResult(1, 0.5, model.TagContent, nil, nil),
		}

		Convey("Then ties are broken by ascending id", func() {
			for i := 0; i < 3; i++ {
				scoring.Rank(results)
				ids := []int64{results[0].GameID(), results[1].GameID(), results[2].GameID(), results[3].GameID()}
				So(ids, ShouldResemble, []int64{3, 1, 4, 9})
			}
		})
	})
}
