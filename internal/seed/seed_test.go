package seed_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/okian/meeple/internal/adapters/repository"
	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/internal/domain/types"
	"github.com/okian/meeple/internal/seed"
	. "github.com/smartystreets/goconvey/convey"
)

func smallConfig() seed.Config {
	cfg := seed.DefaultConfig()
	cfg.Games = 60
	cfg.Users = 12
	cfg.GamesPerUser = 8
	return cfg
}

func TestGenerate(t *testing.T) {
	Convey("Given a seed configuration", t, func() {
		cfg := smallConfig()

		Convey("When generating twice with the same seed", func() {
			a := seed.Generate(cfg)
			b := seed.Generate(cfg)

			Convey("Then the data sets are identical", func() {
				So(a.Games, ShouldResemble, b.Games)
				So(a.Collections, ShouldResemble, b.Collections)
			})
		})

		Convey("When generating with another seed", func() {
			a := seed.Generate(cfg)
			cfg.Seed = 99
			b := seed.Generate(cfg)

			Convey("Then the data differs", func() {
				So(a.Games, ShouldNotResemble, b.Games)
			})
		})

		Convey("Then the catalog is well formed", func() {
			ds := seed.Generate(cfg)
			So(ds.Games, ShouldHaveLength, 60)
			So(ds.Users, ShouldHaveLength, 12)

			ranks := map[int]bool{}
			rated := 0
			for _, g := range ds.Games {
				So(g.Mechanics, ShouldNotBeEmpty)
				So(g.MaxPlayers, ShouldBeGreaterThan, g.MinPlayers)
				if g.Rated() {
					rated++
					So(g.Ranked(), ShouldBeTrue)
					ranks[g.Rank] = true
				} else {
					So(g.Ranked(), ShouldBeFalse)
				}
			}
			for r := 1; r <= rated; r++ {
				So(ranks[r], ShouldBeTrue)
			}
		})

		Convey("Then collections are sorted, unique and rated within range", func() {
			ds := seed.Generate(cfg)
			for _, u := range ds.Users {
				entries := ds.Collections[u]
				So(entries, ShouldHaveLength, cfg.GamesPerUser)
				for i, e := range entries {
					if i > 0 {
						So(e.GameID, ShouldBeGreaterThan, entries[i-1].GameID)
					}
					if e.Rating != nil {
						So(*e.Rating, ShouldBeBetweenOrEqual, 1, 10)
					}
				}
			}
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given an empty feature store", t, func() {
		db, err := repository.Open(repository.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
		So(err, ShouldBeNil)
		store := repository.NewGormStore(db)
		ctx := context.Background()

		Convey("When seeding it", func() {
			cfg := smallConfig()
			stats, err := seed.Run(ctx, store, cfg)

			Convey("Then every game and collection is stored", func() {
				So(err, ShouldBeNil)
				So(stats.Games, ShouldEqual, 60)
				So(stats.Users, ShouldEqual, 12)
				So(stats.Entries, ShouldEqual, 12*8)

				count, err := store.CountGames(ctx)
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 60)

				p, err := store.GetUserProfile(ctx, "user-0001")
				So(err, ShouldBeNil)
				So(p.Games, ShouldHaveLength, 8)
			})
		})
	})

	Convey("Given a writer that fails", t, func() {
		_, err := seed.Run(context.Background(), failingWriter{}, smallConfig())

		Convey("Then Run reports the failure", func() {
			So(errors.Is(err, errWrite), ShouldBeTrue)
		})
	})
}

var errWrite = errors.New("disk full")

type failingWriter struct{}

func (failingWriter) UpsertGames(context.Context, []model.Game) error { return nil }
func (failingWriter) ReplaceCollection(context.Context, string, []model.OwnedGame) error {
	return errWrite
}

func TestProbe(t *testing.T) {
	ctx := context.Background()

	serve := func(items []types.Score) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/recommendations") {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(types.Recommendations{UserID: "u", Items: items})
		}))
	}

	Convey("Given a server returning well ordered recommendations", t, func() {
		srv := serve([]types.Score{
			{GameID: 9, Score: 0.8, Strategy: model.TagContent},
			{GameID: 2, Score: 0.6, Strategy: model.TagContent},
			{GameID: 3, Score: 0.6, Strategy: model.TagRatingFallback},
		})
		defer srv.Close()

		Convey("Then the probe passes and counts strategies", func() {
			report, err := seed.Probe(ctx, srv.URL, []string{"a", "b"}, 3, 2, time.Second)
			So(err, ShouldBeNil)
			So(report.Requests, ShouldEqual, 2)
			So(report.Strategies[model.TagContent], ShouldEqual, 4)
		})
	})

	Convey("Given a server breaking the tie order", t, func() {
		srv := serve([]types.Score{
			{GameID: 3, Score: 0.6, Strategy: model.TagContent},
			{GameID: 2, Score: 0.6, Strategy: model.TagContent},
		})
		defer srv.Close()

		Convey("Then the probe reports it", func() {
			report, err := seed.Probe(ctx, srv.URL, []string{"a"}, 2, 1, time.Second)
			So(err, ShouldNotBeNil)
			So(report.Problems, ShouldHaveLength, 1)
		})
	})

	Convey("Given a server that errors", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		Convey("Then failures are counted", func() {
			report, err := seed.Probe(ctx, srv.URL, []string{"a"}, 2, 1, time.Second)
			So(err, ShouldNotBeNil)
			So(report.Failures, ShouldEqual, 1)
		})
	})
}
