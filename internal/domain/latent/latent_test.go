package latent_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/okian/meeple/internal/domain/latent"
	"github.com/okian/meeple/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var trainedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// clusteredSnapshot builds two disjoint taste groups: games 1-10 and 11-20.
// Game 21 exists in the catalog but nobody rated it.
func clusteredSnapshot() model.Snapshot {
	s := model.Snapshot{Scope: model.TierReduced}
	for id := int64(1); id <= 21; id++ {
		s.Games = append(s.Games, model.Game{ID: id, Rating: 7})
	}
	for u := 0; u < 30; u++ {
		for j := 0; j < 6; j++ {
			game := int64((u+j)%10 + 1)
			s.Ratings = append(s.Ratings,
				model.Rating{UserID: fmt.Sprintf("a%02d", u), GameID: game, Value: 8},
				model.Rating{UserID: fmt.Sprintf("b%02d", u), GameID: game + 10, Value: 8},
			)
		}
	}
	return s
}

func ratingPtr(v float64) *float64 { return &v }

func TestTrainAndPredict(t *testing.T) {
	Convey("Given a model trained on two taste clusters", t, func() {
		params := latent.Params{Factors: 4, Iterations: 10, Regularization: 0.05, Alpha: 40, Workers: 3}
		m, err := latent.Train(context.Background(), clusteredSnapshot(), params, trainedAt)
		So(err, ShouldBeNil)

		profile := model.NewUserProfile("u", []model.OwnedGame{
			{GameID: 1, Rating: ratingPtr(9)},
			{GameID: 2, Rating: ratingPtr(9)},
			{GameID: 3, Status: model.StatusOwn},
		})

		Convey("Then metadata describes the snapshot", func() {
			So(m.Tier(), ShouldEqual, model.TierReduced)
			So(m.CorpusSize(), ShouldEqual, 21)
			So(m.TrainedAt(), ShouldEqual, trainedAt)
			So(m.Meta().SchemaVersion, ShouldEqual, latent.SchemaVersion)
			So(m.VocabularySize(), ShouldEqual, 20)
			So(m.Params().Factors, ShouldEqual, 4)
		})

		Convey("Then games from the user's cluster score higher", func() {
			same, err := m.Predict(profile, 4)
			So(err, ShouldBeNil)
			other, err := m.Predict(profile, 15)
			So(err, ShouldBeNil)
			So(same.Raw, ShouldBeGreaterThan, other.Raw)
			So(latent.Normalize(same.Raw), ShouldBeGreaterThan, latent.Normalize(other.Raw))
		})

		Convey("Then contributions decompose the raw score", func() {
			p, err := m.Predict(profile, 5)
			So(err, ShouldBeNil)
			So(p.Contributions, ShouldHaveLength, 3)
			var sum float64
			for _, c := range p.Contributions {
				sum += c.Value
			}
			So(sum, ShouldAlmostEqual, p.Raw, 1e-9)
		})

		Convey("Then an unrated catalog game is a cold start", func() {
			_, err := m.Predict(profile, 21)
			So(errors.Is(err, model.ErrModelUnavailable), ShouldBeTrue)
			So(m.Knows(21), ShouldBeFalse)
		})

		Convey("Then a profile outside the vocabulary cannot be folded in", func() {
			stranger := model.NewUserProfile("s", []model.OwnedGame{{GameID: 500}, {GameID: 4}})
			_, err := m.Predict(stranger, 4)
			So(errors.Is(err, model.ErrModelUnavailable), ShouldBeTrue)
		})

		Convey("Then retraining the same snapshot gives the same factors", func() {
			again, err := latent.Train(context.Background(), clusteredSnapshot(), params, trainedAt)
			So(err, ShouldBeNil)
			So(again.Factors(), ShouldResemble, m.Factors())
			So(again.Items(), ShouldResemble, m.Items())
		})
	})

	Convey("Given a snapshot without usable ratings", t, func() {
		s := model.Snapshot{Scope: model.TierRich, Games: []model.Game{{ID: 1}}, Ratings: []model.Rating{{UserID: "x", GameID: 99, Value: 8}}}

		Convey("Then training fails", func() {
			_, err := latent.Train(context.Background(), s, latent.DefaultParams(), trainedAt)
			So(errors.Is(err, model.ErrTrainingFailed), ShouldBeTrue)
			So(errors.Is(err, latent.ErrNoInteractions), ShouldBeTrue)
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("Then training stops with a training failure", func() {
			_, err := latent.Train(ctx, clusteredSnapshot(), latent.DefaultParams(), trainedAt)
			So(errors.Is(err, model.ErrTrainingFailed), ShouldBeTrue)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestNewModel(t *testing.T) {
	Convey("Given mismatched vocabulary and factors", t, func() {
		_, err := latent.NewModel(latent.Meta{}, latent.Params{}, []int64{1, 2}, [][]float64{{1, 2}})
		So(errors.Is(err, latent.ErrDimensionMismatch), ShouldBeTrue)

		_, err = latent.NewModel(latent.Meta{}, latent.Params{}, []int64{1, 2}, [][]float64{{1, 2}, {1}})
		So(errors.Is(err, latent.ErrDimensionMismatch), ShouldBeTrue)
	})

	Convey("Given a well formed model", t, func() {
		m, err := latent.NewModel(latent.Meta{Tier: model.TierRich}, latent.Params{}, []int64{1, 2}, [][]float64{{1, 0}, {0, 1}})
		So(err, ShouldBeNil)

		Convey("Then accessors return copies", func() {
			f := m.Factors()
			f[0][0] = 42
			So(m.Factors()[0][0], ShouldEqual, 1)
			So(m.Params().Factors, ShouldEqual, 2)
		})
	})
}

func TestNormalize(t *testing.T) {
	Convey("Normalize is bounded and monotonic", t, func() {
		So(latent.Normalize(0.5), ShouldAlmostEqual, 0.5, 1e-12)
		So(latent.Normalize(math.NaN()), ShouldEqual, 0.5)
		prev := -1.0
		for raw := -3.0; raw <= 3.0; raw += 0.25 {
			v := latent.Normalize(raw)
			So(v, ShouldBeBetweenOrEqual, 0, 1)
			So(v, ShouldBeGreaterThanOrEqualTo, prev)
			prev = v
		}
	})
}
