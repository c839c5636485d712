package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/meeple/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func ptr(f float64) *float64 { return &f }

func TestUserProfile(t *testing.T) {
	Convey("Given an unsorted collection with a duplicate", t, func() {
		p := model.NewUserProfile("alice", []model.OwnedGame{
			{GameID: 30, Status: model.StatusOwn},
			{GameID: 10, Rating: ptr(9), Status: model.StatusOwn},
			{GameID: 30, Rating: ptr(2), Status: model.StatusWant},
			{GameID: 20, Status: model.StatusWant},
		})

		Convey("Then entries are ordered by id and deduplicated", func() {
			So(p.GameIDs(), ShouldResemble, []int64{10, 20, 30})
			So(p.Games[2].Rating, ShouldBeNil)
		})

		Convey("And Owns uses the ordered set", func() {
			So(p.Owns(20), ShouldBeTrue)
			So(p.Owns(25), ShouldBeFalse)
		})

		Convey("And unrated entries fall back to status ratings", func() {
			So(p.Games[0].EffectiveRating(), ShouldEqual, 9)
			So(p.Games[1].EffectiveRating(), ShouldEqual, 6)
			So(p.Games[2].EffectiveRating(), ShouldEqual, 7)
		})
	})
}

func TestQuality(t *testing.T) {
	Convey("Given games with and without ratings", t, func() {
		Convey("Then rated games use their rating", func() {
			q, ok := model.Quality(model.Game{Rating: 7.5, Rank: 3})
			So(ok, ShouldBeTrue)
			So(q, ShouldEqual, 7.5)
		})

		Convey("Then ranked-only games use the rank score", func() {
			q, ok := model.Quality(model.Game{Rank: 100})
			So(ok, ShouldBeTrue)
			So(q, ShouldEqual, 5)
			So(model.RankScore(1000), ShouldAlmostEqual, 2, 1e-9)
			So(model.RankScore(5000), ShouldEqual, 2)
		})

		Convey("Then games with neither report not ok", func() {
			_, ok := model.Quality(model.Game{})
			So(ok, ShouldBeFalse)
		})
	})
}

func TestTier(t *testing.T) {
	Convey("Given the tier enumeration", t, func() {
		Convey("Then tags and letters are stable", func() {
			So(model.TierRich.Tag(), ShouldEqual, "rich-model")
			So(model.TierFallback.Tag(), ShouldEqual, "rating-fallback")
			So(model.TierContent.Letter(), ShouldEqual, "C")
			So(model.TierReduced.Trained(), ShouldBeTrue)
			So(model.TierContent.Trained(), ShouldBeFalse)
		})

		Convey("Then ParseTier accepts tags, letters and short names", func() {
			for in, want := range map[string]model.Tier{
				"A": model.TierRich, "reduced": model.TierReduced,
				"content-similarity": model.TierContent, " d ": model.TierFallback,
			} {
				got, err := model.ParseTier(in)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, want)
			}
			_, err := model.ParseTier("neural")
			So(errors.Is(err, model.ErrUnknownTier), ShouldBeTrue)
		})
	})
}

func TestScoreResult(t *testing.T) {
	Convey("Given a score result built from mutable inputs", t, func() {
		expl := []model.Contribution{{Feature: "x", Value: 0.3}}
		r := model.NewScoreResult(7, 1.4, model.TagContent, expl, nil)
		expl[0].Value = 99

		Convey("Then the score is clamped and the level derived", func() {
			So(r.Score(), ShouldEqual, 1)
			So(r.Level(), ShouldEqual, model.LevelExcellent)
		})

		Convey("Then the explanation is not aliased", func() {
			So(r.Explanation()[0].Value, ShouldEqual, 0.3)
			out := r.Explanation()
			out[0].Value = 5
			So(r.Explanation()[0].Value, ShouldEqual, 0.3)
		})
	})

	Convey("Given scores across the level boundaries", t, func() {
		So(model.LevelFor(0.9), ShouldEqual, model.LevelExcellent)
		So(model.LevelFor(0.7), ShouldEqual, model.LevelVeryGood)
		So(model.LevelFor(0.6), ShouldEqual, model.LevelGood)
		So(model.LevelFor(0.4), ShouldEqual, model.LevelFair)
		So(model.LevelFor(0.1), ShouldEqual, model.LevelPoor)
		So(model.Clamp01(-3), ShouldEqual, 0)
	})
}
