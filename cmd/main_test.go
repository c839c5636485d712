package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/internal/domain/types"
	"github.com/okian/meeple/internal/seed"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := strings.Join([]string{
		"log_level: error",
		"db_driver: sqlite",
		"db_dsn: " + filepath.Join(dir, "meeple.db"),
		"artifact_dir: " + filepath.Join(dir, "artifacts"),
		"retrain_interval_ms: 0",
		"",
	}, "\n")
	path := filepath.Join(dir, "meeple.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCmd()

		convey.Convey("Then every subcommand is registered", func() {
			names := make([]string, 0)
			for _, c := range root.Commands() {
				names = append(names, c.Name())
			}
			for _, want := range []string{"serve", "score", "recommend", "retrain", "seed"} {
				convey.So(names, convey.ShouldContain, want)
			}
		})

		convey.Convey("Then score validates its arguments before opening anything", func() {
			_, err := execute("score", "alice")
			convey.So(err, convey.ShouldNotBeNil)

			_, err = execute("score", "alice", "catan")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "gameID")

			_, err = execute("score", "alice", "1", "--tier", "platinum")
			convey.So(errors.Is(err, model.ErrUnknownTier), convey.ShouldBeTrue)
		})

		convey.Convey("Then a missing config file is reported", func() {
			t.Setenv(configEnv, "")
			_, err := execute("retrain", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestSeedScoreRetrain(t *testing.T) {
	convey.Convey("Given a config backed by a sqlite file", t, func() {
		t.Setenv(configEnv, "")
		cfgPath := writeConfig(t)

		convey.Convey("When the catalog is seeded", func() {
			out, err := execute("seed", "--config", cfgPath, "--games", "40", "--users", "20", "--games-per-user", "8", "--workers", "2")
			convey.So(err, convey.ShouldBeNil)

			var stats seed.Stats
			convey.So(json.Unmarshal([]byte(out), &stats), convey.ShouldBeNil)
			convey.So(stats.Games, convey.ShouldEqual, 40)
			convey.So(stats.Users, convey.ShouldEqual, 20)

			convey.Convey("Then score reads the seeded data", func() {
				out, err := execute("score", "user-0001", "5", "--config", cfgPath)
				convey.So(err, convey.ShouldBeNil)

				var got types.Score
				convey.So(json.Unmarshal([]byte(out), &got), convey.ShouldBeNil)
				convey.So(got.GameID, convey.ShouldEqual, int64(5))
				convey.So(got.Score, convey.ShouldBeBetweenOrEqual, 0.0, 1.0)
				convey.So(got.Strategy, convey.ShouldBeIn, []string{model.TagContent, model.TagRatingFallback})
			})

			convey.Convey("Then recommend ranks unowned games", func() {
				out, err := execute("recommend", "user-0002", "--limit", "5", "--config", cfgPath)
				convey.So(err, convey.ShouldBeNil)

				var got types.Recommendations
				convey.So(json.Unmarshal([]byte(out), &got), convey.ShouldBeNil)
				convey.So(got.UserID, convey.ShouldEqual, "user-0002")
				convey.So(len(got.Items), convey.ShouldBeLessThanOrEqualTo, 5)
				for i := 1; i < len(got.Items); i++ {
					convey.So(got.Items[i-1].Score, convey.ShouldBeGreaterThanOrEqualTo, got.Items[i].Score)
				}
			})
		})
	})
}
