package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the default initialization", t, func() {
		So(Init(), ShouldBeNil)
		So(Get(), ShouldNotBeNil)
		So(Named("test"), ShouldNotBeNil)
		So(Sync(), ShouldBeNil)
	})

	Convey("Given an unknown format", t, func() {
		So(InitWithFormat("xml", nil), ShouldNotBeNil)
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWithFormat(FormatJSON, &buf), ShouldBeNil)
		ctx := WithRequestID(context.Background(), "req-42")

		Convey("When logging with fields", func() {
			Named("engine").Info(ctx, "fell through",
				String("tier", "rich-model"),
				Int64("game_id", 7),
				Bool("cold", true),
				Error(errors.New("model unavailable")),
			)
			out := buf.String()

			Convey("Then every field is rendered", func() {
				So(out, ShouldContainSubstring, `"msg":"fell through"`)
				So(out, ShouldContainSubstring, `"component":"engine"`)
				So(out, ShouldContainSubstring, `"tier":"rich-model"`)
				So(out, ShouldContainSubstring, `"game_id":7`)
				So(out, ShouldContainSubstring, `"error":"model unavailable"`)
				So(out, ShouldContainSubstring, `"request_id":"req-42"`)
				So(out, ShouldContainSubstring, `logger_test.go`)
			})
		})

		Convey("When the level filters debug lines", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Debug(ctx, "hidden")
			Get().Info(ctx, "hidden too")
			So(buf.Len(), ShouldEqual, 0)
			Get().Warn(ctx, "shown")
			So(buf.String(), ShouldContainSubstring, "shown")
		})

		Reset(func() {
			SetLevelString("info") //nolint:errcheck
		})
	})

	Convey("Given an unknown level", t, func() {
		So(SetLevelString("loud"), ShouldNotBeNil)
	})

	Convey("Given the nop logger", t, func() {
		l := Nop()
		l.Error(context.Background(), "dropped")
		So(RequestID(context.Background()), ShouldEqual, "")
	})
}
