package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaults(t *testing.T) {
	Convey("Given a fresh config", t, func() {
		cfg := New(context.Background())

		Convey("Then documented defaults hold", func() {
			So(cfg.LogLevel, ShouldEqual, "info")
			So(cfg.OutputDir, ShouldEqual, "out")
			So(cfg.FetchConcurrency, ShouldEqual, 8)
			So(cfg.FetchTimeoutMS, ShouldEqual, 30_000)
			So(cfg.StalenessBoundMinutes, ShouldEqual, 180)
			So(cfg.AnalyticsParallelThreshold, ShouldEqual, 64)
			So(cfg.RenderParallelThreshold, ShouldEqual, 128)
			So(cfg.RenderChunkCap, ShouldEqual, 50)
			So(cfg.OutlierStdDevMultiple, ShouldEqual, 2.0)
			So(cfg.RarityThreshold, ShouldEqual, 6.0)
			So(cfg.DisableParallelism, ShouldBeFalse)
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given the loader", t, func() {
		Convey("When nothing is set, defaults pass validation", func() {
			cfg, err := Load(context.Background())
			So(err, ShouldBeNil)
			So(cfg.FetchConcurrency, ShouldEqual, 8)
		})

		Convey("When environment variables are set they override defaults", func() {
			t.Setenv("RELAYWATCH_LOG_LEVEL", "debug")
			t.Setenv("RELAYWATCH_WORKER_COUNT", "3")

			cfg, err := Load(context.Background())
			So(err, ShouldBeNil)
			So(cfg.LogLevel, ShouldEqual, "debug")
			So(cfg.WorkerCount, ShouldEqual, 3)
		})

		Convey("When a config file is provided it overrides defaults", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			body := "output_dir: /tmp/rendered\nrarity_threshold: 7.5\n"
			So(os.WriteFile(path, []byte(body), 0o644), ShouldBeNil)
			t.Setenv("RELAYWATCH_CONFIG", path)

			cfg, err := Load(context.Background())
			So(err, ShouldBeNil)
			So(cfg.OutputDir, ShouldEqual, "/tmp/rendered")
			So(cfg.RarityThreshold, ShouldEqual, 7.5)
		})

		Convey("When env overrides file values", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			So(os.WriteFile(path, []byte("log_level: warn\n"), 0o644), ShouldBeNil)
			t.Setenv("RELAYWATCH_CONFIG", path)
			t.Setenv("RELAYWATCH_LOG_LEVEL", "error")

			cfg, err := Load(context.Background())
			So(err, ShouldBeNil)
			So(cfg.LogLevel, ShouldEqual, "error")
		})

		Convey("When the config file does not exist", func() {
			t.Setenv("RELAYWATCH_CONFIG", "/does/not/exist.yaml")

			_, err := Load(context.Background())
			So(errors.Is(err, ErrLoadConfig), ShouldBeTrue)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given invalid values", t, func() {
		Convey("When output_dir is empty", func() {
			t.Setenv("RELAYWATCH_OUTPUT_DIR", "")
			cfg := New(context.Background())
			cfg.OutputDir = ""
			So(errors.Is(cfg.validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When fetch_concurrency is non-positive", func() {
			cfg := New(context.Background())
			cfg.FetchConcurrency = 0
			So(errors.Is(cfg.validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When staleness bound is non-positive", func() {
			cfg := New(context.Background())
			cfg.StalenessBoundMinutes = -1
			So(errors.Is(cfg.validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When the outlier multiple is non-positive", func() {
			cfg := New(context.Background())
			cfg.OutlierStdDevMultiple = 0
			So(errors.Is(cfg.validate(), ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
