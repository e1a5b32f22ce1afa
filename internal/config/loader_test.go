package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/trendhunter/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.VerificationHorizon, convey.ShouldEqual, 24*time.Hour)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("TRENDHUNTER_ADDR", ":8080")
			_ = os.Setenv("TRENDHUNTER_WORKER_COUNT", "16")
			_ = os.Setenv("TRENDHUNTER_VERIFICATION_HORIZON", "6h")
			_ = os.Setenv("TRENDHUNTER_EWMA_ALPHA", "0.25")
			_ = os.Setenv("TRENDHUNTER_AUTO_INCORRECT_TYPES", "other, github")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.VerificationHorizon, convey.ShouldEqual, 6*time.Hour)
				convey.So(cfg.EWMAAlpha, convey.ShouldEqual, 0.25)
				convey.So(cfg.AutoIncorrectTypes, convey.ShouldResemble, []string{"other", "github"})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
verification_horizon: 12h
buy_threshold: 1.5
platform_concurrency:
  twitter: 2
sources:
  twitter: [alice, bob]
feed_urls:
  twitter: http://feeds.local/twitter
`
			tmpFile := createTempConfigFile(t, yamlContent)
			_ = os.Setenv("TRENDHUNTER_CONFIG", tmpFile)
			_ = os.Setenv("TRENDHUNTER_ADDR", ":7070")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values should apply and env should win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.VerificationHorizon, convey.ShouldEqual, 12*time.Hour)
				convey.So(cfg.BuyThreshold, convey.ShouldEqual, 1.5)
				convey.So(cfg.ConcurrencyFor("twitter"), convey.ShouldEqual, 2)
				convey.So(cfg.Sources["twitter"], convey.ShouldResemble, []string{"alice", "bob"})
				convey.So(cfg.SellLowerBound, convey.ShouldEqual, 0.5)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("TRENDHUNTER_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("TRENDHUNTER_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When an env value fails validation", func() {
			_ = os.Setenv("TRENDHUNTER_SELL_LOWER_BOUND", "1.5")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("TRENDHUNTER_WORKER_COUNT", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "TRENDHUNTER_") {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("create temp config: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	_ = f.Close()
	return f.Name()
}
