package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/tasktune/fatigue/internal/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8000")
				convey.So(cfg.CheckpointPath, convey.ShouldEqual, "models/met_fatigue_minimal.json")
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"*"})
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("FATIGUE_ADDR", ":8080")
			_ = os.Setenv("FATIGUE_LOG_LEVEL", "DEBUG")
			_ = os.Setenv("FATIGUE_LOG_FORMAT", "json")
			_ = os.Setenv("FATIGUE_CHECKPOINT_PATH", "/srv/model.json")
			_ = os.Setenv("FATIGUE_MAX_BODY_BYTES", "2048")
			_ = os.Setenv("FATIGUE_SHUTDOWN_TIMEOUT_MS", "500")
			_ = os.Setenv("FATIGUE_WATCH_CONFIG", "true")
			_ = os.Setenv("FATIGUE_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.CheckpointPath, convey.ShouldEqual, "/srv/model.json")
				convey.So(cfg.MaxBodyBytes, convey.ShouldEqual, 2048)
				convey.So(cfg.ShutdownTimeoutMS, convey.ShouldEqual, 500)
				convey.So(cfg.WatchConfig, convey.ShouldBeTrue)
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"https://a.example", "https://b.example"})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
# service settings
addr: ":9090"  # inline comment
log_level: warn
checkpoint_path: "testdata/model.yaml"
cors_allowed_origins:
  - "https://app.example"
max_body_bytes: 4096
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("FATIGUE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "warn")
				convey.So(cfg.CheckpointPath, convey.ShouldEqual, "testdata/model.yaml")
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"https://app.example"})
				convey.So(cfg.MaxBodyBytes, convey.ShouldEqual, 4096)
			})

			convey.Convey("And missing keys keep their defaults", func() {
				convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
				convey.So(cfg.ShutdownTimeoutMS, convey.ShouldEqual, 10_000)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
log_level: warn
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("FATIGUE_CONFIG", tmpFile)
			_ = os.Setenv("FATIGUE_ADDR", ":8080") // This should override the file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")    // Overridden by env
				convey.So(cfg.LogLevel, convey.ShouldEqual, "warn") // From file
			})
		})

		convey.Convey("When loading an explicit file", func() {
			clearConfigEnvVars()
			tmpFile := createTempConfigFile(`addr: ":7000"`)
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.LoadFile(ctx, tmpFile)

			convey.Convey("Then the file is used without FATIGUE_CONFIG", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7000")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("FATIGUE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("FATIGUE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("FATIGUE_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("FATIGUE_MAX_BODY_BYTES", "lots")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the context is already cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			cfg, err := config.Load(cancelled)

			convey.Convey("Then nothing is loaded", func() {
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"FATIGUE_CONFIG",
		"FATIGUE_ADDR",
		"FATIGUE_LOG_LEVEL",
		"FATIGUE_LOG_FORMAT",
		"FATIGUE_CHECKPOINT_PATH",
		"FATIGUE_CORS_ALLOWED_ORIGINS",
		"FATIGUE_MAX_BODY_BYTES",
		"FATIGUE_SHUTDOWN_TIMEOUT_MS",
		"FATIGUE_WATCH_CONFIG",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "fatigue-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
