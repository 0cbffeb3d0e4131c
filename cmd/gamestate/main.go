package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"

	"github.com/goliatone/go-gamestate/internal/telemetry"
	"github.com/goliatone/go-gamestate/pkg/di"
	"github.com/goliatone/go-gamestate/record"
	"github.com/goliatone/go-gamestate/store"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(exitCode(err))
	}
}

func run(args []string) error {
	app := cli.App{
		Name:    "gamestate",
		Usage:   "read-through cache for game platform state",
		Version: versioninfo.Short(),
		Writer:  os.Stdout,
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"GAMESTATE_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:  "cache-backend",
			Usage: "cache backend: memory or redis",
		},
		&cli.StringFlag{
			Name:  "redis-url",
			Usage: "redis connection URL: redis://<user>:<pass>@<hostname>:6379/<db>",
		},
		&cli.StringFlag{
			Name:  "store-driver",
			Usage: "store driver: postgres or sqlite",
		},
		&cli.StringFlag{
			Name:  "store-dsn",
			Usage: "store data source name",
		},
		&cli.StringFlag{
			Name:  "remote-url",
			Usage: "base URL of the peer service owning remote namespaces",
		},
		&cli.StringSliceFlag{
			Name:  "remote-namespace",
			Usage: "key namespace served by the peer service (repeatable)",
		},
	}

	app.Commands = []*cli.Command{
		getCmd,
		putCmd,
		invalidateCmd,
		migrateCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads GAMESTATE_* variables and applies command line overrides.
func loadConfig(cctx *cli.Context) (di.Config, error) {
	cfg, err := di.LoadConfig()
	if err != nil {
		return di.Config{}, err
	}
	if cctx.IsSet("cache-backend") {
		cfg.Cache.Backend = cctx.String("cache-backend")
	}
	if cctx.IsSet("redis-url") {
		cfg.Cache.RedisURL = cctx.String("redis-url")
	}
	if cctx.IsSet("store-driver") {
		cfg.Store.Driver = cctx.String("store-driver")
	}
	if cctx.IsSet("store-dsn") {
		cfg.Store.DSN = cctx.String("store-dsn")
	}
	if cctx.IsSet("remote-url") {
		cfg.Remote.BaseURL = cctx.String("remote-url")
	}
	if cctx.IsSet("remote-namespace") {
		cfg.Coordinator.RemoteNamespaces = cctx.StringSlice("remote-namespace")
	}
	return cfg, cfg.Validate()
}

// withContainer builds the container, runs fn and tears everything down.
func withContainer(cctx *cli.Context, fn func(ctx context.Context, c *di.Container) error) error {
	ctx := cctx.Context
	logger := configLogger(cctx, os.Stderr)

	shutdown, err := telemetry.SetupTracing(ctx, "gamestate")
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}

	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to construct container: %w", err)
	}
	defer container.Close()

	return fn(ctx, container)
}

type recordOutput struct {
	Key     string               `json:"key"`
	Version int64                `json:"version"`
	Source  record.SourceOfTruth `json:"source_of_truth"`
	Payload any                  `json:"payload"`
}

func printRecord(w io.Writer, rec record.Record) error {
	out := recordOutput{Key: rec.Key, Version: rec.Version, Source: rec.Source}
	if json.Valid(rec.Payload) {
		out.Payload = json.RawMessage(rec.Payload)
	} else {
		out.Payload = string(rec.Payload)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

var getCmd = &cli.Command{
	Name:      "get",
	Usage:     "read a record through the cache",
	ArgsUsage: "<key>",
	Action: func(cctx *cli.Context) error {
		key := cctx.Args().First()
		if cctx.NArg() != 1 {
			return cli.Exit("get takes exactly one key", 64)
		}
		return withContainer(cctx, func(ctx context.Context, c *di.Container) error {
			rec, err := c.Coordinator().Read(ctx, key)
			if err != nil {
				return err
			}
			return printRecord(cctx.App.Writer, rec)
		})
	},
}

var putCmd = &cli.Command{
	Name:      "put",
	Usage:     "write a record if its version matches",
	ArgsUsage: "<key> <payload>",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:  "expected-version",
			Usage: "version the record must currently have; 0 creates a new record",
			Value: record.CreateIfAbsent,
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return cli.Exit("put takes a key and a payload", 64)
		}
		key, payload := cctx.Args().Get(0), cctx.Args().Get(1)
		return withContainer(cctx, func(ctx context.Context, c *di.Container) error {
			version, err := c.Coordinator().Write(ctx, key, []byte(payload), cctx.Int64("expected-version"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cctx.App.Writer, "%s version=%d\n", key, version)
			return nil
		})
	},
}

var invalidateCmd = &cli.Command{
	Name:      "invalidate",
	Usage:     "drop cached entries",
	ArgsUsage: "<key>...",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() == 0 {
			return cli.Exit("invalidate takes at least one key", 64)
		}
		keys := cctx.Args().Slice()
		return withContainer(cctx, func(ctx context.Context, c *di.Container) error {
			return c.Coordinator().InvalidateKeys(ctx, keys...)
		})
	},
}

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "create the records table if it does not exist",
	Action: func(cctx *cli.Context) error {
		configLogger(cctx, os.Stderr)
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		cfg.Store.AutoMigrate = false

		s, err := store.Open(cctx.Context, cfg.Store)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := store.Migrate(cctx.Context, s); err != nil {
			return err
		}
		slog.Info("records table ready", "driver", cfg.Store.Driver)
		return nil
	},
}

// exitCode maps coded failures to distinct process exit codes.
func exitCode(err error) int {
	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}
	switch record.CodeOf(err) {
	case record.CodeNotFound:
		return 2
	case record.CodeVersionConflict:
		return 3
	case record.CodeStoreUnavailable, record.CodeUpstreamUnavailable:
		return 4
	case record.CodeInvalidInput:
		return 64
	default:
		return 1
	}
}
