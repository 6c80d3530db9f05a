// Command sathi is the Legal Sathi server: voice, chat and document analysis
// for legal assistance.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/legalsathi/sathi/internal/app"
	"github.com/legalsathi/sathi/internal/auth"
	"github.com/legalsathi/sathi/internal/config"
	"github.com/legalsathi/sathi/internal/health"
	"github.com/legalsathi/sathi/internal/legal"
	"github.com/legalsathi/sathi/internal/observe"
	"github.com/legalsathi/sathi/internal/resilience"
	"github.com/legalsathi/sathi/internal/store"
	"github.com/legalsathi/sathi/internal/store/memstore"
	"github.com/legalsathi/sathi/internal/store/postgres"
	geminilive "github.com/legalsathi/sathi/pkg/provider/live/gemini"
	"github.com/legalsathi/sathi/pkg/provider/llm"
	geminillm "github.com/legalsathi/sathi/pkg/provider/llm/gemini"
	openaillm "github.com/legalsathi/sathi/pkg/provider/llm/openai"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sathi: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sathi: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("sathi starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Storage ───────────────────────────────────────────────────────────
	var (
		users       auth.Store
		transcripts store.TranscriptStore
		documents   store.DocumentStore
		checks      []health.Check
	)
	if dsn := cfg.Database.DSN; dsn != "" {
		pg, err := postgres.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to database", "err", err)
			return 1
		}
		defer pg.Close()
		users, transcripts, documents = pg, pg, pg
		checks = append(checks, health.Database(pg.Pool()))
		slog.Info("using postgres storage")
	} else {
		mem := memstore.New()
		users, transcripts, documents = mem, mem, mem
		slog.Warn("no database configured, using in-memory storage")
	}

	// ── Providers ─────────────────────────────────────────────────────────
	liveProvider, err := geminiLiveProvider(cfg)
	if err != nil {
		slog.Error("failed to create live provider", "err", err)
		return 1
	}

	chatBackend, err := chatProvider(cfg)
	if err != nil {
		slog.Error("failed to create chat provider", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────
	application, err := app.New(cfg, app.Dependencies{
		Auth:        auth.NewService(users),
		Advisor:     legal.NewAdvisor(chatBackend, cfg.Gemini.ChatModel, cfg.Gemini.DocumentModel),
		Live:        liveProvider,
		Transcripts: transcripts,
		Documents:   documents,
		Health:      health.New(checks...),
		Metrics:     observe.DefaultMetrics(),
	})
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// geminiLiveProvider builds the Gemini Live voice provider from config.
func geminiLiveProvider(cfg *config.Config) (*geminilive.Provider, error) {
	var opts []geminilive.Option
	if cfg.Gemini.LiveModel != "" {
		opts = append(opts, geminilive.WithModel(cfg.Gemini.LiveModel))
	}
	return geminilive.New(cfg.Gemini.APIKey, opts...)
}

// chatProvider builds the text completion backend: Gemini behind a circuit
// breaker, with an optional OpenAI fallback when one is configured.
func chatProvider(cfg *config.Config) (llm.Provider, error) {
	primary, err := geminillm.New(cfg.Gemini.APIKey)
	if err != nil {
		return nil, err
	}

	fb := resilience.NewFallbackProvider("gemini", primary, resilience.BreakerConfig{})

	if cfg.OpenAI.APIKey != "" {
		secondary, err := openaillm.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		if err != nil {
			return nil, err
		}
		fb.AddFallback("openai", secondary)
		slog.Info("chat fallback enabled", "backend", "openai", "model", cfg.OpenAI.Model)
	}

	return fb, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
