// Package app wires the Legal Sathi subsystems into a running application.
//
// The App struct owns the HTTP surface: New wires routes over the injected
// dependencies, Run serves until the context is cancelled, then shuts the
// server down and disconnects any live voice sessions.
//
// For testing, inject stub implementations via [Dependencies]; every slot
// except Metrics and Health is required.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/legalsathi/sathi/internal/auth"
	"github.com/legalsathi/sathi/internal/config"
	"github.com/legalsathi/sathi/internal/health"
	"github.com/legalsathi/sathi/internal/i18n"
	"github.com/legalsathi/sathi/internal/legal"
	"github.com/legalsathi/sathi/internal/observe"
	"github.com/legalsathi/sathi/internal/store"
	"github.com/legalsathi/sathi/pkg/provider/live"
)

const shutdownTimeout = 10 * time.Second

// Dependencies holds one value per subsystem slot. Populated by main.go from
// the config; tests inject stubs.
type Dependencies struct {
	Auth        *auth.Service
	Advisor     *legal.Advisor
	Live        live.Provider
	Transcripts store.TranscriptStore
	Documents   store.DocumentStore

	// Health defaults to a handler with no readiness checks.
	Health *health.Handler

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// App owns the HTTP server and the set of live voice sessions.
type App struct {
	cfg         *config.Config
	deps        Dependencies
	defaultLang i18n.Language
	handler     http.Handler

	mu       sync.Mutex
	sessions map[*VoiceSession]struct{}
}

// New wires the application routes over deps. The returned App is ready to
// serve via [App.Run] or, in tests, through [App.Handler].
func New(cfg *config.Config, deps Dependencies) (*App, error) {
	switch {
	case deps.Auth == nil:
		return nil, fmt.Errorf("app: auth service is required")
	case deps.Advisor == nil:
		return nil, fmt.Errorf("app: legal advisor is required")
	case deps.Live == nil:
		return nil, fmt.Errorf("app: live provider is required")
	case deps.Transcripts == nil:
		return nil, fmt.Errorf("app: transcript store is required")
	case deps.Documents == nil:
		return nil, fmt.Errorf("app: document store is required")
	}
	if deps.Health == nil {
		deps.Health = health.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}

	lang := i18n.Default
	if cfg.DefaultLanguage != "" {
		l, err := i18n.Parse(cfg.DefaultLanguage)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		lang = l
	}

	a := &App{
		cfg:         cfg,
		deps:        deps,
		defaultLang: lang,
		sessions:    make(map[*VoiceSession]struct{}),
	}
	a.handler = a.routes()
	return a, nil
}

// Handler returns the fully wired HTTP handler, including the observability
// middleware.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP until ctx is cancelled, then drains: live voice sessions
// are disconnected and the server is shut down gracefully within
// shutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		a.disconnectSessions()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("graceful shutdown failed, closing", "error", err)
			return srv.Close()
		}
		return nil
	})

	return g.Wait()
}

// trackSession registers a session for drain on shutdown.
func (a *App) trackSession(v *VoiceSession) {
	a.mu.Lock()
	a.sessions[v] = struct{}{}
	a.mu.Unlock()
}

func (a *App) untrackSession(v *VoiceSession) {
	a.mu.Lock()
	delete(a.sessions, v)
	a.mu.Unlock()
}

// disconnectSessions closes every live voice session and waits for each to
// tear down.
func (a *App) disconnectSessions() {
	a.mu.Lock()
	sessions := make([]*VoiceSession, 0, len(a.sessions))
	for v := range a.sessions {
		sessions = append(sessions, v)
	}
	a.mu.Unlock()

	if len(sessions) > 0 {
		slog.Info("disconnecting voice sessions", "count", len(sessions))
	}
	for _, v := range sessions {
		v.Disconnect()
	}
}

// language resolves a client-supplied language code, falling back to the
// configured default when the code is empty.
func (a *App) language(code string) (i18n.Language, error) {
	if code == "" {
		return a.defaultLang, nil
	}
	return i18n.Parse(code)
}
