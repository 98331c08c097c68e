package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/lmittmann/tint"

	"quizparty/internal/broadcast"
	"quizparty/internal/config"
	"quizparty/internal/db"
	"quizparty/internal/events"
	"quizparty/internal/leaderboard"
	"quizparty/internal/quiz"
	"quizparty/internal/rooms"
	"quizparty/internal/wshub"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

// Run wires the room registry, the socket hub and the optional archive and
// leaderboard backends, then serves HTTP until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cfg.SlogLevel(),
		TimeFormat: time.DateTime,
	}))
	slog.SetDefault(logger)

	rng := rooms.NewRand(0)
	catalog, err := quiz.NewCatalog(rng)
	if err != nil {
		return fmt.Errorf("loading quizzes: %w", err)
	}
	if cfg.QuizDir != "" {
		if err := catalog.LoadDir(cfg.QuizDir); err != nil {
			return fmt.Errorf("loading quizzes from %s: %w", cfg.QuizDir, err)
		}
	}
	logger.Info("quiz catalogue ready", "quizzes", len(catalog.List()))

	registry := rooms.NewRegistry(catalog,
		rooms.WithLogger(logger),
		rooms.WithRand(rng),
		rooms.WithDefaultTimer(cfg.TimerDuration),
	)
	defer registry.Close()
	go registry.RunSweeper(ctx, sweepInterval, cfg.RoomTTL)

	srv := &Server{
		Registry: registry,
		Catalog:  catalog,
		Feed:     broadcast.New(),
		Origins:  cfg.Origins(),
		Logger:   logger,
	}

	// Optional database connection
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("database unavailable, running without archive", "error", err)
		} else {
			defer database.Close()
			if err := database.Migrate(ctx); err != nil {
				logger.Error("migration failed", "error", err)
			}
			srv.DB = database
		}
	} else {
		logger.Info("DATABASE_URL not set, running without archive")
	}

	// Optional leaderboard mirror
	if cfg.RedisAddr != "" {
		mirror, err := leaderboard.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Warn("redis unavailable, running without leaderboard mirror", "error", err)
		} else {
			defer mirror.Close()
			srv.Leaderboard = mirror
		}
	}

	bus := events.NewBus()
	go newArchiver(srv.Feed, srv.DB, srv.Leaderboard, logger).run(ctx, bus)

	srv.Hub = wshub.NewHub(registry,
		wshub.WithBus(bus),
		wshub.WithLogger(logger),
		wshub.WithRevealPause(cfg.RevealPause),
	)
	defer srv.Hub.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.Origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	mux.Get("/health", s.handleHealth)
	mux.Get("/games", s.handleListGames)
	mux.Get("/ws", s.handleWS)

	mux.Route("/room", func(r chi.Router) {
		r.Post("/create", s.handleCreateRoom)
		r.Get("/{code}", s.handleGetRoom)
		r.Get("/{code}/exists", s.handleRoomExists)
		r.Get("/{code}/qr", s.handleRoomQR)
		r.Get("/{code}/leaderboard", s.handleRoomLeaderboard)
		r.Get("/{code}/events", s.handleRoomEvents)
	})

	mux.Route("/stats", func(r chi.Router) {
		r.Get("/leaderboard", s.handleStatsLeaderboard)
		r.Get("/players/{id}", s.handleStatsPlayer)
		r.Get("/players/{id}/history", s.handleStatsHistory)
		r.Get("/players/{id}/badges", s.handleStatsBadges)
		r.Get("/games/{id}", s.handleStatsGame)
		r.Get("/games/{id}/players/{playerId}", s.handleStatsGamePlayer)
	})

	return mux
}
