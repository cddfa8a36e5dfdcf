// Persona relay - WebSocket chat server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/persona-relay/internal/api"
	"github.com/ashureev/persona-relay/internal/backend"
	"github.com/ashureev/persona-relay/internal/characters"
	"github.com/ashureev/persona-relay/internal/chat"
	"github.com/ashureev/persona-relay/internal/config"
	"github.com/ashureev/persona-relay/internal/healthsrv"
	"github.com/ashureev/persona-relay/internal/identity"
	"github.com/ashureev/persona-relay/internal/middleware"
	"github.com/ashureev/persona-relay/internal/retention"
	"github.com/ashureev/persona-relay/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const healthWatchInterval = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(),
		"provider", cfg.Backend.Provider, "model", cfg.Backend.Model)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Database connected")

	catalog, err := loadCatalog(ctx, cfg, repo)
	if err != nil {
		return err
	}

	gen, err := backend.New(ctx, cfg.Backend)
	if err != nil {
		return err
	}

	registry := chat.NewRegistry()
	router := chat.NewRouter(chat.RouterConfig{
		Prompts:          characters.NewLoader(repo, catalog, logger),
		Backend:          gen,
		Transcripts:      repo,
		BackendTimeout:   cfg.Backend.Timeout,
		MaxTurns:         cfg.SessionMaxTurns,
		DefaultCharacter: cfg.DefaultCharacter,
		Logger:           logger,
	})
	verifier := identity.NewJWTVerifier(cfg.JWTSecret)
	wsHandler := chat.NewWebSocketHandler(chat.HandlerConfig{
		Router:        router,
		Verifier:      verifier,
		Registry:      registry,
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
		Logger:        logger,
	})
	apiHandler := api.NewHandler(repo, catalog, registry)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(middleware.CORSOptions{
		Origins: cfg.AllowedOrigins(),
		Headers: cfg.CORS.AllowedHeaders,
		MaxAge:  cfg.CORS.MaxAge,
	}))

	apiHandler.RegisterPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(verifier))
		apiHandler.RegisterAuthenticated(r)
	})

	// WebSocket endpoint. The credential travels in the query string and is
	// checked after the upgrade so rejections carry a close code.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var health *healthsrv.Server
	if cfg.HealthGRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.HealthGRPCPort)
		if err != nil {
			return err
		}
		health = healthsrv.New(logger)
		g.Go(func() error { return health.Serve(lis) })
		g.Go(func() error {
			health.Watch(gctx, healthWatchInterval, repo.Ping)
			return nil
		})
	}

	retentionDone := retention.Start(gctx, repo, cfg.TranscriptTTL, retention.DefaultInterval)
	g.Go(func() error {
		<-retentionDone
		return nil
	})

	if cfg.Characters.File != "" && cfg.Characters.Watch {
		g.Go(func() error {
			if err := characters.Watch(gctx, cfg.Characters.File, catalog, repo, logger); err != nil {
				slog.Warn("Character catalog watch stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Hijacked WebSocket connections are not closed by Shutdown.
		registry.CloseAll("server shutting down")
		if health != nil {
			health.Stop()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
			return err
		}
		return nil
	})

	return g.Wait()
}

// loadCatalog builds the character catalog from the built-ins and the
// optional YAML file, and mirrors it into the store.
func loadCatalog(ctx context.Context, cfg *config.Config, repo store.Repository) (*characters.Catalog, error) {
	catalog := characters.NewCatalog()
	if cfg.Characters.File != "" {
		chars, err := characters.LoadFile(cfg.Characters.File)
		if err != nil {
			return nil, err
		}
		catalog.Replace(chars)
		slog.Info("Character catalog loaded", "path", cfg.Characters.File, "count", len(chars))
	}
	if err := characters.Seed(ctx, repo, catalog.List()); err != nil {
		return nil, err
	}
	return catalog, nil
}
