package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warfront-game/api/internal/auth"
	"github.com/warfront-game/api/internal/config"
	"github.com/warfront-game/api/internal/handler"
	"github.com/warfront-game/api/internal/logger"
	"github.com/warfront-game/api/internal/middleware"
	"github.com/warfront-game/api/internal/repository/postgres"
	redisrepo "github.com/warfront-game/api/internal/repository/redis"
	"github.com/warfront-game/api/internal/service"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("databaseURL", cfg.DatabaseURL).Dur("turnTimeout", cfg.TurnTimeout).Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Enable Redis keyspace notifications for turn timer expiry events.
	if err := redisClient.Underlying().ConfigSet(context.Background(), "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (turn timers may not fire)")
	}

	// Repos
	sessionRepo := postgres.NewSessionRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Session registry (the hub doubles as its broadcaster)
	registry := service.NewRegistry(sessionRepo, redisClient, wsHub, cfg.TurnTimeout)

	// Timer listener (force-complete stalled turns on expiry)
	timerListener := service.NewTurnTimerListener(redisClient.Underlying(), registry)

	// Handlers
	authHandler := handler.NewAuthHandler(jwtMgr)
	sessionHandler := handler.NewSessionHandler(registry, sessionRepo)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, registry)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("POST /auth/guest", authHandler.GuestLogin)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("POST /sessions", sessionHandler.CreateSession)
	api.HandleFunc("GET /sessions", sessionHandler.ListSessions)
	api.HandleFunc("GET /sessions/{code}", sessionHandler.GetSession)
	api.HandleFunc("GET /sessions/{code}/state", sessionHandler.GetSessionState)
	api.HandleFunc("DELETE /sessions/{code}", sessionHandler.DeleteSession)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Recover active sessions (rehydrate the registry from Redis after restart)
	if err := registry.RecoverActiveSessions(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to recover active sessions (non-fatal)")
	}

	// Start timer listener
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.TurnTimeout > 0 {
		go timerListener.Start(ctx)
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
