package main

import (
	"context"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/cloudvars/cloudvars-api/internal/config"
	"github.com/cloudvars/cloudvars-api/internal/domain/room"
	"github.com/cloudvars/cloudvars-api/internal/middleware"
	"github.com/cloudvars/cloudvars-api/internal/pkg/database"
	"github.com/cloudvars/cloudvars-api/internal/pkg/logger"
	"github.com/cloudvars/cloudvars-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting CloudVars API")

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	// ---------- Rooms ----------
	registry := room.NewRegistry(cfg.RoomMaxVariables, room.CloudValidator{}, cfg.RoomIdleTTL)
	service := room.NewService(registry)
	handler := room.NewHandler(service, cfg.AllowedOrigins, cfg.VarRateLimit, cfg.VarRateWindow)

	janitorCtx, cancelJanitor := context.WithCancel(context.Background())
	defer cancelJanitor()
	go registry.RunJanitor(janitorCtx, cfg.JanitorInterval)

	throttle := middleware.NewThrottle(redisClient, cfg.APIRateLimit, cfg.APIRateWindow)

	// ---------- Router ----------
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Use(middleware.Timeout(15 * time.Second))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			response.OK(w, map[string]string{"status": "ok"})
		})
		r.Mount("/api", handler.Routes(throttle.Handler))
		r.Handle("/debug/vars", expvar.Handler())
	})

	// The websocket upgrade needs the raw ResponseWriter (http.Hijacker),
	// keep it outside the logging wrapper.
	r.Get("/ws", handler.WSRoute())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

func setupLogger(cfg *config.Config) {
	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to initialize logger")
	}
}
