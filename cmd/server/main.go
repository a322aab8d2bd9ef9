package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/qrauth/qr-link-server/internal/config"
	"github.com/qrauth/qr-link-server/internal/database"
	"github.com/qrauth/qr-link-server/internal/handler"
	"github.com/qrauth/qr-link-server/internal/jobs"
	"github.com/qrauth/qr-link-server/internal/middleware"
	"github.com/qrauth/qr-link-server/internal/redis"
	"github.com/qrauth/qr-link-server/internal/registry"
	"github.com/qrauth/qr-link-server/internal/repository"
	"github.com/qrauth/qr-link-server/internal/service"
	"github.com/qrauth/qr-link-server/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	accountRepo := repository.NewAccountRepository(db.DB)
	deviceRepo := repository.NewDeviceLinkRepository(db.DB)

	sessions := registry.NewPairingRegistry(cfg.PairingTTL(), config.PairingReclaimGrace)
	hub := ws.NewHub()
	defer hub.Shutdown()

	accountService := service.NewAccountService(accountRepo, cfg.SigningSecret, cfg.TokenTTL())
	deviceService := service.NewDeviceService(deviceRepo, cfg.SigningSecret, cfg.DeviceTokenTTL())
	pairingService := service.NewPairingService(sessions, deviceService, hub)

	authMiddleware := middleware.NewAuthMiddleware(accountService)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client)
	loginLimiter := middleware.NewLoginRateLimiter()

	authHandler := handler.NewAuthHandler(accountService)
	qrHandler := handler.NewQRHandler(pairingService)
	deviceHandler := handler.NewDeviceHandler(deviceService)
	pairHandler := handler.NewPairHandler(pairingService, hub)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"message": "QR Authentication API",
			"version": "1.0.0",
			"endpoints": map[string]string{
				"register":    "/auth/register",
				"login":       "/auth/login",
				"me":          "/auth/me",
				"generate_qr": "/qr/generate",
				"scan_qr":     "/qr/scan",
				"devices":     "/devices",
				"websocket":   "/pair/{sessionID}",
			},
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Post("/register", authHandler.Register)
		r.With(loginLimiter.Handler).Post("/login", authHandler.Login)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Get("/me", authHandler.Me)
		})
	})

	r.Route("/qr", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Post("/generate", qrHandler.Generate)
		r.Get("/{sessionID}/status", qrHandler.Status)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Use(rateLimitMiddleware.Handler)
			r.Post("/scan", qrHandler.Scan)
		})
	})

	r.Route("/devices", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)
		r.Mount("/", deviceHandler.Routes())
	})

	// no request timeout here: the notification channel is held open until
	// the pairing resolves
	r.Get("/pair/{sessionID}", pairHandler.Serve)

	cleanupJob := jobs.NewCleanupJob(sessions, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
