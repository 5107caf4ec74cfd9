package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/matchdesk/scoring-system/config"
	"github.com/matchdesk/scoring-system/db"
	"github.com/matchdesk/scoring-system/handlers"
	"github.com/matchdesk/scoring-system/live"
	"github.com/matchdesk/scoring-system/repositories"
	api "github.com/matchdesk/scoring-system/routes"
	"github.com/matchdesk/scoring-system/services"
	"github.com/matchdesk/scoring-system/storage"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Info().Int("port", cfg.ServerPort).Msg("configuration loaded")

	dbConn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close database connection")
		}
	}()
	logger.Info().Msg("database connection established")

	if err := db.RunMigrations(dbConn, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	var archiver services.ReportArchiver
	if cfg.ReportArchiveEnabled {
		uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize Cloudflare R2 uploader")
		}
		archiver = storage.NewR2ReportArchiver(uploader)
		logger.Info().Msg("match report archiving enabled")
	} else {
		logger.Info().Msg("match report archiving disabled, R2 not configured")
	}

	hub := live.NewHub(logger)
	go hub.Run()
	logger.Info().Msg("websocket hub started")

	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	setRepo := repositories.NewPostgresSetRepository(dbConn)
	registrationRepo := repositories.NewPostgresRegistrationRepository(dbConn)
	eventContextRepo := repositories.NewPostgresEventContextRepository(dbConn)

	authorizer := services.NewRoleAuthorizer(cfg.ScoringRoles...)
	scoringService := services.NewMatchScoringService(
		matchRepo,
		setRepo,
		registrationRepo,
		eventContextRepo,
		authorizer,
		hub,
		archiver,
		logger,
	)

	repairWorker := services.NewStandingsRepairWorker(
		matchRepo,
		scoringService,
		clockwork.NewRealClock(),
		cfg.StandingsRepairEvery,
		logger,
	)
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	go repairWorker.Run(workerCtx)

	matchHandler := handlers.NewMatchHandler(scoringService, dbConn)
	webSocketHandler := handlers.NewWebSocketHandler(hub, scoringService, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, matchHandler, webSocketHandler, []byte(cfg.JWTSecretKey))
	logger.Info().Msg("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("address", server.Addr).Msg("starting server")
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
		logger.Info().Msg("server stopped gracefully")
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancelWorker()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to force close server")
			}
			os.Exit(1)
		}
		logger.Info().Msg("server shutdown complete")
	}
	logger.Info().Msg("application exited")
}
