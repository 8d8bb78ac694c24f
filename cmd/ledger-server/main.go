package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medledger/medledger/internal/config"
	"github.com/medledger/medledger/internal/ledger"
	"github.com/medledger/medledger/internal/nodes"
	"github.com/medledger/medledger/internal/platform/auth"
	"github.com/medledger/medledger/internal/platform/db"
	"github.com/medledger/medledger/internal/platform/hipaa"
	"github.com/medledger/medledger/internal/platform/middleware"
	"github.com/medledger/medledger/internal/records"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ledger-server",
		Short: "Healthcare blockchain ledger node",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(keygenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ledger node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a fresh LEDGER_ENCRYPTION_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := hipaa.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Encryption
	encryption, err := hipaa.NewEncryptionService(cfg.LedgerEncryptionKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize encryption")
	}

	// Chain store: in-memory by default, Postgres when DATABASE_URL is set.
	ctx := context.Background()
	var store ledger.ChainStore = ledger.NewMemoryStore()
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		store, err = ledger.NewPGStore(ctx, pool)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize chain store")
		}
		logger.Info().Msg("using postgres chain store")
	}

	// Core services
	ledgerSvc := ledger.NewService(store, ledger.NewMempool(), ledger.Options{
		NodeID:     cfg.NodeID,
		Difficulty: cfg.Difficulty,
		Reward:     cfg.MiningReward,
		Logger:     logger,
	})
	logger.Info().Str("node_id", ledgerSvc.NodeID()).Int("difficulty", ledgerSvc.Difficulty()).Msg("ledger initialized")

	registry := nodes.NewRegistry()
	resolver := nodes.NewResolver(registry, ledgerSvc,
		time.Duration(cfg.PeerTimeoutSeconds)*time.Second, logger)

	recordsSvc := records.NewService(ledgerSvc, encryption, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	// Token issuance stays outside the auth wall.
	tokenSvc := auth.NewTokenService([]byte(cfg.AuthSecret), "medledger")
	auth.NewTokenHandler(tokenSvc, cfg.AuthSecret).RegisterRoutes(e.Group(""))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Chain and consensus surface. Peers fetch /chain during resolution, so
	// this group carries no auth wall, only rate limiting.
	chainAPI := e.Group("")
	chainAPI.Use(middleware.RateLimit(rateLimitCfg))
	ledger.NewHandler(ledgerSvc, encryption).RegisterRoutes(chainAPI)
	nodes.NewHandler(registry, resolver).RegisterRoutes(chainAPI)

	// Medical record surface: authenticated.
	medicalAPI := e.Group("")
	if cfg.IsDev() {
		medicalAPI.Use(auth.DevAuthMiddleware())
	} else {
		medicalAPI.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthSecret),
		}))
	}
	medicalAPI.Use(middleware.RateLimit(rateLimitCfg))
	records.NewHandler(recordsSvc).RegisterRoutes(medicalAPI)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting ledger node")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down node")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("node stopped")
	return nil
}
