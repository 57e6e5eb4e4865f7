package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"vibefi/internal/auth"
	"vibefi/internal/blockchain"
	"vibefi/internal/config"
	"vibefi/internal/database"
	"vibefi/internal/events"
	"vibefi/internal/handlers"
	"vibefi/internal/jobs"
	"vibefi/internal/logging"
	"vibefi/internal/repository"
	"vibefi/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.Database.Driver, cfg.GetDSN()); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event fan-out
	hub := events.NewHub(logger, events.AllowOrigins(cfg.Server.AllowedOrigins))
	sinks := []events.Publisher{hub}
	if cfg.Redis.Addr != "" {
		rdb, err := events.NewRedisClient(ctx, events.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		sinks = append(sinks, events.NewRedisPublisher(rdb))
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis event publisher enabled")
	}
	publisher := events.NewMultiPublisher(logger, sinks...)

	// Claim settlement
	var sessionOpts []services.SessionOption
	if cfg.Payer.Kind == "solana" {
		solanaClient, err := blockchain.NewSolanaClient(cfg.Payer.SolanaNetwork, cfg.Payer.ServerWalletPrivateKey, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize solana client")
		}
		sessionOpts = append(sessionOpts, services.WithPayer(blockchain.NewSolanaPayer(solanaClient, logger)))
		logger.Info().Str("wallet", solanaClient.ServerAddress()).Msg("solana payer enabled")
	}

	// Initialize repository and services
	repo := repository.NewRepository(database.GetDB())
	authService := services.NewAuthService(repo, cfg.App.LoginMessage, cfg.App.LoginNonceTTL, logger)
	sessionService := services.NewSessionService(repo, services.SessionConfig{
		Phase1Duration: cfg.Session.Phase1Duration,
		Phase2Duration: cfg.Session.Phase2Duration,
		NeutralStake:   cfg.Session.NeutralStake,
	}, publisher, logger, sessionOpts...)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	sessionHandler := handlers.NewSessionHandler(sessionService, hub)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Authentication routes
	authRoutes := router.Group("/auth")
	{
		authRoutes.GET("/message", authHandler.LoginMessage)
		authRoutes.POST("/wallet", authHandler.WalletLogin)
		authRoutes.POST("/logout", authHandler.Logout)
		authRoutes.GET("/me", auth.AuthMiddleware(), authHandler.GetMe)
	}

	// Session routes
	public := router.Group("/api")
	protected := router.Group("/api")
	protected.Use(auth.AuthMiddleware())
	sessionHandler.RegisterRoutes(public, protected)

	router.GET("/ws/sessions/:id", sessionHandler.StreamSession)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("port", cfg.Server.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Session.KeeperInterval > 0 {
		keeper := jobs.NewSessionKeeper(sessionService, cfg.Session.KeeperAddress, cfg.Session.KeeperInterval, logger)
		g.Go(func() error {
			keeper.Start()
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			keeper.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")

		// Graceful shutdown with 5 second timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server exited")
}

