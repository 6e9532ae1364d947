package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/magefree/battle-server-go/internal/battle"
	"github.com/magefree/battle-server-go/internal/config"
	"github.com/magefree/battle-server-go/internal/display"
	"github.com/magefree/battle-server-go/internal/server"
	"github.com/magefree/battle-server-go/internal/session"
	"github.com/magefree/battle-server-go/internal/store"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	headless   = flag.Bool("headless", false, "fight the map's battles once and print the history instead of serving")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	loadMap := func() (*world.State, error) { return world.LoadMap(cfg.Game.MapPath) }

	if *headless {
		if err := runHeadless(context.Background(), cfg, loadMap, logger); err != nil {
			logger.Fatal("headless run failed", zap.Error(err))
		}
		return
	}

	logger.Info("starting battle server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	if cfg.Auth.AdminPasswordHash == "" {
		logger.Warn("admin password not configured; admin RPC access disabled")
	}

	// Create context that listens for termination signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	opts := session.Options{
		Rules:       cfg.Rules,
		MaxGames:    cfg.Server.MaxGames,
		IdleTimeout: cfg.Server.IdleTimeout,
		DiceSeed:    cfg.Game.DiceSeed,
		Replays:     battle.NewReplayRecorder(logger, cfg.Storage.ReplayDir),
	}

	if cfg.Storage.RedisURL != "" {
		snapshots, err := store.NewSnapshotStore(ctx, cfg.Storage.RedisURL, cfg.Storage.SnapshotTTL, logger)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer snapshots.Close()
		opts.Snapshots = snapshots
		logger.Info("snapshot store initialized", zap.Duration("ttl", cfg.Storage.SnapshotTTL))
	} else {
		logger.Warn("redis not configured; games cannot be saved")
	}

	if cfg.Storage.DatabaseURL != "" {
		records, err := store.NewRecordRepository(ctx, cfg.Storage.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer records.Close()
		if err := records.Migrate(ctx); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		opts.Records = records
		logger.Info("battle record repository initialized")
	}

	// Display hub
	var hub *display.Hub
	if cfg.Display.Enabled {
		hub = display.NewHub(logger, cfg.Display.AllowedOrigins)
		go hub.Run(ctx)
		opts.Notify = hub.Publish
		logger.Info("display hub initialized", zap.Strings("allowed_origins", cfg.Display.AllowedOrigins))
	}

	gameMgr := session.NewManager(opts, logger)
	logger.Info("game manager initialized",
		zap.Int("max_games", cfg.Server.MaxGames),
		zap.Duration("idle_timeout", cfg.Server.IdleTimeout),
	)

	// Start idle game cleanup goroutine
	if cfg.Server.IdleTimeout > 0 {
		go gameMgr.CleanupIdleGames(ctx, time.Minute)
	}

	var httpServer *http.Server
	if hub != nil {
		httpServer = &http.Server{
			Addr:              cfg.Display.Address,
			Handler:           display.NewRouter(hub, gameMgr.Listing),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("starting display server", zap.String("address", cfg.Display.Address))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("display server error", zap.Error(err))
			}
		}()
	}

	battleServer := server.NewBattleServer(gameMgr, loadMap, version, logger)

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(server.ChainUnaryInterceptors(
			server.RecoveryInterceptor(logger),
			server.LoggingInterceptor(logger),
			server.AdminInterceptor(cfg.Auth.AdminPasswordHash, server.AdminMethods...),
		)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.MaxConcurrentStreams(uint32(cfg.Server.GRPC.MaxConcurrentStreams)),
	)

	server.RegisterBattleServiceServer(grpcServer, battleServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	// Start gRPC server
	go func() {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		if serveErr := grpcServer.Serve(lis); serveErr != nil {
			logger.Error("gRPC server error", zap.Error(serveErr))
		}
	}()

	logger.Info("battle server initialized",
		zap.String("version", version),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("map", cfg.Game.MapPath),
	)

	// Wait for termination signal
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	// Save and drop all live games
	gameMgr.CloseAll(context.Background())

	grpcServer.GracefulStop()

	if httpServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("display server shutdown", zap.Error(err))
		}
		stop()
	}

	logger.Info("battle server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
