package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	gatewayapi "github.com/rasterlab/edlgate/api/echo"
	"github.com/rasterlab/edlgate/config"
	"github.com/rasterlab/edlgate/edl"
	"github.com/rasterlab/edlgate/internal/server"
	"github.com/rasterlab/edlgate/log"
	"github.com/rasterlab/edlgate/mongodb"
	"github.com/rasterlab/edlgate/services"
	"github.com/rasterlab/edlgate/session"
	redissession "github.com/rasterlab/edlgate/session/redis"
	"github.com/rasterlab/edlgate/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "starting edlgate", map[string]interface{}{
		"http_port":     cfg.HTTPPort,
		"mongo_db_name": cfg.MongoDBName,
		"edl_base_url":  cfg.EdlBaseURL,
		"log_level":     logLevel.String(),
	})

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize tracer provider", err)
	}

	mongoClient, err := mongodb.Connect(ctx, cfg.MongoURI)
	if err != nil {
		appLogger.Fatal(ctx, "failed to connect to MongoDB", err)
	}
	db := mongoClient.Database(cfg.MongoDBName)

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLogger.Fatal(ctx, "failed to connect to Redis", err)
	}

	userRepo, err := mongodb.NewUserRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize user repository", err)
	}

	sessionStore := redissession.NewStore(redisClient, cfg.OtelServiceName, cfg.SessionLength)
	sessionManager, err := session.NewManager(sessionStore, cfg.SessionCookieName, cfg.SessionLength, cfg.SessionKey())
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize session manager", err)
	}

	edlClient := edl.NewClient(cfg.EdlBaseURL, cfg.EdlClientID, cfg.EdlClientSecret)
	verifier := edl.NewTokenVerifier(cfg.EdlBaseURL + cfg.EdlJwksPath)

	broker := services.NewPkceBroker(edlClient, sessionStore)
	enricher := services.NewBearerEnricher(verifier, edlClient)
	bootstrap := services.NewIdentityBootstrap(userRepo, sessionStore, edlClient)

	checks := []gatewayapi.HealthCheck{
		{Name: "mongodb", Check: func(ctx context.Context) error { return mongodb.Ping(ctx, mongoClient) }},
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}
	gatewayAPI := gatewayapi.NewGatewayAPI(broker, sessionManager, checks)
	userAPI := gatewayapi.NewUserAPI(userRepo)

	httpServer := server.NewHTTPServer(cfg, appLogger, gatewayAPI, userAPI, sessionManager, enricher, bootstrap)
	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(ctx, "failed to start HTTP server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	appLogger.Info(ctx, fmt.Sprintf("received signal %v, shutting down", sig))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "tracer provider shutdown error", err)
	}
	if err := redisClient.Close(); err != nil {
		appLogger.Error(shutdownCtx, "redis shutdown error", err)
	}
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "mongodb shutdown error", err)
	}

	appLogger.Info(shutdownCtx, "server gracefully stopped")
}
