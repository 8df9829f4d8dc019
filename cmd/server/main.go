package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"review-cache/config"
	"review-cache/internal/api"
	"review-cache/internal/broker"
	"review-cache/internal/cache"
	"review-cache/internal/redisclient"
	"review-cache/internal/reviewclient"
	"review-cache/internal/service"
	"review-cache/internal/store"
	"review-cache/internal/util"
	"review-cache/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	origin := uuid.New().String()
	logger.Info("Starting review cache", zap.String("instance", origin), zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("Failed to prepare database schema", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReviewEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer, origin)

	reviewClient, err := reviewclient.New(cfg.ReviewClient())
	if err != nil {
		logger.Fatal("Invalid review service configuration", zap.Error(err))
	}

	cacheStore := cache.NewStore(cfg.Cache())
	defer cacheStore.Close()

	reviewService := service.NewReviewService(cacheStore, eventPublisher, redisClient, redisClient, service.ReviewServiceConfig{
		PageSize: cfg.ReviewAPI.PageSize,
		Origin:   origin,
	})

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	monitor := worker.NewConnectivityMonitor(reviewClient, cacheStore, cfg.ConnectivityInterval())
	monitor.Start(rootCtx)

	initializer := service.NewInitializer(cacheStore, func(context.Context) (reviewclient.ReviewClient, error) {
		return reviewClient, nil
	})
	initializer.Start(rootCtx)

	sweeper := worker.NewStalenessSweeper(cacheStore)
	sweeper.Start(rootCtx)

	if err := redisClient.SubscribeInvalidations(rootCtx, worker.NewInvalidationHandler(cacheStore, origin)); err != nil {
		logger.Error("Cross-instance invalidation disabled", zap.Error(err))
	}

	groupID := cfg.Kafka.ConsumerGroup
	if groupID == "" {
		groupID = "review-cache-" + origin
	}
	eventConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicReviewEvents, groupID)
	eventWorker := worker.NewReviewEventWorker(eventConsumer, cacheStore, db, groupID, origin)
	go func() {
		if err := eventWorker.Start(rootCtx); err != nil && err != context.Canceled {
			logger.Error("Review event worker error", zap.Error(err))
		}
	}()

	pruner := worker.NewLedgerPruner(db, cfg.LedgerRetention(), cfg.LedgerPruneInterval(), nil)
	pruner.Start(rootCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(cacheStore, reviewService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	rootCancel()
	sweeper.Stop()
	monitor.Stop()
	pruner.Stop()
	if err := eventWorker.Stop(); err != nil {
		logger.Warn("Error stopping review event worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
