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

	"github.com/bft-labs/hybrid-chain-logger/config"
	"github.com/bft-labs/hybrid-chain-logger/db"
	"github.com/bft-labs/hybrid-chain-logger/handlers"
	"github.com/bft-labs/hybrid-chain-logger/logwriter"
	"github.com/bft-labs/hybrid-chain-logger/metrics"
	"github.com/bft-labs/hybrid-chain-logger/middleware"
	"github.com/bft-labs/hybrid-chain-logger/publisher"
	"github.com/bft-labs/hybrid-chain-logger/server"
	"github.com/bft-labs/hybrid-chain-logger/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("logger server failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, err := utils.EnsureLogDir(cfg.LogDir)
	if err != nil {
		return err
	}

	started := time.Now()
	primary, err := logwriter.OpenPrimary(dir, started)
	if err != nil {
		return err
	}
	defer primary.Close()

	statsLog, err := logwriter.OpenStatistics(dir, started, cfg.GroupSize)
	if err != nil {
		return err
	}
	defer statsLog.Close()

	logger.Info("record files opened",
		zap.String("log", primary.Path()),
		zap.String("stats", statsLog.Path()),
		zap.Int("group_size", cfg.GroupSize),
	)

	sinks := []metrics.SummarySink{
		metrics.NewStatsLogSink(statsLog),
		metrics.NewReportSink(logger),
	}
	var queued []*metrics.QueuedSink
	var history *mongo.Collection

	if cfg.MongoURI != "" {
		client, err := db.Connect(cfg.MongoURI)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())

		store := db.NewSummaryStore(client.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		q := metrics.NewQueuedSink("mongo", store, cfg.SinkQueueSize, logger)
		sinks = append(sinks, q)
		queued = append(queued, q)
		history = store.Collection()
		logger.Info("storing group statistics in mongodb", zap.String("database", cfg.MongoDatabase))
	}

	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}

		pub, err := publisher.NewRedis(redisClient, cfg.SummaryTopic, logger)
		if err != nil {
			return err
		}
		defer pub.Close()

		q := metrics.NewQueuedSink("redis", pub, cfg.SinkQueueSize, logger)
		sinks = append(sinks, q)
		queued = append(queued, q)
		logger.Info("publishing group statistics to redis", zap.String("topic", cfg.SummaryTopic))
	}

	agg := metrics.NewAggregator(cfg.GroupSize, started,
		metrics.WithSinks(sinks...),
		metrics.WithLogger(logger),
	)

	ln, err := server.Listen(cfg.Host, cfg.Port, cfg.Backlog)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr(), err)
	}
	srv := server.New(server.Options{
		ReadTimeout: cfg.ReadTimeout,
		BufferSize:  cfg.BufferSize,
	}, primary, agg, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	for _, q := range queued {
		g.Go(func() error {
			return q.Run(gctx)
		})
	}

	if cfg.HTTPEnabled {
		if cfg.LogLevel != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
		g.Go(func() error {
			limiter.RunCleanup(gctx, 10*time.Minute)
			return nil
		})

		router := handlers.NewRouter(handlers.RouterConfig{
			Chain:          srv,
			Logger:         logger,
			AllowedOrigins: cfg.AllowedOrigins,
			RateLimiter:    limiter,
			History:        history,
		})
		g.Go(func() error {
			return runHTTP(gctx, cfg.HTTPAddr, router, logger)
		})
	}

	err = g.Wait()
	logger.Info("logger server stopped", zap.Any("stats", srv.Stats()))
	return err
}

// runHTTP serves the query API until ctx is cancelled.
func runHTTP(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting HTTP API server", zap.String("addr", addr))

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
