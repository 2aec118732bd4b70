package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/history-service/internal/api"
	"github.com/fathima-sithara/history-service/internal/auth"
	"github.com/fathima-sithara/history-service/internal/blob"
	"github.com/fathima-sithara/history-service/internal/cache"
	"github.com/fathima-sithara/history-service/internal/config"
	"github.com/fathima-sithara/history-service/internal/domain"
	"github.com/fathima-sithara/history-service/internal/events"
	"github.com/fathima-sithara/history-service/internal/kafka"
	"github.com/fathima-sithara/history-service/internal/logger"
	"github.com/fathima-sithara/history-service/internal/service"
	"github.com/fathima-sithara/history-service/internal/store"
	"github.com/fathima-sithara/history-service/internal/sweep"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(cfg.App.Env != "production")
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mc, err := store.NewMongoClient(ctx, cfg.Mongo.URI)
	if err != nil {
		zlog.Fatalw("mongo init", "error", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	st := store.NewMongoStore(mc, mc.Database(cfg.Mongo.DB))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	blobs, err := blob.NewS3Store(ctx, cfg.S3.Region, cfg.S3.Bucket)
	if err != nil {
		zlog.Fatalw("s3 init", "error", err)
	}

	kprod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer func() { _ = kprod.Close() }()
	pub := events.NewPublisher(kprod, zlog)

	archiveCache := cache.NewArchiveCache(cache.NewRedisKV(rdb), domain.CacheTTL, zlog)

	writer := service.NewWriter(st, pub, zlog)
	compactor := service.NewCompactor(st, blobs, pub, zlog)
	reader := service.NewReader(st, blobs, archiveCache, zlog)
	cleaner := service.NewCleaner(st, blobs, archiveCache, zlog)

	sweeper := sweep.NewSweeper(st, compactor, cfg.Archive.SweepInterval, zlog)
	go sweeper.Run(ctx)

	jv, err := auth.NewJWTValidator(cfg.JWT)
	if err != nil {
		zlog.Fatalw("jwt init", "error", err)
	}

	app := api.NewServer(api.NewHandlers(writer, reader, compactor, cleaner, st), jv)

	go func() {
		if err := app.Listen(":" + cfg.App.PortString()); err != nil {
			zlog.Fatalw("server listen", "error", err)
		}
	}()
	zlog.Infow("history-service started", "port", cfg.App.Port)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	zlog.Info("history-service stopped")
}
