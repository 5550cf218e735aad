package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lingolink/realtime-core/internal/config"
	"github.com/lingolink/realtime-core/internal/jobs"
	"github.com/lingolink/realtime-core/internal/provider/translate"
	"github.com/lingolink/realtime-core/internal/store"
	"github.com/lingolink/realtime-core/internal/tasks"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	st := store.New(pool)
	taskPool := tasks.NewPool(cfg.TaskPoolSize)
	queue := tasks.NewQueue(rdb, taskPool)
	jobs.RegisterHandlers(queue, st)

	translator := translate.Translator(translate.NewOpenAIClient(cfg.OpenAIAPIKey))
	if cfg.AnthropicAPIKey != "" {
		translator = translate.NewFallback(translator, translate.NewAnthropicClient(cfg.AnthropicAPIKey))
	}
	jobs.RegisterBatchTranslate(queue, translator)

	runner := jobs.NewRunner(st, queue)
	runner.Start(ctx)

	log.Printf("realtime-core jobs worker started")
	queue.RunWorker(ctx, time.Duration(cfg.QueuePollInterval)*time.Second)

	drainCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeoutSecs)*time.Second)
	defer cancel()
	if err := taskPool.Drain(drainCtx); err != nil {
		log.Printf("level=warn msg=task_pool_drain_incomplete err=%v", err)
	}
}
