package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lingolink/realtime-core/internal/api"
	"github.com/lingolink/realtime-core/internal/auth"
	"github.com/lingolink/realtime-core/internal/bridge"
	"github.com/lingolink/realtime-core/internal/cache"
	"github.com/lingolink/realtime-core/internal/channel"
	"github.com/lingolink/realtime-core/internal/config"
	"github.com/lingolink/realtime-core/internal/jobs"
	"github.com/lingolink/realtime-core/internal/pipeline"
	"github.com/lingolink/realtime-core/internal/provider/stt"
	"github.com/lingolink/realtime-core/internal/provider/translate"
	"github.com/lingolink/realtime-core/internal/provider/tts"
	"github.com/lingolink/realtime-core/internal/ratelimit"
	"github.com/lingolink/realtime-core/internal/registry"
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

	if cfg.SecretSource == "ssm" {
		ps, err := config.NewParamStore(ctx, cfg.SSMKeyPrefix)
		if err != nil {
			log.Fatalf("init param store: %v", err)
		}
		if err := ps.ResolveSecrets(ctx, &cfg); err != nil {
			log.Fatalf("resolve secrets: %v", err)
		}
	}

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
	issuer := auth.NewIssuer(cfg.JWTSecret)
	guard := auth.NewRotationGuard(issuer, rdb)
	limiter := ratelimit.New(rdb)

	taskPool := tasks.NewPool(cfg.TaskPoolSize)
	queue := tasks.NewQueue(rdb, taskPool)
	jobs.RegisterHandlers(queue, st)

	translator := buildTranslator(cfg)
	jobs.RegisterBatchTranslate(queue, translator)

	pipe := pipeline.New(
		stt.NewDeepgramClient(cfg.DeepgramAPIKey),
		translator,
		tts.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.DefaultVoiceID),
		cache.New(rdb, time.Duration(cfg.CacheTTLSeconds)*time.Second),
		pipeline.WithLogSink(jobs.QueueLogSink{Queue: queue}),
	)

	reg := registry.New(st)
	br := bridge.New(rdb)
	br.Start(ctx)
	defer br.Close()

	hub := channel.NewHub(issuer, guard, reg, br, pipe, st, rdb)
	if err := hub.Start(ctx); err != nil {
		log.Fatalf("start hub: %v", err)
	}

	handler := api.NewRouter(cfg, issuer, guard, limiter, hub)
	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)

		drainCtx, cancelDrain := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeoutSecs)*time.Second)
		defer cancelDrain()
		if err := taskPool.Drain(drainCtx); err != nil {
			log.Printf("level=warn msg=task_pool_drain_incomplete err=%v", err)
		}
	}()

	log.Printf("realtime-core listening on %s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("http server: %v", err)
	}
}

// buildTranslator wires the translation fallback chain: OpenAI first,
// Anthropic as the backstop when a key is configured.
func buildTranslator(cfg config.Config) translate.Translator {
	primary := translate.NewOpenAIClient(cfg.OpenAIAPIKey)
	if cfg.AnthropicAPIKey == "" {
		return primary
	}
	return translate.NewFallback(primary, translate.NewAnthropicClient(cfg.AnthropicAPIKey))
}
