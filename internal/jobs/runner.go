package jobs

import (
	"context"
	"log"
	"time"

	"github.com/lingolink/realtime-core/internal/metrics"
)

type Store interface {
	PruneTranslationLogs(ctx context.Context, olderThan time.Duration) (int64, error)
	CountRecentTranslations(ctx context.Context, window time.Duration) (int64, error)
}

type QueueStats interface {
	Length(ctx context.Context) int64
}

// LogRetention is how long translation analytics rows are kept before the
// prune job removes them.
const LogRetention = 30 * 24 * time.Hour

type Runner struct {
	store Store
	queue QueueStats
}

func NewRunner(store Store, queue QueueStats) *Runner {
	return &Runner{store: store, queue: queue}
}

func (r *Runner) Start(ctx context.Context) {
	go r.runEvery(ctx, "translation_log_prune", 1*time.Hour, func(c context.Context) error {
		n, err := r.store.PruneTranslationLogs(c, LogRetention)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Printf("msg=translation_logs_pruned count=%d", n)
		}
		return nil
	})
	go r.runEvery(ctx, "translation_stats", 5*time.Minute, func(c context.Context) error {
		n, err := r.store.CountRecentTranslations(c, 5*time.Minute)
		if err != nil {
			return err
		}
		log.Printf("metric=translation_volume window=5m count=%d", n)
		return nil
	})
	go r.runEvery(ctx, "job_queue_depth", 30*time.Second, func(c context.Context) error {
		log.Printf("metric=job_queue_depth pending=%d", r.queue.Length(c))
		return nil
	})
}

func (r *Runner) runEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	r.runOnce(ctx, name, fn)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, name, fn)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, name string, fn func(context.Context) error) {
	start := time.Now()
	err := fn(ctx)
	durMs := float64(time.Since(start).Milliseconds())
	labels := map[string]string{
		"job": name,
	}
	if err != nil {
		log.Printf("metric=job_run name=%s status=error duration_ms=%d err=%q", name, int64(durMs), err.Error())
		labels["status"] = "error"
		metrics.Default().IncCounter("lingo_job_runs_total", labels)
		metrics.Default().ObserveHistogram("lingo_job_duration_ms", durMs, map[string]string{"job": name})
		return
	}
	log.Printf("metric=job_run name=%s status=ok duration_ms=%d", name, int64(durMs))
	labels["status"] = "ok"
	metrics.Default().IncCounter("lingo_job_runs_total", labels)
	metrics.Default().ObserveHistogram("lingo_job_duration_ms", durMs, map[string]string{"job": name})
}
