package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const queueKey = "job_queue:default"

var ErrUnknownJob = errors.New("no handler registered for job")

// JobHandler executes one dequeued job. Args are the job's JSON payload.
type JobHandler func(ctx context.Context, args map[string]any) error

// Queue is a Redis-list job queue. Jobs are JSON blobs pushed with RPUSH and
// popped with LPOP by a polling worker. When Redis is unavailable, Enqueue
// degrades to running the handler inline on the local pool so the work is
// not lost.
type Queue struct {
	rdb      redis.UniversalClient
	pool     *Pool
	handlers map[string]JobHandler
}

type queuedJob struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

func NewQueue(rdb redis.UniversalClient, pool *Pool) *Queue {
	return &Queue{rdb: rdb, pool: pool, handlers: map[string]JobHandler{}}
}

// Register binds a handler to a job name. Not safe to call once workers or
// producers are running; wire all handlers during startup.
func (q *Queue) Register(name string, h JobHandler) {
	q.handlers[name] = h
}

// Enqueue pushes a job for background processing. Returns true if the job
// reached Redis, false if it ran inline as a fallback.
func (q *Queue) Enqueue(ctx context.Context, name string, args map[string]any) bool {
	raw, err := json.Marshal(queuedJob{Name: name, Args: args})
	if err != nil {
		log.Printf("level=error msg=job_encode_failed job=%s err=%v", name, err)
		return false
	}
	if err := q.rdb.RPush(ctx, queueKey, raw).Err(); err != nil {
		log.Printf("level=warn msg=job_enqueue_failed job=%s err=%v fallback=inline", name, err)
		if h, ok := q.handlers[name]; ok {
			q.pool.TrySubmit(ctx, func(ctx context.Context) {
				if err := h(ctx, args); err != nil {
					log.Printf("level=error msg=job_inline_failed job=%s err=%v", name, err)
				}
			})
		}
		return false
	}
	return true
}

// ProcessOne pops and runs a single job. Reports whether a job was present.
// Handler errors are logged, never re-queued; jobs here are best-effort.
func (q *Queue) ProcessOne(ctx context.Context) (bool, error) {
	raw, err := q.rdb.LPop(ctx, queueKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var job queuedJob
	if err := json.Unmarshal(raw, &job); err != nil {
		log.Printf("level=error msg=job_decode_failed err=%v", err)
		return true, nil
	}
	h, ok := q.handlers[job.Name]
	if !ok {
		log.Printf("level=error msg=job_unhandled job=%s", job.Name)
		return true, ErrUnknownJob
	}
	if err := h(ctx, job.Args); err != nil {
		log.Printf("level=error msg=job_failed job=%s err=%v", job.Name, err)
	}
	return true, nil
}

// RunWorker polls the queue until ctx is cancelled, sleeping pollInterval
// between empty polls.
func (q *Queue) RunWorker(ctx context.Context, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	log.Printf("msg=job_worker_started queue=%s poll_interval=%s", queueKey, pollInterval)
	for {
		processed, err := q.ProcessOne(ctx)
		if err != nil && !errors.Is(err, ErrUnknownJob) {
			log.Printf("level=warn msg=job_poll_failed err=%v", err)
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			log.Printf("msg=job_worker_stopped queue=%s", queueKey)
			return
		case <-time.After(pollInterval):
		}
	}
}

// Length reports the number of pending jobs, zero when Redis is down.
func (q *Queue) Length(ctx context.Context) int64 {
	n, err := q.rdb.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0
	}
	return n
}
