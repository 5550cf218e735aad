package tasks

import (
	"context"
	"errors"
	"log"
	"sync"
)

var ErrPoolClosed = errors.New("task pool closed")

// Pool runs fire-and-forget work with bounded concurrency. Callers that
// must not block on a full pool use TrySubmit and drop the work instead.
type Pool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Submit blocks until a worker slot frees up, then runs fn on its own
// goroutine. A panicking task is logged and absorbed; one bad task must not
// take the process down.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		p.wg.Done()
		return ctx.Err()
	}

	go p.run(ctx, fn)
	return nil
}

// TrySubmit is Submit without the wait: it returns false when every slot
// is busy or the pool is closed.
func (p *Pool) TrySubmit(ctx context.Context, fn func(context.Context)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	default:
		p.wg.Done()
		return false
	}

	go p.run(ctx, fn)
	return true
}

func (p *Pool) run(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("level=error msg=task_panic panic=%v", r)
		}
		<-p.sem
		p.wg.Done()
	}()
	fn(ctx)
}

// Drain stops accepting new work and waits for in-flight tasks, giving up
// when ctx expires. Used during shutdown so pending analytics writes get a
// chance to land.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
