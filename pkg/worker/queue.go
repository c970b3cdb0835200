package worker

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"logfilters/internal/logger"
	"logfilters/pkg/errors"
	"logfilters/pkg/metrics"
)

var (
	ErrQueueFull    = stderrors.New("worker queue is full")
	ErrQueueStopped = stderrors.New("worker queue is stopped")
)

type Config struct {
	Name        string
	Size        int
	TaskTimeout time.Duration
}

func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		Size:        128,
		TaskTimeout: 30 * time.Second,
	}
}

type task struct {
	name     string
	fn       func(ctx context.Context) error
	enqueued time.Time
}

// Queue runs submitted tasks one at a time in submission order.
type Queue struct {
	cfg    Config
	tasks  chan task
	logger logger.Logger

	mu       sync.RWMutex
	stopped  bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewQueue(cfg Config, log logger.Logger) *Queue {
	if cfg.Size <= 0 {
		cfg.Size = DefaultConfig(cfg.Name).Size
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:    cfg,
		tasks:  make(chan task, cfg.Size),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Submit enqueues fn without blocking. It returns ErrQueueFull when the
// queue is saturated and ErrQueueStopped after Stop.
func (q *Queue) Submit(name string, fn func(ctx context.Context) error) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		return ErrQueueStopped
	}

	select {
	case q.tasks <- task{name: name, fn: fn, enqueued: time.Now()}:
		metrics.SetMessageQueueSize(q.cfg.Name, len(q.tasks))
		return nil
	default:
		q.logger.Warnw("Worker queue full, dropping task",
			"queue", q.cfg.Name,
			"task", name,
			"capacity", q.cfg.Size,
		)
		return ErrQueueFull
	}
}

func (q *Queue) Len() int {
	return len(q.tasks)
}

func (q *Queue) run() {
	defer q.wg.Done()
	for t := range q.tasks {
		metrics.SetMessageQueueSize(q.cfg.Name, len(q.tasks))
		metrics.ObserveMessageQueueWaitDuration(q.cfg.Name, time.Since(t.enqueued))
		q.execute(t)
	}
}

func (q *Queue) execute(t task) {
	ctx := q.ctx
	if q.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.TaskTimeout)
		defer cancel()
	}

	var err error
	if perr := errors.Guard(func() { err = t.fn(ctx) }); perr != nil {
		err = perr
	}
	if err != nil {
		q.logger.Errorw("Worker task failed",
			"queue", q.cfg.Name,
			"task", t.name,
			"error", err,
		)
	}
}

// Stop rejects new tasks, runs what is already queued and waits for the
// worker to exit. If ctx expires first, in-flight tasks see a cancelled
// context.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.tasks)
		q.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
