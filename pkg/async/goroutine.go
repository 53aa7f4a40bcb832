package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var logger = logrus.StandardLogger()

// ErrPoolClosed is returned by Submit after Close or Shutdown
var ErrPoolClosed = errors.New("worker pool shut down")

// SetLogger replaces the logger used for task panics
func SetLogger(l *logrus.Logger) {
	if l != nil {
		logger = l
	}
}

// Task is a unit of work run by a WorkerPool. The context carries the
// per-task timeout.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed number of goroutines. Every task error,
// including recovered panics and tasks skipped after cancellation, is kept
// until Errors is called.
type WorkerPool struct {
	taskName string
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	workCh chan Task
	doneCh chan struct{}

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	errs  []error
}

// NewWorkerPool starts workers goroutines. A timeout of 0 leaves tasks bounded
// only by ctx.
//
//	pool := NewWorkerPool(ctx, 4, "report export", 30*time.Second)
//	pool.Submit(func(ctx context.Context) error {
//	    return archive.PutReport(ctx, key, contentType, data)
//	})
//	err := pool.Shutdown(5 * time.Second)
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		taskName: taskName,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
		workCh:   make(chan Task, workers*2),
		doneCh:   make(chan struct{}),
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			pool.worker(id)
		}(i)
	}
	go func() {
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues a task, blocking while the queue is full
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.workCh <- task
	return nil
}

// Close stops accepting tasks and waits for the queued ones to finish
func (p *WorkerPool) Close() {
	p.closeQueue()
	<-p.doneCh
	p.cancel()
}

// Shutdown is Close bounded by timeout. Tasks still running when it expires
// see their context cancelled.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.closeQueue()
	select {
	case <-p.doneCh:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("%s: worker pool shutdown timed out after %v", p.taskName, timeout)
	}
}

// Errors returns the errors collected so far and resets the list
func (p *WorkerPool) Errors() []error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	errs := p.errs
	p.errs = nil
	return errs
}

func (p *WorkerPool) closeQueue() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.workCh)
	}
}

func (p *WorkerPool) record(err error) {
	p.errMu.Lock()
	p.errs = append(p.errs, err)
	p.errMu.Unlock()
}

// worker drains the queue even after cancellation so that skipped tasks are
// reported rather than lost.
func (p *WorkerPool) worker(id int) {
	for task := range p.workCh {
		if err := p.ctx.Err(); err != nil {
			p.record(fmt.Errorf("%s: skipped: %w", p.taskName, err))
			continue
		}
		if err := p.run(id, task); err != nil {
			p.record(err)
		}
	}
}

func (p *WorkerPool) run(id int, task Task) (err error) {
	ctx, cancel := p.ctx, context.CancelFunc(func() {})
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(p.ctx, p.timeout)
	}
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"worker": id,
				"task":   p.taskName,
				"stack":  string(debug.Stack()),
			}).Errorf("PANIC in worker: %v", r)
			err = fmt.Errorf("%s: panic: %v", p.taskName, r)
		}
	}()

	return task(ctx)
}

// Batch runs fn over items with a bounded number of workers and returns one
// error per failed item, each prefixed with the item.
//
//	errs := Batch(ctx, shopIDs, 4, "daily snapshot", time.Minute, func(ctx context.Context, shopID string) error {
//	    _, err := service.CaptureSnapshot(ctx, shopID, day, analytics.Filters{})
//	    return err
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {
	if len(items) == 0 {
		return nil
	}
	if workers > len(items) {
		workers = len(items)
	}

	pool := NewWorkerPool(ctx, workers, taskName, timeout)
	for _, item := range items {
		item := item
		err := pool.Submit(func(ctx context.Context) (err error) {
			defer func() {
				if err != nil {
					err = fmt.Errorf("%v: %w", item, err)
				}
			}()
			defer func() {
				if r := recover(); r != nil {
					logger.WithFields(logrus.Fields{
						"task":  taskName,
						"item":  fmt.Sprint(item),
						"stack": string(debug.Stack()),
					}).Errorf("PANIC in batch item: %v", r)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return fn(ctx, item)
		})
		if err != nil {
			pool.Close()
			return append(pool.Errors(), err)
		}
	}

	pool.Close()
	return pool.Errors()
}
