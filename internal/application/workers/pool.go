package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/docgen/pkg/ports"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Submit once the pool is shut down
var ErrPoolClosed = errors.New("worker pool is closed")

// ErrPoolNotStarted is returned by Submit before Start
var ErrPoolNotStarted = errors.New("worker pool is not started")

// Pool manages a fixed set of worker goroutines running node attempts
type Pool struct {
	size    int
	metrics ports.MetricsCollector
	logger  *zap.Logger
	health  *HealthMonitor

	jobs    chan func()
	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	started bool
}

// worker represents a single worker goroutine
type worker struct {
	id        string
	pool      *Pool
	status    WorkerStatus
	mu        sync.RWMutex
	lastJob   time.Time
	processed int64
	panics    int64
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// WorkerInfo is a point in time view of one worker
type WorkerInfo struct {
	ID        string       `json:"id"`
	Status    WorkerStatus `json:"status"`
	LastJob   time.Time    `json:"last_job"`
	Processed int64        `json:"processed"`
	Panics    int64        `json:"panics"`
}

// NewPool creates a new worker pool
func NewPool(
	size int,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:    size,
		metrics: metrics,
		logger:  logger,
		jobs:    make(chan func()),
		workers: make([]*worker, size),
		ctx:     ctx,
		cancel:  cancel,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start starts the worker pool
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	if p.ctx.Err() != nil {
		return ErrPoolClosed
	}

	p.logger.Info("starting worker pool", zap.Int("size", p.size))

	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	p.health.Start()
	p.started = true

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// Submit hands a job to the next free worker. It blocks until a worker
// accepts the job, ctx is done or the pool shuts down.
func (p *Pool) Submit(ctx context.Context, job func()) error {
	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()
	if !started {
		return ErrPoolNotStarted
	}

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Shutdown stops accepting jobs and waits for running jobs to finish
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.size
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, info := range p.Workers() {
		status[info.ID] = info.Status
	}
	return status
}

// Workers returns a snapshot of every started worker
func (p *Pool) Workers() []WorkerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	infos := make([]WorkerInfo, 0, len(p.workers))
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		infos = append(infos, WorkerInfo{
			ID:        w.id,
			Status:    w.status,
			LastJob:   w.lastJob,
			Processed: w.processed,
			Panics:    w.panics,
		})
		w.mu.RUnlock()
	}
	return infos
}

// Health returns the current health status of the pool
func (p *Pool) Health() *HealthStatus {
	return p.health.GetStatus()
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Debug("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-ctx.Done():
			w.setStatus(WorkerStatusStopped)
			w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
			return
		case job := <-w.pool.jobs:
			w.execute(job)
		}
	}
}

// execute runs one job, keeping the worker alive if it panics
func (w *worker) execute(job func()) {
	w.mu.Lock()
	w.status = WorkerStatusBusy
	w.lastJob = time.Now()
	w.mu.Unlock()

	defer func() {
		r := recover()
		if r != nil {
			w.pool.logger.Error("job panicked",
				zap.String("worker_id", w.id),
				zap.Any("panic", r))
		}
		w.mu.Lock()
		w.status = WorkerStatusIdle
		w.processed++
		if r != nil {
			w.panics++
		}
		w.mu.Unlock()
	}()

	job()
}

func (w *worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}
