package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthMonitor periodically samples the pool and publishes its occupancy
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// HealthStatus is a point in time view of the attempt pool
type HealthStatus struct {
	TotalWorkers   int `json:"total_workers"`
	IdleWorkers    int `json:"idle_workers"`
	BusyWorkers    int `json:"busy_workers"`
	StoppedWorkers int `json:"stopped_workers"`
	// AttemptsProcessed counts node attempts finished since Start
	AttemptsProcessed int64 `json:"attempts_processed"`
	// AttemptsPanicked counts attempts that panicked inside a worker
	AttemptsPanicked int64 `json:"attempts_panicked"`
	// LongestAttempt is how long the oldest in-progress attempt has run
	LongestAttempt time.Duration `json:"longest_attempt"`
	Saturated      bool          `json:"saturated"`
	Healthy        bool          `json:"healthy"`
	Timestamp      time.Time     `json:"timestamp"`
}

// NewHealthMonitor creates a monitor sampling pool every interval. A zero
// interval disables the background loop; GetStatus still works.
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the sampling loop
func (h *HealthMonitor) Start() {
	if h.interval <= 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.loop(ctx, h.done)
}

// Stop ends the sampling loop and waits for it to exit
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (h *HealthMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.report(h.GetStatus())
		}
	}
}

// report logs a sample and pushes the occupancy gauges
func (h *HealthMonitor) report(status *HealthStatus) {
	if h.pool.metrics != nil {
		h.pool.metrics.RecordWorkerPoolStatus(status.IdleWorkers, status.BusyWorkers, status.StoppedWorkers)
	}

	fields := []zap.Field{
		zap.Int("busy", status.BusyWorkers),
		zap.Int("total", status.TotalWorkers),
		zap.Int64("processed", status.AttemptsProcessed),
		zap.Duration("longest_attempt", status.LongestAttempt),
	}

	switch {
	case !status.Healthy:
		h.logger.Warn("attempt pool unhealthy", append(fields, zap.Int("stopped", status.StoppedWorkers))...)
	case status.Saturated:
		h.logger.Warn("attempt pool saturated, node attempts are queueing", fields...)
	default:
		h.logger.Debug("attempt pool sample", fields...)
	}
}

// GetStatus samples every worker of the pool
func (h *HealthMonitor) GetStatus() *HealthStatus {
	now := time.Now()
	status := &HealthStatus{Timestamp: now}

	for _, info := range h.pool.Workers() {
		status.TotalWorkers++
		status.AttemptsProcessed += info.Processed
		status.AttemptsPanicked += info.Panics

		switch info.Status {
		case WorkerStatusIdle:
			status.IdleWorkers++
		case WorkerStatusBusy:
			status.BusyWorkers++
			if d := now.Sub(info.LastJob); d > status.LongestAttempt {
				status.LongestAttempt = d
			}
		case WorkerStatusStopped:
			status.StoppedWorkers++
		}
	}

	status.Saturated = status.TotalWorkers > 0 && status.BusyWorkers == status.TotalWorkers
	status.Healthy = status.TotalWorkers > 0 && status.StoppedWorkers == 0
	return status
}

// IsHealthy reports whether every worker is running
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
