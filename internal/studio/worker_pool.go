package studio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/logofresh/studio-renderer/pkg/models"
)

const publishTimeout = 5 * time.Second

// ExportJob represents an export request to be processed by a worker
type ExportJob struct {
	Ctx       context.Context
	SessionID string
	Format    models.Format
	Result    chan *ExportJobResult
}

// ExportJobResult contains the result of an export job
type ExportJobResult struct {
	Artifact *Artifact
	Error    error
}

// WorkerPool bounds the number of exports running at once across sessions
type WorkerPool struct {
	workers  int
	jobQueue chan *ExportJob
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	sessions *Sessions
	timeout  time.Duration

	// guards jobQueue against sends after close
	queueMu  sync.RWMutex
	stopOnce sync.Once
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workers int, sessions *Sessions, timeout time.Duration, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan *ExportJob, workers*2),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		sessions: sessions,
		timeout:  timeout,
	}
}

// Start launches all worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.Info("Starting export worker pool",
		zap.Int("workers", wp.workers),
		zap.Int("queue_size", cap(wp.jobQueue)))

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop gracefully shuts down the worker pool
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.logger.Info("Stopping export worker pool")
		wp.cancel()
		wp.queueMu.Lock()
		close(wp.jobQueue)
		wp.queueMu.Unlock()
		wp.wg.Wait()
		wp.logger.Info("Export worker pool stopped")
	})
}

// Submit queues an export for sessionID and waits for its artifact
func (wp *WorkerPool) Submit(ctx context.Context, sessionID string, format models.Format) (*Artifact, error) {
	resultChan := make(chan *ExportJobResult, 1)

	job := &ExportJob{
		Ctx:       ctx,
		SessionID: sessionID,
		Format:    format,
		Result:    resultChan,
	}

	wp.queueMu.RLock()
	if wp.ctx.Err() != nil {
		wp.queueMu.RUnlock()
		return nil, fmt.Errorf("worker pool is shutting down")
	}
	select {
	case wp.jobQueue <- job:
	case <-ctx.Done():
		wp.queueMu.RUnlock()
		return nil, ctx.Err()
	case <-wp.ctx.Done():
		wp.queueMu.RUnlock()
		return nil, fmt.Errorf("worker pool is shutting down")
	}
	wp.queueMu.RUnlock()

	select {
	case result := <-resultChan:
		return result.Artifact, result.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wp.ctx.Done():
		return nil, fmt.Errorf("worker pool is shutting down")
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug("Export worker started", zap.Int("worker_id", id))

	for {
		select {
		case job, ok := <-wp.jobQueue:
			if !ok {
				wp.logger.Debug("Export worker stopping (queue closed)", zap.Int("worker_id", id))
				return
			}
			wp.processJob(id, job)
		case <-wp.ctx.Done():
			wp.logger.Debug("Export worker stopping (context cancelled)", zap.Int("worker_id", id))
			return
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job *ExportJob) {
	wp.logger.Debug("Worker processing job",
		zap.Int("worker_id", workerID),
		zap.String("session_id", job.SessionID),
		zap.String("format", string(job.Format)))

	artifact, err := wp.export(job)

	job.Result <- &ExportJobResult{Artifact: artifact, Error: err}
	close(job.Result)

	if err != nil {
		wp.logger.Debug("Worker completed job with error",
			zap.Int("worker_id", workerID),
			zap.String("session_id", job.SessionID),
			zap.Error(err))
	} else {
		wp.logger.Debug("Worker completed job successfully",
			zap.Int("worker_id", workerID),
			zap.String("session_id", job.SessionID))
	}
}

func (wp *WorkerPool) export(job *ExportJob) (*Artifact, error) {
	parent := job.Ctx
	if parent == nil {
		parent = wp.ctx
	}
	ctx, cancel := context.WithTimeout(parent, wp.timeout)
	defer cancel()

	// stop the search when the pool shuts down
	stop := context.AfterFunc(wp.ctx, cancel)
	defer stop()

	o, err := wp.sessions.Get(ctx, job.SessionID)
	if err != nil {
		return nil, err
	}
	return o.ExportAs(ctx, job.Format)
}
