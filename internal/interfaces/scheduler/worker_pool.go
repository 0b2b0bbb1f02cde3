package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// jobTimeout bounds a single job execution.
const jobTimeout = 2 * time.Minute

var (
	jobTracer          = otel.Tracer("finledger/scheduler")
	jobMeter           = otel.Meter("finledger/scheduler")
	jobDuration, _     = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _        = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Total jobs executed by status"))
	jobQueueDropped, _ = jobMeter.Int64Counter("scheduler.job.queue_dropped", metric.WithDescription("Jobs dropped due to full queue"))
)

// WorkerPool runs submitted jobs on a fixed number of goroutines.
type WorkerPool struct {
	workerCount int
	jobDelay    time.Duration
	jobs        chan Job
	wg          sync.WaitGroup

	// mu guards closing jobs against concurrent Submit calls.
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// NewWorkerPool creates a pool of workerCount workers reading from a queue
// of queueSize jobs. Each worker waits jobDelay after a job before taking
// the next one.
func NewWorkerPool(workerCount int, jobDelay time.Duration, queueSize int, log zerolog.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workerCount: workerCount,
		jobDelay:    jobDelay,
		jobs:        make(chan Job, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		log:         log.With().Str("component", "worker_pool").Logger(),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	wp.log.Info().Int("workers", wp.workerCount).Msg("starting worker pool")

	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return

		case job, ok := <-wp.jobs:
			if !ok {
				return
			}

			wp.processJob(id, job)

			if wp.jobDelay > 0 {
				select {
				case <-time.After(wp.jobDelay):
				case <-wp.ctx.Done():
					return
				}
			}
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job Job) {
	log := wp.log.With().Int("worker", workerID).Str("job", job.Description()).Str("key", job.Key()).Logger()
	log.Debug().Msg("processing job")

	ctx, cancel := context.WithTimeout(wp.ctx, jobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("job.description", job.Description()),
			attribute.String("job.key", job.Key()),
		),
	)
	defer span.End()

	start := time.Now()
	err := job.Execute(ctx)
	jobDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		return
	}

	jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))
	log.Info().Dur("duration", time.Since(start)).Msg("job completed")
}

// Submit queues a job without blocking. A full queue drops the job and
// returns an error.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return fmt.Errorf("worker pool stopped, dropping job %s", job.Key())
	}

	select {
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	case wp.jobs <- job:
		return nil
	default:
		jobQueueDropped.Add(context.Background(), 1)
		return fmt.Errorf("job queue full, dropping job %s", job.Key())
	}
}

// SubmitBatch queues jobs and returns how many were accepted.
func (wp *WorkerPool) SubmitBatch(jobs []Job) int {
	submitted := 0
	for _, job := range jobs {
		if err := wp.Submit(job); err != nil {
			wp.log.Warn().Err(err).Str("key", job.Key()).Msg("failed to submit job")
			continue
		}
		submitted++
	}
	wp.log.Info().Int("submitted", submitted).Int("total", len(jobs)).Msg("jobs submitted")
	return submitted
}

// Shutdown closes the queue and waits for queued jobs to finish.
func (wp *WorkerPool) Shutdown() {
	wp.closeQueue()
	wp.wg.Wait()
	wp.cancel()
	wp.log.Info().Msg("worker pool stopped")
}

// ShutdownWithTimeout is Shutdown that cancels running jobs once timeout
// passes.
func (wp *WorkerPool) ShutdownWithTimeout(timeout time.Duration) {
	wp.closeQueue()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		wp.log.Warn().Dur("timeout", timeout).Msg("worker pool shutdown timed out, cancelling jobs")
		wp.cancel()
		<-done
	}
	wp.cancel()
	wp.log.Info().Msg("worker pool stopped")
}

func (wp *WorkerPool) closeQueue() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if !wp.closed {
		wp.closed = true
		close(wp.jobs)
	}
}
