package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/musicgen/internal/tracker"
	"github.com/cuongbtq/musicgen/internal/worker/domain"
)

// JobStore is the worker's view of generation_jobs
type JobStore interface {
	EnsureJob(ctx context.Context, key string, request []byte) error
	ClaimJob(ctx context.Context, key, workerID string, staleAfter time.Duration) (*domain.Job, error)
	UpdateHeartbeat(ctx context.Context, key, workerID string) error
	ReleaseJob(ctx context.Context, key, workerID string) error
	ListResumable(ctx context.Context, staleAfter time.Duration, limit int) ([]domain.Job, error)
	SnapshotStore(key, workerID string) tracker.Store
}

// Consumer delivers queued generation requests
type Consumer interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// CallbackSource delivers provider callbacks fanned out by the API service
type CallbackSource interface {
	ConsumeCallbacks(consumerTag string) (<-chan amqp.Delivery, error)
}

// TrackerSettings tunes the tracker run for each job
type TrackerSettings struct {
	PollInterval time.Duration
	MaxRetries   int
	MaxPolls     int
	Scheduler    tracker.Scheduler
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	Store             JobStore
	Queue             Consumer
	Callbacks         CallbackSource
	Backend           tracker.Backend
	Tracker           TrackerSettings
	Concurrency       int
	MaxJobs           int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	WorkerID          string
}

// Worker consumes generation requests and drives one tracker per request
type Worker struct {
	logger            *slog.Logger
	store             JobStore
	queue             Consumer
	callbacks         CallbackSource
	backend           tracker.Backend
	trackerSettings   TrackerSettings
	concurrency       int
	maxJobs           int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	workerID          string
	jobsChan          chan *domain.JobMessage
	wg                sync.WaitGroup
	stopChan          chan struct{}
	stopOnce          sync.Once

	activeMu sync.Mutex
	active   map[string]*tracker.Tracker
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = newWorkerID()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = concurrency
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = domain.DefaultHeartbeatInterval
	}

	return &Worker{
		logger:            cfg.Logger.With(slog.String("worker_id", workerID)),
		store:             cfg.Store,
		queue:             cfg.Queue,
		callbacks:         cfg.Callbacks,
		backend:           cfg.Backend,
		trackerSettings:   cfg.Tracker,
		concurrency:       concurrency,
		maxJobs:           maxJobs,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: heartbeat,
		workerID:          workerID,
		jobsChan:          make(chan *domain.JobMessage, maxJobs),
		stopChan:          make(chan struct{}),
		active:            make(map[string]*tracker.Tracker),
	}
}

func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
}

// ID returns the worker id used for claims and the consumer tag
func (w *Worker) ID() string {
	return w.workerID
}

// Start spawns the pool, re-dispatches abandoned jobs and consumes the queue
// until ctx is cancelled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Int("max_jobs", w.maxJobs),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	if w.callbacks != nil {
		callbacks, err := w.callbacks.ConsumeCallbacks(w.workerID + "-callbacks")
		if err != nil {
			return fmt.Errorf("failed to start consuming callbacks: %w", err)
		}
		w.wg.Add(1)
		go w.listenCallbacks(ctx, callbacks)
	}

	w.spawnWorkerPool(ctx)

	if err := w.resumePending(ctx); err != nil {
		w.logger.Error("Failed to resume pending jobs", slog.Any("error", err))
	}

	w.startMessageDispatcher(ctx, deliveries)
	return nil
}

// Stop gracefully stops the worker, waiting for in-flight jobs to settle
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
		w.wg.Wait()
		w.logger.Info("Worker stopped")
	})
}

func (w *Worker) staleAfter() time.Duration {
	return domain.StaleHeartbeatFactor * w.heartbeatInterval
}

// resumePending re-dispatches jobs left SUBMITTING or POLLING by a worker that went away
func (w *Worker) resumePending(ctx context.Context) error {
	jobs, err := w.store.ListResumable(ctx, w.staleAfter(), w.maxJobs)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		w.logger.Info("Resuming abandoned job",
			slog.String("key", job.Key),
			slog.String("state", job.State),
			slog.String("job_id", job.JobID),
		)
		select {
		case w.jobsChan <- &domain.JobMessage{Key: job.Key}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
