package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ingest-service/progress"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	jobQueueKey  = "ingest:queue"
	jobKeyPrefix = "ingest:job:"
	jobTTL       = 24 * time.Hour
)

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("job not found")

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// Job is the metadata stored for an asynchronous ingestion.
type Job struct {
	ID        string          `json:"job_id"`
	ProductID uuid.UUID       `json:"product_id"`
	OwnerID   string          `json:"owner_id"`
	FilePath  string          `json:"file_path"`
	Status    JobStatus       `json:"status"`
	Progress  *progress.Event `json:"progress,omitempty"`
	Result    *IngestResult   `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// JobQueue persists bundles on disk and queues their job ids in Redis.
type JobQueue struct {
	rdb *redis.Client
	dir string
}

func NewJobQueue(rdb *redis.Client, dir string) *JobQueue {
	if dir == "" {
		dir = "./data/ingest_jobs"
	}
	return &JobQueue{rdb: rdb, dir: dir}
}

func jobKey(id string) string { return jobKeyPrefix + id }

// Enqueue stores bundle and queues a job for it.
func (q *JobQueue) Enqueue(ctx context.Context, productID uuid.UUID, ownerID string, bundle []byte) (*Job, error) {
	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	id := uuid.New().String()
	filePath := filepath.Join(q.dir, id+".zip")
	if err := os.WriteFile(filePath, bundle, 0o600); err != nil {
		return nil, fmt.Errorf("persist bundle: %w", err)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        id,
		ProductID: productID,
		OwnerID:   ownerID,
		FilePath:  filePath,
		Status:    JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.save(ctx, job); err != nil {
		_ = os.Remove(filePath)
		return nil, err
	}
	if err := q.rdb.RPush(ctx, jobQueueKey, id).Err(); err != nil {
		_ = os.Remove(filePath)
		return nil, fmt.Errorf("queue job: %w", err)
	}
	return job, nil
}

func (q *JobQueue) Get(ctx context.Context, id string) (*Job, error) {
	val, err := q.rdb.Get(ctx, jobKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	var job Job
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	return &job, nil
}

func (q *JobQueue) save(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.Set(ctx, jobKey(job.ID), b, jobTTL).Err(); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	return nil
}

// IngestWorker consumes queued jobs and runs the pipeline for each.
type IngestWorker struct {
	queue    *JobQueue
	ingester BundleIngester
	wait     time.Duration
}

func NewIngestWorker(queue *JobQueue, ingester BundleIngester) *IngestWorker {
	return &IngestWorker{queue: queue, ingester: ingester, wait: 5 * time.Second}
}

// Start runs the consume loop in a goroutine until ctx is done.
func (w *IngestWorker) Start(ctx context.Context) {
	if w.queue == nil || w.ingester == nil {
		zap.L().Warn("ingest worker not started: missing dependencies")
		return
	}
	go func() {
		zap.L().Info("ingest worker started", zap.String("queue", jobQueueKey), zap.String("dir", w.queue.dir))
		for {
			select {
			case <-ctx.Done():
				zap.L().Info("ingest worker stopping")
				return
			default:
			}
			if _, err := w.ProcessNext(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				zap.L().Error("redis BLPop failed", zap.Error(err))
				time.Sleep(500 * time.Millisecond)
			}
		}
	}()
}

// ProcessNext waits for one job and runs it. It reports whether a job was
// taken from the queue.
func (w *IngestWorker) ProcessNext(ctx context.Context) (bool, error) {
	res, err := w.queue.rdb.BLPop(ctx, w.wait, jobQueueKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(res) < 2 {
		return false, nil
	}
	w.process(ctx, res[1])
	return true, nil
}

func (w *IngestWorker) process(ctx context.Context, jobID string) {
	log := zap.L().With(zap.String("job_id", jobID))
	job, err := w.queue.Get(ctx, jobID)
	if err != nil {
		log.Error("failed to read job metadata", zap.Error(err))
		return
	}
	defer func() { _ = os.Remove(job.FilePath) }()

	job.Status = JobProcessing
	if err := w.queue.save(ctx, job); err != nil {
		log.Warn("failed to mark job processing", zap.Error(err))
	}

	bundle, err := os.ReadFile(filepath.Clean(job.FilePath))
	if err != nil {
		log.Error("failed to open job file", zap.String("path", job.FilePath), zap.Error(err))
		w.finish(ctx, log, job, nil, err)
		return
	}

	updates, flushed := w.recordProgress(ctx, log, job)
	sink := progress.SinkFunc(func(e progress.Event) {
		// keep only the newest pending event; the tracker is the single sender
		select {
		case <-updates:
		default:
		}
		updates <- e
	})
	result, err := w.ingester.Ingest(ctx, IngestRequest{ProductID: job.ProductID, OwnerID: job.OwnerID, Bundle: bundle}, sink)
	close(updates)
	<-flushed
	w.finish(ctx, log, job, result, err)
}

// recordProgress stores progress events on the job off the emitting
// goroutine. flushed closes once updates is closed and drained.
func (w *IngestWorker) recordProgress(ctx context.Context, log *zap.Logger, job *Job) (chan progress.Event, <-chan struct{}) {
	updates := make(chan progress.Event, 1)
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		for e := range updates {
			ev := e
			job.Progress = &ev
			if err := w.queue.save(context.WithoutCancel(ctx), job); err != nil {
				log.Warn("failed to record job progress", zap.Error(err))
			}
		}
	}()
	return updates, flushed
}

func (w *IngestWorker) finish(ctx context.Context, log *zap.Logger, job *Job, result *IngestResult, err error) {
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
	} else {
		job.Status = JobDone
		job.Result = result
	}
	if saveErr := w.queue.save(context.WithoutCancel(ctx), job); saveErr != nil {
		log.Error("failed to store job result", zap.Error(saveErr))
	}
	log.Info("ingest job finished", zap.String("status", string(job.Status)))
}
