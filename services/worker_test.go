package services

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"ingest-service/progress"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*JobQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewJobQueue(rdb, t.TempDir()), mr
}

type progressIngester struct {
	err error
}

func (p progressIngester) Ingest(_ context.Context, req IngestRequest, sink progress.Sink) (*IngestResult, error) {
	tr := progress.NewTracker(sink)
	_ = tr.Extracting()
	if p.err != nil {
		tr.Fail(p.err)
		return nil, p.err
	}
	_ = tr.Extracted(0)
	_ = tr.ImagesUploaded(0, 0)
	_ = tr.UpdatingProduct()
	_ = tr.Complete(progress.Summary{StoragePath: req.OwnerID + "/" + req.ProductID.String()})
	return &IngestResult{ProductID: req.ProductID, StoragePath: req.OwnerID + "/" + req.ProductID.String()}, nil
}

func TestJobQueue_EnqueueAndGet(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	pid := uuid.New()

	job, err := q.Enqueue(ctx, pid, "owner-1", []byte("zip-bytes"))
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.Status)

	data, err := os.ReadFile(job.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))

	queued, err := mr.List(jobQueueKey)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, queued)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, pid, got.ProductID)
	assert.True(t, mr.TTL(jobKey(job.ID)) > 0)

	_, err = q.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestIngestWorker_ProcessesJobToDone(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	job, err := q.Enqueue(ctx, uuid.New(), "owner-1", []byte("zip-bytes"))
	require.NoError(t, err)

	w := NewIngestWorker(q, progressIngester{})
	w.wait = 100 * time.Millisecond
	took, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, took)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobDone, got.Status)
	require.NotNil(t, got.Result)
	require.NotNil(t, got.Progress)
	assert.Equal(t, progress.TypeComplete, got.Progress.Type)
	assert.Equal(t, 100, got.Progress.Pct())

	_, statErr := os.Stat(job.FilePath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestIngestWorker_RecordsFailure(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	job, err := q.Enqueue(ctx, uuid.New(), "owner-1", []byte("zip-bytes"))
	require.NoError(t, err)

	w := NewIngestWorker(q, progressIngester{err: errors.New("no configuration document found in bundle")})
	w.wait = 100 * time.Millisecond
	_, err = w.ProcessNext(ctx)
	require.NoError(t, err)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	assert.Contains(t, got.Error, "no configuration document")
	assert.Equal(t, progress.TypeError, got.Progress.Type)
}

func TestIngestWorker_EmptyQueueTimesOut(t *testing.T) {
	q, _ := newTestQueue(t)
	w := NewIngestWorker(q, progressIngester{})
	w.wait = 50 * time.Millisecond

	took, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, took)
}

// cancellingIngester simulates a shutdown arriving mid-run.
type cancellingIngester struct {
	cancel context.CancelFunc
}

func (c cancellingIngester) Ingest(ctx context.Context, _ IngestRequest, sink progress.Sink) (*IngestResult, error) {
	tr := progress.NewTracker(sink)
	_ = tr.Extracting()
	c.cancel()
	tr.Fail(ctx.Err())
	return nil, ctx.Err()
}

func TestIngestWorker_InterruptedJobIsMarkedFailed(t *testing.T) {
	q, _ := newTestQueue(t)
	job, err := q.Enqueue(context.Background(), uuid.New(), "owner-1", []byte("zip-bytes"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewIngestWorker(q, cancellingIngester{cancel: cancel})
	w.wait = 100 * time.Millisecond
	took, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, took)

	got, err := q.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	assert.Contains(t, got.Error, context.Canceled.Error())
	require.NotNil(t, got.Progress)
	assert.Equal(t, progress.TypeError, got.Progress.Type)
}

func TestIngestWorker_ManyProgressEventsKeepLatest(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	job, err := q.Enqueue(ctx, uuid.New(), "owner-1", []byte("zip-bytes"))
	require.NoError(t, err)

	w := NewIngestWorker(q, burstIngester{})
	w.wait = 100 * time.Millisecond
	_, err = w.ProcessNext(ctx)
	require.NoError(t, err)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobDone, got.Status)
	assert.Equal(t, progress.TypeComplete, got.Progress.Type)
}

type burstIngester struct{}

func (burstIngester) Ingest(_ context.Context, req IngestRequest, sink progress.Sink) (*IngestResult, error) {
	tr := progress.NewTracker(sink)
	_ = tr.Extracting()
	_ = tr.Extracted(200)
	for i := 1; i <= 200; i++ {
		_ = tr.Uploading(i, 200)
	}
	_ = tr.ImagesUploaded(200, 200)
	_ = tr.UpdatingProduct()
	_ = tr.Complete(progress.Summary{ImageCount: 200})
	return &IngestResult{ProductID: req.ProductID, AssetCount: 200, TotalAssets: 200}, nil
}
