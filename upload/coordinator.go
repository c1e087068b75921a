// Package upload transfers bundle assets to object storage in paced,
// bounded batches and records a per-item outcome.
package upload

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"ingest-service/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoAssets is returned when assets are required but none were classified.
	ErrNoAssets = errors.New("bundle contains no transferable assets")
	// ErrTransportUnavailable marks store failures that make every further
	// transfer pointless, as opposed to a single rejected object.
	ErrTransportUnavailable = errors.New("object storage transport unavailable")
)

// DefaultBatchDelay is the pause inserted between two batches.
const DefaultBatchDelay = 300 * time.Millisecond

// Store is the object storage the coordinator writes to.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Observer receives per-item and per-batch measurements.
type Observer interface {
	UploadFinished(succeeded bool)
	BatchFinished(size int, elapsed time.Duration)
}

// Outcome is the result of one asset transfer.
type Outcome struct {
	Name       string `json:"name"`
	StoredPath string `json:"stored_path,omitempty"`
	Succeeded  bool   `json:"succeeded"`
	Error      string `json:"error,omitempty"`
	Batch      int    `json:"batch"`
	Size       int64  `json:"size"`
}

// BatchReport carries running totals after a batch has settled.
type BatchReport struct {
	Index    int
	Batches  int
	Uploaded int
	Failed   int
	Total    int
}

// Result aggregates the outcome of a run in sorted item order.
type Result struct {
	Outcomes      []Outcome
	Uploaded      int
	Total         int
	UploadedPaths []string
	CoverPath     string
	UploadedBytes int64
}

// Failed returns the outcomes that did not succeed.
func (r *Result) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.Succeeded {
			failed = append(failed, o)
		}
	}
	return failed
}

// Coordinator runs the batch schedule.
type Coordinator struct {
	store         Store
	strategy      Strategy
	delay         time.Duration
	requireAssets bool
	observer      Observer
	sleep         func(ctx context.Context, d time.Duration) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRequireAssets makes an empty item list a run failure.
func WithRequireAssets(require bool) Option {
	return func(c *Coordinator) { c.requireAssets = require }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithSleep replaces the pacing wait, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) { c.sleep = fn }
}

func NewCoordinator(store Store, strategy Strategy, delay time.Duration, opts ...Option) *Coordinator {
	if strategy == nil {
		strategy = CountStrategy{Size: 3}
	}
	if delay < 0 {
		delay = 0
	}
	c := &Coordinator{
		store:    store,
		strategy: strategy,
		delay:    delay,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run sorts items, uploads them batch by batch under prefix and calls
// onBatch after every batch. A failed item never cancels its siblings; Run
// only fails when assets are required and missing, when the transport is
// unusable, or when ctx ends during pacing.
func (c *Coordinator) Run(ctx context.Context, prefix string, items []models.AssetItem, onBatch func(BatchReport)) (*Result, error) {
	if len(items) == 0 && c.requireAssets {
		return nil, ErrNoAssets
	}

	sorted := make([]models.AssetItem, len(items))
	copy(sorted, items)
	SortAssets(sorted)

	batches := c.strategy.Partition(sorted)
	res := &Result{Total: len(sorted), Outcomes: make([]Outcome, 0, len(sorted))}
	failed := 0

	for i, batch := range batches {
		start := time.Now()
		outcomes, transportDown := c.runBatch(ctx, prefix, i, batch)
		if c.observer != nil {
			c.observer.BatchFinished(len(batch), time.Since(start))
		}

		for _, o := range outcomes {
			res.Outcomes = append(res.Outcomes, o)
			if !o.Succeeded {
				failed++
				continue
			}
			res.Uploaded++
			res.UploadedBytes += o.Size
			res.UploadedPaths = append(res.UploadedPaths, o.StoredPath)
			if res.CoverPath == "" {
				res.CoverPath = o.StoredPath
			}
		}

		if onBatch != nil {
			onBatch(BatchReport{
				Index:    i,
				Batches:  len(batches),
				Uploaded: res.Uploaded,
				Failed:   failed,
				Total:    res.Total,
			})
		}

		if transportDown {
			zap.L().Error("Object storage unusable, aborting upload run",
				zap.String("prefix", prefix),
				zap.Int("batch", i),
				zap.Int("uploaded", res.Uploaded),
			)
			return res, fmt.Errorf("batch %d: %w", i, ErrTransportUnavailable)
		}

		if i < len(batches)-1 && c.delay > 0 {
			if err := c.sleep(ctx, c.delay); err != nil {
				return res, err
			}
		}
	}

	return res, nil
}

// runBatch uploads one batch concurrently. The second return value reports
// that every item failed on an unusable transport.
func (c *Coordinator) runBatch(ctx context.Context, prefix string, index int, batch []models.AssetItem) ([]Outcome, bool) {
	outcomes := make([]Outcome, len(batch))
	errs := make([]error, len(batch))

	var g errgroup.Group
	g.SetLimit(len(batch))
	for j, item := range batch {
		g.Go(func() error {
			key := path.Join(prefix, item.Name)
			o := Outcome{Name: item.Name, Batch: index, Size: item.Size()}
			if err := c.store.Put(ctx, key, item.Data, item.ContentType); err != nil {
				errs[j] = err
				o.Error = err.Error()
				zap.L().Warn("Asset upload failed",
					zap.String("asset", item.Name),
					zap.String("key", key),
					zap.Int("batch", index),
					zap.Error(err),
				)
			} else {
				o.Succeeded = true
				o.StoredPath = key
			}
			if c.observer != nil {
				c.observer.UploadFinished(o.Succeeded)
			}
			outcomes[j] = o
			return nil
		})
	}
	_ = g.Wait()

	transportDown := len(batch) > 0
	for _, err := range errs {
		if err == nil || !errors.Is(err, ErrTransportUnavailable) {
			transportDown = false
			break
		}
	}
	return outcomes, transportDown
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
