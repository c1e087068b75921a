package controllers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ingest-service/models"
	"ingest-service/progress"
	"ingest-service/services"
)

// Config holds controller configuration
type Config struct {
	CacheTTL       time.Duration
	ContextTimeout time.Duration
	MaxBundleBytes int64
}

const (
	DefaultCacheTTL       = 10 * time.Minute
	DefaultContextTimeout = 30 * time.Second
	DefaultMaxBundleBytes = 200 << 20
)

// ProductServiceAPI defines the product operations the HTTP layer needs.
type ProductServiceAPI interface {
	CreateProduct(ctx context.Context, ownerID string, req services.ProductCreateRequest) (*models.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID, ownerID string) (*models.Product, error)
	GetViewer(ctx context.Context, id uuid.UUID) (*services.ViewerPayload, error)
	DeleteProduct(ctx context.Context, id uuid.UUID, ownerID string) error
}

// IngestServiceAPI runs the bundle pipeline.
type IngestServiceAPI interface {
	Validate(bundle []byte) error
	Authorize(ctx context.Context, productID uuid.UUID, ownerID string) (*models.Product, error)
	Ingest(ctx context.Context, req services.IngestRequest, sink progress.Sink) (*services.IngestResult, error)
}

// JobQueueAPI stores and reads asynchronous ingestion jobs.
type JobQueueAPI interface {
	Enqueue(ctx context.Context, productID uuid.UUID, ownerID string, bundle []byte) (*services.Job, error)
	Get(ctx context.Context, id string) (*services.Job, error)
}

type CollectionServiceAPI interface {
	CreateCollection(ctx context.Context, req services.CollectionRequest) (*services.CollectionResult, error)
}

// CollectionReaderAPI loads a stored collection with its groups.
type CollectionReaderAPI interface {
	GetCollection(ctx context.Context, id uuid.UUID, ownerID string) (*services.CollectionView, error)
}
