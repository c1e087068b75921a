package services

import (
	"context"
	"errors"

	"ingest-service/upload"

	"github.com/google/uuid"
)

var (
	// ErrProductNotFound is returned when the target product does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("resource belongs to another owner")
	// ErrPersistence marks a failure of the finalize write after uploads.
	ErrPersistence = errors.New("failed to persist ingestion result")
	// ErrIngestionFailed marks a child whose bundle yielded no uploaded asset.
	ErrIngestionFailed = errors.New("no asset of the bundle could be uploaded")
	// ErrInvalidManifest is returned for structurally invalid collection requests.
	ErrInvalidManifest = errors.New("invalid collection manifest")
)

// ObjectStore is the asset storage used for uploads and cascading deletes.
type ObjectStore interface {
	upload.Store
	Delete(ctx context.Context, keys []string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	PublicURL(key string) string
}

// Publisher emits domain events. Failures are never fatal to the caller.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// CacheInvalidator drops cached read models of a product.
type CacheInvalidator interface {
	InvalidateProduct(ctx context.Context, id uuid.UUID)
}

// RunRecorder counts pipeline runs and rollbacks.
type RunRecorder interface {
	RunFinished(result string)
	RollbackFinished(failures int)
}

// Event types published on the bundle events topic.
const (
	EventBundleIngested       = "bundle.ingested"
	EventCollectionRolledBack = "collection.rolled_back"
)

// Run results reported to RunRecorder.
const (
	RunComplete = "complete"
	RunFailed   = "failed"
)

// ProductCreateRequest is the request payload for creating a product
type ProductCreateRequest struct {
	Name         string
	Description  string
	CollectionID *uuid.UUID
}

// IngestRequest identifies one bundle and the product it belongs to.
type IngestRequest struct {
	ProductID uuid.UUID
	OwnerID   string
	Bundle    []byte
}

// IngestResult is the outcome of a completed ingestion run.
type IngestResult struct {
	ProductID          uuid.UUID              `json:"productId"`
	Constants          map[string]interface{} `json:"constants"`
	UploadedAssetPaths []string               `json:"uploadedAssetPaths"`
	AssetCount         int                    `json:"assetCount"`
	TotalAssets        int                    `json:"totalAssets"`
	StoragePath        string                 `json:"storagePath"`
	CoverImage         *string                `json:"coverImage"`
	TotalSizeMB        float64                `json:"totalSizeMB"`
	Failed             []upload.Outcome       `json:"failed,omitempty"`
}

// ViewerPayload is what the viewer needs to render a product.
type ViewerPayload struct {
	StoragePath   string                 `json:"storagePath"`
	Configuration map[string]interface{} `json:"configuration"`
	AssetBaseURL  string                 `json:"assetBaseUrl,omitempty"`
	CoverURL      string                 `json:"coverUrl,omitempty"`
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }

type noopCache struct{}

func (noopCache) InvalidateProduct(context.Context, uuid.UUID) {}

type noopRecorder struct{}

func (noopRecorder) RunFinished(string)    {}
func (noopRecorder) RollbackFinished(int) {}

// Recorders fans run outcomes out to several recorders.
type Recorders []RunRecorder

func (rs Recorders) RunFinished(result string) {
	for _, r := range rs {
		r.RunFinished(result)
	}
}

func (rs Recorders) RollbackFinished(failures int) {
	for _, r := range rs {
		r.RollbackFinished(failures)
	}
}
