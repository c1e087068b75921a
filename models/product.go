package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the target resource of a bundle ingestion. The viewer reads
// StoragePath and Configuration; everything else is bookkeeping.
type Product struct {
	ID            uuid.UUID              `json:"id"`
	OwnerID       string                 `json:"owner_id"`
	CollectionID  *uuid.UUID             `json:"collection_id,omitempty"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
	StoragePath   string                 `json:"storage_path,omitempty"`
	// CoverImage holds the storage key of the cover asset, not a URL;
	// GetViewer resolves it to the public cover URL.
	CoverImage    *string                `json:"cover_image"`
	Images        []string               `json:"images,omitempty"`
	TotalSizeMB   float64                `json:"total_size_mb"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// IngestionUpdate is the set of fields written once by the finalize step of
// an ingestion run.
type IngestionUpdate struct {
	Configuration map[string]interface{}
	StoragePath   string
	CoverImage    *string
	Images        []string
	TotalSizeMB   float64
	UpdatedAt     time.Time
}
