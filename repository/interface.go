package repository

import (
	"context"
	"errors"

	"ingest-service/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup by key finds no item.
var ErrNotFound = errors.New("record not found")

// ProductRepo defines the product operations used by the ingestion service.
type ProductRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByCollection(ctx context.Context, collectionID uuid.UUID) ([]*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	// UpdateIngestion writes the fields produced by a completed ingestion run.
	UpdateIngestion(ctx context.Context, id uuid.UUID, update models.IngestionUpdate) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CollectionRepo covers collections and the groups and assignments that hang
// off them.
type CollectionRepo interface {
	CreateCollection(ctx context.Context, c *models.Collection) error
	FindCollection(ctx context.Context, id uuid.UUID) (*models.Collection, error)
	DeleteCollection(ctx context.Context, id uuid.UUID) error

	CreateGroup(ctx context.Context, g *models.Group) error
	ListGroups(ctx context.Context, collectionID uuid.UUID) ([]models.Group, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error

	CreateAssignment(ctx context.Context, a *models.Assignment) error
	ListAssignments(ctx context.Context, groupID uuid.UUID) ([]models.Assignment, error)
	DeleteAssignment(ctx context.Context, id uuid.UUID) error
}
