package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"ingest-service/models"
	"ingest-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductService manages the products bundles are ingested into.
type ProductService struct {
	repo  repository.ProductRepo
	store ObjectStore
	cache CacheInvalidator
	now   func() time.Time
}

func NewProductService(repo repository.ProductRepo, store ObjectStore, cache CacheInvalidator) *ProductService {
	if cache == nil {
		cache = noopCache{}
	}
	return &ProductService{repo: repo, store: store, cache: cache, now: time.Now}
}

func (s *ProductService) CreateProduct(ctx context.Context, ownerID string, req ProductCreateRequest) (*models.Product, error) {
	now := s.now().UTC()
	p := &models.Product{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		CollectionID: req.CollectionID,
		Name:         req.Name,
		Description:  req.Description,
		Images:       []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProduct returns the product if ownerID owns it.
func (s *ProductService) GetProduct(ctx context.Context, id uuid.UUID, ownerID string) (*models.Product, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return p, nil
}

// GetViewer returns the two inputs of the viewer.
func (s *ProductService) GetViewer(ctx context.Context, id uuid.UUID) (*ViewerPayload, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	cfg := p.Configuration
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	v := &ViewerPayload{StoragePath: p.StoragePath, Configuration: cfg}
	if p.StoragePath != "" {
		v.AssetBaseURL = s.store.PublicURL(p.StoragePath + "/")
	}
	if p.CoverImage != nil {
		v.CoverURL = s.store.PublicURL(*p.CoverImage)
	}
	return v, nil
}

// DeleteProduct removes the product's assets and then its record. Assets are
// deleted both by recorded key and by listing the storage prefix, since a
// failed run may have left objects the record never saw. A missing product
// is not an error. When asset deletion fails the record is kept so the call
// can be retried.
func (s *ProductService) DeleteProduct(ctx context.Context, id uuid.UUID, ownerID string) error {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if p.OwnerID != ownerID {
		return ErrForbidden
	}

	if len(p.Images) > 0 {
		if err := s.store.Delete(ctx, p.Images); err != nil {
			return fmt.Errorf("delete recorded assets: %w", err)
		}
	}
	prefix := path.Join(p.OwnerID, p.ID.String()) + "/"
	n, err := s.store.DeletePrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("delete assets under %s: %w", prefix, err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.InvalidateProduct(ctx, id)
	zap.L().Info("Product deleted",
		zap.String("product_id", id.String()),
		zap.String("owner_id", ownerID),
		zap.Int("recorded_assets", len(p.Images)),
		zap.Int("listed_assets", n))
	return nil
}
