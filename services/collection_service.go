package services

import (
	"context"
	"errors"
	"fmt"

	"ingest-service/models"
	"ingest-service/repository"

	"github.com/google/uuid"
)

// ErrCollectionNotFound is returned for unknown collection ids.
var ErrCollectionNotFound = errors.New("collection not found")

// GroupView is a group together with its product assignments.
type GroupView struct {
	models.Group
	Assignments []models.Assignment `json:"assignments"`
}

// CollectionView is the read model of a collection created by the
// orchestrator.
type CollectionView struct {
	Collection *models.Collection `json:"collection"`
	Products   []*models.Product  `json:"products"`
	Groups     []GroupView        `json:"groups"`
}

type CollectionService struct {
	collections repository.CollectionRepo
	products    repository.ProductRepo
}

func NewCollectionService(collections repository.CollectionRepo, products repository.ProductRepo) *CollectionService {
	return &CollectionService{collections: collections, products: products}
}

// GetCollection loads a collection with its child products, groups and
// assignments. Only the owner may read it.
func (s *CollectionService) GetCollection(ctx context.Context, id uuid.UUID, ownerID string) (*CollectionView, error) {
	col, err := s.collections.FindCollection(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCollectionNotFound
		}
		return nil, err
	}
	if col.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	products, err := s.products.FindByCollection(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	groups, err := s.collections.ListGroups(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	view := &CollectionView{
		Collection: col,
		Products:   products,
		Groups:     make([]GroupView, 0, len(groups)),
	}
	if view.Products == nil {
		view.Products = []*models.Product{}
	}
	for _, g := range groups {
		assignments, err := s.collections.ListAssignments(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("list assignments of group %s: %w", g.ID, err)
		}
		if assignments == nil {
			assignments = []models.Assignment{}
		}
		view.Groups = append(view.Groups, GroupView{Group: g, Assignments: assignments})
	}
	return view, nil
}
