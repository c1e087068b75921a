package services

import (
	"context"
	"testing"

	"ingest-service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCollection(t *testing.T, collections *fakeCollectionRepo, products *fakeProductRepo) (models.Collection, models.Group, *models.Product) {
	t.Helper()
	ctx := context.Background()
	col := models.Collection{ID: uuid.New(), OwnerID: "owner-1", Name: "Living room"}
	require.NoError(t, collections.CreateCollection(ctx, &col))

	cid := col.ID
	sofa := &models.Product{ID: uuid.New(), OwnerID: "owner-1", Name: "Sofa", CollectionID: &cid}
	require.NoError(t, products.Create(ctx, sofa))
	require.NoError(t, products.Create(ctx, &models.Product{ID: uuid.New(), OwnerID: "owner-1", Name: "Loose"}))

	g := models.Group{ID: uuid.New(), CollectionID: col.ID, OwnerID: "owner-1", Name: "Seating"}
	require.NoError(t, collections.CreateGroup(ctx, &g))
	require.NoError(t, collections.CreateGroup(ctx, &models.Group{ID: uuid.New(), CollectionID: uuid.New(), Name: "Elsewhere"}))
	require.NoError(t, collections.CreateAssignment(ctx, &models.Assignment{ID: uuid.New(), GroupID: g.ID, ProductID: sofa.ID}))
	return col, g, sofa
}

func TestCollectionService_GetCollection(t *testing.T) {
	collections := newFakeCollectionRepo()
	products := newFakeProductRepo()
	col, g, sofa := seedCollection(t, collections, products)

	svc := NewCollectionService(collections, products)
	view, err := svc.GetCollection(context.Background(), col.ID, "owner-1")
	require.NoError(t, err)

	assert.Equal(t, col.Name, view.Collection.Name)
	require.Len(t, view.Products, 1)
	assert.Equal(t, sofa.ID, view.Products[0].ID)
	require.Len(t, view.Groups, 1)
	assert.Equal(t, g.ID, view.Groups[0].ID)
	require.Len(t, view.Groups[0].Assignments, 1)
	assert.Equal(t, sofa.ID, view.Groups[0].Assignments[0].ProductID)
}

func TestCollectionService_EmptyCollectionHasEmptyLists(t *testing.T) {
	collections := newFakeCollectionRepo()
	col := models.Collection{ID: uuid.New(), OwnerID: "owner-1"}
	require.NoError(t, collections.CreateCollection(context.Background(), &col))

	view, err := NewCollectionService(collections, newFakeProductRepo()).GetCollection(context.Background(), col.ID, "owner-1")
	require.NoError(t, err)
	assert.NotNil(t, view.Products)
	assert.Empty(t, view.Products)
	assert.Empty(t, view.Groups)
}

func TestCollectionService_OwnershipAndMissing(t *testing.T) {
	collections := newFakeCollectionRepo()
	products := newFakeProductRepo()
	col, _, _ := seedCollection(t, collections, products)
	svc := NewCollectionService(collections, products)

	_, err := svc.GetCollection(context.Background(), col.ID, "intruder")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.GetCollection(context.Background(), uuid.New(), "owner-1")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}
