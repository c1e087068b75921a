package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ingest-service/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoProductAdapter stores products in a table keyed by `product_id`.
type DynamoProductAdapter struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoProductAdapter(client *dynamodb.Client, table string) *DynamoProductAdapter {
	return &DynamoProductAdapter{client: client, table: table}
}

type ddbProduct struct {
	ProductID     string                 `dynamodbav:"product_id"`
	OwnerID       string                 `dynamodbav:"owner_id"`
	CollectionID  *string                `dynamodbav:"collection_id,omitempty"`
	Name          string                 `dynamodbav:"name"`
	Description   *string                `dynamodbav:"description,omitempty"`
	Configuration map[string]interface{} `dynamodbav:"configuration,omitempty"`
	StoragePath   *string                `dynamodbav:"storage_path,omitempty"`
	CoverImage    *string                `dynamodbav:"cover_image,omitempty"`
	Images        []string               `dynamodbav:"images,omitempty"`
	TotalSizeMB   float64                `dynamodbav:"total_size_mb"`
	CreatedAt     string                 `dynamodbav:"created_at"`
	UpdatedAt     string                 `dynamodbav:"updated_at"`
}

func toDDBProduct(p *models.Product) ddbProduct {
	dp := ddbProduct{
		ProductID:     p.ID.String(),
		OwnerID:       p.OwnerID,
		Name:          p.Name,
		Configuration: p.Configuration,
		CoverImage:    p.CoverImage,
		Images:        p.Images,
		TotalSizeMB:   p.TotalSizeMB,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339),
	}
	if p.CollectionID != nil {
		s := p.CollectionID.String()
		dp.CollectionID = &s
	}
	if p.Description != "" {
		dp.Description = &p.Description
	}
	if p.StoragePath != "" {
		dp.StoragePath = &p.StoragePath
	}
	return dp
}

func (dp ddbProduct) toModel() *models.Product {
	p := &models.Product{
		OwnerID:       dp.OwnerID,
		Name:          dp.Name,
		Configuration: dp.Configuration,
		CoverImage:    dp.CoverImage,
		Images:        dp.Images,
		TotalSizeMB:   dp.TotalSizeMB,
	}
	p.ID, _ = uuid.Parse(dp.ProductID)
	if dp.CollectionID != nil {
		if u, err := uuid.Parse(*dp.CollectionID); err == nil {
			p.CollectionID = &u
		}
	}
	if dp.Description != nil {
		p.Description = *dp.Description
	}
	if dp.StoragePath != nil {
		p.StoragePath = *dp.StoragePath
	}
	if t, err := time.Parse(time.RFC3339, dp.CreatedAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, dp.UpdatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p
}

func productKey(id uuid.UUID) (map[string]types.AttributeValue, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"product_id": id.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return key, nil
}

func (d *DynamoProductAdapter) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	key, err := productKey(id)
	if err != nil {
		return nil, err
	}
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: &d.table, Key: key})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var dp ddbProduct
	if err := attributevalue.UnmarshalMap(out.Item, &dp); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return dp.toModel(), nil
}

// FindByCollection scans for products belonging to collectionID.
func (d *DynamoProductAdapter) FindByCollection(ctx context.Context, collectionID uuid.UUID) ([]*models.Product, error) {
	filter := "collection_id = :c"
	values, err := attributevalue.MarshalMap(map[string]string{":c": collectionID.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}
	input := &dynamodb.ScanInput{TableName: &d.table, FilterExpression: &filter, ExpressionAttributeValues: values}
	var results []*models.Product
	paginator := dynamodb.NewScanPaginator(d.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan page failed: %w", err)
		}
		for _, it := range page.Items {
			var dp ddbProduct
			if err := attributevalue.UnmarshalMap(it, &dp); err != nil {
				return nil, fmt.Errorf("unmarshal item: %w", err)
			}
			results = append(results, dp.toModel())
		}
	}
	return results, nil
}

func (d *DynamoProductAdapter) Create(ctx context.Context, product *models.Product) error {
	item, err := attributevalue.MarshalMap(toDDBProduct(product))
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &d.table, Item: item})
	if err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

// UpdateIngestion sets the ingestion fields in one UpdateItem call. The item
// must already exist.
func (d *DynamoProductAdapter) UpdateIngestion(ctx context.Context, id uuid.UUID, u models.IngestionUpdate) error {
	updates := map[string]interface{}{
		"configuration": u.Configuration,
		"storage_path":  u.StoragePath,
		"images":        u.Images,
		"total_size_mb": u.TotalSizeMB,
		"updated_at":    u.UpdatedAt.Format(time.RFC3339),
	}
	if u.Configuration == nil {
		updates["configuration"] = map[string]interface{}{}
	}
	if u.Images == nil {
		updates["images"] = []string{}
	}
	expr, values, err := buildSetExpression(updates)
	if err != nil {
		return err
	}
	var remove string
	if u.CoverImage != nil {
		values[":cover"], err = attributevalue.Marshal(*u.CoverImage)
		if err != nil {
			return fmt.Errorf("marshal update value: %w", err)
		}
		expr += ", cover_image = :cover"
	} else {
		remove = " REMOVE cover_image"
	}
	expr += remove

	key, err := productKey(id)
	if err != nil {
		return err
	}
	cond := "attribute_exists(product_id)"
	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &d.table,
		Key:                       key,
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       &cond,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("update item failed: %w", err)
	}
	return nil
}

// Delete is idempotent: deleting a missing product succeeds.
func (d *DynamoProductAdapter) Delete(ctx context.Context, id uuid.UUID) error {
	key, err := productKey(id)
	if err != nil {
		return err
	}
	_, err = d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &d.table, Key: key})
	if err != nil {
		return fmt.Errorf("delete item failed: %w", err)
	}
	return nil
}
