package repository

import (
	"context"
	"fmt"
	"time"

	"ingest-service/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
)

// DynamoCollectionAdapter stores collections, groups and assignments in
// three tables, each keyed by its own id attribute.
type DynamoCollectionAdapter struct {
	client           *dynamodb.Client
	collectionsTable string
	groupsTable      string
	assignmentsTable string
}

func NewDynamoCollectionAdapter(client *dynamodb.Client, collectionsTable, groupsTable, assignmentsTable string) *DynamoCollectionAdapter {
	return &DynamoCollectionAdapter{
		client:           client,
		collectionsTable: collectionsTable,
		groupsTable:      groupsTable,
		assignmentsTable: assignmentsTable,
	}
}

type ddbCollection struct {
	CollectionID string `dynamodbav:"collection_id"`
	OwnerID      string `dynamodbav:"owner_id"`
	Name         string `dynamodbav:"name"`
	CreatedAt    string `dynamodbav:"created_at"`
}

type ddbGroup struct {
	GroupID      string `dynamodbav:"group_id"`
	CollectionID string `dynamodbav:"collection_id"`
	OwnerID      string `dynamodbav:"owner_id"`
	Name         string `dynamodbav:"name"`
	CreatedAt    string `dynamodbav:"created_at"`
}

type ddbAssignment struct {
	AssignmentID string `dynamodbav:"assignment_id"`
	GroupID      string `dynamodbav:"group_id"`
	ProductID    string `dynamodbav:"product_id"`
	CreatedAt    string `dynamodbav:"created_at"`
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func (d *DynamoCollectionAdapter) put(ctx context.Context, table string, v interface{}) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: item}); err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

func (d *DynamoCollectionAdapter) remove(ctx context.Context, table, keyName string, id uuid.UUID) error {
	key, err := attributevalue.MarshalMap(map[string]string{keyName: id.String()})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	if _, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &table, Key: key}); err != nil {
		return fmt.Errorf("delete item failed: %w", err)
	}
	return nil
}

// scanBy returns every item of table whose attr equals value.
func (d *DynamoCollectionAdapter) scanBy(ctx context.Context, table, attr, value string, each func(map[string]interface{}) error) error {
	filter := fmt.Sprintf("%s = :v", attr)
	values, err := attributevalue.MarshalMap(map[string]string{":v": value})
	if err != nil {
		return fmt.Errorf("marshal filter: %w", err)
	}
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:                 &table,
		FilterExpression:          &filter,
		ExpressionAttributeValues: values,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan page failed: %w", err)
		}
		for _, it := range page.Items {
			var m map[string]interface{}
			if err := attributevalue.UnmarshalMap(it, &m); err != nil {
				return fmt.Errorf("unmarshal item: %w", err)
			}
			if err := each(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func str(m map[string]interface{}, k string) string {
	s, _ := m[k].(string)
	return s
}

func (d *DynamoCollectionAdapter) CreateCollection(ctx context.Context, c *models.Collection) error {
	return d.put(ctx, d.collectionsTable, ddbCollection{
		CollectionID: c.ID.String(),
		OwnerID:      c.OwnerID,
		Name:         c.Name,
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
	})
}

func (d *DynamoCollectionAdapter) FindCollection(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"collection_id": id.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: &d.collectionsTable, Key: key})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var dc ddbCollection
	if err := attributevalue.UnmarshalMap(out.Item, &dc); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	c := &models.Collection{OwnerID: dc.OwnerID, Name: dc.Name, CreatedAt: parseTime(dc.CreatedAt)}
	c.ID, _ = uuid.Parse(dc.CollectionID)
	return c, nil
}

func (d *DynamoCollectionAdapter) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	return d.remove(ctx, d.collectionsTable, "collection_id", id)
}

func (d *DynamoCollectionAdapter) CreateGroup(ctx context.Context, g *models.Group) error {
	return d.put(ctx, d.groupsTable, ddbGroup{
		GroupID:      g.ID.String(),
		CollectionID: g.CollectionID.String(),
		OwnerID:      g.OwnerID,
		Name:         g.Name,
		CreatedAt:    g.CreatedAt.Format(time.RFC3339),
	})
}

func (d *DynamoCollectionAdapter) ListGroups(ctx context.Context, collectionID uuid.UUID) ([]models.Group, error) {
	var groups []models.Group
	err := d.scanBy(ctx, d.groupsTable, "collection_id", collectionID.String(), func(m map[string]interface{}) error {
		g := models.Group{OwnerID: str(m, "owner_id"), Name: str(m, "name"), CreatedAt: parseTime(str(m, "created_at"))}
		g.ID, _ = uuid.Parse(str(m, "group_id"))
		g.CollectionID, _ = uuid.Parse(str(m, "collection_id"))
		groups = append(groups, g)
		return nil
	})
	return groups, err
}

func (d *DynamoCollectionAdapter) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	return d.remove(ctx, d.groupsTable, "group_id", id)
}

func (d *DynamoCollectionAdapter) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	return d.put(ctx, d.assignmentsTable, ddbAssignment{
		AssignmentID: a.ID.String(),
		GroupID:      a.GroupID.String(),
		ProductID:    a.ProductID.String(),
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	})
}

func (d *DynamoCollectionAdapter) ListAssignments(ctx context.Context, groupID uuid.UUID) ([]models.Assignment, error) {
	var out []models.Assignment
	err := d.scanBy(ctx, d.assignmentsTable, "group_id", groupID.String(), func(m map[string]interface{}) error {
		a := models.Assignment{CreatedAt: parseTime(str(m, "created_at"))}
		a.ID, _ = uuid.Parse(str(m, "assignment_id"))
		a.GroupID, _ = uuid.Parse(str(m, "group_id"))
		a.ProductID, _ = uuid.Parse(str(m, "product_id"))
		out = append(out, a)
		return nil
	})
	return out, err
}

func (d *DynamoCollectionAdapter) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	return d.remove(ctx, d.assignmentsTable, "assignment_id", id)
}
