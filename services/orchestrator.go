package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ingest-service/models"
	"ingest-service/progress"
	"ingest-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is a step of a collection creation run.
type State int

const (
	StatePending State = iota
	StateParentCreated
	StateChildrenCreated
	StateAssetsIngested
	StateGroupsCreated
	StateAssignmentsApplied
	StateDone
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateParentCreated:
		return "parent-created"
	case StateChildrenCreated:
		return "children-created"
	case StateAssetsIngested:
		return "assets-ingested"
	case StateGroupsCreated:
		return "groups-created"
	case StateAssignmentsApplied:
		return "assignments-applied"
	case StateDone:
		return "done"
	case StateRolledBack:
		return "rolled-back"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ProductManager creates and cascade-deletes products.
type ProductManager interface {
	CreateProduct(ctx context.Context, ownerID string, req ProductCreateRequest) (*models.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID, ownerID string) error
}

// BundleIngester runs the ingestion pipeline for one product.
type BundleIngester interface {
	Ingest(ctx context.Context, req IngestRequest, sink progress.Sink) (*IngestResult, error)
}

type ChildSpec struct {
	Name        string
	Description string
	Bundle      []byte
}

// GroupSpec names a group and the indexes of the children it contains.
type GroupSpec struct {
	Name     string
	Products []int
}

type CollectionRequest struct {
	OwnerID  string
	Name     string
	Products []ChildSpec
	Groups   []GroupSpec
}

type CollectionResult struct {
	Collection  *models.Collection  `json:"collection"`
	Products    []*models.Product   `json:"products"`
	Ingestions  []*IngestResult     `json:"ingestions"`
	Groups      []models.Group      `json:"groups"`
	Assignments []models.Assignment `json:"assignments"`
}

// RollbackReport summarizes a compensation pass.
type RollbackReport struct {
	Attempted int      `json:"attempted"`
	Failures  []string `json:"failures,omitempty"`
}

// OrchestrationError is the single error surfaced for a failed run after
// compensation was attempted.
type OrchestrationError struct {
	Step     State
	Err      error
	Rollback RollbackReport
}

func (e *OrchestrationError) Error() string {
	msg := fmt.Sprintf("collection creation failed after %s: %v; rolled back %d resources",
		e.Step, e.Err, e.Rollback.Attempted)
	if n := len(e.Rollback.Failures); n > 0 {
		msg += fmt.Sprintf(" (%d deletes failed: %s)", n, strings.Join(e.Rollback.Failures, "; "))
	}
	return msg
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

type compensation struct {
	kind string
	id   uuid.UUID
	undo func(ctx context.Context) error
}

// CompensatingLog records created resources so a failed run can delete them.
type CompensatingLog struct {
	entries []compensation
}

func (l *CompensatingLog) Record(kind string, id uuid.UUID, undo func(ctx context.Context) error) {
	l.entries = append(l.entries, compensation{kind: kind, id: id, undo: undo})
}

func (l *CompensatingLog) Len() int { return len(l.entries) }

// Rollback undoes every entry once, newest first. A failing undo is logged
// and the pass continues.
func (l *CompensatingLog) Rollback(ctx context.Context) RollbackReport {
	report := RollbackReport{}
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		report.Attempted++
		if err := e.undo(ctx); err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("%s %s: %v", e.kind, e.id, err))
			zap.L().Error("Compensating delete failed",
				zap.String("kind", e.kind),
				zap.String("id", e.id.String()),
				zap.Error(err))
		}
	}
	l.entries = nil
	return report
}

// Orchestrator creates a collection with its products, groups and
// assignments, and rolls everything back on a structural failure.
type Orchestrator struct {
	collections repository.CollectionRepo
	products    ProductManager
	ingester    BundleIngester
	publisher   Publisher
	recorder    RunRecorder
	now         func() time.Time
}

func NewOrchestrator(collections repository.CollectionRepo, products ProductManager, ingester BundleIngester, publisher Publisher, recorder RunRecorder) *Orchestrator {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Orchestrator{
		collections: collections,
		products:    products,
		ingester:    ingester,
		publisher:   publisher,
		recorder:    recorder,
		now:         time.Now,
	}
}

// Validate checks the request shape before anything is created.
func (r CollectionRequest) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidManifest)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidManifest)
	}
	if len(r.Products) == 0 {
		return fmt.Errorf("%w: at least one product is required", ErrInvalidManifest)
	}
	for i, p := range r.Products {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: product %d has no name", ErrInvalidManifest, i)
		}
	}
	for _, g := range r.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("%w: group without name", ErrInvalidManifest)
		}
		for _, idx := range g.Products {
			if idx < 0 || idx >= len(r.Products) {
				return fmt.Errorf("%w: group %q references product %d", ErrInvalidManifest, g.Name, idx)
			}
		}
	}
	return nil
}

// CreateCollection runs the creation state machine. On failure every
// resource created so far is deleted and an *OrchestrationError is returned.
func (o *Orchestrator) CreateCollection(ctx context.Context, req CollectionRequest) (*CollectionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := &collectionRun{o: o, req: req, log: &CompensatingLog{}, result: &CollectionResult{}}
	steps := []struct {
		next State
		fn   func(context.Context) error
	}{
		{StateParentCreated, run.createParent},
		{StateChildrenCreated, run.createChildren},
		{StateAssetsIngested, run.ingestChildren},
		{StateGroupsCreated, run.createGroups},
		{StateAssignmentsApplied, run.applyAssignments},
	}

	state := StatePending
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return nil, o.rollback(ctx, run, state, err)
		}
		state = step.next
	}

	zap.L().Info("Collection created",
		zap.String("collection_id", run.result.Collection.ID.String()),
		zap.String("owner_id", req.OwnerID),
		zap.Int("products", len(run.result.Products)),
		zap.Int("groups", len(run.result.Groups)),
		zap.String("state", StateDone.String()))
	return run.result, nil
}

func (o *Orchestrator) rollback(ctx context.Context, run *collectionRun, state State, cause error) error {
	fields := []zap.Field{
		zap.String("owner_id", run.req.OwnerID),
		zap.String("state", state.String()),
		zap.Int("resources", run.log.Len()),
		zap.Error(cause),
	}
	if run.result.Collection != nil {
		fields = append(fields, zap.String("collection_id", run.result.Collection.ID.String()))
	}
	zap.L().Error("Collection creation failed, rolling back", fields...)

	// compensation must run even if the caller went away
	rctx := context.WithoutCancel(ctx)
	report := run.log.Rollback(rctx)
	o.recorder.RollbackFinished(len(report.Failures))

	payload := map[string]interface{}{
		"owner_id":          run.req.OwnerID,
		"failed_after":      state.String(),
		"error":             cause.Error(),
		"attempted":         report.Attempted,
		"rollback_failures": len(report.Failures),
	}
	if run.result.Collection != nil {
		payload["collection_id"] = run.result.Collection.ID.String()
	}
	if err := o.publisher.Publish(rctx, EventCollectionRolledBack, payload); err != nil {
		zap.L().Warn("Failed to publish rollback event", zap.Error(err))
	}
	return &OrchestrationError{Step: state, Err: cause, Rollback: report}
}

type collectionRun struct {
	o      *Orchestrator
	req    CollectionRequest
	log    *CompensatingLog
	result *CollectionResult
}

func (r *collectionRun) createParent(ctx context.Context) error {
	c := &models.Collection{
		ID:        uuid.New(),
		OwnerID:   r.req.OwnerID,
		Name:      r.req.Name,
		CreatedAt: r.o.now().UTC(),
	}
	if err := r.o.collections.CreateCollection(ctx, c); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	r.result.Collection = c
	r.log.Record("collection", c.ID, func(ctx context.Context) error {
		return r.o.collections.DeleteCollection(ctx, c.ID)
	})
	return nil
}

func (r *collectionRun) createChildren(ctx context.Context) error {
	collectionID := r.result.Collection.ID
	for i, item := range r.req.Products {
		p, err := r.o.products.CreateProduct(ctx, r.req.OwnerID, ProductCreateRequest{
			Name:         item.Name,
			Description:  item.Description,
			CollectionID: &collectionID,
		})
		if err != nil {
			return fmt.Errorf("create product %d (%s): %w", i, item.Name, err)
		}
		r.result.Products = append(r.result.Products, p)
		id := p.ID
		r.log.Record("product", id, func(ctx context.Context) error {
			return r.o.products.DeleteProduct(ctx, id, r.req.OwnerID)
		})
	}
	return nil
}

// ingestChildren runs each child's bundle. Individual asset failures are
// tolerated; a child with no uploaded asset at all fails the run.
func (r *collectionRun) ingestChildren(ctx context.Context) error {
	r.result.Ingestions = make([]*IngestResult, len(r.req.Products))
	for i, item := range r.req.Products {
		if len(item.Bundle) == 0 {
			continue
		}
		p := r.result.Products[i]
		log := zap.L().With(zap.String("product_id", p.ID.String()), zap.Int("child", i))
		sink := progress.SinkFunc(func(e progress.Event) {
			log.Debug("Child ingestion progress", zap.String("phase", string(e.Phase)), zap.Int("percentage", e.Pct()))
		})
		res, err := r.o.ingester.Ingest(ctx, IngestRequest{ProductID: p.ID, OwnerID: r.req.OwnerID, Bundle: item.Bundle}, sink)
		if err != nil {
			return fmt.Errorf("ingest product %d (%s): %w", i, item.Name, err)
		}
		if res.TotalAssets > 0 && res.AssetCount == 0 {
			return fmt.Errorf("ingest product %d (%s): %w", i, item.Name, ErrIngestionFailed)
		}
		if len(res.Failed) > 0 {
			log.Warn("Child ingested with failed assets", zap.Int("failed", len(res.Failed)), zap.Int("uploaded", res.AssetCount))
		}
		r.result.Ingestions[i] = res
	}
	return nil
}

func (r *collectionRun) createGroups(ctx context.Context) error {
	for _, item := range r.req.Groups {
		g := models.Group{
			ID:           uuid.New(),
			CollectionID: r.result.Collection.ID,
			OwnerID:      r.req.OwnerID,
			Name:         item.Name,
			CreatedAt:    r.o.now().UTC(),
		}
		if err := r.o.collections.CreateGroup(ctx, &g); err != nil {
			return fmt.Errorf("create group %s: %w", item.Name, err)
		}
		r.result.Groups = append(r.result.Groups, g)
		id := g.ID
		r.log.Record("group", id, func(ctx context.Context) error {
			return r.o.collections.DeleteGroup(ctx, id)
		})
	}
	return nil
}

func (r *collectionRun) applyAssignments(ctx context.Context) error {
	for gi, item := range r.req.Groups {
		group := r.result.Groups[gi]
		for _, idx := range item.Products {
			a := models.Assignment{
				ID:        uuid.New(),
				GroupID:   group.ID,
				ProductID: r.result.Products[idx].ID,
				CreatedAt: r.o.now().UTC(),
			}
			if err := r.o.collections.CreateAssignment(ctx, &a); err != nil {
				return fmt.Errorf("assign product %d to group %s: %w", idx, item.Name, err)
			}
			r.result.Assignments = append(r.result.Assignments, a)
			id := a.ID
			r.log.Record("assignment", id, func(ctx context.Context) error {
				return r.o.collections.DeleteAssignment(ctx, id)
			})
		}
	}
	return nil
}
