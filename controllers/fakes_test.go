package controllers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"ingest-service/archive"
	"ingest-service/common/middleware"
	"ingest-service/models"
	"ingest-service/progress"
	"ingest-service/services"
)

const testOwner = "owner-1"

func init() {
	gin.SetMode(gin.TestMode)
}

// asUser stands in for AuthMiddleware.
func asUser(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id != "" {
			c.Set(middleware.UserContextKey, id)
		}
		c.Next()
	}
}

type fakeProducts struct {
	mu          sync.Mutex
	products    map[uuid.UUID]*models.Product
	viewerCalls int
	deleted     []uuid.UUID
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{products: map[uuid.UUID]*models.Product{}}
}

func (f *fakeProducts) add(owner string) *models.Product {
	p := &models.Product{ID: uuid.New(), OwnerID: owner, Name: "Lamp", StoragePath: "https://cdn/" + owner, Configuration: map[string]interface{}{"uCount": 36}}
	f.products[p.ID] = p
	return p
}

func (f *fakeProducts) CreateProduct(_ context.Context, ownerID string, req services.ProductCreateRequest) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &models.Product{ID: uuid.New(), OwnerID: ownerID, Name: req.Name, Description: req.Description, CollectionID: req.CollectionID}
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeProducts) GetProduct(_ context.Context, id uuid.UUID, ownerID string) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, services.ErrProductNotFound
	}
	if p.OwnerID != ownerID {
		return nil, services.ErrForbidden
	}
	return p, nil
}

func (f *fakeProducts) GetViewer(_ context.Context, id uuid.UUID) (*services.ViewerPayload, error) {
	f.viewerCalls++
	p, ok := f.products[id]
	if !ok {
		return nil, services.ErrProductNotFound
	}
	return &services.ViewerPayload{StoragePath: p.StoragePath, Configuration: p.Configuration}, nil
}

func (f *fakeProducts) DeleteProduct(_ context.Context, id uuid.UUID, ownerID string) error {
	if p, ok := f.products[id]; ok && p.OwnerID != ownerID {
		return services.ErrForbidden
	}
	delete(f.products, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeIngest struct {
	mu          sync.Mutex
	validateErr error
	validate    func([]byte) error
	authErr     error
	ingestErr   error
	calls       []services.IngestRequest
	done        chan struct{}
}

func (f *fakeIngest) Validate(bundle []byte) error {
	if f.validate != nil {
		return f.validate(bundle)
	}
	return f.validateErr
}

func (f *fakeIngest) Authorize(_ context.Context, id uuid.UUID, owner string) (*models.Product, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &models.Product{ID: id, OwnerID: owner}, nil
}

// Ingest drives a real tracker so the emitted events follow the pipeline order.
func (f *fakeIngest) Ingest(_ context.Context, req services.IngestRequest, sink progress.Sink) (*services.IngestResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.done != nil {
		defer close(f.done)
	}

	tr := progress.NewTracker(sink)
	_ = tr.Extracting()
	if f.ingestErr != nil {
		tr.Fail(f.ingestErr)
		return nil, f.ingestErr
	}
	prefix := req.OwnerID + "/" + req.ProductID.String()
	paths := []string{prefix + "/img_1.png", prefix + "/img_2.png"}
	_ = tr.Extracted(2)
	_ = tr.Uploading(2, 2)
	_ = tr.ImagesUploaded(2, 2)
	_ = tr.UpdatingProduct()
	cover := "https://cdn/" + paths[0]
	constants := map[string]interface{}{"uCount": int64(36)}
	_ = tr.Complete(progress.Summary{
		Constants:      constants,
		UploadedImages: paths,
		ImageCount:     2,
		StoragePath:    "https://cdn/" + prefix,
		CoverImage:     &cover,
		TotalSizeMB:    0.01,
	})
	return &services.IngestResult{
		ProductID:          req.ProductID,
		Constants:          constants,
		UploadedAssetPaths: paths,
		AssetCount:         2,
		TotalAssets:        2,
		StoragePath:        "https://cdn/" + prefix,
		CoverImage:         &cover,
	}, nil
}

func (f *fakeIngest) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeJobs struct {
	jobs map[string]*services.Job
	err  error
}

func (f *fakeJobs) Enqueue(_ context.Context, productID uuid.UUID, ownerID string, _ []byte) (*services.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	job := &services.Job{ID: uuid.NewString(), ProductID: productID, OwnerID: ownerID, Status: services.JobQueued, CreatedAt: time.Now()}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) Get(_ context.Context, id string) (*services.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, services.ErrJobNotFound
	}
	return job, nil
}

type fakeCollections struct {
	req     services.CollectionRequest
	result  *services.CollectionResult
	err     error
	view    *services.CollectionView
	viewErr error
}

func (f *fakeCollections) GetCollection(_ context.Context, id uuid.UUID, ownerID string) (*services.CollectionView, error) {
	if f.viewErr != nil {
		return nil, f.viewErr
	}
	if f.view == nil || f.view.Collection.ID != id {
		return nil, services.ErrCollectionNotFound
	}
	if f.view.Collection.OwnerID != ownerID {
		return nil, services.ErrForbidden
	}
	return f.view, nil
}

func (f *fakeCollections) CreateCollection(_ context.Context, req services.CollectionRequest) (*services.CollectionResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestCache(t *testing.T) (*CacheManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCacheManager(rdb, time.Minute), mr
}

type formFile struct {
	field, name, contentType string
	data                     []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		var part io.Writer
		var err error
		if f.contentType == "" {
			part, err = w.CreateFormFile(f.field, f.name)
		} else {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
			h.Set("Content-Type", f.contentType)
			part, err = w.CreatePart(h)
		}
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

var errCorrupt = errors.Join(archive.ErrCorruptArchive, errors.New("zip: not a valid zip file"))
