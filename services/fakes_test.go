package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"ingest-service/models"
	"ingest-service/progress"
	"ingest-service/repository"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

type fakeProductRepo struct {
	mu        sync.Mutex
	products  map[uuid.UUID]*models.Product
	createErr map[string]error
	updateErr error
	updates   int
	deletes   map[uuid.UUID]int
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{
		products:  map[uuid.UUID]*models.Product{},
		createErr: map[string]error{},
		deletes:   map[uuid.UUID]int{},
	}
}

func (f *fakeProductRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProductRepo) FindByCollection(_ context.Context, collectionID uuid.UUID) ([]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Product
	for _, p := range f.products {
		if p.CollectionID != nil && *p.CollectionID == collectionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductRepo) Create(_ context.Context, p *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[p.Name]; err != nil {
		return err
	}
	cp := *p
	f.products[p.ID] = &cp
	return nil
}

func (f *fakeProductRepo) UpdateIngestion(_ context.Context, id uuid.UUID, u models.IngestionUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	p, ok := f.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Configuration = u.Configuration
	p.StoragePath = u.StoragePath
	p.CoverImage = u.CoverImage
	p.Images = u.Images
	p.TotalSizeMB = u.TotalSizeMB
	p.UpdatedAt = u.UpdatedAt
	return nil
}

func (f *fakeProductRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes[id]++
	delete(f.products, id)
	return nil
}

func (f *fakeProductRepo) add(owner string) *models.Product {
	p := &models.Product{ID: uuid.New(), OwnerID: owner, Name: "sofa"}
	f.mu.Lock()
	f.products[p.ID] = p
	f.mu.Unlock()
	return p
}

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failPut   map[string]bool
	deleteErr error
	deleted   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, failPut: map[string]bool{}}
}

func (f *fakeStore) Put(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for suffix := range f.failPut {
		if strings.HasSuffix(key, "/"+suffix) {
			return errors.New("SlowDown: rate exceeded")
		}
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStore) Delete(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, k := range keys {
		f.deleted = append(f.deleted, k)
		delete(f.objects, k)
	}
	return nil
}

func (f *fakeStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Strings(keys)
	return len(keys), f.Delete(ctx, keys)
}

func (f *fakeStore) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) Emit(e progress.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) last() progress.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

type countingRecorder struct {
	mu        sync.Mutex
	runs      map[string]int
	rollbacks int
}

func (r *countingRecorder) RunFinished(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs == nil {
		r.runs = map[string]int{}
	}
	r.runs[result]++
}

func (r *countingRecorder) RollbackFinished(int) {
	r.mu.Lock()
	r.rollbacks++
	r.mu.Unlock()
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, eventType string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return p.err
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated []uuid.UUID
}

func (c *fakeCache) InvalidateProduct(_ context.Context, id uuid.UUID) {
	c.mu.Lock()
	c.invalidated = append(c.invalidated, id)
	c.mu.Unlock()
}

func buildBundle(t *testing.T, files map[string]string, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	if len(order) == 0 {
		for name := range files {
			order = append(order, name)
		}
		sort.Strings(order)
	}
	for _, name := range order {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// bundleWithImages builds a bundle with n numbered images and a config doc.
func bundleWithImages(t *testing.T, n int, doc string) []byte {
	t.Helper()
	files := map[string]string{
		"viewer.html":       doc,
		"instructions.html": "<p>read me</p>",
		"ks_logo.png":       "logo",
	}
	for i := 0; i < n; i++ {
		files[fmt.Sprintf("images/img_%d.png", i)] = fmt.Sprintf("image-%d", i)
	}
	return buildBundle(t, files)
}
