package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ingest-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	fail     map[string]error
	keys     []string
	inFlight int
	maxSeen  int
	hold     time.Duration
}

func (f *fakeStore) Put(_ context.Context, key string, _ []byte, _ string) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if err, ok := f.fail[key]; ok {
		return err
	}
	f.keys = append(f.keys, key)
	return nil
}

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func assets(names ...string) []models.AssetItem {
	items := make([]models.AssetItem, 0, len(names))
	for _, n := range names {
		items = append(items, models.AssetItem{Name: n, Data: []byte(n), ContentType: "image/png"})
	}
	return items
}

func numbered(n int) []models.AssetItem {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("img_%d.png", i)
	}
	return assets(names...)
}

func TestSortAssets_NumericAware(t *testing.T) {
	items := assets("img_10.png", "img_2.png", "img_1.png", "img_0.png")
	SortAssets(items)

	var names []string
	for _, it := range items {
		names = append(names, it.Name)
	}
	assert.Equal(t, []string{"img_0.png", "img_1.png", "img_2.png", "img_10.png"}, names)
}

func TestCountStrategy_SevenByThree(t *testing.T) {
	batches := CountStrategy{Size: 3}.Partition(numbered(7))

	var sizes []int
	for _, b := range batches {
		sizes = append(sizes, len(b))
	}
	assert.Equal(t, []int{3, 3, 1}, sizes)
}

func TestSizeStrategy_NeverExceedsThresholdExceptSingletons(t *testing.T) {
	items := []models.AssetItem{
		{Name: "a", Data: make([]byte, 200)},
		{Name: "b", Data: make([]byte, 250)},
		{Name: "c", Data: make([]byte, 900)},
		{Name: "d", Data: make([]byte, 100)},
		{Name: "e", Data: make([]byte, 400)},
		{Name: "f", Data: make([]byte, 10)},
	}
	const limit = 500

	batches := SizeStrategy{MaxBytes: limit}.Partition(items)

	count := 0
	for _, b := range batches {
		var total int64
		for _, it := range b {
			total += it.Size()
		}
		count += len(b)
		if total > limit {
			assert.Len(t, b, 1, "only a lone oversized item may exceed the threshold")
		}
	}
	assert.Equal(t, len(items), count)
	require.Len(t, batches, 4)
	assert.Equal(t, "c", batches[1][0].Name)
}

func TestRun_AllSucceed(t *testing.T) {
	store := &fakeStore{}
	sleeper := &sleepRecorder{}
	c := NewCoordinator(store, CountStrategy{Size: 3}, 300*time.Millisecond, WithSleep(sleeper.sleep))

	var reports []BatchReport
	res, err := c.Run(context.Background(), "owner/prod", numbered(5), func(r BatchReport) {
		reports = append(reports, r)
	})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Uploaded)
	assert.Equal(t, "owner/prod/img_0.png", res.CoverPath)
	assert.ElementsMatch(t, []string{
		"owner/prod/img_0.png", "owner/prod/img_1.png", "owner/prod/img_2.png",
		"owner/prod/img_3.png", "owner/prod/img_4.png",
	}, res.UploadedPaths)

	require.Len(t, reports, 2)
	assert.Equal(t, 3, reports[0].Uploaded)
	assert.Equal(t, 5, reports[1].Uploaded)
	assert.Equal(t, 5, reports[1].Total)

	// pacing only between batches
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, sleeper.calls)
}

func TestRun_FailedItemIsNotFatal(t *testing.T) {
	store := &fakeStore{fail: map[string]error{"p/img_4.png": errors.New("503 slow down")}}
	sleeper := &sleepRecorder{}
	c := NewCoordinator(store, CountStrategy{Size: 3}, time.Second, WithSleep(sleeper.sleep))

	res, err := c.Run(context.Background(), "p", numbered(7), nil)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Uploaded)
	assert.Equal(t, 7, res.Total)
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "img_4.png", failed[0].Name)
	assert.Equal(t, 1, failed[0].Batch)
	assert.Contains(t, failed[0].Error, "slow down")
	assert.NotContains(t, res.UploadedPaths, "p/img_4.png")
	assert.Len(t, sleeper.calls, 2)
}

func TestRun_CoverSkipsFailedLeadingAssets(t *testing.T) {
	store := &fakeStore{fail: map[string]error{
		"p/img_0.png": errors.New("denied"),
		"p/img_1.png": errors.New("denied"),
	}}
	c := NewCoordinator(store, CountStrategy{Size: 3}, 0)

	res, err := c.Run(context.Background(), "p", numbered(4), nil)
	require.NoError(t, err)
	assert.Equal(t, "p/img_2.png", res.CoverPath)
}

func TestRun_ConcurrencyBoundedByBatch(t *testing.T) {
	store := &fakeStore{hold: 20 * time.Millisecond}
	c := NewCoordinator(store, CountStrategy{Size: 3}, 0)

	_, err := c.Run(context.Background(), "p", numbered(9), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, store.maxSeen, 3)
	assert.GreaterOrEqual(t, store.maxSeen, 1)
}

func TestRun_EmptyItems(t *testing.T) {
	c := NewCoordinator(&fakeStore{}, CountStrategy{Size: 3}, 0)
	res, err := c.Run(context.Background(), "p", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, res.CoverPath)

	strict := NewCoordinator(&fakeStore{}, CountStrategy{Size: 3}, 0, WithRequireAssets(true))
	_, err = strict.Run(context.Background(), "p", nil, nil)
	assert.ErrorIs(t, err, ErrNoAssets)
}

func TestRun_TransportDownAborts(t *testing.T) {
	down := fmt.Errorf("dial tcp: %w", ErrTransportUnavailable)
	store := &fakeStore{fail: map[string]error{
		"p/img_0.png": down, "p/img_1.png": down, "p/img_2.png": down,
	}}
	sleeper := &sleepRecorder{}
	c := NewCoordinator(store, CountStrategy{Size: 3}, time.Second, WithSleep(sleeper.sleep))

	res, err := c.Run(context.Background(), "p", numbered(6), nil)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Uploaded)
	assert.Len(t, res.Outcomes, 3)
	assert.Empty(t, sleeper.calls)
}

func TestRun_PacingHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCoordinator(&fakeStore{}, CountStrategy{Size: 1}, time.Hour)

	res, err := c.Run(ctx, "p", numbered(2), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Uploaded)
}
