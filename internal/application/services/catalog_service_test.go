package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osamaflash/catalog/internal/adapters/repository"
	"github.com/osamaflash/catalog/internal/domain/entities"
	"github.com/osamaflash/catalog/internal/infrastructure/logger"
	"github.com/osamaflash/catalog/internal/ports"
)

var _ ports.CatalogService = (*CatalogService)(nil)

func newTestStore(t *testing.T) ports.DocumentStore {
	t.Helper()

	backend, err := repository.NewFileBackend(afero.NewMemMapFs(), "/material")
	require.NoError(t, err)

	return repository.NewDocumentStore(backend, entities.Defaults{SiteTitle: "Osama Flash", AboutContent: "about"}, logger.NewNop())
}

type recordedEvents struct {
	mu        sync.Mutex
	added     int
	deleted   int
	downloads []bool
	ratings   []string
	visits    int
}

func (e *recordedEvents) ItemAdded() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.added++
}

func (e *recordedEvents) ItemsDeleted(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted += n
}

func (e *recordedEvents) Visited() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visits++
}

func (e *recordedEvents) Downloaded(found bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.downloads = append(e.downloads, found)
}

func (e *recordedEvents) Rated(result string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ratings = append(e.ratings, result)
}

func newCatalog(t *testing.T) (*CatalogService, *recordedEvents) {
	t.Helper()

	events := &recordedEvents{}
	svc := NewCatalogService(newTestStore(t), events, logger.NewNop())
	return svc, events
}

// fixedClock returns successive unix seconds starting at start.
func fixedClock(start int64) func() time.Time {
	next := start
	return func() time.Time {
		ts := time.Unix(next, 0)
		next++
		return ts
	}
}

func fooRequest() ports.AddItemRequest {
	return ports.AddItemRequest{
		Name:        "Foo",
		Type:        entities.ItemTypeApp,
		Icon:        "x",
		ReleaseDate: "2024-01-01",
		Description: "d",
		URL:         "u",
	}
}

func TestAddItemOnEmptyStore(t *testing.T) {
	svc, events := newCatalog(t)
	svc.now = fixedClock(1704067200)
	ctx := context.Background()

	id, err := svc.AddItem(ctx, fooRequest())
	require.NoError(t, err)
	assert.Equal(t, entities.ItemID(1704067200), id)

	snapshot, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Items, 1)

	item := snapshot.Items[0]
	assert.Equal(t, id, item.ID)
	assert.Equal(t, "Foo", item.Name)
	assert.Equal(t, 0, item.Downloads)
	assert.Equal(t, 0.0, item.Rating)
	assert.Equal(t, 0, item.RatingCount)
	assert.Equal(t, 0, item.Likes)
	assert.Equal(t, 0, item.Dislikes)
	assert.Equal(t, 1, events.added)
}

func TestAddItemPrependsNewest(t *testing.T) {
	svc, _ := newCatalog(t)
	svc.now = fixedClock(100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req := fooRequest()
		req.Name = fmt.Sprintf("item-%d", i)
		_, err := svc.AddItem(ctx, req)
		require.NoError(t, err)
	}

	snapshot, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Items, 3)
	assert.Equal(t, "item-2", snapshot.Items[0].Name)
	assert.Equal(t, entities.ItemID(102), snapshot.Items[0].ID)
	assert.Equal(t, "item-0", snapshot.Items[2].Name)
}

func TestAddItemSameSecondSharesID(t *testing.T) {
	svc, _ := newCatalog(t)
	svc.now = func() time.Time { return time.Unix(500, 0) }
	ctx := context.Background()

	first, err := svc.AddItem(ctx, fooRequest())
	require.NoError(t, err)
	second, err := svc.AddItem(ctx, fooRequest())
	require.NoError(t, err)

	assert.Equal(t, first, second)

	snapshot, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot.Items, 2)
}

func TestListInitialisesDefaults(t *testing.T) {
	svc, _ := newCatalog(t)

	snapshot, err := svc.List(context.Background())
	require.NoError(t, err)

	assert.Empty(t, snapshot.Items)
	assert.Equal(t, entities.Stats{}, snapshot.Stats)
	assert.Equal(t, "Osama Flash", snapshot.Config.SiteTitle)
	assert.Equal(t, "", snapshot.Config.AdminPass)
}

func TestUpdateItem(t *testing.T) {
	svc, _ := newCatalog(t)
	svc.now = fixedClock(1000)
	ctx := context.Background()

	id, err := svc.AddItem(ctx, fooRequest())
	require.NoError(t, err)

	found, err := svc.UpdateItem(ctx, ports.UpdateItemRequest{
		ID: id,
		Fields: map[string]json.RawMessage{
			"id":        json.RawMessage(`1000`),
			"name":      json.RawMessage(`"Renamed"`),
			"downloads": json.RawMessage(`42`),
		},
	})
	require.NoError(t, err)
	assert.True(t, found)

	snapshot, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", snapshot.Items[0].Name)
	assert.Equal(t, 42, snapshot.Items[0].Downloads)
	assert.Equal(t, "u", snapshot.Items[0].URL)

	found, err = svc.UpdateItem(ctx, ports.UpdateItemRequest{ID: 999, Fields: map[string]json.RawMessage{"name": json.RawMessage(`"x"`)}})
	require.NoError(t, err)
	assert.False(t, found)

	_, err = svc.UpdateItem(ctx, ports.UpdateItemRequest{ID: id, Fields: map[string]json.RawMessage{"rating": json.RawMessage(`"high"`)}})
	assert.True(t, errors.Is(err, entities.ErrInvalidInput))
}

func TestDeleteItem(t *testing.T) {
	svc, events := newCatalog(t)
	svc.now = func() time.Time { return time.Unix(77, 0) }
	ctx := context.Background()

	_, err := svc.AddItem(ctx, fooRequest())
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, fooRequest())
	require.NoError(t, err)

	removed, err := svc.DeleteItem(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, events.deleted)

	removed, err = svc.DeleteItem(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	snapshot, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Items)
}

func TestIncrementDownload(t *testing.T) {
	svc, events := newCatalog(t)
	svc.now = fixedClock(10)
	ctx := context.Background()

	id, err := svc.AddItem(ctx, fooRequest())
	require.NoError(t, err)

	require.NoError(t, svc.IncrementDownload(ctx, id))
	require.NoError(t, svc.IncrementDownload(ctx, id))
	require.NoError(t, svc.IncrementDownload(ctx, 424242))

	snapshot, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.Items[0].Downloads)
	assert.Equal(t, 3, snapshot.Stats.TotalDownloads, "site total counts unmatched ids too")
	assert.Equal(t, []bool{true, true, false}, events.downloads)
}

func TestIncrementVisitor(t *testing.T) {
	svc, events := newCatalog(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, svc.IncrementVisitor(ctx))
	}

	snapshot, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, snapshot.Stats.Visitors)
	assert.Equal(t, 0, snapshot.Stats.TotalDownloads)
	assert.Equal(t, 4, events.visits)
}

func TestRateItemScenario(t *testing.T) {
	svc, _ := newCatalog(t)
	ctx := context.Background()

	seed := []entities.Item{{ID: 1, Name: "Foo", Rating: 4.0, RatingCount: 1, RatedBy: []string{"u1"}}}
	require.NoError(t, svc.store.Save(ctx, entities.DocumentItems, seed))

	result, err := svc.RateItem(ctx, ports.RateItemRequest{ID: 1, Val: 5, UserID: "u2"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 4.5, result.Rating)
	assert.Equal(t, 2, result.RatingCount)
}

func TestRateItemMeanOverDistinctUsers(t *testing.T) {
	svc, _ := newCatalog(t)
	ctx := context.Background()
	require.NoError(t, svc.store.Save(ctx, entities.DocumentItems, []entities.Item{{ID: 9}}))

	votes := []int{5, 3, 4, 1, 2, 5, 5}
	want := 0.0
	for i, v := range votes {
		result, err := svc.RateItem(ctx, ports.RateItemRequest{ID: 9, Val: v, UserID: fmt.Sprintf("user-%d", i)})
		require.NoError(t, err)
		require.True(t, result.Success)

		want = entities.RoundRating((want*float64(i) + float64(v)) / float64(i+1))
		assert.Equal(t, want, result.Rating)
		assert.Equal(t, i+1, result.RatingCount)
	}

	snapshot, err := svc.List(ctx)
	require.NoError(t, err)
	item := snapshot.Items[0]
	assert.Equal(t, len(votes), item.RatingCount)
	assert.Len(t, item.RatedBy, item.RatingCount)
	assert.InDelta(t, 25.0/7.0, item.Rating, 0.01)
}

func TestRateItemAlreadyRated(t *testing.T) {
	svc, events := newCatalog(t)
	ctx := context.Background()
	require.NoError(t, svc.store.Save(ctx, entities.DocumentItems, []entities.Item{{ID: 3}}))

	_, err := svc.RateItem(ctx, ports.RateItemRequest{ID: 3, Val: 4, UserID: "same"})
	require.NoError(t, err)

	result, err := svc.RateItem(ctx, ports.RateItemRequest{ID: 3, Val: 1, UserID: "same"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, result.AlreadyRated)
	assert.Equal(t, ports.RateResult{Success: false, AlreadyRated: true}, *result)

	snapshot, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, snapshot.Items[0].Rating)
	assert.Equal(t, 1, snapshot.Items[0].RatingCount)
	assert.Equal(t, []string{ports.RateAccepted, ports.RateAlreadyRated}, events.ratings)
}

func TestRateItemInvalidInput(t *testing.T) {
	svc, _ := newCatalog(t)
	ctx := context.Background()
	seed := []entities.Item{{ID: 3, Rating: 2, RatingCount: 1, RatedBy: []string{"a"}}}
	require.NoError(t, svc.store.Save(ctx, entities.DocumentItems, seed))

	for _, req := range []ports.RateItemRequest{
		{ID: 3, Val: 0, UserID: "u"},
		{ID: 3, Val: 6, UserID: "u"},
		{ID: 3, Val: 3, UserID: ""},
	} {
		_, err := svc.RateItem(ctx, req)
		assert.True(t, errors.Is(err, entities.ErrInvalidInput), "request %+v", req)
	}

	snapshot, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, seed[0].Rating, snapshot.Items[0].Rating)
	assert.Equal(t, seed[0].RatingCount, snapshot.Items[0].RatingCount)
}

func TestRateItemNotFound(t *testing.T) {
	svc, _ := newCatalog(t)

	_, err := svc.RateItem(context.Background(), ports.RateItemRequest{ID: 404, Val: 3, UserID: "u"})
	assert.True(t, errors.Is(err, entities.ErrItemNotFound))
}

func TestResetItemStats(t *testing.T) {
	svc, _ := newCatalog(t)
	ctx := context.Background()
	seed := []entities.Item{{ID: 5, Name: "Keep", Rating: 3, RatingCount: 2, Downloads: 10, RatedBy: []string{"a", "b"}}}
	require.NoError(t, svc.store.Save(ctx, entities.DocumentItems, seed))

	ok, err := svc.ResetItemStats(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	snapshot, err := svc.List(ctx)
	require.NoError(t, err)
	item := snapshot.Items[0]
	assert.Equal(t, "Keep", item.Name)
	assert.Zero(t, item.Downloads)
	assert.Zero(t, item.RatingCount)
	assert.Empty(t, item.RatedBy)

	// the same user may vote again after a reset
	result, err := svc.RateItem(ctx, ports.RateItemRequest{ID: 5, Val: 2, UserID: "a"})
	require.NoError(t, err)
	assert.True(t, result.Success)

	ok, err = svc.ResetItemStats(ctx, 6)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentRatingsAreNotLost(t *testing.T) {
	svc, _ := newCatalog(t)
	ctx := context.Background()
	require.NoError(t, svc.store.Save(ctx, entities.DocumentItems, []entities.Item{{ID: 1}}))

	const voters = 25
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.RateItem(ctx, ports.RateItemRequest{ID: 1, Val: 5, UserID: fmt.Sprintf("v%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snapshot, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, voters, snapshot.Items[0].RatingCount)
	assert.Equal(t, 5.0, snapshot.Items[0].Rating)
}

func TestDocument(t *testing.T) {
	svc, _ := newCatalog(t)
	ctx := context.Background()

	doc, err := svc.Document(ctx, entities.DocumentStats)
	require.NoError(t, err)
	assert.Equal(t, entities.Stats{}, doc)

	_, err = svc.Document(ctx, "secrets")
	assert.True(t, errors.Is(err, entities.ErrUnknownDocument))
}

type failingStore struct {
	ports.DocumentStore
	err error
}

func (f failingStore) Get(ctx context.Context, key entities.DocumentKey, dst interface{}) error {
	return f.err
}

func TestStoreFailuresPropagate(t *testing.T) {
	boom := errors.New("disk on fire")
	svc := NewCatalogService(failingStore{err: boom}, nil, logger.NewNop())
	ctx := context.Background()

	_, err := svc.List(ctx)
	assert.ErrorIs(t, err, boom)

	err = svc.IncrementVisitor(ctx)
	assert.ErrorIs(t, err, boom)

	_, err = svc.AddItem(ctx, fooRequest())
	assert.ErrorIs(t, err, boom)
}
