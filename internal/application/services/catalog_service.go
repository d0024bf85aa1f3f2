package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/osamaflash/catalog/internal/domain/entities"
	"github.com/osamaflash/catalog/internal/infrastructure/logger"
	"github.com/osamaflash/catalog/internal/ports"
)

// CatalogService handles item and counter operations. Every mutation is a
// read-modify-write of whole documents, serialised by writeMu within this
// process.
type CatalogService struct {
	store   ports.DocumentStore
	events  ports.CatalogEvents
	logger  *logger.Logger
	now     func() time.Time
	writeMu sync.Mutex
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store ports.DocumentStore, events ports.CatalogEvents, logger *logger.Logger) *CatalogService {
	if events == nil {
		events = ports.NopEvents{}
	}
	return &CatalogService{
		store:  store,
		events: events,
		logger: logger.WithComponent("catalog"),
		now:    time.Now,
	}
}

// List returns the three documents as stored.
func (s *CatalogService) List(ctx context.Context) (*ports.CatalogSnapshot, error) {
	snapshot := &ports.CatalogSnapshot{}

	if err := s.store.Get(ctx, entities.DocumentItems, &snapshot.Items); err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	if err := s.store.Get(ctx, entities.DocumentStats, &snapshot.Stats); err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	if err := s.store.Get(ctx, entities.DocumentConfig, &snapshot.Config); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return snapshot, nil
}

// Document returns a single document by key.
func (s *CatalogService) Document(ctx context.Context, key entities.DocumentKey) (interface{}, error) {
	switch key {
	case entities.DocumentItems:
		var items []entities.Item
		err := s.store.Get(ctx, key, &items)
		return items, err
	case entities.DocumentStats:
		var stats entities.Stats
		err := s.store.Get(ctx, key, &stats)
		return stats, err
	case entities.DocumentConfig:
		var cfg entities.SiteConfig
		err := s.store.Get(ctx, key, &cfg)
		return cfg, err
	}
	return nil, fmt.Errorf("%w: %q", entities.ErrUnknownDocument, key)
}

// AddItem creates an item stamped with the current unix time and puts it at
// the head of the list. Two adds within the same second share an id.
func (s *CatalogService) AddItem(ctx context.Context, req ports.AddItemRequest) (entities.ItemID, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	items, err := s.loadItems(ctx)
	if err != nil {
		return 0, err
	}

	item := entities.Item{
		ID:          entities.ItemID(s.now().Unix()),
		Name:        req.Name,
		Type:        req.Type,
		Icon:        req.Icon,
		ReleaseDate: req.ReleaseDate,
		Description: req.Description,
		URL:         req.URL,
	}

	items = append([]entities.Item{item}, items...)

	if err := s.saveItems(ctx, items); err != nil {
		return 0, err
	}

	s.events.ItemAdded()
	s.logger.Infow("Item added", "item_id", item.ID, "name", item.Name, "type", item.Type)

	return item.ID, nil
}

// UpdateItem merges the supplied fields over the first item with a matching
// id. It reports whether such an item existed.
func (s *CatalogService) UpdateItem(ctx context.Context, req ports.UpdateItemRequest) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	items, err := s.loadItems(ctx)
	if err != nil {
		return false, err
	}

	idx := entities.FindItem(items, req.ID)
	if idx < 0 {
		return false, nil
	}

	merged, err := items[idx].Merge(req.Fields)
	if err != nil {
		return false, fmt.Errorf("failed to merge item %s: %w", req.ID, err)
	}
	items[idx] = merged

	if err := s.saveItems(ctx, items); err != nil {
		return false, err
	}

	s.logger.Infow("Item updated", "item_id", req.ID, "fields", len(req.Fields))

	return true, nil
}

// DeleteItem removes every item with the id. The list is written back even
// when nothing matched.
func (s *CatalogService) DeleteItem(ctx context.Context, id entities.ItemID) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	items, err := s.loadItems(ctx)
	if err != nil {
		return 0, err
	}

	kept, removed := entities.RemoveItems(items, id)

	if err := s.saveItems(ctx, kept); err != nil {
		return 0, err
	}

	if removed > 0 {
		s.events.ItemsDeleted(removed)
	}
	s.logger.Infow("Items deleted", "item_id", id, "removed", removed)

	return removed, nil
}

// IncrementDownload bumps the item's download counter (first match) and the
// site total. The site total moves even when no item matched.
func (s *CatalogService) IncrementDownload(ctx context.Context, id entities.ItemID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	items, err := s.loadItems(ctx)
	if err != nil {
		return err
	}

	idx := entities.FindItem(items, id)
	if idx >= 0 {
		items[idx].Downloads++
	}
	if err := s.saveItems(ctx, items); err != nil {
		return err
	}

	stats, err := s.loadStats(ctx)
	if err != nil {
		return err
	}
	stats.TotalDownloads++
	if err := s.saveStats(ctx, stats); err != nil {
		return err
	}

	s.events.Downloaded(idx >= 0)

	return nil
}

// IncrementVisitor bumps the visitor counter.
func (s *CatalogService) IncrementVisitor(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stats, err := s.loadStats(ctx)
	if err != nil {
		return err
	}
	stats.Visitors++
	if err := s.saveStats(ctx, stats); err != nil {
		return err
	}

	s.events.Visited()

	return nil
}

// RateItem records one vote per user per item.
func (s *CatalogService) RateItem(ctx context.Context, req ports.RateItemRequest) (*ports.RateResult, error) {
	if err := entities.ValidateVote(req.Val, req.UserID); err != nil {
		s.events.Rated(ports.RateRejected)
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	items, err := s.loadItems(ctx)
	if err != nil {
		return nil, err
	}

	idx := entities.FindItem(items, req.ID)
	if idx < 0 {
		s.events.Rated(ports.RateNotFound)
		return nil, fmt.Errorf("rate item %s: %w", req.ID, entities.ErrItemNotFound)
	}

	item := &items[idx]
	if !item.ApplyVote(req.Val, req.UserID) {
		s.events.Rated(ports.RateAlreadyRated)
		return &ports.RateResult{Success: false, AlreadyRated: true}, nil
	}

	if err := s.saveItems(ctx, items); err != nil {
		return nil, err
	}

	s.events.Rated(ports.RateAccepted)
	s.logger.Debugw("Item rated", "item_id", req.ID, "rating", item.Rating, "rating_count", item.RatingCount)

	return &ports.RateResult{
		Success:     true,
		Rating:      item.Rating,
		RatingCount: item.RatingCount,
	}, nil
}

// ResetItemStats zeroes the counters of the first matching item.
func (s *CatalogService) ResetItemStats(ctx context.Context, id entities.ItemID) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	items, err := s.loadItems(ctx)
	if err != nil {
		return false, err
	}

	idx := entities.FindItem(items, id)
	if idx < 0 {
		return false, nil
	}
	items[idx].ResetStats()

	if err := s.saveItems(ctx, items); err != nil {
		return false, err
	}

	s.logger.Infow("Item stats reset", "item_id", id)

	return true, nil
}

func (s *CatalogService) loadItems(ctx context.Context) ([]entities.Item, error) {
	var items []entities.Item
	if err := s.store.Get(ctx, entities.DocumentItems, &items); err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	return items, nil
}

func (s *CatalogService) saveItems(ctx context.Context, items []entities.Item) error {
	if items == nil {
		items = []entities.Item{}
	}
	if err := s.store.Save(ctx, entities.DocumentItems, items); err != nil {
		return fmt.Errorf("failed to save items: %w", err)
	}
	return nil
}

func (s *CatalogService) loadStats(ctx context.Context) (entities.Stats, error) {
	var stats entities.Stats
	if err := s.store.Get(ctx, entities.DocumentStats, &stats); err != nil {
		return stats, fmt.Errorf("failed to load stats: %w", err)
	}
	return stats, nil
}

func (s *CatalogService) saveStats(ctx context.Context, stats entities.Stats) error {
	if err := s.store.Save(ctx, entities.DocumentStats, stats); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}
