// Package backpack keeps the collectibles each user has found in front of the persistent inventory.
package backpack

import (
	"context"
	"log/slog"
	"sync"

	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/models"
	"github.com/myrjola/misterio/internal/repositories"
)

// Inventory is the persistent store of found collectibles. InsertInventory fails with repositories.ErrConflict
// when the user already owns the collectible.
type Inventory interface {
	ListInventory(ctx context.Context, userID string) ([]models.InventoryItem, error)
	InsertInventory(ctx context.Context, userID string, c models.Collectible) (models.InventoryItem, error)
}

// LegacyCache is the backpack older clients kept locally. Read returns nil when there is nothing to migrate.
type LegacyCache interface {
	Read(ctx context.Context, userID string) ([]models.Collectible, error)
	Clear(ctx context.Context, userID string) error
}

type inFlightKey struct {
	userID        string
	collectibleID string
}

// Store is the idempotent backpack. Every write is keyed by collectible ID, so adds and legacy migration can run
// in any order without duplicating items.
type Store struct {
	inventory Inventory
	legacy    LegacyCache
	logger    *slog.Logger

	mu       sync.Mutex
	items    map[string]map[string]models.InventoryItem
	inFlight map[inFlightKey]chan struct{}
}

func NewStore(inventory Inventory, legacy LegacyCache, logger *slog.Logger) *Store {
	return &Store{
		inventory: inventory,
		legacy:    legacy,
		logger:    logger.With("source", "Backpack"),
		mu:        sync.Mutex{},
		items:     make(map[string]map[string]models.InventoryItem),
		inFlight:  make(map[inFlightKey]chan struct{}),
	}
}

// Add records that the user found c and returns the stored item. created is false when the user already had it.
//
// Ownership is checked in memory first. Concurrent adds of the same collectible wait for the first one to finish.
// A conflict from the inventory means another writer got there first and counts as already owned. Add is a no-op
// when userID is empty.
func (s *Store) Add(ctx context.Context, userID string, c models.Collectible) (models.InventoryItem, bool, error) {
	if userID == "" {
		return models.InventoryItem{}, false, nil
	}
	key := inFlightKey{userID: userID, collectibleID: c.ID}
	attrs := []slog.Attr{slog.String("user_id", userID), slog.String("collectible_id", c.ID)}

	for {
		s.mu.Lock()
		if item, ok := s.items[userID][c.ID]; ok {
			s.mu.Unlock()
			return item, false, nil
		}
		wait, busy := s.inFlight[key]
		if !busy {
			done := make(chan struct{})
			s.inFlight[key] = done
			s.mu.Unlock()
			defer func() {
				s.mu.Lock()
				delete(s.inFlight, key)
				s.mu.Unlock()
				close(done)
			}()
			break
		}
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return models.InventoryItem{}, false, errors.Wrap(ctx.Err(), "wait for concurrent add", attrs...)
		}
	}

	item, err := s.inventory.InsertInventory(ctx, userID, c)
	if errors.Is(err, repositories.ErrConflict) {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "collectible already in remote backpack", attrs...)
		if item, err = s.findRemote(ctx, userID, c.ID); err != nil {
			return models.InventoryItem{}, false, errors.Wrap(err, "reload after conflict", attrs...)
		}
		return item, false, nil
	}
	if err != nil {
		return models.InventoryItem{}, false, errors.Wrap(err, "insert collectible", attrs...)
	}
	s.remember(userID, item)
	s.logger.LogAttrs(ctx, slog.LevelInfo, "added collectible to backpack", attrs...)
	return item, true, nil
}

func (s *Store) findRemote(ctx context.Context, userID, collectibleID string) (models.InventoryItem, error) {
	if _, err := s.Load(ctx, userID); err != nil {
		return models.InventoryItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[userID][collectibleID]
	if !ok {
		return models.InventoryItem{}, errors.New("conflicting item missing from inventory",
			slog.String("collectible_id", collectibleID))
	}
	return item, nil
}

// Load fetches the user's items from the inventory, oldest first, and refreshes the in-memory copy.
func (s *Store) Load(ctx context.Context, userID string) ([]models.InventoryItem, error) {
	if userID == "" {
		return nil, nil
	}
	items, err := s.inventory.ListInventory(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list inventory", slog.String("user_id", userID))
	}
	owned := make(map[string]models.InventoryItem, len(items))
	for _, item := range items {
		owned[item.Collectible.ID] = item
	}
	s.mu.Lock()
	s.items[userID] = owned
	s.mu.Unlock()
	return items, nil
}

// MigrateLegacyCache moves the items of the legacy cache that the inventory does not have yet and clears the cache.
// When an insert fails the cache is kept so that the next session start retries. It returns the number of items
// inserted.
func (s *Store) MigrateLegacyCache(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	logger := s.logger.With(slog.String("user_id", userID))

	legacy, err := s.legacy.Read(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "read legacy cache")
	}
	if legacy == nil {
		return 0, nil
	}
	remote, err := s.Load(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "load remote backpack")
	}
	present := make(map[string]bool, len(remote))
	for _, item := range remote {
		present[item.Collectible.ID] = true
	}

	migrated := 0
	for _, c := range legacy {
		if c.ID == "" {
			logger.LogAttrs(ctx, slog.LevelWarn, "skipping legacy item without id",
				slog.String("name", c.DisplayName))
			continue
		}
		if present[c.ID] {
			continue
		}
		item, insertErr := s.inventory.InsertInventory(ctx, userID, c)
		if errors.Is(insertErr, repositories.ErrConflict) {
			present[c.ID] = true
			continue
		}
		if insertErr != nil {
			err = errors.Wrap(insertErr, "migrate legacy item", slog.String("collectible_id", c.ID))
			logger.LogAttrs(ctx, slog.LevelError, "legacy migration failed, keeping cache", errors.SlogError(err))
			return migrated, err
		}
		present[c.ID] = true
		s.remember(userID, item)
		migrated++
	}

	if err = s.legacy.Clear(ctx, userID); err != nil {
		return migrated, errors.Wrap(err, "clear legacy cache")
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "migrated legacy backpack", slog.Int("migrated", migrated))
	return migrated, nil
}

// Sync runs the legacy migration and then loads the backpack. It belongs at session start, before the quest flow
// can add anything. A failed migration is logged and does not prevent loading.
func (s *Store) Sync(ctx context.Context, userID string) ([]models.InventoryItem, error) {
	if _, err := s.MigrateLegacyCache(ctx, userID); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to migrate legacy backpack",
			slog.String("user_id", userID), errors.SlogError(err))
	}
	return s.Load(ctx, userID)
}

// Forget drops the in-memory copy of the user's backpack.
func (s *Store) Forget(userID string) {
	s.mu.Lock()
	delete(s.items, userID)
	s.mu.Unlock()
}

func (s *Store) remember(userID string, item models.InventoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned, ok := s.items[userID]
	if !ok {
		owned = make(map[string]models.InventoryItem)
		s.items[userID] = owned
	}
	owned[item.Collectible.ID] = item
}
