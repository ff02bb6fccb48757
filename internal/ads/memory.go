package ads

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"adboard/internal/apperr"
)

// MemoryStore keeps advertisements in process. Deleting a user does not
// remove their advertisements here.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	ads    map[int64]Advertisement
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ads: map[int64]Advertisement{}, now: time.Now}
}

func (m *MemoryStore) Create(ctx context.Context, ad *Advertisement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ad.ID = m.nextID
	ad.CreatedAt = m.now().UTC()
	m.ads[ad.ID] = *ad
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (*Advertisement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ad, ok := m.ads[id]
	if !ok {
		return nil, fmt.Errorf("get advertisement: %w", apperr.ErrNotFound)
	}
	return &ad, nil
}

func (m *MemoryStore) List(ctx context.Context, f Filter) ([]Advertisement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	title := strings.ToLower(f.Title)
	result := []Advertisement{}
	for _, ad := range m.ads {
		if title != "" && !strings.Contains(strings.ToLower(ad.Title), title) {
			continue
		}
		if f.MinPrice != nil && ad.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && ad.Price > *f.MaxPrice {
			continue
		}
		if f.AuthorID != 0 && ad.AuthorID != f.AuthorID {
			continue
		}
		result = append(result, ad)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if limit := f.limit(); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, ad *Advertisement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.ads[ad.ID]
	if !ok {
		return fmt.Errorf("update advertisement: %w", apperr.ErrNotFound)
	}
	cur.Title = ad.Title
	cur.Description = ad.Description
	cur.Price = ad.Price
	m.ads[ad.ID] = cur
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ads[id]; !ok {
		return fmt.Errorf("delete advertisement: %w", apperr.ErrNotFound)
	}
	delete(m.ads, id)
	return nil
}
