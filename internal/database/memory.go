package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"imovel-monitor/internal/models"
)

// MemoryStore is an in-process Repository for dry runs and tests
type MemoryStore struct {
	mu       sync.RWMutex
	listings []*models.Listing
	byKey    map[models.ListingKey]*models.Listing
	byID     map[string]*models.Listing
	runs     []*models.RunRecord
	nextRun  uint
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey: make(map[models.ListingKey]*models.Listing),
		byID:  make(map[string]*models.Listing),
	}
}

func (m *MemoryStore) FindByKey(_ context.Context, key models.ListingKey) (*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) Insert(_ context.Context, l *models.Listing) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byKey[l.Key()]; exists {
		return false, nil
	}
	l.EnsureID()
	cp := *l
	m.listings = append(m.listings, &cp)
	m.byKey[cp.Key()] = &cp
	m.byID[cp.ID] = &cp
	return true, nil
}

// matching returns copies of the matching listings, newest first; mu must be held
func (m *MemoryStore) matching(f ListingFilters) []models.Listing {
	var out []models.Listing
	for _, l := range m.listings {
		if f.Matches(l) {
			out = append(out, *l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CollectedAt.Equal(out[j].CollectedAt) {
			return out[i].CollectedAt.After(out[j].CollectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryStore) List(_ context.Context, f ListingFilters, limit int) ([]models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.matching(f)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context, f ListingFilters) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.matching(f))), nil
}

func (m *MemoryStore) CountByAgency(_ context.Context, f ListingFilters) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int64)
	for _, l := range m.matching(f) {
		counts[l.Agency]++
	}
	return counts, nil
}

func (m *MemoryStore) Deactivate(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	l.Deactivate(now)
	return nil
}

// Listings returns a snapshot of every stored listing in insertion order
func (m *MemoryStore) Listings() []models.Listing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Listing, 0, len(m.listings))
	for _, l := range m.listings {
		out = append(out, *l)
	}
	return out
}

func (m *MemoryStore) AppendRunRecord(_ context.Context, r *models.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRun++
	r.ID = m.nextRun
	cp := *r
	m.runs = append(m.runs, &cp)
	return nil
}

func (m *MemoryStore) UpdateRunRecord(_ context.Context, id uint, u models.RunUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID != id {
			continue
		}
		if r.Status != models.RunStatusRunning {
			return ErrRunFinalized
		}
		u.Apply(r)
		return nil
	}
	return ErrNotFound
}

func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]models.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RunRecord, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		out = append(out, *m.runs[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) LastRun(ctx context.Context) (*models.RunRecord, error) {
	runs, _ := m.ListRuns(ctx, 1)
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (m *MemoryStore) Close() error { return nil }

var (
	_ Repository = (*MemoryStore)(nil)
	_ Repository = (*GormDB)(nil)
	_ Repository = (*DB)(nil)
)
