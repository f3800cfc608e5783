package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/storage"
)

// SearchStore is an in-memory implementation of storage.SearchStore.
type SearchStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MapSearch // keyed by signature
}

// NewSearchStore creates a new in-memory search store.
func NewSearchStore() *SearchStore {
	return &SearchStore{
		data: make(map[string]*domain.MapSearch),
	}
}

// Upsert inserts a search or merges non-zero fields into the existing row.
// Coordinates merge only when the incoming pair is not (0, 0); a partial
// coordinate overwrite would corrupt the record.
func (s *SearchStore) Upsert(_ context.Context, m *domain.MapSearch) error {
	if m == nil || m.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.data[m.Signature]
	if !ok {
		row := *m
		if row.Status == "" {
			row.Status = domain.StatusActive
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		s.data[m.Signature] = &row
		return nil
	}

	if m.Wallet != "" {
		existing.Wallet = m.Wallet
	}
	if m.X != 0 || m.Y != 0 {
		existing.X = m.X
		existing.Y = m.Y
	}
	if m.SearchID != 0 {
		existing.SearchID = m.SearchID
	}
	mergeMeta(&existing.BlockchainMeta, m.BlockchainMeta)
	existing.UpdatedAt = now
	return nil
}

// Get retrieves a search by signature.
func (s *SearchStore) Get(_ context.Context, signature string) (*domain.MapSearch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.data[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	row := *m
	return &row, nil
}

// Query retrieves searches matching the filter, newest first.
func (s *SearchStore) Query(_ context.Context, f storage.SearchFilter) ([]*domain.MapSearch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MapSearch
	for _, m := range s.data {
		if f.Wallet != "" && m.Wallet != f.Wallet {
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.X != nil && m.X != *f.X {
			continue
		}
		if f.Y != nil && m.Y != *f.Y {
			continue
		}
		row := *m
		result = append(result, &row)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].Signature < result[j].Signature
	})

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// UpdateStatus moves a search through its lifecycle.
func (s *SearchStore) UpdateStatus(_ context.Context, signature string, status domain.Status) error {
	if !domain.ValidStatus(domain.KindSearch, status) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.data[signature]
	if !ok {
		return storage.ErrNotFound
	}
	if !domain.ValidTransition(domain.KindSearch, m.Status, status) {
		return storage.ErrInvalidTransition
	}
	m.Status = status
	m.UpdatedAt = time.Now().UTC()
	return nil
}

var _ storage.SearchStore = (*SearchStore)(nil)
