package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/storage"
)

// ClueStore is an in-memory implementation of storage.ClueStore.
type ClueStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ClueRequest // keyed by signature
}

// NewClueStore creates a new in-memory clue store.
func NewClueStore() *ClueStore {
	return &ClueStore{
		data: make(map[string]*domain.ClueRequest),
	}
}

// Upsert inserts a clue request or merges non-zero fields into the existing row.
func (s *ClueStore) Upsert(_ context.Context, c *domain.ClueRequest) error {
	if c == nil || c.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.data[c.Signature]
	if !ok {
		row := *c
		if row.Status == "" {
			row.Status = domain.StatusActive
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		s.data[c.Signature] = &row
		return nil
	}

	if c.Wallet != "" {
		existing.Wallet = c.Wallet
	}
	if c.ClueTarget != "" {
		existing.ClueTarget = c.ClueTarget
	}
	if c.AmountPaid != 0 {
		existing.AmountPaid = c.AmountPaid
	}
	mergeMeta(&existing.BlockchainMeta, c.BlockchainMeta)
	existing.UpdatedAt = now
	return nil
}

// Get retrieves a clue request by signature.
func (s *ClueStore) Get(_ context.Context, signature string) (*domain.ClueRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	row := *c
	return &row, nil
}

// Query retrieves clue requests matching the filter, newest first.
func (s *ClueStore) Query(_ context.Context, f storage.ClueFilter) ([]*domain.ClueRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ClueRequest
	for _, c := range s.data {
		if f.Wallet != "" && c.Wallet != f.Wallet {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		row := *c
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

// UpdateStatus moves a clue request through its lifecycle.
func (s *ClueStore) UpdateStatus(_ context.Context, signature string, status domain.Status) error {
	if !domain.ValidStatus(domain.KindClue, status) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.data[signature]
	if !ok {
		return storage.ErrNotFound
	}
	if !domain.ValidTransition(domain.KindClue, c.Status, status) {
		return storage.ErrInvalidTransition
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

var _ storage.ClueStore = (*ClueStore)(nil)
