// Package memory provides in-memory store implementations for tests and
// local development. All stores are safe for concurrent use and return
// copies, never internal pointers.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/storage"
)

// DepositStore is an in-memory implementation of storage.DepositStore.
type DepositStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TreasureDeposit // keyed by signature
}

// NewDepositStore creates a new in-memory deposit store.
func NewDepositStore() *DepositStore {
	return &DepositStore{
		data: make(map[string]*domain.TreasureDeposit),
	}
}

// Upsert inserts a deposit or merges non-zero fields into the existing row.
// Status and CreatedAt of an existing row are never touched here.
func (s *DepositStore) Upsert(_ context.Context, d *domain.TreasureDeposit) error {
	if d == nil || d.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.data[d.Signature]
	if !ok {
		row := *d
		if row.Status == "" {
			row.Status = domain.StatusActive
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		s.data[d.Signature] = &row
		return nil
	}

	if d.Wallet != "" {
		existing.Wallet = d.Wallet
	}
	if d.Amount != 0 {
		existing.Amount = d.Amount
	}
	if d.TokenMint != "" {
		existing.TokenMint = d.TokenMint
	}
	mergeMeta(&existing.BlockchainMeta, d.BlockchainMeta)
	existing.UpdatedAt = now
	return nil
}

// Get retrieves a deposit by signature.
func (s *DepositStore) Get(_ context.Context, signature string) (*domain.TreasureDeposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	row := *d
	return &row, nil
}

// Query retrieves deposits matching the filter, newest first.
func (s *DepositStore) Query(_ context.Context, f storage.DepositFilter) ([]*domain.TreasureDeposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TreasureDeposit
	for _, d := range s.data {
		if f.Wallet != "" && d.Wallet != f.Wallet {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		row := *d
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

// UpdateStatus moves a deposit through its lifecycle.
func (s *DepositStore) UpdateStatus(_ context.Context, signature string, status domain.Status) error {
	if !domain.ValidStatus(domain.KindDeposit, status) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.data[signature]
	if !ok {
		return storage.ErrNotFound
	}
	if !domain.ValidTransition(domain.KindDeposit, d.Status, status) {
		return storage.ErrInvalidTransition
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// mergeMeta copies non-zero ledger context fields over existing ones.
func mergeMeta(dst *domain.BlockchainMeta, src domain.BlockchainMeta) {
	if src.BlockTime != 0 {
		dst.BlockTime = src.BlockTime
	}
	if src.Slot != 0 {
		dst.Slot = src.Slot
	}
	if src.Fee != 0 {
		dst.Fee = src.Fee
	}
	if src.ProgramID != "" {
		dst.ProgramID = src.ProgramID
	}
}

var _ storage.DepositStore = (*DepositStore)(nil)
