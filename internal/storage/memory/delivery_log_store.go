package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"treasure-monitor/internal/storage"
)

// DeliveryLogStore is an in-memory implementation of storage.DeliveryLogStore.
type DeliveryLogStore struct {
	mu       sync.RWMutex
	attempts []*storage.DeliveryAttempt
}

// NewDeliveryLogStore creates a new in-memory delivery log.
func NewDeliveryLogStore() *DeliveryLogStore {
	return &DeliveryLogStore{}
}

// Record appends a delivery attempt.
func (s *DeliveryLogStore) Record(_ context.Context, a *storage.DeliveryAttempt) error {
	if a == nil || a.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := *a
	if row.AttemptedAt.IsZero() {
		row.AttemptedAt = time.Now().UTC()
	}
	s.attempts = append(s.attempts, &row)
	return nil
}

// ListFailed retrieves failed attempts since the given time, newest first.
func (s *DeliveryLogStore) ListFailed(_ context.Context, since time.Time, limit int) ([]*storage.DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.DeliveryAttempt
	for _, a := range s.attempts {
		if a.Success || a.AttemptedAt.Before(since) {
			continue
		}
		row := *a
		result = append(result, &row)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AttemptedAt.After(result[j].AttemptedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.DeliveryLogStore = (*DeliveryLogStore)(nil)
