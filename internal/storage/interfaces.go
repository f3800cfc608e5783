package storage

import (
	"context"
	"time"

	"treasure-monitor/internal/domain"
)

// DepositFilter narrows a treasure deposit query. Zero values mean "any".
type DepositFilter struct {
	Wallet string
	Status domain.Status
	Limit  int
}

// SearchFilter narrows a map search query. Zero values mean "any";
// coordinates are pointers so (0, 0) remains queryable.
type SearchFilter struct {
	Wallet string
	Status domain.Status
	X      *int
	Y      *int
	Limit  int
}

// ClueFilter narrows a clue request query. Zero values mean "any".
type ClueFilter struct {
	Wallet string
	Status domain.Status
	Limit  int
}

// DepositStore provides access to treasure_deposits storage.
//
// Upsert is keyed by transaction signature and is idempotent: re-upserting
// an existing signature merges non-zero incoming fields into the stored row
// and never touches its status or created_at. Status changes go through
// UpdateStatus only, which enforces the record's lifecycle.
type DepositStore interface {
	// Upsert inserts a deposit or merges it into the existing row with
	// the same signature.
	Upsert(ctx context.Context, d *domain.TreasureDeposit) error

	// Get retrieves a deposit by signature. Returns ErrNotFound if absent.
	Get(ctx context.Context, signature string) (*domain.TreasureDeposit, error)

	// Query retrieves deposits matching the filter, newest first.
	Query(ctx context.Context, f DepositFilter) ([]*domain.TreasureDeposit, error)

	// UpdateStatus moves a deposit through its lifecycle. Returns
	// ErrNotFound if absent, ErrInvalidTransition on a backwards move.
	UpdateStatus(ctx context.Context, signature string, status domain.Status) error
}

// SearchStore provides access to map_searches storage.
// Semantics mirror DepositStore.
type SearchStore interface {
	Upsert(ctx context.Context, s *domain.MapSearch) error
	Get(ctx context.Context, signature string) (*domain.MapSearch, error)
	Query(ctx context.Context, f SearchFilter) ([]*domain.MapSearch, error)
	UpdateStatus(ctx context.Context, signature string, status domain.Status) error
}

// ClueStore provides access to clue_requests storage.
// Semantics mirror DepositStore.
type ClueStore interface {
	Upsert(ctx context.Context, c *domain.ClueRequest) error
	Get(ctx context.Context, signature string) (*domain.ClueRequest, error)
	Query(ctx context.Context, f ClueFilter) ([]*domain.ClueRequest, error)
	UpdateStatus(ctx context.Context, signature string, status domain.Status) error
}

// DeliveryAttempt is one webhook dispatch outcome. The log is append-only:
// every attempt is recorded, successful or not, so delivery gaps left by an
// advancing watermark stay observable.
type DeliveryAttempt struct {
	Signature   string
	EventType   domain.EventType
	Endpoint    string
	StatusCode  int
	Success     bool
	Error       string
	AttemptedAt time.Time
}

// DeliveryLogStore records webhook dispatch attempts.
type DeliveryLogStore interface {
	// Record appends a delivery attempt.
	Record(ctx context.Context, a *DeliveryAttempt) error

	// ListFailed retrieves failed attempts since the given time, newest
	// first, capped at limit.
	ListFailed(ctx context.Context, since time.Time, limit int) ([]*DeliveryAttempt, error)
}
