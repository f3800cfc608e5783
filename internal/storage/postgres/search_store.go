package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/storage"
)

// SearchStore is a Postgres implementation of storage.SearchStore.
type SearchStore struct {
	pool *Pool
}

// NewSearchStore creates a new Postgres search store.
func NewSearchStore(pool *Pool) *SearchStore {
	return &SearchStore{pool: pool}
}

// Upsert inserts a search or merges it into the existing row. Coordinates
// merge as a pair: an incoming (0, 0) keeps the stored pair intact.
func (s *SearchStore) Upsert(ctx context.Context, m *domain.MapSearch) error {
	if m == nil || m.Signature == "" {
		return storage.ErrInvalidInput
	}

	status := m.Status
	if status == "" {
		status = domain.StatusActive
	}

	query := `
		INSERT INTO map_searches (
			signature, wallet, x, y, search_id, status,
			block_time, slot, fee, program_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (signature) DO UPDATE SET
			wallet     = CASE WHEN EXCLUDED.wallet <> '' THEN EXCLUDED.wallet ELSE map_searches.wallet END,
			x          = CASE WHEN EXCLUDED.x <> 0 OR EXCLUDED.y <> 0 THEN EXCLUDED.x ELSE map_searches.x END,
			y          = CASE WHEN EXCLUDED.x <> 0 OR EXCLUDED.y <> 0 THEN EXCLUDED.y ELSE map_searches.y END,
			search_id  = CASE WHEN EXCLUDED.search_id <> 0 THEN EXCLUDED.search_id ELSE map_searches.search_id END,
			block_time = CASE WHEN EXCLUDED.block_time <> 0 THEN EXCLUDED.block_time ELSE map_searches.block_time END,
			slot       = CASE WHEN EXCLUDED.slot <> 0 THEN EXCLUDED.slot ELSE map_searches.slot END,
			fee        = CASE WHEN EXCLUDED.fee <> 0 THEN EXCLUDED.fee ELSE map_searches.fee END,
			program_id = CASE WHEN EXCLUDED.program_id <> '' THEN EXCLUDED.program_id ELSE map_searches.program_id END,
			updated_at = NOW()
	`

	_, err := s.pool.Exec(ctx, query,
		m.Signature, m.Wallet, m.X, m.Y, m.SearchID, string(status),
		m.BlockTime, m.Slot, int64(m.Fee), m.ProgramID,
	)
	if err != nil {
		return fmt.Errorf("upsert search: %w", err)
	}
	return nil
}

// Get retrieves a search by signature.
func (s *SearchStore) Get(ctx context.Context, signature string) (*domain.MapSearch, error) {
	query := `
		SELECT signature, wallet, x, y, search_id, status,
		       block_time, slot, fee, program_id, created_at, updated_at
		FROM map_searches
		WHERE signature = $1
	`

	m, err := scanSearch(s.pool.QueryRow(ctx, query, signature))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get search: %w", err)
	}
	return m, nil
}

// Query retrieves searches matching the filter, newest first.
func (s *SearchStore) Query(ctx context.Context, f storage.SearchFilter) ([]*domain.MapSearch, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Wallet != "" {
		args = append(args, f.Wallet)
		conds = append(conds, "wallet = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if f.X != nil {
		args = append(args, *f.X)
		conds = append(conds, "x = $"+strconv.Itoa(len(args)))
	}
	if f.Y != nil {
		args = append(args, *f.Y)
		conds = append(conds, "y = $"+strconv.Itoa(len(args)))
	}

	query := `
		SELECT signature, wallet, x, y, search_id, status,
		       block_time, slot, fee, program_id, created_at, updated_at
		FROM map_searches
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, signature"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query searches: %w", err)
	}
	defer rows.Close()

	var result []*domain.MapSearch
	for rows.Next() {
		m, err := scanSearch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// UpdateStatus moves a search through its lifecycle.
func (s *SearchStore) UpdateStatus(ctx context.Context, signature string, status domain.Status) error {
	if !domain.ValidStatus(domain.KindSearch, status) {
		return storage.ErrInvalidInput
	}

	var current string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM map_searches WHERE signature = $1`, signature,
	).Scan(&current)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get search status: %w", err)
	}

	if !domain.ValidTransition(domain.KindSearch, domain.Status(current), status) {
		return storage.ErrInvalidTransition
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE map_searches SET status = $1, updated_at = NOW() WHERE signature = $2 AND status = $3`,
		string(status), signature, current,
	)
	if err != nil {
		return fmt.Errorf("update search status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrInvalidTransition
	}
	return nil
}

func scanSearch(row rowScanner) (*domain.MapSearch, error) {
	var (
		m      domain.MapSearch
		fee    int64
		status string
	)
	err := row.Scan(
		&m.Signature, &m.Wallet, &m.X, &m.Y, &m.SearchID, &status,
		&m.BlockTime, &m.Slot, &fee, &m.ProgramID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Fee = uint64(fee)
	m.Status = domain.Status(status)
	return &m, nil
}

var _ storage.SearchStore = (*SearchStore)(nil)
