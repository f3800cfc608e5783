package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/storage"
)

// ClueStore is a Postgres implementation of storage.ClueStore.
type ClueStore struct {
	pool *Pool
}

// NewClueStore creates a new Postgres clue store.
func NewClueStore(pool *Pool) *ClueStore {
	return &ClueStore{pool: pool}
}

// Upsert inserts a clue request or merges it into the existing row.
func (s *ClueStore) Upsert(ctx context.Context, c *domain.ClueRequest) error {
	if c == nil || c.Signature == "" {
		return storage.ErrInvalidInput
	}

	status := c.Status
	if status == "" {
		status = domain.StatusActive
	}

	query := `
		INSERT INTO clue_requests (
			signature, wallet, clue_target, amount_paid, status,
			block_time, slot, fee, program_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (signature) DO UPDATE SET
			wallet      = CASE WHEN EXCLUDED.wallet      <> '' THEN EXCLUDED.wallet      ELSE clue_requests.wallet      END,
			clue_target = CASE WHEN EXCLUDED.clue_target <> '' THEN EXCLUDED.clue_target ELSE clue_requests.clue_target END,
			amount_paid = CASE WHEN EXCLUDED.amount_paid <> 0  THEN EXCLUDED.amount_paid ELSE clue_requests.amount_paid END,
			block_time  = CASE WHEN EXCLUDED.block_time  <> 0  THEN EXCLUDED.block_time  ELSE clue_requests.block_time  END,
			slot        = CASE WHEN EXCLUDED.slot        <> 0  THEN EXCLUDED.slot        ELSE clue_requests.slot        END,
			fee         = CASE WHEN EXCLUDED.fee         <> 0  THEN EXCLUDED.fee         ELSE clue_requests.fee         END,
			program_id  = CASE WHEN EXCLUDED.program_id  <> '' THEN EXCLUDED.program_id  ELSE clue_requests.program_id  END,
			updated_at  = NOW()
	`

	_, err := s.pool.Exec(ctx, query,
		c.Signature, c.Wallet, c.ClueTarget, int64(c.AmountPaid), string(status),
		c.BlockTime, c.Slot, int64(c.Fee), c.ProgramID,
	)
	if err != nil {
		return fmt.Errorf("upsert clue: %w", err)
	}
	return nil
}

// Get retrieves a clue request by signature.
func (s *ClueStore) Get(ctx context.Context, signature string) (*domain.ClueRequest, error) {
	query := `
		SELECT signature, wallet, clue_target, amount_paid, status,
		       block_time, slot, fee, program_id, created_at, updated_at
		FROM clue_requests
		WHERE signature = $1
	`

	c, err := scanClue(s.pool.QueryRow(ctx, query, signature))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get clue: %w", err)
	}
	return c, nil
}

// Query retrieves clue requests matching the filter, newest first.
func (s *ClueStore) Query(ctx context.Context, f storage.ClueFilter) ([]*domain.ClueRequest, error) {
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

	query := `
		SELECT signature, wallet, clue_target, amount_paid, status,
		       block_time, slot, fee, program_id, created_at, updated_at
		FROM clue_requests
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
		return nil, fmt.Errorf("query clues: %w", err)
	}
	defer rows.Close()

	var result []*domain.ClueRequest
	for rows.Next() {
		c, err := scanClue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clue: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// UpdateStatus moves a clue request through its lifecycle.
func (s *ClueStore) UpdateStatus(ctx context.Context, signature string, status domain.Status) error {
	if !domain.ValidStatus(domain.KindClue, status) {
		return storage.ErrInvalidInput
	}

	var current string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM clue_requests WHERE signature = $1`, signature,
	).Scan(&current)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get clue status: %w", err)
	}

	if !domain.ValidTransition(domain.KindClue, domain.Status(current), status) {
		return storage.ErrInvalidTransition
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE clue_requests SET status = $1, updated_at = NOW() WHERE signature = $2 AND status = $3`,
		string(status), signature, current,
	)
	if err != nil {
		return fmt.Errorf("update clue status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrInvalidTransition
	}
	return nil
}

func scanClue(row rowScanner) (*domain.ClueRequest, error) {
	var (
		c               domain.ClueRequest
		amountPaid, fee int64
		status          string
	)
	err := row.Scan(
		&c.Signature, &c.Wallet, &c.ClueTarget, &amountPaid, &status,
		&c.BlockTime, &c.Slot, &fee, &c.ProgramID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.AmountPaid = uint64(amountPaid)
	c.Fee = uint64(fee)
	c.Status = domain.Status(status)
	return &c, nil
}

var _ storage.ClueStore = (*ClueStore)(nil)
