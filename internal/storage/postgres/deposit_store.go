package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/storage"
)

// DepositStore is a Postgres implementation of storage.DepositStore.
type DepositStore struct {
	pool *Pool
}

// NewDepositStore creates a new Postgres deposit store.
func NewDepositStore(pool *Pool) *DepositStore {
	return &DepositStore{pool: pool}
}

// Upsert inserts a deposit or merges it into the existing row. The merge
// keeps stored values wherever the incoming field is zero, and never
// touches status or created_at of an existing row.
func (s *DepositStore) Upsert(ctx context.Context, d *domain.TreasureDeposit) error {
	if d == nil || d.Signature == "" {
		return storage.ErrInvalidInput
	}

	status := d.Status
	if status == "" {
		status = domain.StatusActive
	}

	query := `
		INSERT INTO treasure_deposits (
			signature, wallet, amount, token_mint, status,
			block_time, slot, fee, program_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (signature) DO UPDATE SET
			wallet     = CASE WHEN EXCLUDED.wallet     <> '' THEN EXCLUDED.wallet     ELSE treasure_deposits.wallet     END,
			amount     = CASE WHEN EXCLUDED.amount     <> 0  THEN EXCLUDED.amount     ELSE treasure_deposits.amount     END,
			token_mint = CASE WHEN EXCLUDED.token_mint <> '' THEN EXCLUDED.token_mint ELSE treasure_deposits.token_mint END,
			block_time = CASE WHEN EXCLUDED.block_time <> 0  THEN EXCLUDED.block_time ELSE treasure_deposits.block_time END,
			slot       = CASE WHEN EXCLUDED.slot       <> 0  THEN EXCLUDED.slot       ELSE treasure_deposits.slot       END,
			fee        = CASE WHEN EXCLUDED.fee        <> 0  THEN EXCLUDED.fee        ELSE treasure_deposits.fee        END,
			program_id = CASE WHEN EXCLUDED.program_id <> '' THEN EXCLUDED.program_id ELSE treasure_deposits.program_id END,
			updated_at = NOW()
	`

	_, err := s.pool.Exec(ctx, query,
		d.Signature, d.Wallet, int64(d.Amount), d.TokenMint, string(status),
		d.BlockTime, d.Slot, int64(d.Fee), d.ProgramID,
	)
	if err != nil {
		return fmt.Errorf("upsert deposit: %w", err)
	}
	return nil
}

// Get retrieves a deposit by signature.
func (s *DepositStore) Get(ctx context.Context, signature string) (*domain.TreasureDeposit, error) {
	query := `
		SELECT signature, wallet, amount, token_mint, status,
		       block_time, slot, fee, program_id, created_at, updated_at
		FROM treasure_deposits
		WHERE signature = $1
	`

	d, err := scanDeposit(s.pool.QueryRow(ctx, query, signature))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get deposit: %w", err)
	}
	return d, nil
}

// Query retrieves deposits matching the filter, newest first.
func (s *DepositStore) Query(ctx context.Context, f storage.DepositFilter) ([]*domain.TreasureDeposit, error) {
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
		SELECT signature, wallet, amount, token_mint, status,
		       block_time, slot, fee, program_id, created_at, updated_at
		FROM treasure_deposits
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
		return nil, fmt.Errorf("query deposits: %w", err)
	}
	defer rows.Close()

	var result []*domain.TreasureDeposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deposit: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// UpdateStatus moves a deposit through its lifecycle. The update is
// optimistic: the row's status is re-checked in the WHERE clause so a
// concurrent transition cannot be overwritten.
func (s *DepositStore) UpdateStatus(ctx context.Context, signature string, status domain.Status) error {
	if !domain.ValidStatus(domain.KindDeposit, status) {
		return storage.ErrInvalidInput
	}

	var current string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM treasure_deposits WHERE signature = $1`, signature,
	).Scan(&current)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get deposit status: %w", err)
	}

	if !domain.ValidTransition(domain.KindDeposit, domain.Status(current), status) {
		return storage.ErrInvalidTransition
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE treasure_deposits SET status = $1, updated_at = NOW() WHERE signature = $2 AND status = $3`,
		string(status), signature, current,
	)
	if err != nil {
		return fmt.Errorf("update deposit status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost a race with another transition.
		return storage.ErrInvalidTransition
	}
	return nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDeposit(row rowScanner) (*domain.TreasureDeposit, error) {
	var (
		d           domain.TreasureDeposit
		amount, fee int64
		status      string
	)
	err := row.Scan(
		&d.Signature, &d.Wallet, &amount, &d.TokenMint, &status,
		&d.BlockTime, &d.Slot, &fee, &d.ProgramID, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Amount = uint64(amount)
	d.Fee = uint64(fee)
	d.Status = domain.Status(status)
	return &d, nil
}

var _ storage.DepositStore = (*DepositStore)(nil)
