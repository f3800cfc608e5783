package clickhouse

import (
	"context"
	"fmt"
	"time"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/storage"
)

// DeliveryLogStore is a ClickHouse implementation of storage.DeliveryLogStore.
// The delivery_log table is append-only MergeTree; attempts are never
// updated or deleted.
type DeliveryLogStore struct {
	conn *Conn
}

// NewDeliveryLogStore creates a new ClickHouse delivery log store.
func NewDeliveryLogStore(conn *Conn) *DeliveryLogStore {
	return &DeliveryLogStore{conn: conn}
}

// Record appends a delivery attempt.
func (s *DeliveryLogStore) Record(ctx context.Context, a *storage.DeliveryAttempt) error {
	if a == nil || a.Signature == "" {
		return storage.ErrInvalidInput
	}

	attemptedAt := a.AttemptedAt
	if attemptedAt.IsZero() {
		attemptedAt = time.Now().UTC()
	}

	success := uint8(0)
	if a.Success {
		success = 1
	}

	query := `
		INSERT INTO delivery_log (
			signature, event_type, endpoint, status_code, success, error, attempted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	err := s.conn.Exec(ctx, query,
		a.Signature, string(a.EventType), a.Endpoint,
		int32(a.StatusCode), success, a.Error, attemptedAt,
	)
	if err != nil {
		return fmt.Errorf("record delivery attempt: %w", err)
	}
	return nil
}

// ListFailed retrieves failed attempts since the given time, newest first.
func (s *DeliveryLogStore) ListFailed(ctx context.Context, since time.Time, limit int) ([]*storage.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT signature, event_type, endpoint, status_code, success, error, attempted_at
		FROM delivery_log
		WHERE success = 0 AND attempted_at >= ?
		ORDER BY attempted_at DESC
		LIMIT ?
	`
	rows, err := s.conn.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed deliveries: %w", err)
	}
	defer rows.Close()

	var result []*storage.DeliveryAttempt
	for rows.Next() {
		var (
			a          storage.DeliveryAttempt
			eventType  string
			statusCode int32
			success    uint8
		)
		if err := rows.Scan(&a.Signature, &eventType, &a.Endpoint, &statusCode, &success, &a.Error, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		a.EventType = domain.EventType(eventType)
		a.StatusCode = int(statusCode)
		a.Success = success == 1
		result = append(result, &a)
	}
	return result, rows.Err()
}

var _ storage.DeliveryLogStore = (*DeliveryLogStore)(nil)
