package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Processed signatures are the durable tier of deduplication. A key is
// inserted in the same transaction as the mutation it witnesses.

func hasProcessed(ctx context.Context, q querier, key string) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, `
		SELECT 1
		FROM processed_signatures
		WHERE idempotency_key = $1
		LIMIT 1
	`, key).Scan(&exists)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup processed %s: %w", key, err)
	}
	return true, nil
}

// markProcessed returns ErrConflict when the key is already present.
func markProcessed(ctx context.Context, q querier, key, launch string, slot uint64) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO processed_signatures (idempotency_key, launch, slot)
		VALUES ($1, $2, $3)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key, launch, numeric(slot))
	if err != nil {
		return mapErr(fmt.Errorf("mark processed %s: %w", key, err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("mark processed %s: %w", key, ErrConflict)
	}
	return nil
}

// recentKeys returns up to limit keys, most recent first, for warming the
// in-memory dedup cache on startup.
func recentKeys(ctx context.Context, q querier, limit int) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT idempotency_key
		FROM processed_signatures
		ORDER BY seq DESC
		LIMIT $1
	`, nullLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// nullLimit maps a non-positive limit to SQL NULL, which Postgres treats as
// no limit.
func nullLimit(limit int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
}
