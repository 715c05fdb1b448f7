package persistence

import (
	"context"
	"fmt"

	"LaunchLedger/internal/state"
)

// The transactions table is the append-only audit log. Each row carries the
// hash chain link computed by the ingestor; the writer stores it verbatim.

const recordColumns = `id, idempotency_key, signature, tx_type, launch, user_address,
	sol_amount, shares_amount, token_amount, market_cap_usd,
	slot, block_time, prev_hash, hash`

func insertRecord(ctx context.Context, q querier, r *state.TransactionRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		r.ID, r.IdempotencyKey, r.Signature, r.Type, r.Launch, r.User,
		numeric(r.SolAmount), numeric(r.SharesAmount), numeric(r.TokenAmount), numeric(r.MarketCapUSD),
		numeric(r.Slot), r.Timestamp, r.PrevHash, r.Hash,
	)
	if err != nil {
		return mapErr(fmt.Errorf("insert record %s: %w", r.IdempotencyKey, err))
	}
	return nil
}

// listRecords returns a launch's records oldest first, in chain order.
func listRecords(ctx context.Context, q querier, launch string, limit int) ([]*state.TransactionRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM transactions
		WHERE launch = $1
		ORDER BY seq ASC
		LIMIT $2
	`, launch, nullLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list records %s: %w", launch, err)
	}
	defer rows.Close()

	var out []*state.TransactionRecord
	for rows.Next() {
		var r state.TransactionRecord
		if err := rows.Scan(
			&r.ID, &r.IdempotencyKey, &r.Signature, &r.Type, &r.Launch, &r.User,
			(*numeric)(&r.SolAmount), (*numeric)(&r.SharesAmount), (*numeric)(&r.TokenAmount), (*numeric)(&r.MarketCapUSD),
			(*numeric)(&r.Slot), &r.Timestamp, &r.PrevHash, &r.Hash,
		); err != nil {
			return nil, err
		}
		r.Timestamp = r.Timestamp.UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}
