package payments

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides read access to payment rows in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListPaidByKey returns all settled payments for one billed entity, oldest
// settlement first. Rows without a settlement timestamp are excluded even
// when flagged paid.
func (r *Repository) ListPaidByKey(ctx context.Context, relayID, subscriberPubkey string) ([]PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, relay_id, subscriber_pubkey, amount_sats, plan_type, paid, paid_at, created_at
FROM payment_records
WHERE relay_id = $1 AND subscriber_pubkey = $2 AND paid = TRUE AND paid_at IS NOT NULL
ORDER BY paid_at`, relayID, subscriberPubkey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []PaymentRecord
	for rows.Next() {
		var rec PaymentRecord
		if err := rows.Scan(&rec.ID, &rec.RelayID, &rec.SubscriberPubkey, &rec.AmountSats, &rec.PlanType, &rec.Paid, &rec.PaidAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ListPaidKeys returns every distinct billed entity that has at least one
// settled payment.
func (r *Repository) ListPaidKeys(ctx context.Context) ([]Key, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT relay_id, subscriber_pubkey
FROM payment_records
WHERE paid = TRUE AND paid_at IS NOT NULL
ORDER BY relay_id, subscriber_pubkey`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.RelayID, &k.SubscriberPubkey); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
