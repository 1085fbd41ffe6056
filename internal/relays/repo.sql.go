package relays

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the relay does not exist.
var ErrNotFound = errors.New("relays: not found")

// Repository provides PostgreSQL backed access to the relay registry.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns one relay by id.
func (r *Repository) Get(ctx context.Context, id string) (*Relay, error) {
	var relay Relay
	err := r.pool.QueryRow(ctx, `SELECT id, name, domain, owner_pubkey, status, created_at, updated_at
FROM relays WHERE id = $1`, id).
		Scan(&relay.ID, &relay.Name, &relay.Domain, &relay.OwnerPubkey, &relay.Status, &relay.CreatedAt, &relay.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &relay, nil
}

// List returns all relays ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]Relay, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, domain, owner_pubkey, status, created_at, updated_at
FROM relays ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var relays []Relay
	for rows.Next() {
		var relay Relay
		if err := rows.Scan(&relay.ID, &relay.Name, &relay.Domain, &relay.OwnerPubkey, &relay.Status, &relay.CreatedAt, &relay.UpdatedAt); err != nil {
			return nil, err
		}
		relays = append(relays, relay)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return relays, nil
}

// CreatedAt returns the provisioning instant of one relay. The balance
// engine charges never-paid relays from this point.
func (r *Repository) CreatedAt(ctx context.Context, id string) (time.Time, error) {
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, `SELECT created_at FROM relays WHERE id = $1`, id).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("relays: created_at for %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return time.Time{}, err
	}
	return createdAt, nil
}
