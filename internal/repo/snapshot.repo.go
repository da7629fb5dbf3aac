package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront-checkout/internal/domain"
)

type snapshotRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewSnapshotRepo stores long-lived cart records in the cart_snapshots table.
func NewSnapshotRepo(db *sql.DB) TierStore {
	return &snapshotRepo{db: db, now: time.Now}
}

func (r *snapshotRepo) Write(ctx context.Context, key string, blob []byte) error {
	query := `
		INSERT INTO cart_snapshots (tier_key, payload, saved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tier_key) DO UPDATE
		SET payload = EXCLUDED.payload,
		    saved_at = EXCLUDED.saved_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, blob, r.now().UTC()); err != nil {
		return fmt.Errorf("upsert cart snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepo) Read(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM cart_snapshots WHERE tier_key = $1`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select cart snapshot: %w", err)
	}
	return blob, nil
}

func (r *snapshotRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_snapshots WHERE tier_key = $1`, key); err != nil {
		return fmt.Errorf("delete cart snapshot: %w", err)
	}
	return nil
}
