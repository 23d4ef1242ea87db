package postgres

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkworklabs/caboz/internal/domain"
)

// PaymentMintStore implements domain.PaymentMintStore using PostgreSQL.
type PaymentMintStore struct {
	pool *pgxpool.Pool
}

// NewPaymentMintStore creates a new PaymentMintStore backed by the given
// connection pool.
func NewPaymentMintStore(pool *pgxpool.Pool) *PaymentMintStore {
	return &PaymentMintStore{pool: pool}
}

// Upsert inserts or updates the registry row for a payment mint.
func (s *PaymentMintStore) Upsert(ctx context.Context, mint domain.PaymentMint) error {
	const query = `
		INSERT INTO payment_mints (mint, fee_multiplier_bps)
		VALUES ($1, $2)
		ON CONFLICT (mint) DO UPDATE SET
			fee_multiplier_bps = EXCLUDED.fee_multiplier_bps,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, mint.Mint.String(), int32(mint.FeeMultiplierBps))
	if err != nil {
		return fmt.Errorf("postgres: upsert payment mint %s: %w", mint.Mint, err)
	}
	return nil
}

// Delete removes a payment mint from the registry.
func (s *PaymentMintStore) Delete(ctx context.Context, mint solana.PublicKey) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM payment_mints WHERE mint = $1`, mint.String())
	if err != nil {
		return fmt.Errorf("postgres: delete payment mint %s: %w", mint, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns all registered payment mints.
func (s *PaymentMintStore) List(ctx context.Context) ([]domain.PaymentMint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT mint, fee_multiplier_bps FROM payment_mints ORDER BY mint`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payment mints: %w", err)
	}
	defer rows.Close()

	var mints []domain.PaymentMint
	for rows.Next() {
		var (
			m   domain.PaymentMint
			key string
			bps int32
		)
		if err := rows.Scan(&key, &bps); err != nil {
			return nil, fmt.Errorf("postgres: scan payment mint: %w", err)
		}
		if m.Mint, err = solana.PublicKeyFromBase58(key); err != nil {
			return nil, fmt.Errorf("postgres: payment mint key %s: %w", key, err)
		}
		m.FeeMultiplierBps = uint16(bps)
		mints = append(mints, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list payment mints rows: %w", err)
	}
	return mints, nil
}
