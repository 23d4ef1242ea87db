// Package engine implements the caboz settlement program: the payment-mint
// registry, per-owner escrow wallets, the order state machine, and the
// admission-checked settlement paths. Every exported operation is a single
// atomic request: it either fully applies or returns an error having moved
// nothing.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/inkworklabs/caboz/internal/domain"
	"github.com/inkworklabs/caboz/internal/ledger"
)

// Config carries the fixed protocol identities.
type Config struct {
	// Authority is the only identity allowed to mutate the payment-mint
	// registry.
	Authority solana.PublicKey
	// FeeReceiver receives the settlement fee on every sale.
	FeeReceiver solana.PublicKey
	// LoyaltyCollection is the collection whose verified items grant
	// fee-tier discounts at order creation.
	LoyaltyCollection solana.PublicKey
}

// Engine is the in-process settlement program. Orders and registry entries
// live in engine memory; balances live in the ledger.
type Engine struct {
	mu       sync.Mutex
	ledger   *ledger.Ledger
	metadata domain.MetadataResolver
	cfg      Config
	now      func() time.Time

	mints  map[solana.PublicKey]domain.PaymentMint
	orders map[string]*domain.Order
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the timestamp source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine on top of the given ledger and metadata resolver.
func New(l *ledger.Ledger, metadata domain.MetadataResolver, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		ledger:   l,
		metadata: metadata,
		cfg:      cfg,
		now:      time.Now,
		mints:    make(map[solana.PublicKey]domain.PaymentMint),
		orders:   make(map[string]*domain.Order),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ledger exposes the underlying ledger, mainly for funding in tests and
// for balance queries by the API layer.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// AllowPaymentMint whitelists a currency for order payment, overwriting
// any existing entry. For non-native mints it also provisions the fee
// receiver's holding account, paid by the authority, so settlement never
// has to create it.
func (e *Engine) AllowPaymentMint(authority, mint solana.PublicKey, feeMultiplierBps uint16) error {
	if authority != e.cfg.Authority {
		return fmt.Errorf("engine: allow payment mint: %w", domain.ErrUnauthorized)
	}
	if feeMultiplierBps > 10_000 {
		return fmt.Errorf("engine: fee multiplier %d out of range [0, 10000]: %w",
			feeMultiplierBps, domain.ErrInvalidParameter)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if mint != domain.NativeMint {
		if _, err := e.ledger.CreateTokenAccount(authority, e.cfg.FeeReceiver, mint); err != nil {
			return fmt.Errorf("engine: provision fee receiver account: %w", err)
		}
	}
	e.mints[mint] = domain.PaymentMint{Mint: mint, FeeMultiplierBps: feeMultiplierBps}
	return nil
}

// DisallowPaymentMint removes a currency from the registry.
func (e *Engine) DisallowPaymentMint(authority, mint solana.PublicKey) error {
	if authority != e.cfg.Authority {
		return fmt.Errorf("engine: disallow payment mint: %w", domain.ErrUnauthorized)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.mints[mint]; !ok {
		return fmt.Errorf("engine: payment mint %s: %w", mint, domain.ErrNotFound)
	}
	delete(e.mints, mint)
	return nil
}

// PaymentMint returns the registry entry for mint.
func (e *Engine) PaymentMint(mint solana.PublicKey) (domain.PaymentMint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.mints[mint]
	if !ok {
		return domain.PaymentMint{}, fmt.Errorf("engine: payment mint %s: %w", mint, domain.ErrNotFound)
	}
	return entry, nil
}

// PaymentMints lists all allowed payment mints.
func (e *Engine) PaymentMints() []domain.PaymentMint {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.PaymentMint, 0, len(e.mints))
	for _, m := range e.mints {
		out = append(out, m)
	}
	return out
}
