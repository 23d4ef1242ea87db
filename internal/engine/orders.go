package engine

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/inkworklabs/caboz/internal/domain"
	"github.com/inkworklabs/caboz/internal/fees"
)

// CreateOrder freezes order terms and computes the fee once. The loyalty
// candidate list is client-gathered and re-verified here; unverifiable,
// mis-owned or duplicate candidates are excluded from the count rather
// than failing the request, so discrepancies never under-count against
// the buyer.
func (e *Engine) CreateOrder(
	id string,
	buyer solana.PublicKey,
	price uint64,
	paymentMint solana.PublicKey,
	itemSet domain.ItemSet,
	candidates []domain.LoyaltyCandidate,
) (domain.Order, error) {
	if price == 0 {
		return domain.Order{}, fmt.Errorf("engine: create order: price must be positive: %w", domain.ErrInvalidParameter)
	}
	if err := validateItemSet(itemSet); err != nil {
		return domain.Order{}, fmt.Errorf("engine: create order: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.mints[paymentMint]
	if !ok {
		return domain.Order{}, fmt.Errorf("engine: create order: payment mint %s: %w",
			paymentMint, domain.ErrPaymentMintNotAllowed)
	}
	if _, exists := e.orders[id]; exists {
		return domain.Order{}, fmt.Errorf("engine: create order: id %q already used: %w",
			id, domain.ErrInvalidParameter)
	}

	count := e.countLoyaltyItems(buyer, candidates)

	order := &domain.Order{
		ID:           id,
		Buyer:        buyer,
		PaymentMint:  paymentMint,
		Price:        price,
		Fee:          fees.Fee(price, count, entry.FeeMultiplierBps),
		LoyaltyCount: count,
		ItemSet:      itemSet,
		Status:       domain.OrderStatusOpen,
		CreatedAt:    e.now(),
	}
	e.orders[id] = order
	return *order, nil
}

func validateItemSet(set domain.ItemSet) error {
	switch s := set.(type) {
	case domain.CollectionSet:
		if s.Collection.IsZero() {
			return domain.ErrUndefinedNftSet
		}
	case domain.MerkleSet:
		if s.Root == [32]byte{} {
			return domain.ErrUndefinedNftSet
		}
	default:
		return domain.ErrUndefinedNftSet
	}
	return nil
}

// countLoyaltyItems re-verifies each submitted (token account, mint) claim
// pair against ledger and metadata truth. At most MaxLoyaltyCandidates
// pairs are considered; holding more has the same effect as holding the
// cap.
func (e *Engine) countLoyaltyItems(buyer solana.PublicKey, candidates []domain.LoyaltyCandidate) uint8 {
	if len(candidates) > fees.MaxLoyaltyCandidates {
		candidates = candidates[:fees.MaxLoyaltyCandidates]
	}

	seen := make(map[solana.PublicKey]struct{}, len(candidates))
	var count uint8
	for _, cand := range candidates {
		if _, dup := seen[cand.Mint]; dup {
			continue
		}
		acc, ok := e.ledger.TokenAccount(cand.TokenAccount)
		if !ok || acc.Owner != buyer || acc.Mint != cand.Mint || acc.Amount != 1 {
			continue
		}
		meta, err := e.metadata.Resolve(cand.Mint)
		if err != nil || !meta.CollectionVerified || meta.Collection != e.cfg.LoyaltyCollection {
			continue
		}
		seen[cand.Mint] = struct{}{}
		count++
	}
	return count
}

// CloseOrder removes an open order. Only the buyer may close, and only
// while the order is open; no funds move.
func (e *Engine) CloseOrder(id string, caller solana.PublicKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[id]
	if !ok {
		return fmt.Errorf("engine: close order %q: %w", id, domain.ErrNotFound)
	}
	if caller != order.Buyer {
		return fmt.Errorf("engine: close order %q: caller is not the buyer: %w", id, domain.ErrUnauthorized)
	}
	if !order.Open() {
		return fmt.Errorf("engine: close order %q: %w", id, domain.ErrOrderNotOpen)
	}
	delete(e.orders, id)
	return nil
}

// Order returns a snapshot of the order with the given ID.
func (e *Engine) Order(id string) (domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, ok := e.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("engine: order %q: %w", id, domain.ErrNotFound)
	}
	return *order, nil
}

// Orders returns snapshots of all orders held by the engine.
func (e *Engine) Orders() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	return out
}
