// Package service coordinates the settlement engine with the persistent
// read model, caches, and event publication. The engine remains the
// source of truth; stores and caches are best-effort projections for
// observers and never gate a state transition that the engine accepted.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/inkworklabs/caboz/internal/domain"
	"github.com/inkworklabs/caboz/internal/engine"
)

// ordersChannel is the signal bus channel carrying order lifecycle events.
const ordersChannel = "orders"

// defaultCreateOrderRateLimit bounds order creations per buyer per second.
const defaultCreateOrderRateLimit = 10

// MarketService handles the order lifecycle from creation through
// settlement or closure.
type MarketService struct {
	engine    *engine.Engine
	orders    domain.OrderStore
	mints     domain.PaymentMintStore
	cache     domain.OrderCache
	limiter   domain.RateLimiter
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
	rateLimit int
}

// NewMarketService creates a MarketService with all required dependencies.
// The cache, limiter, bus and audit store may be nil; the corresponding
// step is skipped.
func NewMarketService(
	eng *engine.Engine,
	orders domain.OrderStore,
	mints domain.PaymentMintStore,
	cache domain.OrderCache,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		engine:    eng,
		orders:    orders,
		mints:     mints,
		cache:     cache,
		limiter:   limiter,
		bus:       bus,
		audit:     audit,
		logger:    logger,
		rateLimit: defaultCreateOrderRateLimit,
	}
}

// SetCreateOrderRateLimit overrides the per-buyer order creation budget.
// Values below one are ignored.
func (s *MarketService) SetCreateOrderRateLimit(n int) {
	if n > 0 {
		s.rateLimit = n
	}
}

// AllowPaymentMint whitelists a payment currency through the engine and
// projects the registry change into the read model.
func (s *MarketService) AllowPaymentMint(ctx context.Context, authority, mint solana.PublicKey, feeMultiplierBps uint16) error {
	if err := s.engine.AllowPaymentMint(authority, mint, feeMultiplierBps); err != nil {
		return fmt.Errorf("market_service: allow payment mint: %w", err)
	}
	if s.mints != nil {
		if err := s.mints.Upsert(ctx, domain.PaymentMint{Mint: mint, FeeMultiplierBps: feeMultiplierBps}); err != nil {
			s.logger.WarnContext(ctx, "market_service: payment mint upsert failed",
				slog.String("mint", mint.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	s.auditLog(ctx, "payment_mint_allowed", map[string]any{
		"mint":               mint.String(),
		"fee_multiplier_bps": feeMultiplierBps,
	})
	return nil
}

// DisallowPaymentMint removes a payment currency from the registry.
func (s *MarketService) DisallowPaymentMint(ctx context.Context, authority, mint solana.PublicKey) error {
	if err := s.engine.DisallowPaymentMint(authority, mint); err != nil {
		return fmt.Errorf("market_service: disallow payment mint: %w", err)
	}
	if s.mints != nil {
		if err := s.mints.Delete(ctx, mint); err != nil {
			s.logger.WarnContext(ctx, "market_service: payment mint delete failed",
				slog.String("mint", mint.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	s.auditLog(ctx, "payment_mint_disallowed", map[string]any{"mint": mint.String()})
	return nil
}

// PaymentMints lists the currently allowed payment mints.
func (s *MarketService) PaymentMints(ctx context.Context) ([]domain.PaymentMint, error) {
	return s.engine.PaymentMints(), nil
}

// CreateOrder assigns an order ID, freezes the terms through the engine,
// persists the read model, and publishes an order_created event.
func (s *MarketService) CreateOrder(
	ctx context.Context,
	buyer solana.PublicKey,
	price uint64,
	paymentMint solana.PublicKey,
	itemSet domain.ItemSet,
	candidates []domain.LoyaltyCandidate,
) (domain.Order, error) {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "orders:"+buyer.String(), s.rateLimit, time.Second)
		if err != nil {
			return domain.Order{}, fmt.Errorf("market_service: rate limiter: %w", err)
		}
		if !allowed {
			return domain.Order{}, fmt.Errorf("market_service: create order: %w", domain.ErrRateLimited)
		}
	}

	order, err := s.engine.CreateOrder(uuid.NewString(), buyer, price, paymentMint, itemSet, candidates)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market_service: create order: %w", err)
	}

	if s.orders != nil {
		if err := s.orders.Create(ctx, order); err != nil {
			s.logger.WarnContext(ctx, "market_service: persist order failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.cacheSet(ctx, order)
	s.publish(ctx, map[string]string{
		"event":    "order_created",
		"order_id": order.ID,
		"buyer":    order.Buyer.String(),
		"mint":     order.PaymentMint.String(),
	})
	s.auditLog(ctx, "order_created", map[string]any{
		"order_id":      order.ID,
		"buyer":         order.Buyer.String(),
		"price":         order.Price,
		"fee":           order.Fee,
		"loyalty_count": order.LoyaltyCount,
	})

	s.logger.InfoContext(ctx, "market_service: order created",
		slog.String("order_id", order.ID),
		slog.Uint64("price", order.Price),
		slog.Uint64("fee", order.Fee),
	)
	return order, nil
}

// SettleOrder runs the engine settlement and projects the completion
// receipt into the read model.
func (s *MarketService) SettleOrder(
	ctx context.Context,
	id string,
	expectedPrice uint64,
	paymentMint solana.PublicKey,
	itemMint solana.PublicKey,
	proof [][32]byte,
	seller solana.PublicKey,
) (domain.Order, error) {
	order, err := s.engine.Settle(id, expectedPrice, paymentMint, itemMint, proof, seller)
	if err != nil {
		return domain.Order{}, fmt.Errorf("market_service: settle order: %w", err)
	}

	if s.orders != nil {
		if err := s.orders.MarkSettled(ctx, order.ID, *order.Receipt); err != nil {
			s.logger.WarnContext(ctx, "market_service: mark settled failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.cacheSet(ctx, order)
	s.publish(ctx, map[string]string{
		"event":    "order_settled",
		"order_id": order.ID,
		"seller":   seller.String(),
		"item":     itemMint.String(),
	})
	s.auditLog(ctx, "order_settled", map[string]any{
		"order_id": order.ID,
		"seller":   seller.String(),
		"item":     itemMint.String(),
		"price":    order.Price,
		"fee":      order.Fee,
	})

	s.logger.InfoContext(ctx, "market_service: order settled",
		slog.String("order_id", order.ID),
		slog.String("seller", seller.String()),
		slog.String("item", itemMint.String()),
	)
	return order, nil
}

// CloseOrder removes an open order on the buyer's request.
func (s *MarketService) CloseOrder(ctx context.Context, id string, caller solana.PublicKey) error {
	if err := s.engine.CloseOrder(id, caller); err != nil {
		return fmt.Errorf("market_service: close order %q: %w", id, err)
	}

	if s.orders != nil {
		if err := s.orders.MarkClosed(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "market_service: mark closed failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	s.cacheInvalidate(ctx, id)
	s.publish(ctx, map[string]string{
		"event":    "order_closed",
		"order_id": id,
	})
	s.auditLog(ctx, "order_closed", map[string]any{"order_id": id})

	s.logger.InfoContext(ctx, "market_service: order closed", slog.String("order_id", id))
	return nil
}

// GetOrder retrieves an order, preferring the cache, then live engine
// state, then the persistent read model (which also remembers closed
// orders the engine has dropped).
func (s *MarketService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if s.cache != nil {
		if order, err := s.cache.Get(ctx, id); err == nil {
			return order, nil
		}
	}
	if order, err := s.engine.Order(id); err == nil {
		s.cacheSet(ctx, order)
		return order, nil
	}
	if s.orders != nil {
		order, err := s.orders.GetByID(ctx, id)
		if err != nil {
			return domain.Order{}, fmt.Errorf("market_service: get order %q: %w", id, err)
		}
		return order, nil
	}
	return domain.Order{}, fmt.Errorf("market_service: get order %q: %w", id, domain.ErrNotFound)
}

// ListOrders returns orders from the read model with pagination.
func (s *MarketService) ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	if s.orders == nil {
		return s.engine.Orders(), nil
	}
	orders, err := s.orders.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list orders: %w", err)
	}
	return orders, nil
}

// BalanceNative reports the withdrawable native escrow balance for owner.
func (s *MarketService) BalanceNative(owner solana.PublicKey) uint64 {
	return s.engine.BalanceNative(owner)
}

// BalanceToken reports the escrow holding balance for owner and mint.
func (s *MarketService) BalanceToken(owner, mint solana.PublicKey) uint64 {
	return s.engine.BalanceToken(owner, mint)
}

func (s *MarketService) cacheSet(ctx context.Context, order domain.Order) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, order); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) cacheInvalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) publish(ctx context.Context, event map[string]string) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(event)
	if err := s.bus.Publish(ctx, ordersChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish event failed",
			slog.String("event", event["event"]),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
