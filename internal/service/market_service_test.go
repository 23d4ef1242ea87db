package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/inkworklabs/caboz/internal/domain"
	"github.com/inkworklabs/caboz/internal/engine"
	"github.com/inkworklabs/caboz/internal/ledger"
)

var testProgram = solana.MustPublicKeyFromBase58("133Sr1TwJf1uxJj1N5vtGSHZMDmbNJFpxxZTNhr84PJU")

type metadataMap map[solana.PublicKey]domain.ItemMetadata

func (m metadataMap) Resolve(mint solana.PublicKey) (domain.ItemMetadata, error) {
	meta, ok := m[mint]
	if !ok {
		return domain.ItemMetadata{}, domain.ErrNotFound
	}
	return meta, nil
}

type fakeOrderStore struct {
	created []domain.Order
	settled map[string]domain.CompletionReceipt
	closed  []string
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{settled: make(map[string]domain.CompletionReceipt)}
}

func (s *fakeOrderStore) Create(_ context.Context, o domain.Order) error {
	s.created = append(s.created, o)
	return nil
}

func (s *fakeOrderStore) MarkSettled(_ context.Context, id string, r domain.CompletionReceipt) error {
	s.settled[id] = r
	return nil
}

func (s *fakeOrderStore) MarkClosed(_ context.Context, id string) error {
	s.closed = append(s.closed, id)
	return nil
}

func (s *fakeOrderStore) GetByID(_ context.Context, id string) (domain.Order, error) {
	for _, o := range s.created {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (s *fakeOrderStore) ListOpen(_ context.Context, _ solana.PublicKey, _ domain.ListOpts) ([]domain.Order, error) {
	return nil, nil
}

func (s *fakeOrderStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Order, error) {
	return s.created, nil
}

type fakeBus struct {
	events []map[string]string
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	var evt map[string]string
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	b.events = append(b.events, evt)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

type fakeAudit struct {
	entries []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.entries = append(a.entries, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeLimiter struct {
	allow bool
	calls int
}

func (l *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.calls++
	return l.allow, nil
}

type harness struct {
	svc    *MarketService
	eng    *engine.Engine
	led    *ledger.Ledger
	store  *fakeOrderStore
	bus    *fakeBus
	audit  *fakeAudit
	meta   metadataMap
	buyer  solana.PublicKey
	seller solana.PublicKey
	auth   solana.PublicKey
	coll   solana.PublicKey
}

func newHarness(t *testing.T, limiter domain.RateLimiter) *harness {
	t.Helper()
	h := &harness{
		store:  newFakeOrderStore(),
		bus:    &fakeBus{},
		audit:  &fakeAudit{},
		meta:   metadataMap{},
		buyer:  solana.NewWallet().PublicKey(),
		seller: solana.NewWallet().PublicKey(),
		auth:   solana.NewWallet().PublicKey(),
		coll:   solana.NewWallet().PublicKey(),
	}
	h.led = ledger.New(testProgram, ledger.WithRentReserve(1_000))
	h.eng = engine.New(h.led, h.meta, engine.Config{
		Authority:         h.auth,
		FeeReceiver:       solana.NewWallet().PublicKey(),
		LoyaltyCollection: solana.NewWallet().PublicKey(),
	})
	h.svc = NewMarketService(h.eng, h.store, nil, nil, limiter, h.bus, h.audit,
		slog.New(slog.DiscardHandler))

	h.led.Credit(h.auth, 10_000)
	h.led.Credit(h.buyer, 10_000)
	h.led.Credit(h.seller, 10_000)
	require.NoError(t, h.eng.AllowPaymentMint(h.auth, domain.NativeMint, 10_000))
	return h
}

func (h *harness) mintItem(t *testing.T, owner solana.PublicKey, verified bool) solana.PublicKey {
	t.Helper()
	mint := solana.NewWallet().PublicKey()
	h.led.MintToken(owner, mint, 1)
	h.meta[mint] = domain.ItemMetadata{Mint: mint, Collection: h.coll, CollectionVerified: verified}
	return mint
}

func TestCreateOrderPersistsAndPublishes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	order, err := h.svc.CreateOrder(ctx, h.buyer, 100_000, domain.NativeMint,
		domain.CollectionSet{Collection: h.coll}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, order.ID)

	require.Len(t, h.store.created, 1)
	require.Equal(t, order.ID, h.store.created[0].ID)
	require.Len(t, h.bus.events, 1)
	require.Equal(t, "order_created", h.bus.events[0]["event"])
	require.Equal(t, order.ID, h.bus.events[0]["order_id"])
	require.Equal(t, []string{"order_created"}, h.audit.entries)
}

func TestCreateOrderRateLimited(t *testing.T) {
	limiter := &fakeLimiter{allow: false}
	h := newHarness(t, limiter)

	_, err := h.svc.CreateOrder(context.Background(), h.buyer, 100_000, domain.NativeMint,
		domain.CollectionSet{Collection: h.coll}, nil)
	require.ErrorIs(t, err, domain.ErrRateLimited)
	require.Equal(t, 1, limiter.calls)
	require.Empty(t, h.store.created, "rejected orders never reach the store")
}

func TestSettleOrderFlow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.led.Credit(h.buyer, 101_000)
	require.NoError(t, h.eng.DepositNative(h.buyer, 101_000))

	order, err := h.svc.CreateOrder(ctx, h.buyer, 100_000, domain.NativeMint,
		domain.CollectionSet{Collection: h.coll}, nil)
	require.NoError(t, err)

	item := h.mintItem(t, h.seller, true)
	settled, err := h.svc.SettleOrder(ctx, order.ID, 100_000, domain.NativeMint, item, nil, h.seller)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusSettled, settled.Status)

	receipt, ok := h.store.settled[order.ID]
	require.True(t, ok)
	require.Equal(t, h.seller, receipt.Seller)
	require.Equal(t, item, receipt.ItemMint)

	require.Equal(t, "order_settled", h.bus.events[len(h.bus.events)-1]["event"])
	require.Equal(t, []string{"order_created", "order_settled"}, h.audit.entries)

	// Engine failures surface unchanged and leave no projection.
	_, err = h.svc.SettleOrder(ctx, order.ID, 100_000, domain.NativeMint, item, nil, h.seller)
	require.ErrorIs(t, err, domain.ErrOrderNotOpen)
}

func TestCloseOrderFlow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	order, err := h.svc.CreateOrder(ctx, h.buyer, 100_000, domain.NativeMint,
		domain.CollectionSet{Collection: h.coll}, nil)
	require.NoError(t, err)

	err = h.svc.CloseOrder(ctx, order.ID, h.seller)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, h.svc.CloseOrder(ctx, order.ID, h.buyer))
	require.Equal(t, []string{order.ID}, h.store.closed)

	// The engine forgot the order; the read model still serves it.
	got, err := h.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ID, got.ID)
}

func TestRegistryProjection(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	mint := solana.NewWallet().PublicKey()

	require.NoError(t, h.svc.AllowPaymentMint(ctx, h.auth, mint, 7_500))
	mints, err := h.svc.PaymentMints(ctx)
	require.NoError(t, err)
	require.Len(t, mints, 2)

	err = h.svc.AllowPaymentMint(ctx, h.buyer, mint, 7_500)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, h.svc.DisallowPaymentMint(ctx, h.auth, mint))
	require.Contains(t, h.audit.entries, "payment_mint_allowed")
	require.Contains(t, h.audit.entries, "payment_mint_disallowed")
}
