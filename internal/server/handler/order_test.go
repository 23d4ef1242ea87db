package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/inkworklabs/caboz/internal/domain"
)

// orderServiceStub implements OrderService with swappable function fields.
type orderServiceStub struct {
	create func(ctx context.Context, buyer solana.PublicKey, price uint64, paymentMint solana.PublicKey, itemSet domain.ItemSet, candidates []domain.LoyaltyCandidate) (domain.Order, error)
	settle func(ctx context.Context, id string, expectedPrice uint64, paymentMint, itemMint solana.PublicKey, proof [][32]byte, seller solana.PublicKey) (domain.Order, error)
	close  func(ctx context.Context, id string, caller solana.PublicKey) error
	get    func(ctx context.Context, id string) (domain.Order, error)
	list   func(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error)
}

func (s *orderServiceStub) CreateOrder(ctx context.Context, buyer solana.PublicKey, price uint64, paymentMint solana.PublicKey, itemSet domain.ItemSet, candidates []domain.LoyaltyCandidate) (domain.Order, error) {
	return s.create(ctx, buyer, price, paymentMint, itemSet, candidates)
}

func (s *orderServiceStub) SettleOrder(ctx context.Context, id string, expectedPrice uint64, paymentMint, itemMint solana.PublicKey, proof [][32]byte, seller solana.PublicKey) (domain.Order, error) {
	return s.settle(ctx, id, expectedPrice, paymentMint, itemMint, proof, seller)
}

func (s *orderServiceStub) CloseOrder(ctx context.Context, id string, caller solana.PublicKey) error {
	return s.close(ctx, id, caller)
}

func (s *orderServiceStub) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.get(ctx, id)
}

func (s *orderServiceStub) ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	return s.list(ctx, opts)
}

func orderMux(svc *orderServiceStub) *http.ServeMux {
	h := NewOrderHandler(svc, discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/settle", h.SettleOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", h.CloseOrder)
	return mux
}

func TestCreateOrderHandler(t *testing.T) {
	buyer := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	collection := solana.NewWallet().PublicKey()

	svc := &orderServiceStub{
		create: func(_ context.Context, gotBuyer solana.PublicKey, price uint64, gotMint solana.PublicKey, itemSet domain.ItemSet, candidates []domain.LoyaltyCandidate) (domain.Order, error) {
			require.Equal(t, buyer, gotBuyer)
			require.Equal(t, uint64(100_000), price)
			require.Equal(t, mint, gotMint)
			require.Equal(t, domain.CollectionSet{Collection: collection}, itemSet)
			require.Empty(t, candidates)
			return domain.Order{
				ID:          "ord-1",
				Buyer:       gotBuyer,
				PaymentMint: gotMint,
				Price:       price,
				Fee:         1_000,
				ItemSet:     itemSet,
				Status:      domain.OrderStatusOpen,
				CreatedAt:   time.Now().UTC(),
			}, nil
		},
	}
	mux := orderMux(svc)

	body, err := json.Marshal(createOrderRequest{
		Buyer:       buyer.String(),
		Price:       100_000,
		PaymentMint: mint.String(),
		ItemSet:     itemSetJSON{Kind: "collection", Collection: collection.String()},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var got orderJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "ord-1", got.ID)
	require.Equal(t, "collection", got.ItemSet.Kind)
	require.Equal(t, collection.String(), got.ItemSet.Collection)
	require.Equal(t, uint64(1_000), got.Fee)
}

func TestCreateOrderHandlerRejectsBadItemSet(t *testing.T) {
	mux := orderMux(&orderServiceStub{})

	buyer := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	for name, set := range map[string]itemSetJSON{
		"unknown kind":   {Kind: "fancy"},
		"bad collection": {Kind: "collection", Collection: "nope"},
		"short root":     {Kind: "merkle", Root: "abcd"},
	} {
		body, err := json.Marshal(createOrderRequest{
			Buyer:       buyer.String(),
			Price:       1,
			PaymentMint: mint.String(),
			ItemSet:     set,
		})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestOrderHandlerErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want int
	}{
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"unauthorized", domain.ErrUnauthorized, http.StatusForbidden},
		{"not open", domain.ErrOrderNotOpen, http.StatusConflict},
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusConflict},
		{"mint not allowed", domain.ErrPaymentMintNotAllowed, http.StatusUnprocessableEntity},
		{"price mismatch", domain.ErrPriceMismatch, http.StatusUnprocessableEntity},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc := &orderServiceStub{
				settle: func(context.Context, string, uint64, solana.PublicKey, solana.PublicKey, [][32]byte, solana.PublicKey) (domain.Order, error) {
					return domain.Order{}, tc.err
				},
			}
			mux := orderMux(svc)

			body, err := json.Marshal(settleOrderRequest{
				Seller:      solana.NewWallet().PublicKey().String(),
				PaymentMint: solana.NewWallet().PublicKey().String(),
				ItemMint:    solana.NewWallet().PublicKey().String(),
			})
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders/ord-1/settle", bytes.NewReader(body)))
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestGetOrderHandler(t *testing.T) {
	svc := &orderServiceStub{
		get: func(_ context.Context, id string) (domain.Order, error) {
			if id != "ord-1" {
				return domain.Order{}, domain.ErrNotFound
			}
			return domain.Order{
				ID:          id,
				Buyer:       solana.NewWallet().PublicKey(),
				PaymentMint: solana.NewWallet().PublicKey(),
				Price:       5,
				ItemSet:     domain.MerkleSet{Locator: "itemsets/test.json"},
				Status:      domain.OrderStatusOpen,
			}, nil
		},
	}
	mux := orderMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/ord-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got orderJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "merkle", got.ItemSet.Kind)
	require.Equal(t, "itemsets/test.json", got.ItemSet.Locator)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCloseOrderHandler(t *testing.T) {
	caller := solana.NewWallet().PublicKey()
	var closedID string
	svc := &orderServiceStub{
		close: func(_ context.Context, id string, gotCaller solana.PublicKey) error {
			require.Equal(t, caller, gotCaller)
			closedID = id
			return nil
		},
	}
	mux := orderMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/orders/ord-1?caller="+caller.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ord-1", closedID)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/orders/ord-1?caller=bad", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
