package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/inkworklabs/caboz/internal/domain"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	CreateOrder(ctx context.Context, buyer solana.PublicKey, price uint64, paymentMint solana.PublicKey, itemSet domain.ItemSet, candidates []domain.LoyaltyCandidate) (domain.Order, error)
	SettleOrder(ctx context.Context, id string, expectedPrice uint64, paymentMint, itemMint solana.PublicKey, proof [][32]byte, seller solana.PublicKey) (domain.Order, error)
	CloseOrder(ctx context.Context, id string, caller solana.PublicKey) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error)
}

// OrderHandler serves order lifecycle HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// itemSetJSON is the wire shape of an order's item set.
type itemSetJSON struct {
	Kind       string `json:"kind"` // "collection" or "merkle"
	Collection string `json:"collection,omitempty"`
	Root       string `json:"root,omitempty"` // hex
	Locator    string `json:"locator,omitempty"`
}

// receiptJSON is the wire shape of a completion receipt.
type receiptJSON struct {
	Seller    string    `json:"seller"`
	ItemMint  string    `json:"item_mint"`
	SettledAt time.Time `json:"settled_at"`
}

// orderJSON is the wire shape of an order.
type orderJSON struct {
	ID           string       `json:"id"`
	Buyer        string       `json:"buyer"`
	PaymentMint  string       `json:"payment_mint"`
	Price        uint64       `json:"price"`
	Fee          uint64       `json:"fee"`
	LoyaltyCount uint8        `json:"loyalty_count"`
	ItemSet      itemSetJSON  `json:"item_set"`
	Status       string       `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	Receipt      *receiptJSON `json:"receipt,omitempty"`
}

func orderToJSON(o domain.Order) orderJSON {
	out := orderJSON{
		ID:           o.ID,
		Buyer:        o.Buyer.String(),
		PaymentMint:  o.PaymentMint.String(),
		Price:        o.Price,
		Fee:          o.Fee,
		LoyaltyCount: o.LoyaltyCount,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
	}
	switch set := o.ItemSet.(type) {
	case domain.CollectionSet:
		out.ItemSet = itemSetJSON{Kind: "collection", Collection: set.Collection.String()}
	case domain.MerkleSet:
		out.ItemSet = itemSetJSON{Kind: "merkle", Root: hex.EncodeToString(set.Root[:]), Locator: set.Locator}
	}
	if o.Receipt != nil {
		out.Receipt = &receiptJSON{
			Seller:    o.Receipt.Seller.String(),
			ItemMint:  o.Receipt.ItemMint.String(),
			SettledAt: o.Receipt.SettledAt,
		}
	}
	return out
}

// parseItemSet converts the wire shape into the domain union. A nil result
// with ok=true never happens; callers treat ok=false as already handled.
func parseItemSet(w http.ResponseWriter, in itemSetJSON) (domain.ItemSet, bool) {
	switch in.Kind {
	case "collection":
		key, ok := parseKey(w, "item_set.collection", in.Collection)
		if !ok {
			return nil, false
		}
		return domain.CollectionSet{Collection: key}, true
	case "merkle":
		root, err := hex.DecodeString(in.Root)
		if err != nil || len(root) != 32 {
			writeError(w, http.StatusBadRequest, "item_set.root must be 32 hex-encoded bytes")
			return nil, false
		}
		set := domain.MerkleSet{Locator: in.Locator}
		copy(set.Root[:], root)
		return set, true
	default:
		writeError(w, http.StatusBadRequest, `item_set.kind must be "collection" or "merkle"`)
		return nil, false
	}
}

// createOrderRequest is the JSON body for order creation.
type createOrderRequest struct {
	Buyer             string      `json:"buyer"`
	Price             uint64      `json:"price"`
	PaymentMint       string      `json:"payment_mint"`
	ItemSet           itemSetJSON `json:"item_set"`
	LoyaltyCandidates []struct {
		TokenAccount string `json:"token_account"`
		Mint         string `json:"mint"`
	} `json:"loyalty_candidates"`
}

// settleOrderRequest is the JSON body for settlement.
type settleOrderRequest struct {
	Seller        string   `json:"seller"`
	ExpectedPrice uint64   `json:"expected_price"`
	PaymentMint   string   `json:"payment_mint"`
	ItemMint      string   `json:"item_mint"`
	Proof         []string `json:"proof"` // hex-encoded 32-byte nodes
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders []orderJSON `json:"orders"`
}

// ListOrders returns orders from the read model with pagination.
// GET /api/orders?limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	out := make([]orderJSON, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderToJSON(o))
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: out})
}

// GetOrder returns a single order by ID.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	writeJSON(w, http.StatusOK, orderToJSON(order))
}

// CreateOrder opens a new escrowed order from a JSON body.
// POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	buyer, ok := parseKey(w, "buyer", req.Buyer)
	if !ok {
		return
	}
	paymentMint, ok := parseKey(w, "payment_mint", req.PaymentMint)
	if !ok {
		return
	}
	itemSet, ok := parseItemSet(w, req.ItemSet)
	if !ok {
		return
	}

	candidates := make([]domain.LoyaltyCandidate, 0, len(req.LoyaltyCandidates))
	for _, c := range req.LoyaltyCandidates {
		account, ok := parseKey(w, "loyalty_candidates.token_account", c.TokenAccount)
		if !ok {
			return
		}
		mint, ok := parseKey(w, "loyalty_candidates.mint", c.Mint)
		if !ok {
			return
		}
		candidates = append(candidates, domain.LoyaltyCandidate{TokenAccount: account, Mint: mint})
	}

	order, err := h.orders.CreateOrder(r.Context(), buyer, req.Price, paymentMint, itemSet, candidates)
	if err != nil {
		h.respondOrderError(w, r, "create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, orderToJSON(order))
}

// SettleOrder settles an open order with a seller-supplied item.
// POST /api/orders/{id}/settle
func (h *OrderHandler) SettleOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req settleOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	seller, ok := parseKey(w, "seller", req.Seller)
	if !ok {
		return
	}
	paymentMint, ok := parseKey(w, "payment_mint", req.PaymentMint)
	if !ok {
		return
	}
	itemMint, ok := parseKey(w, "item_mint", req.ItemMint)
	if !ok {
		return
	}

	proof := make([][32]byte, len(req.Proof))
	for i, node := range req.Proof {
		raw, err := hex.DecodeString(node)
		if err != nil || len(raw) != 32 {
			writeError(w, http.StatusBadRequest, "proof nodes must be 32 hex-encoded bytes")
			return
		}
		copy(proof[i][:], raw)
	}

	order, err := h.orders.SettleOrder(r.Context(), id, req.ExpectedPrice, paymentMint, itemMint, proof, seller)
	if err != nil {
		h.respondOrderError(w, r, "settle order", err)
		return
	}
	writeJSON(w, http.StatusOK, orderToJSON(order))
}

// CloseOrder closes an open order on the buyer's request.
// DELETE /api/orders/{id}?caller=<address>
func (h *OrderHandler) CloseOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}
	caller, ok := parseKey(w, "caller", r.URL.Query().Get("caller"))
	if !ok {
		return
	}

	if err := h.orders.CloseOrder(r.Context(), id, caller); err != nil {
		h.respondOrderError(w, r, "close order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "closed",
		"order_id": id,
	})
}

// respondOrderError maps domain errors onto HTTP status codes, logging only
// the unexpected ones.
func (h *OrderHandler) respondOrderError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "not permitted")
	case errors.Is(err, domain.ErrOrderNotOpen):
		writeError(w, http.StatusConflict, "order is not open")
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "insufficient escrow funds")
	case errors.Is(err, domain.ErrInvalidParameter),
		errors.Is(err, domain.ErrUndefinedNftSet),
		errors.Is(err, domain.ErrPaymentMintNotAllowed),
		errors.Is(err, domain.ErrPaymentMintMismatch),
		errors.Is(err, domain.ErrPriceMismatch),
		errors.Is(err, domain.ErrConstraintCollection),
		errors.Is(err, domain.ErrCollectionNotVerified),
		errors.Is(err, domain.ErrNFTNotInSet):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
