package redis

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"

	"github.com/inkworklabs/caboz/internal/domain"
)

const orderTTL = 5 * time.Minute

// OrderCache implements domain.OrderCache using Redis string keys holding
// JSON-serialized order snapshots.
//
// Key schema:
//
//	order:{id} - JSON-encoded order
type OrderCache struct {
	rdb *redis.Client
}

// NewOrderCache creates an OrderCache backed by the given Client.
func NewOrderCache(c *Client) *OrderCache {
	return &OrderCache{rdb: c.Underlying()}
}

func orderKey(id string) string { return "order:" + id }

// cachedOrder is the wire shape for cached orders. The item set union is
// flattened into a kind discriminator so it survives JSON round trips.
type cachedOrder struct {
	ID           string     `json:"id"`
	Buyer        string     `json:"buyer"`
	PaymentMint  string     `json:"payment_mint"`
	Price        uint64     `json:"price"`
	Fee          uint64     `json:"fee"`
	LoyaltyCount uint8      `json:"loyalty_count"`
	SetKind      string     `json:"set_kind"`
	Collection   string     `json:"collection,omitempty"`
	MerkleRoot   string     `json:"merkle_root,omitempty"`
	Locator      string     `json:"locator,omitempty"`
	Status       string     `json:"status"`
	Seller       string     `json:"seller,omitempty"`
	ItemMint     string     `json:"item_mint,omitempty"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func encodeOrder(o domain.Order) (cachedOrder, error) {
	co := cachedOrder{
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
		co.SetKind = "collection"
		co.Collection = set.Collection.String()
	case domain.MerkleSet:
		co.SetKind = "merkle"
		co.MerkleRoot = hex.EncodeToString(set.Root[:])
		co.Locator = set.Locator
	default:
		return cachedOrder{}, domain.ErrUndefinedNftSet
	}
	if o.Receipt != nil {
		co.Seller = o.Receipt.Seller.String()
		co.ItemMint = o.Receipt.ItemMint.String()
		t := o.Receipt.SettledAt
		co.SettledAt = &t
	}
	return co, nil
}

func decodeOrder(co cachedOrder) (domain.Order, error) {
	o := domain.Order{
		ID:           co.ID,
		Price:        co.Price,
		Fee:          co.Fee,
		LoyaltyCount: co.LoyaltyCount,
		Status:       domain.OrderStatus(co.Status),
		CreatedAt:    co.CreatedAt,
	}
	var err error
	if o.Buyer, err = solana.PublicKeyFromBase58(co.Buyer); err != nil {
		return domain.Order{}, fmt.Errorf("buyer key: %w", err)
	}
	if o.PaymentMint, err = solana.PublicKeyFromBase58(co.PaymentMint); err != nil {
		return domain.Order{}, fmt.Errorf("payment mint key: %w", err)
	}

	switch co.SetKind {
	case "collection":
		key, err := solana.PublicKeyFromBase58(co.Collection)
		if err != nil {
			return domain.Order{}, fmt.Errorf("collection key: %w", err)
		}
		o.ItemSet = domain.CollectionSet{Collection: key}
	case "merkle":
		root, err := hex.DecodeString(co.MerkleRoot)
		if err != nil || len(root) != 32 {
			return domain.Order{}, fmt.Errorf("merkle root %q is not 32 hex bytes", co.MerkleRoot)
		}
		set := domain.MerkleSet{Locator: co.Locator}
		copy(set.Root[:], root)
		o.ItemSet = set
	default:
		return domain.Order{}, fmt.Errorf("unknown set kind %q", co.SetKind)
	}

	if co.Seller != "" && co.ItemMint != "" && co.SettledAt != nil {
		receipt := domain.CompletionReceipt{SettledAt: *co.SettledAt}
		if receipt.Seller, err = solana.PublicKeyFromBase58(co.Seller); err != nil {
			return domain.Order{}, fmt.Errorf("seller key: %w", err)
		}
		if receipt.ItemMint, err = solana.PublicKeyFromBase58(co.ItemMint); err != nil {
			return domain.Order{}, fmt.Errorf("item mint key: %w", err)
		}
		o.Receipt = &receipt
	}
	return o, nil
}

// Set stores an order snapshot with a 5-minute TTL.
func (oc *OrderCache) Set(ctx context.Context, order domain.Order) error {
	co, err := encodeOrder(order)
	if err != nil {
		return fmt.Errorf("redis: encode order %s: %w", order.ID, err)
	}
	data, err := json.Marshal(co)
	if err != nil {
		return fmt.Errorf("redis: marshal order %s: %w", order.ID, err)
	}
	if err := oc.rdb.Set(ctx, orderKey(order.ID), data, orderTTL).Err(); err != nil {
		return fmt.Errorf("redis: set order %s: %w", order.ID, err)
	}
	return nil
}

// Get retrieves an order snapshot by ID.
// It returns domain.ErrNotFound when the key does not exist.
func (oc *OrderCache) Get(ctx context.Context, id string) (domain.Order, error) {
	data, err := oc.rdb.Get(ctx, orderKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("redis: get order %s: %w", id, err)
	}

	var co cachedOrder
	if err := json.Unmarshal(data, &co); err != nil {
		return domain.Order{}, fmt.Errorf("redis: unmarshal order %s: %w", id, err)
	}
	o, err := decodeOrder(co)
	if err != nil {
		return domain.Order{}, fmt.Errorf("redis: decode order %s: %w", id, err)
	}
	return o, nil
}

// Invalidate removes an order snapshot from the cache. Deleting a missing
// key is not an error.
func (oc *OrderCache) Invalidate(ctx context.Context, id string) error {
	if err := oc.rdb.Del(ctx, orderKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate order %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OrderCache = (*OrderCache)(nil)
