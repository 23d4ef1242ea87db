package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusOpen    OrderStatus = "open"
	OrderStatusSettled OrderStatus = "settled"
	OrderStatusClosed  OrderStatus = "closed"
)

// ItemSet is the criterion deciding which items may settle an order.
// Exactly one concrete shape is attached to an order at creation and is
// immutable afterwards.
type ItemSet interface {
	itemSet()
}

// CollectionSet admits any item carrying a verified membership tag for the
// given collection mint.
type CollectionSet struct {
	Collection solana.PublicKey
}

func (CollectionSet) itemSet() {}

// MerkleSet admits any item whose mint is a proven leaf under Root. Leaves
// are raw 32-byte mint addresses, unhashed. Locator points at the published
// full leaf list; it is opaque to the admission check.
type MerkleSet struct {
	Root    [32]byte
	Locator string
}

func (MerkleSet) itemSet() {}

// CompletionReceipt is the write-once settlement record attached to an
// order when it leaves the open state.
type CompletionReceipt struct {
	Seller    solana.PublicKey
	ItemMint  solana.PublicKey
	SettledAt time.Time
}

// Order is an escrowed offer to buy one item out of an accepted set.
// Terms are frozen at creation; the only mutation ever applied is the
// one-shot settlement transition.
type Order struct {
	ID          string
	Buyer       solana.PublicKey
	PaymentMint solana.PublicKey
	Price       uint64 // smallest currency unit
	Fee         uint64 // frozen at creation, see fees package
	// LoyaltyCount is the number of verified loyalty-collection items the
	// buyer held at creation. May be used to prioritize holders.
	LoyaltyCount uint8
	ItemSet      ItemSet
	Status       OrderStatus
	CreatedAt    time.Time
	Receipt      *CompletionReceipt
}

// Open reports whether the order can still be settled or closed.
func (o Order) Open() bool {
	return o.Status == OrderStatusOpen
}

// LoyaltyCandidate is one client-gathered (ownership, metadata) claim pair
// submitted at order creation for fee-tier evaluation. The engine
// re-verifies each candidate against ledger truth; a client-asserted count
// is never trusted.
type LoyaltyCandidate struct {
	TokenAccount solana.PublicKey
	Mint         solana.PublicKey
}

// ItemMetadata is the externally resolved metadata view of an item:
// its declared collection and whether that membership was confirmed by the
// collection authority.
type ItemMetadata struct {
	Mint               solana.PublicKey
	Collection         solana.PublicKey
	CollectionVerified bool
}

// MetadataResolver reports item metadata. It stands in for the external
// asset-metadata program; the engine only reads from it.
type MetadataResolver interface {
	Resolve(mint solana.PublicKey) (ItemMetadata, error)
}
