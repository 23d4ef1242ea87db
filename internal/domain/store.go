package domain

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// OrderStore persists the externally readable order read model.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	MarkSettled(ctx context.Context, id string, receipt CompletionReceipt) error
	MarkClosed(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListOpen(ctx context.Context, buyer solana.PublicKey, opts ListOpts) ([]Order, error)
	List(ctx context.Context, opts ListOpts) ([]Order, error)
}

// PaymentMintStore persists the payment-mint registry read model.
type PaymentMintStore interface {
	Upsert(ctx context.Context, mint PaymentMint) error
	Delete(ctx context.Context, mint solana.PublicKey) error
	List(ctx context.Context) ([]PaymentMint, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
