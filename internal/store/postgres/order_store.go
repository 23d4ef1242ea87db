package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkworklabs/caboz/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const (
	setKindCollection = "collection"
	setKindMerkle     = "merkle"
)

// Create inserts a new order row. The item set union is flattened into a
// kind discriminator plus nullable payload columns.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	var (
		setKind    string
		collection *string
		merkleRoot []byte
		locator    *string
	)
	switch set := o.ItemSet.(type) {
	case domain.CollectionSet:
		setKind = setKindCollection
		v := set.Collection.String()
		collection = &v
	case domain.MerkleSet:
		setKind = setKindMerkle
		merkleRoot = append([]byte(nil), set.Root[:]...)
		if set.Locator != "" {
			locator = &set.Locator
		}
	default:
		return fmt.Errorf("postgres: create order %s: %w", o.ID, domain.ErrUndefinedNftSet)
	}

	const query = `
		INSERT INTO orders (
			id, buyer, payment_mint, price, fee, loyalty_count,
			set_kind, collection, merkle_root, locator,
			status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.Buyer.String(), o.PaymentMint.String(),
		o.Price, o.Fee, int16(o.LoyaltyCount),
		setKind, collection, merkleRoot, locator,
		string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// MarkSettled records the completion receipt and flips the order to the
// settled status. Only open orders transition; anything else is ErrNotFound.
func (s *OrderStore) MarkSettled(ctx context.Context, id string, receipt domain.CompletionReceipt) error {
	const query = `
		UPDATE orders
		SET status = $1, seller = $2, item_mint = $3, settled_at = $4
		WHERE id = $5 AND status = $6`

	tag, err := s.pool.Exec(ctx, query,
		string(domain.OrderStatusSettled),
		receipt.Seller.String(), receipt.ItemMint.String(), receipt.SettledAt,
		id, string(domain.OrderStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("postgres: mark order %s settled: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkClosed flips an open order to the closed status.
func (s *OrderStore) MarkClosed(ctx context.Context, id string) error {
	const query = `UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`

	tag, err := s.pool.Exec(ctx, query,
		string(domain.OrderStatusClosed), id, string(domain.OrderStatusOpen))
	if err != nil {
		return fmt.Errorf("postgres: mark order %s closed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `id, buyer, payment_mint, price, fee, loyalty_count,
	set_kind, collection, merkle_root, locator,
	status, seller, item_mint, settled_at, created_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Order, error) {
	var o domain.Order
	var (
		buyer, paymentMint, setKind, status string
		loyaltyCount                        int16
		collection, locator                 *string
		merkleRoot                          []byte
		seller, itemMint                    *string
		settledAt                           *time.Time
	)

	err := scanner.Scan(
		&o.ID, &buyer, &paymentMint, &o.Price, &o.Fee, &loyaltyCount,
		&setKind, &collection, &merkleRoot, &locator,
		&status, &seller, &itemMint, &settledAt, &o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	if o.Buyer, err = solana.PublicKeyFromBase58(buyer); err != nil {
		return domain.Order{}, fmt.Errorf("buyer key: %w", err)
	}
	if o.PaymentMint, err = solana.PublicKeyFromBase58(paymentMint); err != nil {
		return domain.Order{}, fmt.Errorf("payment mint key: %w", err)
	}
	o.LoyaltyCount = uint8(loyaltyCount)
	o.Status = domain.OrderStatus(status)

	switch setKind {
	case setKindCollection:
		if collection == nil {
			return domain.Order{}, fmt.Errorf("collection set without collection column")
		}
		key, err := solana.PublicKeyFromBase58(*collection)
		if err != nil {
			return domain.Order{}, fmt.Errorf("collection key: %w", err)
		}
		o.ItemSet = domain.CollectionSet{Collection: key}
	case setKindMerkle:
		if len(merkleRoot) != 32 {
			return domain.Order{}, fmt.Errorf("merkle root has %d bytes", len(merkleRoot))
		}
		set := domain.MerkleSet{}
		copy(set.Root[:], merkleRoot)
		if locator != nil {
			set.Locator = *locator
		}
		o.ItemSet = set
	default:
		return domain.Order{}, fmt.Errorf("unknown set kind %q", setKind)
	}

	if seller != nil && itemMint != nil && settledAt != nil {
		receipt := domain.CompletionReceipt{SettledAt: *settledAt}
		if receipt.Seller, err = solana.PublicKeyFromBase58(*seller); err != nil {
			return domain.Order{}, fmt.Errorf("seller key: %w", err)
		}
		if receipt.ItemMint, err = solana.PublicKeyFromBase58(*itemMint); err != nil {
			return domain.Order{}, fmt.Errorf("item mint key: %w", err)
		}
		o.Receipt = &receipt
	}

	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListOpen returns still-open orders for the given buyer, newest first.
func (s *OrderStore) ListOpen(ctx context.Context, buyer solana.PublicKey, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders
		WHERE buyer = $1 AND status = $2
		ORDER BY created_at DESC`
	args := []any{buyer.String(), string(domain.OrderStatusOpen)}
	query, args = paginate(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open orders: %w", err)
	}
	return orders, nil
}

// List returns orders across all buyers and statuses, newest first.
func (s *OrderStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders ORDER BY created_at DESC`
	var args []any
	query, args = paginate(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders: %w", err)
	}
	return orders, nil
}

func paginate(query string, args []any, opts domain.ListOpts) (string, []any) {
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
