package engine

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/inkworklabs/caboz/internal/domain"
	"github.com/inkworklabs/caboz/internal/ledger"
)

// Settle executes the one-shot settlement transition. The checks run in a
// fixed order and the first failure aborts with no fund movement:
//
//  1. the order is open
//  2. expectedPrice matches the frozen price
//  3. the declared payment mint matches the order's
//  4. the item passes the admission check for the order's item set
//  5. funds and the item move, all or nothing
//
// On success the seller receives price−fee, the fee receiver receives the
// fee, one unit of the item moves to the buyer, and the write-once
// completion receipt is attached.
func (e *Engine) Settle(
	id string,
	expectedPrice uint64,
	paymentMint solana.PublicKey,
	itemMint solana.PublicKey,
	proof [][32]byte,
	seller solana.PublicKey,
) (domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("engine: settle order %q: %w", id, domain.ErrNotFound)
	}
	if !order.Open() {
		return domain.Order{}, fmt.Errorf("engine: settle order %q: %w", id, domain.ErrOrderNotOpen)
	}
	if expectedPrice != order.Price {
		return domain.Order{}, fmt.Errorf("engine: settle order %q: expected %d, order price %d: %w",
			id, expectedPrice, order.Price, domain.ErrPriceMismatch)
	}
	if paymentMint != order.PaymentMint {
		return domain.Order{}, fmt.Errorf("engine: settle order %q: declared mint %s, order mint %s: %w",
			id, paymentMint, order.PaymentMint, domain.ErrPaymentMintMismatch)
	}
	if err := e.admit(order.ItemSet, itemMint, proof); err != nil {
		return domain.Order{}, fmt.Errorf("engine: settle order %q: %w", id, err)
	}
	if err := e.moveFunds(order, itemMint, seller); err != nil {
		return domain.Order{}, fmt.Errorf("engine: settle order %q: %w", id, err)
	}

	order.Receipt = &domain.CompletionReceipt{
		Seller:    seller,
		ItemMint:  itemMint,
		SettledAt: e.now(),
	}
	order.Status = domain.OrderStatusSettled
	return *order, nil
}

// moveFunds validates every movement before committing any of them.
// Payment comes out of the buyer's escrow wallet (native) or the wallet's
// holding account (non-native); the item moves from the seller to the
// buyer, whose item account is created on demand at the seller's expense.
func (e *Engine) moveFunds(order *domain.Order, itemMint, seller solana.PublicKey) error {
	wallet := e.ledger.WalletAddress(order.Buyer)
	payout := order.Price - order.Fee

	sellerItemAcc := ledger.AssociatedTokenAddress(seller, itemMint)
	if err := e.requireTokenBalance(sellerItemAcc, 1); err != nil {
		return fmt.Errorf("seller item account: %w", err)
	}

	var payments []ledger.Movement
	if order.PaymentMint == domain.NativeMint {
		if e.ledger.Withdrawable(wallet) < order.Price {
			return fmt.Errorf("buyer wallet %s: %w", wallet, domain.ErrInsufficientFunds)
		}
		payments = []ledger.Movement{
			{From: wallet, To: seller, Amount: payout},
			{From: wallet, To: e.cfg.FeeReceiver, Amount: order.Fee},
		}
	} else {
		walletAcc := ledger.AssociatedTokenAddress(wallet, order.PaymentMint)
		if err := e.requireTokenBalance(walletAcc, order.Price); err != nil {
			return fmt.Errorf("buyer wallet holding account: %w", err)
		}
		sellerAcc, err := e.ledger.CreateTokenAccount(seller, seller, order.PaymentMint)
		if err != nil {
			return fmt.Errorf("seller payout account: %w", err)
		}
		feeAcc := ledger.AssociatedTokenAddress(e.cfg.FeeReceiver, order.PaymentMint)
		if _, ok := e.ledger.TokenAccount(feeAcc); !ok {
			// Provisioned by AllowPaymentMint; absent only if the registry
			// was mutated out from under us.
			return fmt.Errorf("fee receiver holding account %s: %w", feeAcc, domain.ErrNotFound)
		}
		payments = []ledger.Movement{
			{Token: true, From: walletAcc, To: sellerAcc, Amount: payout},
			{Token: true, From: walletAcc, To: feeAcc, Amount: order.Fee},
		}
	}

	buyerItemAcc, err := e.ledger.CreateTokenAccount(seller, order.Buyer, itemMint)
	if err != nil {
		return fmt.Errorf("buyer item account: %w", err)
	}
	movements := append(payments, ledger.Movement{
		Token: true, From: sellerItemAcc, To: buyerItemAcc, Amount: 1,
	})
	return e.ledger.Apply(movements)
}
