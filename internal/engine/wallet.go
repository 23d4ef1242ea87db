package engine

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/inkworklabs/caboz/internal/domain"
	"github.com/inkworklabs/caboz/internal/ledger"
)

// WalletAddress returns the owner's escrow wallet address. The derivation
// is pure; no wallet registry exists.
func (e *Engine) WalletAddress(owner solana.PublicKey) solana.PublicKey {
	return e.ledger.WalletAddress(owner)
}

// CreateWallet explicitly provisions the owner's escrow wallet by funding
// its rent reserve from the owner's account. Routing funds into the wallet
// address creates it implicitly, so this is optional.
func (e *Engine) CreateWallet(owner solana.PublicKey) error {
	wallet := e.ledger.WalletAddress(owner)
	if err := e.ledger.Transfer(owner, wallet, e.ledger.RentReserve()); err != nil {
		return fmt.Errorf("engine: create wallet for %s: %w", owner, err)
	}
	return nil
}

// DepositNative moves native funds from the owner's account into their
// escrow wallet.
func (e *Engine) DepositNative(owner solana.PublicKey, amount uint64) error {
	if err := e.ledger.Transfer(owner, e.ledger.WalletAddress(owner), amount); err != nil {
		return fmt.Errorf("engine: deposit native: %w", err)
	}
	return nil
}

// DepositToken moves tokens from the owner's holding account into the
// escrow wallet's holding account, creating the latter on demand at the
// owner's expense.
func (e *Engine) DepositToken(owner, mint solana.PublicKey, amount uint64) error {
	src := ledger.AssociatedTokenAddress(owner, mint)
	if err := e.requireTokenBalance(src, amount); err != nil {
		return fmt.Errorf("engine: deposit token: %w", err)
	}
	wallet := e.ledger.WalletAddress(owner)
	dest, err := e.ledger.CreateTokenAccount(owner, wallet, mint)
	if err != nil {
		return fmt.Errorf("engine: deposit token: %w", err)
	}
	if err := e.ledger.Apply([]ledger.Movement{{Token: true, From: src, To: dest, Amount: amount}}); err != nil {
		return fmt.Errorf("engine: deposit token: %w", err)
	}
	return nil
}

// requireTokenBalance checks a holding account exists and covers amount,
// so on-demand destination creation never happens for a doomed transfer.
func (e *Engine) requireTokenBalance(addr solana.PublicKey, amount uint64) error {
	acc, ok := e.ledger.TokenAccount(addr)
	if !ok {
		return fmt.Errorf("token account %s: %w", addr, domain.ErrNotFound)
	}
	if acc.Amount < amount {
		return fmt.Errorf("token account %s holds %d, need %d: %w",
			addr, acc.Amount, amount, domain.ErrInsufficientFunds)
	}
	return nil
}

// BalanceNative reports the wallet's withdrawable native balance: the
// stored balance minus the rent reserve, never negative.
func (e *Engine) BalanceNative(owner solana.PublicKey) uint64 {
	return e.ledger.Withdrawable(e.ledger.WalletAddress(owner))
}

// BalanceToken reports the raw balance of the wallet's holding account for
// mint, 0 if no such account exists.
func (e *Engine) BalanceToken(owner, mint solana.PublicKey) uint64 {
	return e.ledger.TokenBalance(e.ledger.WalletAddress(owner), mint)
}

// WithdrawNative moves native funds from the escrow wallet back to the
// owner's account.
func (e *Engine) WithdrawNative(owner solana.PublicKey, amount uint64) error {
	if err := e.ledger.Transfer(e.ledger.WalletAddress(owner), owner, amount); err != nil {
		return fmt.Errorf("engine: withdraw native: %w", err)
	}
	return nil
}

// WithdrawToken moves tokens from the escrow wallet's holding account to
// the owner's own holding account, creating the destination on demand at
// the owner's expense.
func (e *Engine) WithdrawToken(owner, mint solana.PublicKey, amount uint64) error {
	wallet := e.ledger.WalletAddress(owner)
	src := ledger.AssociatedTokenAddress(wallet, mint)
	if err := e.requireTokenBalance(src, amount); err != nil {
		return fmt.Errorf("engine: withdraw token: %w", err)
	}
	dest, err := e.ledger.CreateTokenAccount(owner, owner, mint)
	if err != nil {
		return fmt.Errorf("engine: withdraw token: %w", err)
	}
	if err := e.ledger.Apply([]ledger.Movement{{Token: true, From: src, To: dest, Amount: amount}}); err != nil {
		return fmt.Errorf("engine: withdraw token: %w", err)
	}
	return nil
}
