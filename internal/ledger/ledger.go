// Package ledger is an in-process model of the execution environment the
// settlement engine runs against: native balances with a rent reserve,
// fungible token accounts at derived addresses, and atomic batched
// transfers. Every public operation either fully applies or leaves no
// trace, matching the all-or-nothing request semantics the engine relies
// on.
package ledger

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/inkworklabs/caboz/internal/domain"
)

// DefaultRentReserve is the minimum native balance that keeps an account
// alive. Callers must subtract it when reporting withdrawable balances.
const DefaultRentReserve uint64 = 890_880

// Ledger holds all account state. All methods are safe for concurrent use;
// a single mutex provides the single-writer serialization the settlement
// rules assume.
type Ledger struct {
	mu          sync.Mutex
	programID   solana.PublicKey
	rentReserve uint64
	native      map[solana.PublicKey]uint64
	tokens      map[solana.PublicKey]*tokenAccount
}

type tokenAccount struct {
	mint   solana.PublicKey
	owner  solana.PublicKey
	amount uint64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRentReserve overrides the per-account rent reserve.
func WithRentReserve(reserve uint64) Option {
	return func(l *Ledger) { l.rentReserve = reserve }
}

// New creates an empty ledger for the given program ID.
func New(programID solana.PublicKey, opts ...Option) *Ledger {
	l := &Ledger{
		programID:   programID,
		rentReserve: DefaultRentReserve,
		native:      make(map[solana.PublicKey]uint64),
		tokens:      make(map[solana.PublicKey]*tokenAccount),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ProgramID returns the program this ledger derives addresses under.
func (l *Ledger) ProgramID() solana.PublicKey { return l.programID }

// RentReserve returns the per-account rent reserve.
func (l *Ledger) RentReserve() uint64 { return l.rentReserve }

// WalletAddress derives the escrow wallet address for an owner. The
// derivation is pure: no stored index is needed to find a wallet.
func (l *Ledger) WalletAddress(owner solana.PublicKey) solana.PublicKey {
	return derive(l.programID, []byte("wallet"), owner.Bytes())
}

// PaymentMintAddress derives the registry entry address for a payment mint.
func (l *Ledger) PaymentMintAddress(mint solana.PublicKey) solana.PublicKey {
	return derive(l.programID, []byte("allowed_payment_mint"), mint.Bytes())
}

func derive(program solana.PublicKey, seeds ...[]byte) solana.PublicKey {
	addr, _, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		// FindProgramAddress only fails when all 256 bumps land on the
		// curve, which does not happen for real seed material.
		panic(fmt.Sprintf("ledger: derive address: %v", err))
	}
	return addr
}

// AssociatedTokenAddress derives the canonical holding account address for
// an owner and mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) solana.PublicKey {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		panic(fmt.Sprintf("ledger: derive associated token address: %v", err))
	}
	return addr
}

// Balance returns the raw native balance of an account, 0 if absent.
func (l *Ledger) Balance(addr solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.native[addr]
}

// Withdrawable returns the native balance minus the rent reserve, floored
// at zero.
func (l *Ledger) Withdrawable(addr solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.native[addr]
	if bal <= l.rentReserve {
		return 0
	}
	return bal - l.rentReserve
}

// Credit adds native funds to an account, creating it implicitly.
func (l *Ledger) Credit(addr solana.PublicKey, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.native[addr] += amount
}

// Transfer moves native funds. The debited account must retain its rent
// reserve, so the transferable amount is the withdrawable balance.
func (l *Ledger) Transfer(from, to solana.PublicKey, amount uint64) error {
	return l.Apply([]Movement{{From: from, To: to, Amount: amount}})
}

// TokenAccount returns a snapshot of the token account at addr.
func (l *Ledger) TokenAccount(addr solana.PublicKey) (domain.TokenAccountView, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.tokens[addr]
	if !ok {
		return domain.TokenAccountView{}, false
	}
	return domain.TokenAccountView{
		Address: addr,
		Mint:    acc.mint,
		Owner:   acc.owner,
		Amount:  acc.amount,
	}, true
}

// TokenBalance returns the balance of owner's holding account for mint,
// 0 if the account does not exist.
func (l *Ledger) TokenBalance(owner, mint solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.tokens[AssociatedTokenAddress(owner, mint)]
	if !ok {
		return 0
	}
	return acc.amount
}

// CreateTokenAccount ensures owner's holding account for mint exists,
// returning its address. Creation costs the payer one rent reserve, which
// ends up held by the new account. Idempotent when the account exists.
func (l *Ledger) CreateTokenAccount(payer, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	addr := AssociatedTokenAddress(owner, mint)
	if _, ok := l.tokens[addr]; ok {
		return addr, nil
	}

	if err := l.debitNative(payer, l.rentReserve); err != nil {
		return solana.PublicKey{}, err
	}
	l.native[addr] += l.rentReserve
	l.tokens[addr] = &tokenAccount{mint: mint, owner: owner}
	return addr, nil
}

// MintToken credits owner's holding account for mint, creating the account
// for free. This is the funding path used by deposits and tests; it stands
// in for the external mint authority.
func (l *Ledger) MintToken(owner, mint solana.PublicKey, amount uint64) solana.PublicKey {
	l.mu.Lock()
	defer l.mu.Unlock()

	addr := AssociatedTokenAddress(owner, mint)
	acc, ok := l.tokens[addr]
	if !ok {
		acc = &tokenAccount{mint: mint, owner: owner}
		l.tokens[addr] = acc
	}
	acc.amount += amount
	return addr
}

// Movement is one balance change inside an atomic batch. When Token is
// false, From and To are native account addresses; when true they are
// token account addresses holding the same mint.
type Movement struct {
	Token  bool
	From   solana.PublicKey
	To     solana.PublicKey
	Amount uint64
}

// Apply validates the whole batch against current state and then commits
// it. If any movement would fail, nothing is applied.
func (l *Ledger) Apply(movements []Movement) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Dry run against scratch copies of every touched balance.
	nativeScratch := make(map[solana.PublicKey]uint64)
	tokenScratch := make(map[solana.PublicKey]uint64)

	nativeAt := func(addr solana.PublicKey) uint64 {
		if v, ok := nativeScratch[addr]; ok {
			return v
		}
		return l.native[addr]
	}
	tokenAt := func(addr solana.PublicKey) (*tokenAccount, uint64, error) {
		acc, ok := l.tokens[addr]
		if !ok {
			return nil, 0, fmt.Errorf("ledger: token account %s: %w", addr, domain.ErrNotFound)
		}
		if v, ok := tokenScratch[addr]; ok {
			return acc, v, nil
		}
		return acc, acc.amount, nil
	}

	for _, m := range movements {
		if m.Token {
			fromAcc, fromBal, err := tokenAt(m.From)
			if err != nil {
				return err
			}
			toAcc, toBal, err := tokenAt(m.To)
			if err != nil {
				return err
			}
			if fromAcc.mint != toAcc.mint {
				return fmt.Errorf("ledger: token transfer across mints: %w", domain.ErrInvalidParameter)
			}
			if fromBal < m.Amount {
				return fmt.Errorf("ledger: token account %s holds %d, need %d: %w",
					m.From, fromBal, m.Amount, domain.ErrInsufficientFunds)
			}
			tokenScratch[m.From] = fromBal - m.Amount
			tokenScratch[m.To] = toBal + m.Amount
			continue
		}

		fromBal := nativeAt(m.From)
		if withdrawable(fromBal, l.rentReserve) < m.Amount {
			return fmt.Errorf("ledger: account %s withdrawable %d, need %d: %w",
				m.From, withdrawable(fromBal, l.rentReserve), m.Amount, domain.ErrInsufficientFunds)
		}
		nativeScratch[m.From] = fromBal - m.Amount
		nativeScratch[m.To] = nativeAt(m.To) + m.Amount
	}

	// Commit.
	for addr, bal := range nativeScratch {
		l.native[addr] = bal
	}
	for addr, bal := range tokenScratch {
		l.tokens[addr].amount = bal
	}
	return nil
}

func (l *Ledger) debitNative(addr solana.PublicKey, amount uint64) error {
	bal := l.native[addr]
	if withdrawable(bal, l.rentReserve) < amount {
		return fmt.Errorf("ledger: account %s withdrawable %d, need %d: %w",
			addr, withdrawable(bal, l.rentReserve), amount, domain.ErrInsufficientFunds)
	}
	l.native[addr] = bal - amount
	return nil
}

func withdrawable(balance, reserve uint64) uint64 {
	if balance <= reserve {
		return 0
	}
	return balance - reserve
}
