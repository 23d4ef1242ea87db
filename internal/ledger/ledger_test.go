package ledger

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/inkworklabs/caboz/internal/domain"
)

var testProgram = solana.MustPublicKeyFromBase58("133Sr1TwJf1uxJj1N5vtGSHZMDmbNJFpxxZTNhr84PJU")

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	w := solana.NewWallet()
	return w.PublicKey()
}

func TestWalletAddressDeterministic(t *testing.T) {
	l := New(testProgram)
	owner := newKey(t)

	a := l.WalletAddress(owner)
	b := l.WalletAddress(owner)
	require.Equal(t, a, b)
	require.NotEqual(t, a, l.WalletAddress(newKey(t)))
	require.NotEqual(t, a, l.PaymentMintAddress(owner))
}

func TestWithdrawableFloorsAtZero(t *testing.T) {
	l := New(testProgram, WithRentReserve(1_000))
	addr := newKey(t)

	require.Zero(t, l.Withdrawable(addr))

	l.Credit(addr, 400)
	require.Zero(t, l.Withdrawable(addr), "balance below reserve reports zero")

	l.Credit(addr, 600)
	require.Zero(t, l.Withdrawable(addr), "balance at reserve reports zero")

	l.Credit(addr, 250)
	require.Equal(t, uint64(250), l.Withdrawable(addr))
	require.Equal(t, uint64(1_250), l.Balance(addr))
}

func TestTransferKeepsReserve(t *testing.T) {
	l := New(testProgram, WithRentReserve(1_000))
	from, to := newKey(t), newKey(t)
	l.Credit(from, 5_000)

	err := l.Transfer(from, to, 4_500)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.Equal(t, uint64(5_000), l.Balance(from))
	require.Zero(t, l.Balance(to))

	require.NoError(t, l.Transfer(from, to, 4_000))
	require.Equal(t, uint64(1_000), l.Balance(from))
	require.Equal(t, uint64(4_000), l.Balance(to))
}

func TestApplyAllOrNothing(t *testing.T) {
	l := New(testProgram, WithRentReserve(0))
	a, b, c := newKey(t), newKey(t), newKey(t)
	l.Credit(a, 100)

	err := l.Apply([]Movement{
		{From: a, To: b, Amount: 80},
		{From: a, To: c, Amount: 30}, // exceeds what remains of a
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.Equal(t, uint64(100), l.Balance(a), "failed batch must not move funds")
	require.Zero(t, l.Balance(b))
	require.Zero(t, l.Balance(c))

	require.NoError(t, l.Apply([]Movement{
		{From: a, To: b, Amount: 80},
		{From: a, To: c, Amount: 20},
	}))
	require.Zero(t, l.Balance(a))
	require.Equal(t, uint64(80), l.Balance(b))
	require.Equal(t, uint64(20), l.Balance(c))
}

func TestTokenAccountLifecycle(t *testing.T) {
	l := New(testProgram, WithRentReserve(1_000))
	payer, owner := newKey(t), newKey(t)
	mint := newKey(t)
	l.Credit(payer, 10_000)

	addr, err := l.CreateTokenAccount(payer, owner, mint)
	require.NoError(t, err)
	require.Equal(t, AssociatedTokenAddress(owner, mint), addr)
	require.Equal(t, uint64(9_000), l.Balance(payer), "payer funds the account's reserve")
	require.Equal(t, uint64(1_000), l.Balance(addr))

	// Idempotent: no second charge.
	again, err := l.CreateTokenAccount(payer, owner, mint)
	require.NoError(t, err)
	require.Equal(t, addr, again)
	require.Equal(t, uint64(9_000), l.Balance(payer))

	view, ok := l.TokenAccount(addr)
	require.True(t, ok)
	require.Equal(t, owner, view.Owner)
	require.Equal(t, mint, view.Mint)
	require.Zero(t, view.Amount)
}

func TestTokenTransfer(t *testing.T) {
	l := New(testProgram, WithRentReserve(0))
	alice, bob := newKey(t), newKey(t)
	mint, otherMint := newKey(t), newKey(t)

	from := l.MintToken(alice, mint, 500)
	to := l.MintToken(bob, mint, 0)
	wrong := l.MintToken(bob, otherMint, 0)

	err := l.Apply([]Movement{{Token: true, From: from, To: wrong, Amount: 10}})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	err = l.Apply([]Movement{{Token: true, From: from, To: to, Amount: 501}})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, l.Apply([]Movement{{Token: true, From: from, To: to, Amount: 500}}))
	require.Zero(t, l.TokenBalance(alice, mint))
	require.Equal(t, uint64(500), l.TokenBalance(bob, mint))
}

func TestTokenTransferToMissingAccount(t *testing.T) {
	l := New(testProgram, WithRentReserve(0))
	alice, bob := newKey(t), newKey(t)
	mint := newKey(t)

	from := l.MintToken(alice, mint, 5)
	missing := AssociatedTokenAddress(bob, mint)

	err := l.Apply([]Movement{{Token: true, From: from, To: missing, Amount: 5}})
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Equal(t, uint64(5), l.TokenBalance(alice, mint))
}
