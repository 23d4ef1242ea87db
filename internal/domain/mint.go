package domain

import "github.com/gagliardetto/solana-go"

// NativeMint is the sentinel mint address of the native currency.
var NativeMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

// PaymentMint is a registry entry allowing a currency to pay for orders.
// Its existence is the sole gate; the multiplier scales the base fee.
type PaymentMint struct {
	Mint             solana.PublicKey
	FeeMultiplierBps uint16 // 0..10000
}

// TokenAccountView is a read-only snapshot of a fungible holding account.
type TokenAccountView struct {
	Address solana.PublicKey
	Mint    solana.PublicKey
	Owner   solana.PublicKey
	Amount  uint64
}
