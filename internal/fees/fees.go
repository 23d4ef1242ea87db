// Package fees implements the loyalty-tiered fee schedule. The same pure
// function runs at order creation and again at settlement verification, so
// it must be branch-for-branch deterministic across both call sites.
package fees

import "math/bits"

// MaxLoyaltyCandidates bounds how many loyalty claim pairs a single order
// creation will evaluate. This is a request-size bound, not a business
// rule: holding more items than the cap counts the same as holding the cap.
const MaxLoyaltyCandidates = 10

// TierBps returns the base fee rate in basis points for a verified
// loyalty-item count.
func TierBps(loyaltyCount uint8) uint64 {
	switch {
	case loyaltyCount == 0:
		return 100
	case loyaltyCount <= 4:
		return 50
	case loyaltyCount <= 9:
		return 25
	default:
		return 0
	}
}

// Fee computes floor(price * tierRate(loyaltyCount) * multiplierBps / 10000^2).
// The intermediate product needs 128 bits for large prices.
func Fee(price uint64, loyaltyCount uint8, multiplierBps uint16) uint64 {
	hi, lo := bits.Mul64(price, TierBps(loyaltyCount)*uint64(multiplierBps))
	quo, _ := bits.Div64(hi, lo, 10_000*10_000)
	return quo
}
