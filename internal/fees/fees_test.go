package fees

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTierBps(t *testing.T) {
	tests := []struct {
		count uint8
		want  uint64
	}{
		{0, 100},
		{1, 50},
		{4, 50},
		{5, 25},
		{9, 25},
		{10, 0},
		{11, 0},
		{255, 0},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, TierBps(tt.count), "count=%d", tt.count)
	}
}

func TestFee(t *testing.T) {
	tests := []struct {
		name          string
		price         uint64
		count         uint8
		multiplierBps uint16
		want          uint64
	}{
		{"full fee full multiplier", 100_000, 0, 10_000, 1_000},
		{"one loyalty item discounted mint", 100_000, 1, 7_500, 375},
		{"five loyalty items", 100_000, 5, 10_000, 250},
		{"ten loyalty items waive fee", 100_000, 10, 10_000, 0},
		{"zero multiplier", 100_000, 0, 0, 0},
		{"floors toward zero", 999, 0, 10_000, 9},
		{"tiny price floors to zero", 99, 0, 10_000, 0},
		{"zero price", 0, 0, 10_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Fee(tt.price, tt.count, tt.multiplierBps))
		})
	}
}

// Prices near the u64 ceiling must not overflow the intermediate product.
func TestFeeLargePrice(t *testing.T) {
	const price = 1 << 62
	want := uint64(price / 100) // 1% at full multiplier
	require.Equal(t, want, Fee(price, 0, 10_000))
}
