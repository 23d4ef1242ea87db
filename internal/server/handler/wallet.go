package handler

import (
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"
)

// WalletService defines what the wallet handler needs from the service
// layer.
type WalletService interface {
	BalanceNative(owner solana.PublicKey) uint64
	BalanceToken(owner, mint solana.PublicKey) uint64
}

// WalletHandler serves escrow wallet balance lookups.
type WalletHandler struct {
	wallets WalletService
	logger  *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallets WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		wallets: wallets,
		logger:  logger,
	}
}

// Balance reports the owner's withdrawable escrow balance. With no mint
// query parameter it reports the native balance; with one, the holding for
// that token.
// GET /api/wallets/{owner}/balance?mint=<address>
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseKey(w, "owner", pathParam(r, "owner"))
	if !ok {
		return
	}

	resp := map[string]any{"owner": owner.String()}
	if m := r.URL.Query().Get("mint"); m != "" {
		mint, ok := parseKey(w, "mint", m)
		if !ok {
			return
		}
		resp["mint"] = mint.String()
		resp["balance"] = h.wallets.BalanceToken(owner, mint)
	} else {
		resp["balance"] = h.wallets.BalanceNative(owner)
	}
	writeJSON(w, http.StatusOK, resp)
}
