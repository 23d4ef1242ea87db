package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/inkworklabs/caboz/internal/domain"
)

// MintService defines the methods the payment-mint handler requires from
// the service layer.
type MintService interface {
	AllowPaymentMint(ctx context.Context, authority, mint solana.PublicKey, feeMultiplierBps uint16) error
	DisallowPaymentMint(ctx context.Context, authority, mint solana.PublicKey) error
	PaymentMints(ctx context.Context) ([]domain.PaymentMint, error)
}

// MintHandler serves the payment-mint registry endpoints. Mutations run
// under the daemon's authority key; the HTTP layer gates them with the
// admin API key middleware.
type MintHandler struct {
	mints     MintService
	authority solana.PublicKey
	logger    *slog.Logger
}

// NewMintHandler creates a MintHandler acting as the given authority.
func NewMintHandler(mints MintService, authority solana.PublicKey, logger *slog.Logger) *MintHandler {
	return &MintHandler{
		mints:     mints,
		authority: authority,
		logger:    logger,
	}
}

// paymentMintJSON is the wire shape of a registry entry.
type paymentMintJSON struct {
	Mint             string `json:"mint"`
	FeeMultiplierBps uint16 `json:"fee_multiplier_bps"`
}

// ListPaymentMints returns the allowed payment currencies.
// GET /api/payment-mints
func (h *MintHandler) ListPaymentMints(w http.ResponseWriter, r *http.Request) {
	mints, err := h.mints.PaymentMints(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list payment mints failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list payment mints")
		return
	}

	out := make([]paymentMintJSON, 0, len(mints))
	for _, m := range mints {
		out = append(out, paymentMintJSON{Mint: m.Mint.String(), FeeMultiplierBps: m.FeeMultiplierBps})
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment_mints": out})
}

// AllowPaymentMint whitelists a payment currency.
// POST /api/payment-mints
func (h *MintHandler) AllowPaymentMint(w http.ResponseWriter, r *http.Request) {
	var req paymentMintJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	mint, ok := parseKey(w, "mint", req.Mint)
	if !ok {
		return
	}

	if err := h.mints.AllowPaymentMint(r.Context(), h.authority, mint, req.FeeMultiplierBps); err != nil {
		if errors.Is(err, domain.ErrInvalidParameter) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: allow payment mint failed",
			slog.String("mint", req.Mint),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to allow payment mint")
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// DisallowPaymentMint removes a payment currency from the registry.
// DELETE /api/payment-mints/{mint}
func (h *MintHandler) DisallowPaymentMint(w http.ResponseWriter, r *http.Request) {
	mint, ok := parseKey(w, "mint", pathParam(r, "mint"))
	if !ok {
		return
	}

	if err := h.mints.DisallowPaymentMint(r.Context(), h.authority, mint); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "payment mint not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: disallow payment mint failed",
			slog.String("mint", mint.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to disallow payment mint")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "disallowed",
		"mint":   mint.String(),
	})
}
