package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/inkworklabs/caboz/internal/domain"
	"github.com/inkworklabs/caboz/internal/itemset"
)

// maxItemSetSize caps the number of mints accepted in one published set.
const maxItemSetSize = 100_000

// ItemSetPublisher uploads an accepted-item set and returns the committed
// root and manifest locator.
type ItemSetPublisher interface {
	Publish(ctx context.Context, items []solana.PublicKey) (domain.MerkleSet, error)
}

// ItemSetProver rebuilds an inclusion proof from a published manifest.
type ItemSetProver interface {
	Proof(ctx context.Context, set domain.MerkleSet, item solana.PublicKey) ([][32]byte, error)
}

// ItemSetHandler serves item-set manifest publication and proof lookup.
// Sellers use the proof endpoint to build the settlement request for a
// merkle-tagged order.
type ItemSetHandler struct {
	publisher ItemSetPublisher
	prover    ItemSetProver
	logger    *slog.Logger
}

// NewItemSetHandler creates an ItemSetHandler.
func NewItemSetHandler(publisher ItemSetPublisher, prover ItemSetProver, logger *slog.Logger) *ItemSetHandler {
	return &ItemSetHandler{
		publisher: publisher,
		prover:    prover,
		logger:    logger,
	}
}

type publishItemSetRequest struct {
	Items []string `json:"items"`
}

type itemSetPublishedJSON struct {
	Root    string `json:"root"`
	Locator string `json:"locator"`
}

// PublishItemSet uploads the leaf list and returns the set to embed in an
// order.
// POST /api/item-sets
func (h *ItemSetHandler) PublishItemSet(w http.ResponseWriter, r *http.Request) {
	var req publishItemSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items must not be empty")
		return
	}
	if len(req.Items) > maxItemSetSize {
		writeError(w, http.StatusBadRequest, "too many items")
		return
	}

	items := make([]solana.PublicKey, len(req.Items))
	for i, s := range req.Items {
		pk, ok := parseKey(w, "items", s)
		if !ok {
			return
		}
		items[i] = pk
	}

	set, err := h.publisher.Publish(r.Context(), items)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: publish item set failed",
			slog.Int("items", len(items)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to publish item set")
		return
	}
	writeJSON(w, http.StatusCreated, itemSetPublishedJSON{
		Root:    hex.EncodeToString(set.Root[:]),
		Locator: set.Locator,
	})
}

// ItemSetProof returns the inclusion proof for one item of a published set.
// GET /api/item-sets/{root}/proof?item=<mint>
func (h *ItemSetHandler) ItemSetProof(w http.ResponseWriter, r *http.Request) {
	rootHex := pathParam(r, "root")
	rootBytes, err := hex.DecodeString(rootHex)
	if err != nil || len(rootBytes) != 32 {
		writeError(w, http.StatusBadRequest, "root must be 32 hex-encoded bytes")
		return
	}
	var root [32]byte
	copy(root[:], rootBytes)

	item, ok := parseKey(w, "item", r.URL.Query().Get("item"))
	if !ok {
		return
	}

	set := domain.MerkleSet{Root: root, Locator: itemset.Locator(root)}
	proof, err := h.prover.Proof(r.Context(), set, item)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item set not found")
			return
		}
		if errors.Is(err, domain.ErrNFTNotInSet) {
			writeError(w, http.StatusUnprocessableEntity, "item is not in the set")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: item set proof failed",
			slog.String("root", rootHex),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to build proof")
		return
	}

	out := make([]string, len(proof))
	for i, node := range proof {
		out[i] = hex.EncodeToString(node[:])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"root":  rootHex,
		"item":  item.String(),
		"proof": out,
	})
}
