package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/inkworklabs/caboz/internal/domain"
)

// MetadataRegistrar records the metadata view the engine consults during
// collection admission and loyalty counting.
type MetadataRegistrar interface {
	Register(meta domain.ItemMetadata)
}

// MetadataHandler serves item metadata registration. The engine never
// fetches metadata itself, so an operator feeds it through this endpoint.
type MetadataHandler struct {
	registry MetadataRegistrar
	logger   *slog.Logger
}

// NewMetadataHandler creates a MetadataHandler.
func NewMetadataHandler(registry MetadataRegistrar, logger *slog.Logger) *MetadataHandler {
	return &MetadataHandler{registry: registry, logger: logger}
}

type itemMetadataJSON struct {
	Mint               string `json:"mint"`
	Collection         string `json:"collection"`
	CollectionVerified bool   `json:"collection_verified"`
}

// RegisterMetadata records or replaces the metadata view for an item mint.
// POST /api/metadata
func (h *MetadataHandler) RegisterMetadata(w http.ResponseWriter, r *http.Request) {
	var req itemMetadataJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	mint, ok := parseKey(w, "mint", req.Mint)
	if !ok {
		return
	}
	collection, ok := parseKey(w, "collection", req.Collection)
	if !ok {
		return
	}

	h.registry.Register(domain.ItemMetadata{
		Mint:               mint,
		Collection:         collection,
		CollectionVerified: req.CollectionVerified,
	})
	h.logger.InfoContext(r.Context(), "handler: item metadata registered",
		slog.String("mint", req.Mint),
		slog.String("collection", req.Collection),
		slog.Bool("verified", req.CollectionVerified),
	)
	writeJSON(w, http.StatusCreated, req)
}
