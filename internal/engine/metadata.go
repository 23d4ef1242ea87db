package engine

import (
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/inkworklabs/caboz/internal/domain"
)

// MetadataRegistry is an in-process MetadataResolver. The daemon registers
// item metadata as it learns about mints; the engine only ever reads from it.
type MetadataRegistry struct {
	mu    sync.RWMutex
	items map[solana.PublicKey]domain.ItemMetadata
}

// NewMetadataRegistry returns an empty registry.
func NewMetadataRegistry() *MetadataRegistry {
	return &MetadataRegistry{items: make(map[solana.PublicKey]domain.ItemMetadata)}
}

// Register records or replaces the metadata view for meta.Mint.
func (r *MetadataRegistry) Register(meta domain.ItemMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[meta.Mint] = meta
}

// Resolve implements domain.MetadataResolver. Unknown mints report
// domain.ErrNotFound.
func (r *MetadataRegistry) Resolve(mint solana.PublicKey) (domain.ItemMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.items[mint]
	if !ok {
		return domain.ItemMetadata{}, domain.ErrNotFound
	}
	return meta, nil
}

var _ domain.MetadataResolver = (*MetadataRegistry)(nil)
