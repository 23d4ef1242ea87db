package engine

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/inkworklabs/caboz/internal/domain"
	"github.com/inkworklabs/caboz/internal/merkle"
)

// admit decides whether itemMint is a legal member of the order's accepted
// item set. Both proof modes answer the same question: this exact item was
// declared eligible when the order was created.
func (e *Engine) admit(set domain.ItemSet, itemMint solana.PublicKey, proof [][32]byte) error {
	switch s := set.(type) {
	case domain.CollectionSet:
		if len(proof) != 0 {
			// A merkle proof against a collection-tagged order is a
			// wrong-mode settlement request.
			return fmt.Errorf("admission: merkle proof for collection-tagged set: %w", domain.ErrUndefinedNftSet)
		}
		meta, err := e.metadata.Resolve(itemMint)
		if err != nil {
			return fmt.Errorf("admission: resolve metadata for %s: %w", itemMint, err)
		}
		if meta.Collection != s.Collection {
			return fmt.Errorf("admission: item belongs to %s, order wants %s: %w",
				meta.Collection, s.Collection, domain.ErrConstraintCollection)
		}
		if !meta.CollectionVerified {
			return fmt.Errorf("admission: collection membership of %s: %w",
				itemMint, domain.ErrCollectionNotVerified)
		}
		return nil

	case domain.MerkleSet:
		if !merkle.Verify(proof, s.Root, itemMint) {
			return fmt.Errorf("admission: item %s: %w", itemMint, domain.ErrNFTNotInSet)
		}
		return nil

	default:
		// Impossible for orders that passed creation validation.
		return fmt.Errorf("admission: %w", domain.ErrUndefinedNftSet)
	}
}
