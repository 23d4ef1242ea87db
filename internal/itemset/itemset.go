// Package itemset builds root-committed accepted-item sets and publishes
// their full leaf lists to object storage. The published object is what an
// order's locator points at; sellers read it back to reconstruct the
// inclusion proof for the item they want to settle with. The engine never
// consults the published list, it only verifies proofs.
package itemset

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"

	"github.com/inkworklabs/caboz/internal/domain"
	"github.com/inkworklabs/caboz/internal/merkle"
)

// pathPrefix is where published leaf lists live in the bucket.
const pathPrefix = "itemsets/"

// multipartThreshold is the manifest size above which uploads switch to the
// writer's multipart path when it offers one.
const multipartThreshold = 8 * 1024 * 1024

// multipartWriter is the optional fast path for very large manifests.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Locator returns the bucket path of the manifest for a root. Identical
// sets share one published object.
func Locator(root [32]byte) string {
	return pathPrefix + hex.EncodeToString(root[:]) + ".json"
}

// manifest is the published JSON shape.
type manifest struct {
	Root  string   `json:"root"`
	Items []string `json:"items"`
}

// Publisher uploads item sets and returns the MerkleSet to embed in an
// order.
type Publisher struct {
	blob domain.BlobWriter
}

// NewPublisher creates a Publisher writing through the given blob writer.
func NewPublisher(blob domain.BlobWriter) *Publisher {
	return &Publisher{blob: blob}
}

// Publish builds the merkle tree over the item mints, uploads the leaf
// list, and returns the resulting set. The locator is derived from the
// root, so identical sets share one published object.
func (p *Publisher) Publish(ctx context.Context, items []solana.PublicKey) (domain.MerkleSet, error) {
	tree, err := buildTree(items)
	if err != nil {
		return domain.MerkleSet{}, fmt.Errorf("itemset: publish: %w", err)
	}
	root := tree.Root()
	locator := Locator(root)

	m := manifest{Root: hex.EncodeToString(root[:]), Items: make([]string, len(items))}
	for i, item := range items {
		m.Items[i] = item.String()
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return domain.MerkleSet{}, fmt.Errorf("itemset: marshal manifest: %w", err)
	}

	if mp, ok := p.blob.(multipartWriter); ok && len(payload) > multipartThreshold {
		err = mp.PutMultipart(ctx, locator, bytes.NewReader(payload), multipartThreshold)
	} else {
		err = p.blob.Put(ctx, locator, bytes.NewReader(payload), "application/json")
	}
	if err != nil {
		return domain.MerkleSet{}, fmt.Errorf("itemset: publish: %w", err)
	}
	return domain.MerkleSet{Root: root, Locator: locator}, nil
}

// Loader reads published leaf lists back and builds proofs for sellers.
type Loader struct {
	blob domain.BlobReader
}

// NewLoader creates a Loader reading from the given blob reader.
func NewLoader(blob domain.BlobReader) *Loader {
	return &Loader{blob: blob}
}

// Proof fetches the leaf list behind set.Locator and returns the inclusion
// proof for item. The recomputed root is checked against the set's root, so
// a tampered published list is detected before a proof built from it is
// ever submitted.
func (l *Loader) Proof(ctx context.Context, set domain.MerkleSet, item solana.PublicKey) ([][32]byte, error) {
	rc, err := l.blob.Get(ctx, set.Locator)
	if err != nil {
		return nil, fmt.Errorf("itemset: fetch %s: %w", set.Locator, err)
	}
	defer rc.Close()

	var m manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return nil, fmt.Errorf("itemset: decode %s: %w", set.Locator, err)
	}

	items := make([]solana.PublicKey, len(m.Items))
	for i, s := range m.Items {
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("itemset: bad item %q in %s: %w", s, set.Locator, err)
		}
		items[i] = pk
	}

	tree, err := buildTree(items)
	if err != nil {
		return nil, fmt.Errorf("itemset: rebuild tree: %w", err)
	}
	if tree.Root() != set.Root {
		return nil, fmt.Errorf("itemset: published list does not match committed root: %w", domain.ErrNFTNotInSet)
	}
	proof, err := tree.Proof(item)
	if err != nil {
		return nil, fmt.Errorf("itemset: %s: %w", item, domain.ErrNFTNotInSet)
	}
	return proof, nil
}

func buildTree(items []solana.PublicKey) (*merkle.Tree, error) {
	leaves := make([][32]byte, len(items))
	for i, item := range items {
		leaves[i] = item
	}
	return merkle.New(leaves)
}
