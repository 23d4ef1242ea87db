// Package merkle implements the keccak-based inclusion proofs used by
// root-committed item sets. Internal nodes hash the pairwise-sorted
// concatenation of their children, so a proof carries no left/right
// position bits. Leaves are inserted raw, without pre-hashing.
package merkle

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Verify recomputes the root from leaf and proof and compares it against
// root. An empty proof is valid for a single-leaf tree.
func Verify(proof [][32]byte, root, leaf [32]byte) bool {
	computed := leaf
	for _, node := range proof {
		computed = hashPair(computed, node)
	}
	return computed == root
}

func hashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	var out [32]byte
	copy(out[:], crypto.Keccak256(a[:], b[:]))
	return out
}

// Tree is a fully built merkle tree over a fixed leaf list. It exists for
// set publication and for clients assembling proofs; the settlement path
// only ever calls Verify.
type Tree struct {
	// levels[0] is the leaf level, levels[len-1] is [root].
	levels [][][32]byte
	index  map[[32]byte]int
}

// New builds a tree over the given leaves. Leaf order is preserved at
// level zero. Duplicate leaves are rejected: with sorted-pair hashing a
// duplicated leaf would make proofs ambiguous.
func New(leaves [][32]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("merkle: empty leaf list")
	}

	index := make(map[[32]byte]int, len(leaves))
	for i, leaf := range leaves {
		if _, dup := index[leaf]; dup {
			return nil, fmt.Errorf("merkle: duplicate leaf at position %d", i)
		}
		index[leaf] = i
	}

	levels := [][][32]byte{append([][32]byte(nil), leaves...)}
	for level := levels[0]; len(level) > 1; {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				// odd node is promoted unchanged
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels, index: index}, nil
}

// Root returns the tree root.
func (t *Tree) Root() [32]byte {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof returns the sibling path for the given leaf, or ErrNotInTree-style
// failure if the leaf is not part of the tree.
func (t *Tree) Proof(leaf [32]byte) ([][32]byte, error) {
	pos, ok := t.index[leaf]
	if !ok {
		return nil, fmt.Errorf("merkle: leaf not in tree")
	}

	var proof [][32]byte
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := pos ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		pos /= 2
	}
	return proof, nil
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.levels[0])
}
