package merkle

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomLeaves(t *testing.T, n int) [][32]byte {
	t.Helper()
	leaves := make([][32]byte, n)
	for i := range leaves {
		_, err := rand.Read(leaves[i][:])
		require.NoError(t, err)
	}
	return leaves
}

func TestRoundTripAllSizes(t *testing.T) {
	for n := 1; n <= 8; n++ {
		leaves := randomLeaves(t, n)
		tree, err := New(leaves)
		require.NoError(t, err)
		require.Equal(t, n, tree.Len())

		for _, leaf := range leaves {
			proof, err := tree.Proof(leaf)
			require.NoError(t, err)
			require.True(t, Verify(proof, tree.Root(), leaf),
				"leaf must verify against its own proof (n=%d)", n)
		}
	}
}

func TestWrongLeafRejected(t *testing.T) {
	leaves := randomLeaves(t, 6)
	tree, err := New(leaves)
	require.NoError(t, err)

	proof, err := tree.Proof(leaves[0])
	require.NoError(t, err)

	// A proof for leaf 0 must not admit leaf 1 or an outside leaf.
	require.False(t, Verify(proof, tree.Root(), leaves[1]))
	outsider := randomLeaves(t, 1)[0]
	require.False(t, Verify(proof, tree.Root(), outsider))
}

func TestTamperedRootRejected(t *testing.T) {
	leaves := randomLeaves(t, 5)
	tree, err := New(leaves)
	require.NoError(t, err)

	proof, err := tree.Proof(leaves[2])
	require.NoError(t, err)

	root := tree.Root()
	root[0] ^= 0x01
	require.False(t, Verify(proof, root, leaves[2]))
}

func TestSingleLeafEmptyProof(t *testing.T) {
	leaves := randomLeaves(t, 1)
	tree, err := New(leaves)
	require.NoError(t, err)
	require.Equal(t, leaves[0], tree.Root())
	require.True(t, Verify(nil, tree.Root(), leaves[0]))
}

func TestDuplicateLeafRejected(t *testing.T) {
	leaves := randomLeaves(t, 3)
	leaves = append(leaves, leaves[1])
	_, err := New(leaves)
	require.Error(t, err)
}

func TestUnknownLeafProof(t *testing.T) {
	tree, err := New(randomLeaves(t, 4))
	require.NoError(t, err)
	_, err = tree.Proof(randomLeaves(t, 1)[0])
	require.Error(t, err)
}

func TestLargeSet(t *testing.T) {
	leaves := randomLeaves(t, 1000)
	tree, err := New(leaves)
	require.NoError(t, err)

	proof, err := tree.Proof(leaves[777])
	require.NoError(t, err)
	require.LessOrEqual(t, len(proof), 10)
	require.True(t, Verify(proof, tree.Root(), leaves[777]))
}
