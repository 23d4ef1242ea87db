package itemset

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/inkworklabs/caboz/internal/domain"
	"github.com/inkworklabs/caboz/internal/merkle"
)

// memBlob is an in-memory BlobWriter/BlobReader.
type memBlob struct {
	objects map[string][]byte
}

func newMemBlob() *memBlob { return &memBlob{objects: make(map[string][]byte)} }

func (b *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	payload, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = payload
	return nil
}

func (b *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	payload, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (b *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

func (b *memBlob) List(context.Context, string) ([]domain.BlobInfo, error) {
	return nil, nil
}

func randomItems(n int) []solana.PublicKey {
	items := make([]solana.PublicKey, n)
	for i := range items {
		items[i] = solana.NewWallet().PublicKey()
	}
	return items
}

func TestPublishAndProve(t *testing.T) {
	blob := newMemBlob()
	ctx := context.Background()
	items := randomItems(12)

	set, err := NewPublisher(blob).Publish(ctx, items)
	require.NoError(t, err)
	require.NotEqual(t, [32]byte{}, set.Root)
	require.Contains(t, blob.objects, set.Locator)

	loader := NewLoader(blob)
	for _, item := range items {
		proof, err := loader.Proof(ctx, set, item)
		require.NoError(t, err)
		require.True(t, merkle.Verify(proof, set.Root, item))
	}

	_, err = loader.Proof(ctx, set, solana.NewWallet().PublicKey())
	require.ErrorIs(t, err, domain.ErrNFTNotInSet)
}

func TestPublishEmptySet(t *testing.T) {
	_, err := NewPublisher(newMemBlob()).Publish(context.Background(), nil)
	require.Error(t, err)
}

func TestProofRejectsTamperedList(t *testing.T) {
	blob := newMemBlob()
	ctx := context.Background()
	items := randomItems(4)

	set, err := NewPublisher(blob).Publish(ctx, items)
	require.NoError(t, err)

	// Swap in a different published list at the committed locator.
	tampered, err := NewPublisher(blob).Publish(ctx, randomItems(4))
	require.NoError(t, err)
	blob.objects[set.Locator] = blob.objects[tampered.Locator]

	_, err = NewLoader(blob).Proof(ctx, set, items[0])
	require.ErrorIs(t, err, domain.ErrNFTNotInSet)
}

func TestLocatorDerivedFromRoot(t *testing.T) {
	blob := newMemBlob()
	ctx := context.Background()
	items := randomItems(3)

	a, err := NewPublisher(blob).Publish(ctx, items)
	require.NoError(t, err)
	b, err := NewPublisher(blob).Publish(ctx, items)
	require.NoError(t, err)
	require.Equal(t, a.Locator, b.Locator)
	require.Len(t, blob.objects, 1)
}
