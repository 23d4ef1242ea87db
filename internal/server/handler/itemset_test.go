package handler

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/inkworklabs/caboz/internal/domain"
	"github.com/inkworklabs/caboz/internal/itemset"
	"github.com/inkworklabs/caboz/internal/merkle"
)

// memBlob is an in-memory object store for handler tests.
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
		return nil, fmt.Errorf("blob %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (b *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

func (b *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for path, payload := range b.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, domain.BlobInfo{Path: path, Size: int64(len(payload))})
		}
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func itemSetMux(blob *memBlob) *http.ServeMux {
	h := NewItemSetHandler(itemset.NewPublisher(blob), itemset.NewLoader(blob), discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/item-sets", h.PublishItemSet)
	mux.HandleFunc("GET /api/item-sets/{root}/proof", h.ItemSetProof)
	return mux
}

func TestPublishItemSetAndProof(t *testing.T) {
	blob := newMemBlob()
	mux := itemSetMux(blob)

	items := make([]string, 5)
	mints := make([]solana.PublicKey, 5)
	for i := range items {
		mints[i] = solana.NewWallet().PublicKey()
		items[i] = mints[i].String()
	}

	body, err := json.Marshal(map[string]any{"items": items})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/item-sets", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var published itemSetPublishedJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &published))
	require.Len(t, published.Root, 64)
	require.Equal(t, "itemsets/"+published.Root+".json", published.Locator)
	require.Contains(t, blob.objects, published.Locator)

	// The returned proof must verify against the committed root.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/item-sets/"+published.Root+"/proof?item="+items[2], nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Root  string   `json:"root"`
		Item  string   `json:"item"`
		Proof []string `json:"proof"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, items[2], resp.Item)

	proof := make([][32]byte, len(resp.Proof))
	for i, node := range resp.Proof {
		raw, err := hex.DecodeString(node)
		require.NoError(t, err)
		require.Len(t, raw, 32)
		copy(proof[i][:], raw)
	}
	var root [32]byte
	raw, err := hex.DecodeString(resp.Root)
	require.NoError(t, err)
	copy(root[:], raw)
	require.True(t, merkle.Verify(proof, root, mints[2]))
}

func TestPublishItemSetRejectsBadInput(t *testing.T) {
	mux := itemSetMux(newMemBlob())

	for name, body := range map[string]string{
		"empty items": `{"items": []}`,
		"bad address": `{"items": ["not-base58"]}`,
		"bad json":    `{`,
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/item-sets", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestItemSetProofErrors(t *testing.T) {
	blob := newMemBlob()
	mux := itemSetMux(blob)

	member := solana.NewWallet().PublicKey()
	outsider := solana.NewWallet().PublicKey()

	body, err := json.Marshal(map[string]any{"items": []string{member.String()}})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/item-sets", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var published itemSetPublishedJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &published))

	// Item outside the published set.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/item-sets/"+published.Root+"/proof?item="+outsider.String(), nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Unknown root.
	unknown := strings.Repeat("ab", 32)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/item-sets/"+unknown+"/proof?item="+member.String(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed root.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/item-sets/zz/proof?item="+member.String(), nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterMetadata(t *testing.T) {
	var got []domain.ItemMetadata
	h := NewMetadataHandler(registrarFunc(func(meta domain.ItemMetadata) {
		got = append(got, meta)
	}), discardLogger())

	mint := solana.NewWallet().PublicKey()
	collection := solana.NewWallet().PublicKey()
	body, err := json.Marshal(itemMetadataJSON{
		Mint:               mint.String(),
		Collection:         collection.String(),
		CollectionVerified: true,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.RegisterMetadata(rec, httptest.NewRequest(http.MethodPost, "/api/metadata", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, got, 1)
	require.Equal(t, mint, got[0].Mint)
	require.Equal(t, collection, got[0].Collection)
	require.True(t, got[0].CollectionVerified)

	rec = httptest.NewRecorder()
	h.RegisterMetadata(rec, httptest.NewRequest(http.MethodPost, "/api/metadata",
		strings.NewReader(`{"mint": "nope", "collection": "nope"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, got, 1)
}

// registrarFunc adapts a function to the MetadataRegistrar interface.
type registrarFunc func(meta domain.ItemMetadata)

func (f registrarFunc) Register(meta domain.ItemMetadata) { f(meta) }
