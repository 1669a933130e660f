package ingester

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybuddy/internal/chunker"
	"studybuddy/internal/embedding"
	"studybuddy/internal/models"
	"studybuddy/internal/registry"
	"studybuddy/internal/vectorstore"
	chromemstore "studybuddy/internal/vectorstore/chromem"
)

// faultStore injects a failure on inserts into one collection.
type faultStore struct {
	vectorstore.Store
	failCollection string
}

var errInjected = errors.New("injected insert failure")

func (f *faultStore) Insert(ctx context.Context, collection string, entries []vectorstore.Entry) error {
	if collection == f.failCollection {
		return errInjected
	}
	return f.Store.Insert(ctx, collection, entries)
}

func newTestPipeline(t *testing.T, failCollection string) (*Pipeline, *registry.Registry) {
	t.Helper()

	reg, err := registry.NewSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	require.NoError(t, reg.Init(context.Background()))

	inner, err := chromemstore.New("", true, false, "", reg)
	require.NoError(t, err)

	var store vectorstore.Store = inner
	if failCollection != "" {
		store = &faultStore{Store: inner, failCollection: failCollection}
	}

	ctx := context.Background()
	require.NoError(t, inner.CreateCollection(ctx, models.TextCollection, 128))
	require.NoError(t, inner.CreateCollection(ctx, models.ImageCollection, 128))

	local := embedding.NewLocal(128)
	return New(store, reg, local, local), reg
}

func TestIngestCounts(t *testing.T) {
	p, reg := newTestPipeline(t, "")
	ctx := context.Background()

	res, err := p.Ingest(ctx, Request{
		Name:              "notes.pdf",
		Text:              "Cats are mammals.\n\nDogs are mammals too.\n\nFish live in water.",
		ImageDescriptions: []string{"a cat sitting on a mat"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.DocumentID)
	assert.Equal(t, 1, res.TextChunks)
	assert.Equal(t, 1, res.Images)

	n, err := reg.EntryCount(ctx, models.TextCollection, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = reg.EntryCount(ctx, models.ImageCollection, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngestRejectsInvalidChunkConfig(t *testing.T) {
	p, reg := newTestPipeline(t, "")
	ctx := context.Background()

	_, err := p.Ingest(ctx, Request{
		Name: "bad.txt",
		Text: "some content to chunk",
		Chunk: chunker.Config{
			Strategy:     chunker.StrategyFixed,
			ChunkSize:    100,
			ChunkOverlap: 100,
		},
	})
	require.ErrorIs(t, err, chunker.ErrInvalidConfig)

	docs, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs, "nothing may be written for a rejected config")
}

func TestIngestRejectsEmptyDocument(t *testing.T) {
	p, _ := newTestPipeline(t, "")

	_, err := p.Ingest(context.Background(), Request{Name: "empty.txt", Text: "   \n\t "})
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIngestRollbackOnFailure(t *testing.T) {
	p, reg := newTestPipeline(t, models.ImageCollection)
	ctx := context.Background()

	// text insert succeeds, image insert fails; the document must vanish
	_, err := p.Ingest(ctx, Request{
		Name:              "doomed.pdf",
		Text:              "This text will be staged and then rolled back entirely.",
		ImageDescriptions: []string{"an image description that never commits"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialIngestion)
	assert.ErrorIs(t, err, errInjected)

	docs, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs, "no registry row may survive a failed ingestion")
}

func TestIngestTextOnlyAndImagesOnly(t *testing.T) {
	p, _ := newTestPipeline(t, "")
	ctx := context.Background()

	res, err := p.Ingest(ctx, Request{Name: "text-only.txt", Text: "Just text, no images at all."})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TextChunks)
	assert.Zero(t, res.Images)

	res, err = p.Ingest(ctx, Request{
		Name:              "scans.pdf",
		ImageDescriptions: []string{"scanned page of handwritten notes"},
	})
	require.NoError(t, err)
	assert.Zero(t, res.TextChunks)
	assert.Equal(t, 1, res.Images)
}
