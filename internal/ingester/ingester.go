// Package ingester turns one extracted document into committed collection
// entries: chunk, embed in batch, stage, commit. A document is either fully
// indexed or absent; there is no partially visible state.
package ingester

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"studybuddy/internal/chunker"
	"studybuddy/internal/embedding"
	"studybuddy/internal/helper"
	"studybuddy/internal/models"
	"studybuddy/internal/registry"
	"studybuddy/internal/vectorstore"
)

var (
	// ErrPartialIngestion wraps any failure after staging began. The caller
	// must retry the whole document; no partial entries survive.
	ErrPartialIngestion = errors.New("ingestion failed, document was not indexed")

	// ErrEmptyDocument rejects documents with no indexable content.
	ErrEmptyDocument = errors.New("document has no indexable content")
)

const maxIDRetries = 3

// Request carries one pre-extracted document. Text may be empty when the
// document only produced images, and vice versa.
type Request struct {
	Name              string
	Text              string
	ImageDescriptions []string
	Chunk             chunker.Config
}

// Result reports what was committed.
type Result struct {
	DocumentID string `json:"document_id"`
	TextChunks int    `json:"text_chunks"`
	Images     int    `json:"images"`
}

type Pipeline struct {
	store      vectorstore.Store
	registry   *registry.Registry
	textEmbed  embedding.Embedder
	imageEmbed embedding.Embedder
}

func New(store vectorstore.Store, reg *registry.Registry, textEmbed, imageEmbed embedding.Embedder) *Pipeline {
	return &Pipeline{store: store, registry: reg, textEmbed: textEmbed, imageEmbed: imageEmbed}
}

// Ingest indexes one document under a freshly generated document id and
// returns the committed counts.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	cfg := req.Chunk
	if cfg == (chunker.Config{}) {
		cfg = chunker.DefaultConfig()
	}

	chunks, err := chunker.Split(req.Text, cfg)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 && len(req.ImageDescriptions) == 0 {
		return nil, fmt.Errorf("document %s: %w", req.Name, ErrEmptyDocument)
	}

	// all chunks in one batch call; image descriptions individually since
	// they arrive one per extracted image
	var textVectors [][]float32
	if len(chunks) > 0 {
		textVectors, err = p.textEmbed.EmbedTexts(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text chunks: %w", err)
		}
	}
	imageVectors := make([][]float32, 0, len(req.ImageDescriptions))
	for i, desc := range req.ImageDescriptions {
		v, err := p.imageEmbed.EmbedQuery(ctx, desc)
		if err != nil {
			return nil, fmt.Errorf("failed to embed image description %d: %w", i, err)
		}
		imageVectors = append(imageVectors, v)
	}

	// duplicate ids mean a collision of fresh uuids, retry with a new one
	var lastErr error
	for attempt := 0; attempt < maxIDRetries; attempt++ {
		docID, err := helper.GenerateUUID()
		if err != nil {
			return nil, err
		}

		res, err := p.commit(ctx, docID, req.Name, chunks, textVectors, req.ImageDescriptions, imageVectors)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, vectorstore.ErrDuplicateID) {
			return nil, err
		}
		log.Warn().Str("document_id", docID).Err(err).Msg("document id collision, retrying with a new id")
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", ErrPartialIngestion, lastErr)
}

// commit stages a registry row, inserts all entries, then flips the counts.
// The counts update is the visibility point; any failure before it rolls
// everything back.
func (p *Pipeline) commit(ctx context.Context, docID, name string, chunks []string, textVectors [][]float32, descriptions []string, imageVectors [][]float32) (*Result, error) {
	docSeq, err := p.registry.Create(ctx, docID, name)
	if err != nil {
		return nil, err
	}

	textEntries := make([]vectorstore.Entry, len(chunks))
	for i, text := range chunks {
		textEntries[i] = vectorstore.Entry{
			ID:     fmt.Sprintf("%s-text-%d", docID, i),
			Vector: textVectors[i],
			Text:   text,
			Metadata: vectorstore.Metadata{
				DocumentID:    docID,
				DocumentName:  name,
				SequenceIndex: i,
				ContentType:   models.ContentTypeText,
				DocSeq:        docSeq,
			},
		}
	}
	imageEntries := make([]vectorstore.Entry, len(descriptions))
	for i, desc := range descriptions {
		imageEntries[i] = vectorstore.Entry{
			ID:     fmt.Sprintf("%s-image-%d", docID, i),
			Vector: imageVectors[i],
			Text:   desc,
			Metadata: vectorstore.Metadata{
				DocumentID:    docID,
				DocumentName:  name,
				SequenceIndex: i,
				ContentType:   models.ContentTypeImage,
				DocSeq:        docSeq,
			},
		}
	}

	if err := p.store.Insert(ctx, models.TextCollection, textEntries); err != nil {
		return nil, p.rollback(ctx, docID, err)
	}
	if err := p.store.Insert(ctx, models.ImageCollection, imageEntries); err != nil {
		return nil, p.rollback(ctx, docID, err)
	}
	if err := p.registry.SetCounts(ctx, docID, len(textEntries), len(imageEntries)); err != nil {
		return nil, p.rollback(ctx, docID, err)
	}

	log.Info().
		Str("document_id", docID).
		Str("name", name).
		Int("text_chunks", len(textEntries)).
		Int("images", len(imageEntries)).
		Msg("document ingested")

	return &Result{DocumentID: docID, TextChunks: len(textEntries), Images: len(imageEntries)}, nil
}

// rollback removes everything written for docID. Best effort: the staging
// row keeps counts at zero, so even a failed rollback leaves the document
// invisible to searches.
func (p *Pipeline) rollback(ctx context.Context, docID string, cause error) error {
	for _, collection := range []string{models.TextCollection, models.ImageCollection} {
		if _, err := p.store.Delete(ctx, collection, []string{docID}); err != nil {
			log.Warn().Str("document_id", docID).Str("collection", collection).Err(err).
				Msg("rollback: failed to delete entries")
		}
	}
	if _, err := p.registry.Delete(ctx, []string{docID}); err != nil {
		log.Warn().Str("document_id", docID).Err(err).Msg("rollback: failed to delete registry row")
	}
	if errors.Is(cause, vectorstore.ErrDuplicateID) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrPartialIngestion, cause)
}
