// Package rag wires the retrieval engine together behind one facade. The
// surrounding service layer (HTTP handlers, prompt construction) calls this
// and nothing below it.
package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"studybuddy/internal/config"
	"studybuddy/internal/embedding"
	"studybuddy/internal/ingester"
	"studybuddy/internal/models"
	"studybuddy/internal/registry"
	"studybuddy/internal/retriever"
	"studybuddy/internal/vectorstore"
)

// Backup is implemented by backends that support snapshot export/import
// (the chromem backend with an encryption key configured).
type Backup interface {
	Export(ctx context.Context) error
	Import(ctx context.Context) error
}

// RemovedCounts reports what a deletion touched.
type RemovedCounts struct {
	TextEntries  int `json:"text_entries"`
	ImageEntries int `json:"image_entries"`
	Documents    int `json:"documents"`
}

// Engine is the retrieval engine facade: ingest, retrieve, delete, list.
// Constructed once at process start and passed to callers by reference; all
// state lives in the injected store and registry.
type Engine struct {
	store     vectorstore.Store
	registry  *registry.Registry
	pipeline  *ingester.Pipeline
	retriever *retriever.Retriever
}

// New declares both collections on the store and returns the ready engine.
func New(ctx context.Context, cfg *config.Config, store vectorstore.Store, reg *registry.Registry, textEmbed, imageEmbed embedding.Embedder) (*Engine, error) {
	if err := reg.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.CreateCollection(ctx, models.TextCollection, textEmbed.Dimension()); err != nil {
		return nil, fmt.Errorf("failed to create text collection: %w", err)
	}
	if err := store.CreateCollection(ctx, models.ImageCollection, imageEmbed.Dimension()); err != nil {
		return nil, fmt.Errorf("failed to create image collection: %w", err)
	}

	embedders := map[string]embedding.Embedder{
		models.TextCollection:  textEmbed,
		models.ImageCollection: imageEmbed,
	}
	return &Engine{
		store:     store,
		registry:  reg,
		pipeline:  ingester.New(store, reg, textEmbed, imageEmbed),
		retriever: retriever.New(store, embedders, cfg.Retrieval),
	}, nil
}

// Ingest indexes one extracted document and returns its fresh id and counts.
func (e *Engine) Ingest(ctx context.Context, req ingester.Request) (*ingester.Result, error) {
	return e.pipeline.Ingest(ctx, req)
}

// Retrieve returns the ranked chunks for a query, restricted to the allowed
// documents, from one collection.
func (e *Engine) Retrieve(ctx context.Context, collection, query string, allowedDocs []string, k int, opts retriever.Options) ([]models.RetrievedChunk, error) {
	return e.retriever.Retrieve(ctx, collection, query, allowedDocs, k, opts)
}

// Classify labels a retrieval result set for the answer layer.
func (e *Engine) Classify(collection string, chunks []models.RetrievedChunk) models.Sufficiency {
	return e.retriever.Classify(collection, chunks)
}

// Delete removes documents and everything derived from them. Idempotent.
func (e *Engine) Delete(ctx context.Context, documentIDs []string) (*RemovedCounts, error) {
	if len(documentIDs) == 0 {
		return &RemovedCounts{}, nil
	}

	textRemoved, err := e.store.Delete(ctx, models.TextCollection, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to delete text entries: %w", err)
	}
	imageRemoved, err := e.store.Delete(ctx, models.ImageCollection, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to delete image entries: %w", err)
	}
	docsRemoved, err := e.registry.Delete(ctx, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to delete registry rows: %w", err)
	}

	log.Info().
		Int("documents", docsRemoved).
		Int("text_entries", textRemoved).
		Int("image_entries", imageRemoved).
		Msg("documents deleted")

	return &RemovedCounts{
		TextEntries:  textRemoved,
		ImageEntries: imageRemoved,
		Documents:    docsRemoved,
	}, nil
}

// ListDocuments enumerates ingested documents in ingestion order.
func (e *Engine) ListDocuments(ctx context.Context) ([]models.DocumentInfo, error) {
	return e.registry.List(ctx)
}

// ExportBackup writes an encrypted snapshot if the backend supports it.
func (e *Engine) ExportBackup(ctx context.Context) error {
	b, ok := e.store.(Backup)
	if !ok {
		return fmt.Errorf("store backend does not support export")
	}
	return b.Export(ctx)
}

// ImportBackup restores a snapshot if the backend supports it.
func (e *Engine) ImportBackup(ctx context.Context) error {
	b, ok := e.store.(Backup)
	if !ok {
		return fmt.Errorf("store backend does not support import")
	}
	return b.Import(ctx)
}

// Close releases the store and registry.
func (e *Engine) Close() error {
	if err := e.store.Close(); err != nil {
		return err
	}
	return e.registry.Close()
}
