package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"studybuddy/internal/config"
	"studybuddy/internal/embedding"
	"studybuddy/internal/models"
	"studybuddy/internal/vectorstore"
)

// ErrInvalidK rejects non-positive result counts.
var ErrInvalidK = errors.New("k must be a positive integer")

// Options tune one retrieval call.
type Options struct {
	// MinScore drops results at or below the threshold. Zero means "use the
	// collection's configured floor".
	MinScore float32
	// NoFloor disables the relevance floor regardless of config. Broad
	// recall callers (flashcard generation) want this.
	NoFloor bool
}

// Retriever embeds queries and serves filtered top-k retrieval over the
// collection store. One embedder per collection; the spaces never mix.
type Retriever struct {
	store     vectorstore.Store
	embedders map[string]embedding.Embedder
	tuning    map[string]config.CollectionRetrieval
}

func New(store vectorstore.Store, embedders map[string]embedding.Embedder, tuning map[string]config.CollectionRetrieval) *Retriever {
	return &Retriever{store: store, embedders: embedders, tuning: tuning}
}

// Retrieve returns the k most similar committed chunks from the allowed
// documents. An empty allowed set yields an empty result, never a search
// across every document.
func (r *Retriever) Retrieve(ctx context.Context, collection, query string, allowedDocs []string, k int, opts Options) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("got k=%d: %w", k, ErrInvalidK)
	}
	embedder, ok := r.embedders[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", collection, vectorstore.ErrUnknownCollection)
	}
	if len(allowedDocs) == 0 {
		return nil, nil
	}

	queryVector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.store.Search(ctx, collection, queryVector, k, allowedDocs)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	floor := r.floor(collection, opts)
	chunks := make([]models.RetrievedChunk, 0, len(results))
	for _, res := range results {
		if floor != nil && res.Score <= *floor {
			continue
		}
		chunks = append(chunks, models.RetrievedChunk{
			Text:          res.Text,
			DocumentID:    res.Metadata.DocumentID,
			DocumentName:  res.Metadata.DocumentName,
			SequenceIndex: res.Metadata.SequenceIndex,
			ContentType:   res.Metadata.ContentType,
			Score:         res.Score,
		})
	}

	log.Debug().
		Str("collection", collection).
		Int("k", k).
		Int("candidates", len(results)).
		Int("returned", len(chunks)).
		Msg("retrieval complete")

	return chunks, nil
}

func (r *Retriever) floor(collection string, opts Options) *float32 {
	if opts.NoFloor {
		return nil
	}
	if opts.MinScore != 0 {
		return &opts.MinScore
	}
	if t, ok := r.tuning[collection]; ok {
		return &t.MinScore
	}
	def := float32(models.DefaultMinScore)
	return &def
}

// Classify labels a result set for the downstream answer layer: can it lean
// on the retrieved context or does it need general knowledge.
func (r *Retriever) Classify(collection string, chunks []models.RetrievedChunk) models.Sufficiency {
	t, ok := r.tuning[collection]
	if !ok {
		t = config.CollectionRetrieval{
			HighScore: models.DefaultHighScore,
			MeanScore: models.DefaultMeanScore,
		}
	}
	return Classify(chunks, t.HighScore, t.MeanScore)
}

// Classify is a pure function of the score distribution: "sufficient" needs
// at least two results above high and a mean above mid, "partial" needs one
// above high, anything else is "insufficient".
func Classify(chunks []models.RetrievedChunk, high, mid float32) models.Sufficiency {
	if len(chunks) == 0 {
		return models.Insufficient
	}

	var sum float32
	highQuality := 0
	for _, c := range chunks {
		sum += c.Score
		if c.Score > high {
			highQuality++
		}
	}
	mean := sum / float32(len(chunks))

	switch {
	case highQuality >= 2 && mean > mid:
		return models.Sufficient
	case highQuality >= 1:
		return models.Partial
	default:
		return models.Insufficient
	}
}
