package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"studybuddy/internal/config"
	"studybuddy/internal/vectorstore"
)

// Embedder maps text to fixed-dimension vectors. Implementations are
// deterministic for a fixed underlying model and safe for concurrent use.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// NewEmbedder builds an embedder for one embedding space from its config.
func NewEmbedder(cfg config.LLMConfig) (Embedder, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", cfg.Dimensions)
	}
	switch cfg.Provider {
	case "openai", "ollama":
		return &remoteEmbedder{cfg: cfg}, nil
	case "local":
		return NewLocal(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// remoteEmbedder wraps a langchaingo embedder. The underlying client is
// built lazily on first use; a failed initialization is not cached, so the
// next call retries.
type remoteEmbedder struct {
	cfg config.LLMConfig

	mu   sync.Mutex
	impl *embeddings.EmbedderImpl
}

func (e *remoteEmbedder) load() (*embeddings.EmbedderImpl, error) {
	log.Debug().
		Str("provider", e.cfg.Provider).
		Str("base_url", e.cfg.BaseURL).
		Str("model", e.cfg.Model).
		Msg("initializing embedding client")

	var client embeddings.EmbedderClient
	var err error
	switch e.cfg.Provider {
	case "ollama":
		client, err = ollama.New(
			ollama.WithServerURL(e.cfg.BaseURL),
			ollama.WithModel(e.cfg.Model),
		)
	default:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(e.cfg.Key, "Bearer ")),
			openai.WithModel(e.cfg.Model),
			openai.WithEmbeddingModel(e.cfg.Model),
		}
		if e.cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.cfg.BaseURL))
		}
		client, err = openai.New(opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("error initializing embedding LLM: %w", err)
	}
	return embeddings.NewEmbedder(client)
}

func (e *remoteEmbedder) embedder() (*embeddings.EmbedderImpl, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.impl != nil {
		return e.impl, nil
	}
	impl, err := e.load()
	if err != nil {
		return nil, err
	}
	e.impl = impl
	return impl, nil
}

func (e *remoteEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	impl, err := e.embedder()
	if err != nil {
		return nil, err
	}
	vectors, err := impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding %d texts: %w", vectorstore.ErrBackendUnavailable, len(texts), err)
	}
	for i, v := range vectors {
		if err := e.checkDimension(v, texts[i]); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

func (e *remoteEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	impl, err := e.embedder()
	if err != nil {
		return nil, err
	}
	vector, err := impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", vectorstore.ErrBackendUnavailable, err)
	}
	if err := e.checkDimension(vector, text); err != nil {
		return nil, err
	}
	return vector, nil
}

func (e *remoteEmbedder) Dimension() int {
	return e.cfg.Dimensions
}

func (e *remoteEmbedder) checkDimension(vector []float32, text string) error {
	if len(vector) != e.cfg.Dimensions {
		return fmt.Errorf("model %s returned %d dimensions, configured %d (text %q): %w",
			e.cfg.Model, len(vector), e.cfg.Dimensions, truncate(text, 40), vectorstore.ErrDimensionMismatch)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
