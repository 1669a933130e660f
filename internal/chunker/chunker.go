package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"studybuddy/internal/models"
)

const (
	StrategyFixed     = "fixed"
	StrategyParagraph = "paragraph"
)

// ErrInvalidConfig wraps every config validation failure.
var ErrInvalidConfig = errors.New("invalid chunk config")

// Config controls how document text is split.
type Config struct {
	Strategy     string
	ChunkSize    int
	ChunkOverlap int
	MinParagraph int
}

func DefaultConfig() Config {
	return Config{
		Strategy:     StrategyFixed,
		ChunkSize:    models.DefaultChunkSize,
		ChunkOverlap: models.DefaultChunkOverlap,
		MinParagraph: models.DefaultMinParagraph,
	}
}

// Validate rejects configs that would loop forever or split nothing.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidConfig, c.ChunkOverlap, c.ChunkSize)
	}
	if c.Strategy != StrategyFixed && c.Strategy != StrategyParagraph {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}
	return nil
}

// Split chunks text according to cfg. Pure function, no side effects.
func Split(text string, cfg Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case StrategyParagraph:
		return Paragraphs(text, cfg.MinParagraph), nil
	default:
		return FixedWindow(text, cfg.ChunkSize, cfg.ChunkOverlap), nil
	}
}

// FixedWindow splits text into windows of at most size characters where each
// window after the first starts overlap characters before the previous
// window's end. Sizes count runes, never bytes, so multi-byte text is never
// cut mid-character. Whitespace-only input yields nil; input shorter than
// size yields a single trimmed chunk.
func FixedWindow(text string, size, overlap int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	runes := []rune(trimmed)
	if len(runes) <= size {
		return []string{trimmed}
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// Paragraphs splits on blank lines and keeps only substantial paragraphs.
// minLen counts runes. Used for coarse documents where paragraph structure
// is reliable.
func Paragraphs(text string, minLen int) []string {
	var chunks []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if utf8.RuneCountInString(para) >= minLen {
			chunks = append(chunks, para)
		}
	}
	return chunks
}
