package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowDegenerateInputs(t *testing.T) {
	assert.Nil(t, FixedWindow("", 100, 20))
	assert.Nil(t, FixedWindow("   \n\t  ", 100, 20))

	chunks := FixedWindow("  short text  ", 100, 20)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestFixedWindowCoverage(t *testing.T) {
	// concatenating chunks minus overlaps must reconstruct the input
	text := strings.Repeat("abcdefghij", 137) // 1370 chars, not a multiple of the step
	size, overlap := 300, 60

	chunks := FixedWindow(text, size, overlap)
	require.Greater(t, len(chunks), 1)

	rebuilt := []rune(chunks[0])
	for _, c := range chunks[1:] {
		r := []rune(c)
		require.GreaterOrEqual(t, len(r), overlap)
		rebuilt = append(rebuilt, r[overlap:]...)
	}
	assert.Equal(t, text, string(rebuilt))
}

func TestFixedWindowMultibyte(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("héllo wörld из Москвы 東京の大学 ", 60))
	size, overlap := 200, 40

	chunks := FixedWindow(text, size, overlap)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk boundary must not split a rune: %q", c)
		assert.LessOrEqual(t, utf8.RuneCountInString(c), size)
	}

	rebuilt := []rune(chunks[0])
	for _, c := range chunks[1:] {
		rebuilt = append(rebuilt, []rune(c)[overlap:]...)
	}
	assert.Equal(t, text, string(rebuilt))
}

func TestFixedWindowOverlapInvariant(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 60)
	text = strings.TrimSpace(text)
	size, overlap := 500, 100

	chunks := FixedWindow(text, size, overlap)
	require.Greater(t, len(chunks), 2)

	for i := 0; i < len(chunks)-1; i++ {
		cur, next := []rune(chunks[i]), []rune(chunks[i+1])
		if len(cur) < size {
			break // final short remainder
		}
		assert.Equal(t, string(cur[len(cur)-overlap:]), string(next[:overlap]),
			"tail of chunk %d must equal head of chunk %d", i, i+1)
	}
}

func TestFixedWindowBounds(t *testing.T) {
	text := strings.Repeat("x", 2500)
	for _, c := range FixedWindow(text, 1000, 200) {
		assert.LessOrEqual(t, len(c), 1000)
	}
}

func TestParagraphs(t *testing.T) {
	text := "Photosynthesis converts light energy into chemical energy in plants.\n\n" +
		"short\n\n" +
		"Mitosis is the process by which a cell divides into two identical cells.\n\n" +
		"   \n\n" +
		"Cellular respiration releases the energy stored in glucose molecules."

	chunks := Paragraphs(text, 50)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Photosynthesis converts light energy into chemical energy in plants.", chunks[0])
	assert.NotContains(t, chunks, "short")
}

func TestParagraphsCountRunes(t *testing.T) {
	// 40 runes but 80 bytes; must still fall below a rune minimum of 50
	short := strings.Repeat("ж", 40)
	assert.Empty(t, Paragraphs(short, 50))
	assert.Len(t, Paragraphs(strings.Repeat("ж", 50), 50), 1)
}

func TestSplitValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", DefaultConfig(), true},
		{"overlap equals size", Config{Strategy: StrategyFixed, ChunkSize: 100, ChunkOverlap: 100}, false},
		{"overlap above size", Config{Strategy: StrategyFixed, ChunkSize: 100, ChunkOverlap: 150}, false},
		{"zero size", Config{Strategy: StrategyFixed, ChunkSize: 0, ChunkOverlap: 0}, false},
		{"negative overlap", Config{Strategy: StrategyFixed, ChunkSize: 100, ChunkOverlap: -1}, false},
		{"unknown strategy", Config{Strategy: "semantic", ChunkSize: 100, ChunkOverlap: 10}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Split("some input text", tc.cfg)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestSplitDispatch(t *testing.T) {
	text := "First paragraph with enough characters to pass the minimum length gate.\n\n" +
		"Second paragraph, also comfortably longer than fifty characters total."

	cfg := DefaultConfig()
	chunks, err := Split(text, cfg)
	require.NoError(t, err)
	require.Len(t, chunks, 1) // below chunk size, single fixed-window chunk

	cfg.Strategy = StrategyParagraph
	chunks, err = Split(text, cfg)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}
