package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDeterminism(t *testing.T) {
	e := NewLocal(256)
	ctx := context.Background()

	a, err := e.EmbedQuery(ctx, "Do fish live in water?")
	require.NoError(t, err)
	b, err := e.EmbedQuery(ctx, "Do fish live in water?")
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical input must yield the identical vector")
	assert.Len(t, a, 256)
}

func TestLocalNormalization(t *testing.T) {
	e := NewLocal(128)
	v, err := e.EmbedQuery(context.Background(), "cats are mammals and dogs are mammals too")
	require.NoError(t, err)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-5, "vector must be L2-normalized")
}

func TestLocalSimilarityOrdering(t *testing.T) {
	e := NewLocal(256)
	ctx := context.Background()

	query, err := e.EmbedQuery(ctx, "fish live in water")
	require.NoError(t, err)
	related, err := e.EmbedQuery(ctx, "many fish live in deep water")
	require.NoError(t, err)
	unrelated, err := e.EmbedQuery(ctx, "mitosis divides a cell into two")
	require.NoError(t, err)

	assert.Greater(t, dot(query, related), dot(query, unrelated))
}

func TestLocalEmbedTexts(t *testing.T) {
	e := NewLocal(64)
	ctx := context.Background()

	vectors, err := e.EmbedTexts(ctx, []string{"first text", "second text"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	single, err := e.EmbedQuery(ctx, "second text")
	require.NoError(t, err)
	assert.Equal(t, single, vectors[1], "batch order must be preserved")

	empty, err := e.EmbedTexts(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestNewEmbedderValidation(t *testing.T) {
	_, err := NewEmbedder(configFor("local", 0))
	assert.Error(t, err)

	_, err = NewEmbedder(configFor("carrier-pigeon", 64))
	assert.Error(t, err)

	e, err := NewEmbedder(configFor("local", 64))
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimension())
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
