package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Local is a deterministic offline embedder: a bag-of-words vector over
// FNV-hashed tokens, L2-normalized so dot products are cosine similarities.
// Texts sharing tokens score higher, which is enough for air-gapped use and
// for exercising the retrieval path in tests.
type Local struct {
	dim int
}

func NewLocal(dim int) *Local {
	return &Local{dim: dim}
}

func (l *Local) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := l.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (l *Local) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, l.dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vector[h.Sum32()%uint32(l.dim)]++
	}
	normalize(vector)
	return vector, nil
}

func (l *Local) Dimension() int {
	return l.dim
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
