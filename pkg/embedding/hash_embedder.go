package embedding

import (
	"context"
	"strings"
)

// DefaultDimension is the bucket count of the hashing embedder.
const DefaultDimension = 384

// HashEmbedder is a deterministic bag-of-words embedder: every lowercased
// whitespace token increments one of Dimension buckets, and the result is
// L2-normalized.
type HashEmbedder struct {
	dimension int
}

var _ Embedder = &HashEmbedder{}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashEmbedder{dimension: dimension}
}

func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		vec[bucket(word, h.dimension)]++
	}
	return normalizeVector(vec), nil
}

// bucket hashes word with the 31-multiplier string hash over 32-bit
// arithmetic and folds it into [0, n).
func bucket(word string, n int) int {
	var h int32
	for _, r := range word {
		h = h*31 + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % int64(n))
}
