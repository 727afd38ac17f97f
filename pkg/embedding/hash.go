package embedding

import (
	"context"
	"hash/fnv"

	"github.com/goclaw/mnemo/pkg/index"
	"github.com/goclaw/mnemo/pkg/memory"
)

// Hash is a deterministic feature-hashing embedder. It needs no model and
// gives texts that share tokens a positive cosine similarity, which makes
// it useful offline and in tests.
type Hash struct {
	dims int
}

// NewHash creates a hash embedder. Non-positive dims default to 256.
func NewHash(dims int) *Hash {
	if dims <= 0 {
		dims = 256
	}
	return &Hash{dims: dims}
}

func (h *Hash) Name() string    { return "hash" }
func (h *Hash) Dimensions() int { return h.dims }

// Embed hashes each token into a signed bucket and L2-normalises the
// result. Text without tokens is unavailable rather than a zero vector.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := index.Tokenize(text)
	if len(tokens) == 0 {
		return nil, memory.ErrEmbeddingUnavailable
	}
	vec := make([]float32, h.dims)
	for _, tok := range tokens {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		bucket := int(sum % uint64(h.dims))
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	normalize(vec)
	return vec, nil
}
