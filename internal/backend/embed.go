package backend

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/osq/internal/qerr"
	"github.com/roach88/osq/internal/token"
)

// TokenEmbedder is a deterministic feature-hashing embedder: each token of
// the text adds ±1 to the dimension its hash selects, and the result is
// normalised to unit length. It has no notion of meaning; texts embed
// close together only when they share tokens.
type TokenEmbedder struct{}

// Embed implements Embedder.
func (TokenEmbedder) Embed(ctx context.Context, text string, dimension int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dimension < 1 {
		return nil, qerr.Validation(qerr.CodeInvalidKnn, "cannot embed into %d dimensions", dimension)
	}
	tokens := token.Tokenize(text)
	if len(tokens) == 0 {
		return nil, qerr.Validation(qerr.CodeInvalidKnn, "text query %q has no tokens", text)
	}

	vec := make([]float64, dimension)
	for _, tok := range tokens {
		h := xxhash.Sum64String(tok)
		sign := 1.0
		if h>>63 == 1 {
			sign = -1
		}
		vec[h%uint64(dimension)] += sign
	}
	var norm float64
	for _, f := range vec {
		norm += f * f
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}
