package embedding

import (
	"context"
	"crypto/md5"
	"strings"
)

// Lexical is the deterministic offline embedder: a hashed bag-of-words
// projection. Tokens are lowercased whitespace fields, each hashed into one
// of dim buckets; bucket counts are L2-normalized. The same text always
// produces the same vector, so tests can assert exact values, and empty text
// maps to the all-zeros vector.
type Lexical struct {
	dim int
}

func NewLexical(dim int) *Lexical {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Lexical{dim: dim}
}

func (l *Lexical) Dimension() int { return l.dim }

func (l *Lexical) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, l.dim)
	for _, tok := range strings.Fields(text) {
		vec[l.bucket(strings.ToLower(tok))]++
	}
	Normalize(vec)
	return vec, nil
}

// bucket hashes a token into [0, dim). The MD5 digest is reduced with a
// byte-wise modulus so the mapping is stable across platforms.
func (l *Lexical) bucket(token string) int {
	sum := md5.Sum([]byte(token))
	var r uint64
	mod := uint64(l.dim)
	for _, b := range sum {
		r = (r*256 + uint64(b)) % mod
	}
	return int(r)
}
