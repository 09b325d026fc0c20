package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// HashProvider is an offline embedder: term frequencies of letter-run tokens
// are accumulated into slots chosen by a stable hash, then L2-normalized.
// Colliding tokens share a slot. It makes no network calls and is safe for
// concurrent use.
type HashProvider struct {
	dim int
}

// NewHashProvider creates a HashProvider producing vectors of length dim.
// A non-positive dim selects DefaultDimension.
func NewHashProvider(dim int) *HashProvider {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashProvider{dim: dim}
}

// Embed returns one vector per text. It never fails.
func (p *HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.Vector(t)
	}
	return out, nil
}

// Vector embeds one text. Text without letters maps to the zero vector.
func (p *HashProvider) Vector(text string) []float32 {
	vec := make([]float32, p.dim)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	freq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}

	acc := make([]float64, p.dim)
	total := float64(len(tokens))
	for tok, n := range freq {
		acc[xxhash.Sum64String(tok)%uint64(p.dim)] += float64(n) / total
	}

	var sum float64
	for _, v := range acc {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// Dimension returns the vector length.
func (p *HashProvider) Dimension() int { return p.dim }

// Name identifies the embedder in stats output.
func (p *HashProvider) Name() string { return "hash" }

// Tokenize lowercases text and splits it into runs of letters.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
