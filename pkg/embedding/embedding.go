// Package embedding provides the text embedders used to vectorize persona
// items. The deterministic embedders need no network and back the default
// local setup; the OpenAI embedder is the production option.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Embedder turns item content into a fixed-dimension vector. Dims reports the
// probed dimension so the store can size its collection at startup.
type Embedder interface {
	ModelID() string
	Dims() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

const (
	chargramModelID = "personakit-chargram-384-v1"
	hashModelID     = "personakit-hash-256-v1"
)

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_\-]+`)

// NewByName resolves an embedder by model name, defaulting to chargram.
func NewByName(name string) Embedder {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case hashModelID, "hash", "hash-256":
		return &hashEmbedder{dims: 256}
	default:
		return &chargramEmbedder{dims: 384}
	}
}

type hashEmbedder struct {
	dims int
}

func (e *hashEmbedder) ModelID() string { return hashModelID }
func (e *hashEmbedder) Dims() int       { return e.dims }

func (e *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, token := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		weight := float32(1 + (len(token) / 8))
		vec[idx] += sign * weight
	}
	NormalizeVector(vec)
	return vec, nil
}

type chargramEmbedder struct {
	dims int
}

func (e *chargramEmbedder) ModelID() string { return chargramModelID }
func (e *chargramEmbedder) Dims() int       { return e.dims }

func (e *chargramEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return vec, nil
	}
	window := "#" + normalized + "#"
	for i := 0; i+3 <= len(window); i++ {
		gram := window[i : i+3]
		h := fnv.New64a()
		_, _ = h.Write([]byte(gram))
		idx := int(h.Sum64() % uint64(e.dims))
		vec[idx] += 1
	}
	for _, token := range tokenize(normalized) {
		h := fnv.New64a()
		_, _ = h.Write([]byte("tok:" + token))
		idx := int(h.Sum64() % uint64(e.dims))
		vec[idx] += 1.25
	}
	NormalizeVector(vec)
	return vec, nil
}

func tokenize(text string) []string {
	text = strings.ToLower(text)
	matches := tokenPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	return matches
}

// VectorNorm returns the L2 norm.
func VectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// NormalizeVector scales vec to unit length in place; a zero vector is left
// untouched.
func NormalizeVector(vec []float32) {
	n := VectorNorm(vec)
	if n == 0 {
		return
	}
	inv := float32(1.0 / n)
	for i := range vec {
		vec[i] *= inv
	}
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dotSum, normA, normB float64
	for i := range a {
		dotSum += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotSum / (math.Sqrt(normA) * math.Sqrt(normB))
}
