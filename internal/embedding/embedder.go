// Package embedding provides corpus-adaptive TF-IDF text embedding and caching.
package embedding

import (
	"math/rand"

	"github.com/hyperjump/omoide/pkg/utils"
)

// Embedder produces fixed-width vector embeddings for text.
//
// Embed never fails outward: when an embedding cannot be computed the
// implementation returns a random unit vector of the same width and reports
// degraded=true so callers can flag the result.
type Embedder interface {
	// Fit builds the vocabulary from the corpus, replacing any previous fit.
	Fit(corpus []string) error
	// Fitted reports whether a vocabulary exists.
	Fitted() bool
	// Embed maps text to a vector of exactly Dimensions() entries.
	Embed(text string) (vec []float32, degraded bool)
	Dimensions() int
}

// randomVector returns a random unit vector of the given width. Used as the
// degrade path when no real embedding can be produced; the result is
// uncorrelated with the input text.
func randomVector(dims int) []float32 {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = rand.Float32()
	}
	utils.NormalizeL2(vec)
	return vec
}
