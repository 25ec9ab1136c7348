package embedding

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// DefaultDimensions is the fixed output width of the vectorizer.
const DefaultDimensions = 384

// Vectorizer is a TF-IDF embedder with a fixed output width.
//
// The vocabulary is built by Fit over a corpus and is replaced wholesale on
// each Fit; Embed transforms text through the current vocabulary. When the
// vocabulary is smaller than the output width the vector is zero-padded on
// the right; vocabulary terms mapped past the output width are truncated away
// and never contribute to similarity.
type Vectorizer struct {
	mu           sync.RWMutex
	vocabulary   map[string]int
	idf          []float64
	dimensions   int
	fitted       bool
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewVectorizer creates an unfitted vectorizer with the given output width.
// A non-positive width falls back to DefaultDimensions.
func NewVectorizer(dimensions int) *Vectorizer {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Vectorizer{
		vocabulary:   make(map[string]int),
		dimensions:   dimensions,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Dimensions returns the fixed output width.
func (v *Vectorizer) Dimensions() int { return v.dimensions }

// Fitted reports whether a vocabulary exists.
func (v *Vectorizer) Fitted() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.fitted
}

// Fit builds the vocabulary and smoothed IDF values from the corpus,
// replacing any previous fit. Stopwords are excluded from the vocabulary.
func (v *Vectorizer) Fit(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("empty corpus for tf-idf fit")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range v.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	if len(terms) == 0 {
		return errors.New("no tokens in corpus")
	}
	sort.Strings(terms)

	vocabulary := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		vocabulary[term] = i
		// Smoothed IDF
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	v.mu.Lock()
	v.vocabulary = vocabulary
	v.idf = idf
	v.fitted = true
	v.mu.Unlock()
	return nil
}

// Embed maps text to a TF-IDF vector of exactly Dimensions() entries.
//
// On the first-ever call, an unfitted vectorizer fits itself to the single
// input text (a degenerate one-document vocabulary); later calls transform
// through the existing vocabulary only. Terms outside the vocabulary
// contribute zero. Any internal failure degrades to a random unit vector
// with degraded=true.
func (v *Vectorizer) Embed(text string) ([]float32, bool) {
	if !v.Fitted() {
		if err := v.Fit([]string{text}); err != nil {
			return randomVector(v.dimensions), true
		}
	}
	return v.transform(text), false
}

// transform computes the L2-normalized TF-IDF weights over the full
// vocabulary, then resizes to the fixed output width.
func (v *Vectorizer) transform(text string) []float32 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	raw := make([]float64, len(v.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range v.tokenize(text) {
		if idx, ok := v.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total > 0 {
		for idx, count := range tf {
			raw[idx] = float64(count) / float64(total) * v.idf[idx]
		}
		norm := 0.0
		for _, w := range raw {
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for i := range raw {
				raw[i] /= norm
			}
		}
	}
	return resize(raw, v.dimensions)
}

// resize zero-pads or truncates raw to exactly dims entries, narrowing to
// float32. Truncation happens after normalization, so a truncated vector may
// have norm below one; similarity must divide by actual norms.
func resize(raw []float64, dims int) []float32 {
	vec := make([]float32, dims)
	n := len(raw)
	if n > dims {
		n = dims
	}
	for i := 0; i < n; i++ {
		vec[i] = float32(raw[i])
	}
	return vec
}

func (v *Vectorizer) tokenize(text string) []string {
	raw := v.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := v.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}
