package memory

import (
	"strings"
	"testing"

	"github.com/hyperjump/omoide/internal/embedding"
	"github.com/hyperjump/omoide/internal/models"
)

// stubEmbedder returns canned vectors keyed by text, so tests control
// similarity scores exactly. Unknown texts get a fixed default vector.
type stubEmbedder struct {
	dims    int
	vectors map[string][]float32
	fitted  bool
	calls   int
}

func newStubEmbedder(dims int) *stubEmbedder {
	return &stubEmbedder{dims: dims, vectors: make(map[string][]float32)}
}

func (e *stubEmbedder) add(text string, vec []float32) {
	padded := make([]float32, e.dims)
	copy(padded, vec)
	e.vectors[text] = padded
}

func (e *stubEmbedder) addTurn(message, response string, vec []float32) {
	e.add(models.TurnText(message, response), vec)
}

func (e *stubEmbedder) Fit(corpus []string) error { e.fitted = true; return nil }
func (e *stubEmbedder) Fitted() bool              { return e.fitted }
func (e *stubEmbedder) Dimensions() int           { return e.dims }

func (e *stubEmbedder) Embed(text string) ([]float32, bool) {
	e.calls++
	e.fitted = true
	if vec, ok := e.vectors[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, false
	}
	out := make([]float32, e.dims)
	out[e.dims-1] = 1
	return out, false
}

func newTestStore(t *testing.T, emb embedding.Embedder, opts ...Option) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), emb, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestStore_AlignmentInvariant(t *testing.T) {
	emb := newStubEmbedder(4)
	store := newTestStore(t, emb)
	for i := 0; i < 5; i++ {
		if _, err := store.Record("u1", "question", "answer"); err != nil {
			t.Fatal(err)
		}
		if len(store.turns) != len(store.meta) || len(store.turns) != len(store.matrix) {
			t.Fatalf("misaligned after %d records: turns=%d meta=%d matrix=%d",
				i+1, len(store.turns), len(store.meta), len(store.matrix))
		}
	}
	if store.Count("") != 5 {
		t.Errorf("Count=%d", store.Count(""))
	}
}

func TestStore_EmptyCorpusQueryDoesNoEmbedding(t *testing.T) {
	emb := newStubEmbedder(4)
	store := newTestStore(t, emb)
	if got := store.Query("u1", "anything", 0); got != "" {
		t.Errorf("empty corpus query: got %q", got)
	}
	if emb.calls != 0 {
		t.Errorf("expected no embedding computation, got %d calls", emb.calls)
	}
}

func TestStore_UnknownUserReturnsEmpty(t *testing.T) {
	emb := newStubEmbedder(4)
	emb.addTurn("hello", "hi", []float32{1, 0, 0, 0})
	emb.add("hello", []float32{1, 0, 0, 0})
	store := newTestStore(t, emb)
	if _, err := store.Record("u1", "hello", "hi"); err != nil {
		t.Fatal(err)
	}
	if got := store.Query("nobody", "hello", 0); got != "" {
		t.Errorf("unknown user: got %q", got)
	}
}

func TestStore_PerUserIsolation(t *testing.T) {
	emb := newStubEmbedder(4)
	// Identical vectors for both users' turns and the query.
	emb.addTurn("shared question", "answer for u1", []float32{1, 0, 0, 0})
	emb.addTurn("shared question", "answer for u2", []float32{1, 0, 0, 0})
	emb.add("shared question", []float32{1, 0, 0, 0})
	store := newTestStore(t, emb)
	if _, err := store.Record("u1", "shared question", "answer for u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Record("u2", "shared question", "answer for u2"); err != nil {
		t.Fatal(err)
	}

	got := store.Query("u1", "shared question", 0)
	if !strings.Contains(got, "answer for u1") {
		t.Errorf("expected u1's turn in context, got %q", got)
	}
	if strings.Contains(got, "answer for u2") {
		t.Errorf("u2's turn leaked into u1's context: %q", got)
	}
}

func TestStore_RelevanceFloor(t *testing.T) {
	emb := newStubEmbedder(4)
	emb.addTurn("close", "r", []float32{1, 0, 0, 0})   // cosine 1.0
	emb.addTurn("at floor", "r", []float32{3, 4, 0, 0}) // cosine exactly 0.6
	emb.addTurn("far", "r", []float32{0, 1, 0, 0})     // cosine 0.0
	emb.add("probe", []float32{1, 0, 0, 0})
	store := newTestStore(t, emb, WithMinScore(0.6))
	for _, msg := range []string{"close", "at floor", "far"} {
		if _, err := store.Record("u1", msg, "r"); err != nil {
			t.Fatal(err)
		}
	}

	got := store.Query("u1", "probe", 0)
	if !strings.Contains(got, "close") {
		t.Errorf("turn above the floor missing: %q", got)
	}
	if strings.Contains(got, "at floor") {
		t.Errorf("turn exactly at the floor must be excluded: %q", got)
	}
	if strings.Contains(got, "far") {
		t.Errorf("orthogonal turn must be excluded: %q", got)
	}
}

func TestStore_DefaultFloorExcludesNoise(t *testing.T) {
	emb := newStubEmbedder(4)
	// cosine = 1/sqrt(1+400) ≈ 0.05, below the default 0.1 floor.
	emb.addTurn("noise", "r", []float32{1, 20, 0, 0})
	emb.add("probe", []float32{1, 0, 0, 0})
	store := newTestStore(t, emb)
	if _, err := store.Record("u1", "noise", "r"); err != nil {
		t.Fatal(err)
	}
	if got := store.Query("u1", "probe", 0); got != "" {
		t.Errorf("near-random turn surfaced as context: %q", got)
	}
}

func TestStore_TopNBoundaryAndOrder(t *testing.T) {
	emb := newStubEmbedder(4)
	turns := []struct {
		msg string
		vec []float32
	}{
		{"first", []float32{1, 0, 0, 0}},  // cosine 1.0
		{"second", []float32{4, 3, 0, 0}}, // cosine 0.8
		{"third", []float32{3, 4, 0, 0}},  // cosine 0.6
		{"fourth", []float32{1, 2, 0, 0}}, // cosine ~0.447
		{"fifth", []float32{1, 3, 0, 0}},  // cosine ~0.316
	}
	for _, tc := range turns {
		emb.addTurn(tc.msg, "r", tc.vec)
	}
	emb.add("probe", []float32{1, 0, 0, 0})
	store := newTestStore(t, emb)
	// Insert in reverse so ranking cannot ride on insertion order.
	for i := len(turns) - 1; i >= 0; i-- {
		if _, err := store.Record("u1", turns[i].msg, "r"); err != nil {
			t.Fatal(err)
		}
	}

	got := store.Query("u1", "probe", 3)
	parts := strings.Split(got, "\n\n")
	if len(parts) != 3 {
		t.Fatalf("expected exactly 3 context entries, got %d: %q", len(parts), got)
	}
	for i, msg := range []string{"first", "second", "third"} {
		if !strings.Contains(parts[i], msg) {
			t.Errorf("rank %d: expected %q, got %q", i, msg, parts[i])
		}
	}
}

func TestStore_CountPerUser(t *testing.T) {
	emb := newStubEmbedder(4)
	store := newTestStore(t, emb)
	for i := 0; i < 3; i++ {
		if _, err := store.Record("u1", "m", "r"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Record("u2", "m", "r"); err != nil {
		t.Fatal(err)
	}
	if got := store.Count(""); got != 4 {
		t.Errorf("total Count=%d", got)
	}
	if got := store.Count("u1"); got != 3 {
		t.Errorf("u1 Count=%d", got)
	}
	if got := store.Count("u3"); got != 0 {
		t.Errorf("u3 Count=%d", got)
	}
}

func TestStore_UserTurnsNewestFirst(t *testing.T) {
	emb := newStubEmbedder(4)
	store := newTestStore(t, emb)
	for _, msg := range []string{"one", "two", "three"} {
		if _, err := store.Record("u1", msg, "r"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Record("u2", "other", "r"); err != nil {
		t.Fatal(err)
	}
	got := store.UserTurns("u1", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got))
	}
	if got[0].UserMessage != "three" || got[1].UserMessage != "two" {
		t.Errorf("unexpected order: %q, %q", got[0].UserMessage, got[1].UserMessage)
	}
}

func TestStore_RoundTripPersistence(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, embedding.NewVectorizer(embedding.DefaultDimensions))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Record("u1", "What is caching?", "Caching stores results for reuse."); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Record("u1", "Explain eviction", "Eviction removes stale cache entries."); err != nil {
		t.Fatal(err)
	}
	before := store.Query("u1", "caching stores results", 0)
	if before == "" {
		t.Fatal("expected context before reload")
	}

	// Reconstruct from durable storage with a fresh vectorizer.
	reloaded, err := NewStore(dir, embedding.NewVectorizer(embedding.DefaultDimensions))
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Count(""); got != 2 {
		t.Fatalf("Count after reload=%d", got)
	}
	after := reloaded.Query("u1", "caching stores results", 0)
	if after != before {
		t.Errorf("query diverged after reload:\nbefore: %q\nafter:  %q", before, after)
	}
}

func TestStore_CachingScenario(t *testing.T) {
	dir := t.TempDir()
	first, err := NewStore(dir, embedding.NewVectorizer(embedding.DefaultDimensions))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Record("u1", "What is caching?", "Caching stores results for reuse."); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Record("u1", "Explain eviction", "Eviction removes stale cache entries."); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Record("u2", "What is caching?", "Unrelated user's answer."); err != nil {
		t.Fatal(err)
	}

	// Reopen so the startup fit covers every stored turn; within one process
	// the vocabulary stays at whatever the first-ever write produced.
	store, err := NewStore(dir, embedding.NewVectorizer(embedding.DefaultDimensions))
	if err != nil {
		t.Fatal(err)
	}

	// Word-level TF-IDF has no stemming, so the query must share a token
	// with a stored turn ("cache", "eviction").
	got := store.Query("u1", "Tell me about cache eviction", 0)
	if got == "" {
		t.Fatal("expected context from prior turns")
	}
	if !strings.Contains(got, "Eviction removes stale cache entries.") {
		t.Errorf("expected the eviction turn in context, got %q", got)
	}
	if strings.Contains(got, "Unrelated user's answer.") {
		t.Errorf("another user's turn leaked into context: %q", got)
	}

	if got := store.Query("u1", "", 0); got != "" {
		// An empty query embeds to a zero transform; nothing clears the floor.
		t.Errorf("empty query should yield no context, got %q", got)
	}
}
