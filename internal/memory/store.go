// Package memory implements the durable conversation store: an append-only
// log of conversation turns with per-user similarity-ranked retrieval.
package memory

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/omoide/internal/embedding"
	"github.com/hyperjump/omoide/internal/models"
)

const (
	// DefaultTopN is the number of past turns returned as context.
	DefaultTopN = 3
	// DefaultMinScore is the relevance floor: turns scoring at or below it
	// are excluded from context even inside the top N.
	DefaultMinScore = 0.1

	defaultCacheSize = 1024
)

// Store owns the append-only conversation log, its metadata projection, and
// the embedding matrix, all index-aligned (row i describes turn i). State is
// loaded from three co-located files at construction and fully rewritten
// after every recorded turn.
//
// Record calls are serialized by a single mutex; Query and Count take a read
// lock, so reads run concurrently with each other but never observe a
// half-appended matrix.
type Store struct {
	mu sync.RWMutex

	dataDir string
	turns   []models.ConversationTurn
	meta    []models.TurnMeta
	matrix  [][]float32

	embedder embedding.Embedder
	cache    *embedding.Cache

	topN     int
	minScore float64
	logger   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger; default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithTopN sets the default number of turns returned as context.
func WithTopN(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.topN = n
		}
	}
}

// WithMinScore sets the relevance floor.
func WithMinScore(score float64) Option {
	return func(s *Store) { s.minScore = score }
}

// WithCacheSize sets the query embedding cache capacity.
func WithCacheSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.cache = embedding.NewCache(n)
		}
	}
}

// NewStore opens the store at dataDir, creating the directory if needed.
//
// Unreadable or missing state files degrade to empty state (logged, not
// fatal). If a prior corpus exists, the embedder is fit once against every
// stored text and the whole matrix is re-embedded, so every durable vector is
// consistent with exactly one vocabulary.
func NewStore(dataDir string, embedder embedding.Embedder, opts ...Option) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	s := &Store{
		dataDir:  dataDir,
		embedder: embedder,
		cache:    embedding.NewCache(defaultCacheSize),
		topN:     DefaultTopN,
		minScore: DefaultMinScore,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s.load()
	if len(s.turns) > 0 {
		s.refit()
	}
	return s, nil
}

// refit fits the embedder against the entire loaded corpus and re-embeds
// every stored row, then persists the matrix best-effort. Called once at
// construction; afterwards the vocabulary stays fixed for the process.
func (s *Store) refit() {
	texts := make([]string, len(s.turns))
	for i, turn := range s.turns {
		texts[i] = turn.Text
	}
	if err := s.embedder.Fit(texts); err != nil {
		s.logger.Warn("vectorizer fit failed; keeping loaded vectors", zap.Error(err))
		return
	}
	s.cache.Purge()
	for i, turn := range s.turns {
		vec, degraded := s.embedder.Embed(turn.Text)
		s.matrix[i] = vec
		s.meta[i].Degraded = degraded
	}
	if err := s.saveMatrix(); err != nil {
		s.logger.Warn("re-embedded matrix save failed", zap.Error(err))
	}
	s.logger.Info("vectorizer fit from stored corpus", zap.Int("turns", len(s.turns)))
}

// Record appends a turn for userID and persists the log, metadata, and
// matrix synchronously. Once it returns nil the turn is durable and visible
// to Query. A persistence failure is returned to the caller, but the
// in-memory append stands, so in-process queries still see the turn.
func (s *Store) Record(userID, message, response string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	timestamp := time.Now().Format(time.RFC3339)
	text := models.TurnText(message, response)

	// First-ever write fits the embedder to the single text; a fit replaces
	// the vocabulary, so cached query vectors must go.
	if !s.embedder.Fitted() {
		defer s.cache.Purge()
	}
	vec, degraded := s.embedder.Embed(text)
	if degraded {
		s.logger.Warn("embedding degraded to random vector", zap.String("id", id))
	}

	s.turns = append(s.turns, models.ConversationTurn{
		ID:                id,
		UserID:            userID,
		Timestamp:         timestamp,
		UserMessage:       message,
		AssistantResponse: response,
		Text:              text,
	})
	s.meta = append(s.meta, models.TurnMeta{
		ID:        id,
		UserID:    userID,
		Timestamp: timestamp,
		Degraded:  degraded,
	})
	s.matrix = append(s.matrix, vec)

	if err := s.persist(); err != nil {
		return id, fmt.Errorf("persist turn %s: %w", id, err)
	}
	s.logger.Debug("stored conversation",
		zap.String("id", id),
		zap.String("user_id", userID),
		zap.Int("total", len(s.turns)))
	return id, nil
}

// Query returns the texts of the most similar past turns recorded under
// userID, ranked by cosine similarity descending and joined with a blank
// line. Turns scoring at or below the relevance floor are excluded. A
// non-positive topN uses the store default. Query never fails outward: an
// empty corpus, an unknown user, or any internal failure yields "".
func (s *Store) Query(userID, queryText string, topN int) string {
	if topN <= 0 {
		topN = s.topN
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Empty corpus: no embedding work at all.
	if len(s.turns) == 0 {
		return ""
	}
	qvec, ok := s.cache.Get(queryText)
	if !ok {
		var degraded bool
		qvec, degraded = s.embedder.Embed(queryText)
		if !degraded {
			s.cache.Set(queryText, qvec)
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	var candidates []scored
	for i, vec := range s.matrix {
		if s.meta[i].UserID != userID {
			continue
		}
		candidates = append(candidates, scored{idx: i, score: Cosine(qvec, vec)})
	}
	if len(candidates) == 0 {
		return ""
	}
	// Stable sort keeps chronological order among equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	parts := make([]string, 0, topN)
	for _, c := range candidates {
		if len(parts) >= topN {
			break
		}
		if c.score > s.minScore {
			parts = append(parts, s.turns[c.idx].Text)
		}
	}
	if len(parts) > 0 {
		s.logger.Debug("found relevant conversations",
			zap.String("user_id", userID),
			zap.Int("count", len(parts)))
	}
	return strings.Join(parts, "\n\n")
}

// Count returns the total number of stored turns, or the number recorded
// under userID when it is non-empty.
func (s *Store) Count(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if userID == "" {
		return len(s.turns)
	}
	n := 0
	for _, m := range s.meta {
		if m.UserID == userID {
			n++
		}
	}
	return n
}

// UserTurns returns up to limit turns recorded under userID, newest first.
func (s *Store) UserTurns(userID string, limit int) []models.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConversationTurn
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].UserID != userID {
			continue
		}
		out = append(out, s.turns[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// DataDir returns the directory holding the three state files.
func (s *Store) DataDir() string { return s.dataDir }
