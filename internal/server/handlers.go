package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/omoide/internal/generator"
	"github.com/hyperjump/omoide/internal/models"
	"github.com/hyperjump/omoide/pkg/utils"
)

// handleChat is the primary chat path: retrieve context from the caller's
// past conversations, generate a response, record the new turn, and append
// session history. Memory and generation are best-effort; their failures
// never fail the request.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	ctx := r.Context()
	s.logger.Debug("chat request", zap.String("message", utils.Truncate(message, 80)))

	sessionID := req.SessionID
	known := false
	if sessionID != "" {
		exists, err := s.sessions.Exists(ctx, sessionID)
		if err != nil {
			s.logger.Error("session lookup failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		known = exists
	}
	if !known {
		sessionID = uuid.NewString()
		if err := s.sessions.Create(ctx, sessionID); err != nil {
			s.logger.Error("session create failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "session create failed")
			return
		}
		s.logger.Info("created session", zap.String("session_id", sessionID))
	}

	contextText := s.memory.Query(sessionID, message, 0)

	response, err := s.generator.Generate(ctx, message, contextText)
	if err != nil {
		s.logger.Warn("generation failed", zap.Error(err))
		response = generator.Fallback(err)
	}

	if _, err := s.memory.Record(sessionID, message, response); err != nil {
		// The in-memory append stands; only durability is at risk.
		s.logger.Error("turn persist failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.sessions.AppendHistory(ctx, sessionID, message, response); err != nil {
		s.logger.Warn("history append failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	s.respondJSON(w, http.StatusOK, models.ChatResponse{
		Response:          response,
		SessionID:         sessionID,
		ContextUsed:       contextText != "",
		ConversationCount: s.memory.Count(sessionID),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	entries, err := s.sessions.History(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("history load failed", zap.String("session_id", sessionID), zap.Error(err))
		s.respondJSON(w, http.StatusOK, []models.HistoryEntry{})
		return
	}
	s.respondJSON(w, http.StatusOK, entries)
}

// handleConversations returns the most recent stored turns for a session,
// newest first. Unlike history, these are the durable archive entries that
// feed similarity retrieval.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := 10
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	turns := s.memory.UserTurns(sessionID, limit)
	if turns == nil {
		turns = []models.ConversationTurn{}
	}
	s.respondJSON(w, http.StatusOK, turns)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		s.logger.Error("session list failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.respondJSON(w, http.StatusOK, ids)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sessionCount, err := s.sessions.Count(r.Context())
	if err != nil {
		s.logger.Error("stats: count sessions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.StatsResponse{
		TotalConversations: s.memory.Count(""),
		ActiveSessions:     int(sessionCount),
		StoragePath:        s.memory.DataDir(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "omoide",
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
