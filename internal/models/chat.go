package models

// ChatRequest is the input for POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the output of POST /api/chat.
type ChatResponse struct {
	Response          string `json:"response"`
	SessionID         string `json:"session_id"`
	ContextUsed       bool   `json:"context_used"`
	ConversationCount int    `json:"conversation_count"`
}

// HistoryEntry is one exchange in a session's history.
type HistoryEntry struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
	Timestamp string `json:"timestamp"`
}

// StatsResponse summarizes stored conversations and sessions.
type StatsResponse struct {
	TotalConversations int    `json:"total_conversations"`
	ActiveSessions     int    `json:"active_sessions"`
	StoragePath        string `json:"storage_path"`
}
