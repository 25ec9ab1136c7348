// Package models defines core data structures for conversation turns and the chat API.
package models

// ConversationTurn is one recorded user/assistant exchange. Turns are
// write-once: no field changes after creation.
type ConversationTurn struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	Timestamp         string `json:"timestamp"`
	UserMessage       string `json:"user_message"`
	AssistantResponse string `json:"assistant_response"`
	// Text is the canonical embedding input, derived from UserMessage and
	// AssistantResponse via TurnText. It is also the literal context string
	// returned to callers.
	Text string `json:"text"`
}

// TurnText builds the canonical embedding input for a turn.
func TurnText(message, response string) string {
	return "User: " + message + "\nAssistant: " + response
}

// TurnMeta is the projection of a turn used for user filtering without
// deserializing full text. The meta entry at position i always describes the
// turn at position i.
type TurnMeta struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
	// Degraded marks a turn whose embedding fell back to a random vector,
	// so consumers can tell genuine embeddings from noise.
	Degraded bool `json:"degraded,omitempty"`
}
