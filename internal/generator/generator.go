// Package generator produces model responses for context-augmented prompts.
package generator

import (
	"context"
	"fmt"
)

// Generator turns a user prompt plus retrieved conversation context into a
// response. Implementations may fail; callers decide whether to surface the
// error or substitute a fallback message.
type Generator interface {
	Generate(ctx context.Context, prompt, contextText string) (string, error)
	Close() error
}

// BuildPrompt combines the retrieved context and the current question into
// the full prompt sent to the model.
func BuildPrompt(prompt, contextText string) string {
	return fmt.Sprintf(
		"Context from previous conversations: %s\n\nCurrent question: %s\n\nPlease provide a helpful and relevant response based on the context and current question.",
		contextText, prompt)
}

// Fallback is the message returned to the user when generation fails.
func Fallback(err error) string {
	return fmt.Sprintf("I apologize, but I encountered an error: %v", err)
}

// Static is a Generator that always returns the same response. It backs
// tests and serves as the fallback when no API key is configured.
type Static struct {
	Response string
}

// Generate returns the fixed response.
func (s *Static) Generate(ctx context.Context, prompt, contextText string) (string, error) {
	return s.Response, nil
}

// Close is a no-op for Static.
func (s *Static) Close() error { return nil }
