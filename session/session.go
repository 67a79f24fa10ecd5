// Package session holds the conversation model shared by the loop
// controller, the providers, and the durable store.
package session

import (
	"time"
)

// Roles for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// ToolCall is a finalized tool invocation request from the model.
// Args holds the raw argument JSON exactly as accumulated from the stream;
// it is parsed at dispatch time, not before.
type ToolCall struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Args       string `json:"args"`
}

// Message is one entry in a session's conversation history.
// A RoleTool message carries the result of exactly one tool call, identified
// by ToolCalls[0].ToolCallID; IsError marks that result as a failure.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	IsError   bool       `json:"is_error,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Telemetry is the metadata recorded alongside a sealed assistant message.
type Telemetry struct {
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	CostUSD          float64       `json:"cost_usd"`
	Elapsed          time.Duration `json:"elapsed"`
	Domains          []string      `json:"domains,omitempty"`
}

// Session is one user's conversation. Messages are append-only; the store
// persists each append and reloads the history on resume.
type Session struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Mode     string    `json:"mode"`
	Messages []Message `json:"messages"`
}

// New creates an empty session for a user.
func New(id, userID, mode string) *Session {
	return &Session{ID: id, UserID: userID, Mode: mode}
}

// AddMessage appends a message to the session history.
func (s *Session) AddMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// LastAssistantText returns the content of the most recent assistant
// message, or the empty string when none exists.
func (s *Session) LastAssistantText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}
