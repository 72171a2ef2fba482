// Package session holds per-session chat history used as conversational
// context. Stores sit behind a narrow interface so tests inject the in-memory
// implementation while deployments can point at Redis.
package session

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultID groups turns of callers that never supply a session id.
const DefaultID = "default"

// VisibleHistory is how many trailing messages responses expose. The store
// keeps the full history.
const VisibleHistory = 10

// Message is a single chat turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists ordered per-session message history. Sessions come into
// existence on first append; concurrent use of different sessions never
// interferes, and implementations serialize access per session.
type Store interface {
	// History returns the full ordered history of a session. Unknown sessions
	// yield an empty history, not an error.
	History(ctx context.Context, sessionID string) ([]Message, error)
	// Append adds messages to the end of a session's history, creating the
	// session when needed.
	Append(ctx context.Context, sessionID string, msgs ...Message) error
	// Replace swaps the entire history of a session. Used when the client
	// supplies its own history as the source of truth for a turn.
	Replace(ctx context.Context, sessionID string, msgs []Message) error
	// Evict drops a session and its history.
	Evict(ctx context.Context, sessionID string) error
}

// Tail returns the last n messages of the history.
func Tail(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
