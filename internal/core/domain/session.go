package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Session struct {
	ID         string    `json:"session_id"`
	History    []Message `json:"history"`
	QueryCount int       `json:"query_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		History:   []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.History = append([]Message(nil), s.History...)
	return &out
}

func (s *Session) Profile() UserProfile {
	return UserProfile{QueryCount: s.QueryCount}
}

// UserProfile carries per-session usage facts used by routing decisions.
type UserProfile struct {
	QueryCount int `json:"query_count"`
}

type SessionStats struct {
	SessionID    string    `json:"session_id"`
	QueryCount   int       `json:"query_count"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserMessages returns user turns in chronological order.
func UserMessages(history []Message) []Message {
	out := make([]Message, 0, len(history)/2+1)
	for _, m := range history {
		if m.Role == RoleUser {
			out = append(out, m)
		}
	}
	return out
}

// LastMessages returns at most n trailing messages without copying.
func LastMessages(history []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
