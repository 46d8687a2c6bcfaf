package model

import "time"

// ChatSession groups ordered assistant conversation messages under a project.
type ChatSession struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	Agent        string    `json:"agent,omitempty"`
	Title        string    `json:"title,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	Archived     bool      `json:"archived"`
}

// ChatMessage is one utterance within a session.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatEntryLink cross-references a session with a devlog entry.
type ChatEntryLink struct {
	SessionID  string    `json:"sessionId"`
	EntryID    int64     `json:"devlogId"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason,omitempty"`
	Confirmed  bool      `json:"confirmed"`
	CreatedAt  time.Time `json:"createdAt"`
}
