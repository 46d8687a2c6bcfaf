package model

import "time"

// EntryType classifies what kind of work an entry tracks.
type EntryType string

const (
	TypeFeature  EntryType = "feature"
	TypeBugfix   EntryType = "bugfix"
	TypeTask     EntryType = "task"
	TypeRefactor EntryType = "refactor"
	TypeDocs     EntryType = "docs"
)

// EntryStatus is the workflow state of an entry.
type EntryStatus string

const (
	StatusNew        EntryStatus = "new"
	StatusInProgress EntryStatus = "in-progress"
	StatusBlocked    EntryStatus = "blocked"
	StatusInReview   EntryStatus = "in-review"
	StatusTesting    EntryStatus = "testing"
	StatusDone       EntryStatus = "done"
	StatusCancelled  EntryStatus = "cancelled"
)

// Priority is the urgency level of an entry.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// NoteCategory classifies an appended note.
type NoteCategory string

const (
	NoteProgress           NoteCategory = "progress"
	NoteIssue              NoteCategory = "issue"
	NoteSolution           NoteCategory = "solution"
	NoteIdea               NoteCategory = "idea"
	NoteReminder           NoteCategory = "reminder"
	NoteFeedback           NoteCategory = "feedback"
	NoteAcceptanceCriteria NoteCategory = "acceptance-criteria"
)

// Entry is a single work-log record. ID is unique across the store,
// Key is unique within a project and stable for external references.
type Entry struct {
	ID          int64       `json:"id"`
	Key         string      `json:"key"`
	ProjectID   string      `json:"projectId"`
	Title       string      `json:"title"`
	Type        EntryType   `json:"type"`
	Description string      `json:"description,omitempty"`
	Status      EntryStatus `json:"status"`
	Priority    Priority    `json:"priority"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	ClosedAt    *time.Time  `json:"closedAt,omitempty"`
	Archived    bool        `json:"archived"`
	Assignee    *string     `json:"assignee,omitempty"`
	Notes       []Note      `json:"notes,omitempty"`
	Files       []string    `json:"files,omitempty"`
	Related     []string    `json:"relatedEntries,omitempty"`

	Context      *EntryContext  `json:"context,omitempty"`
	AIContext    *AIContext     `json:"aiContext,omitempty"`
	ExternalRefs []ExternalRef  `json:"externalReferences,omitempty"`
}

// Note is an immutable, timestamped annotation appended to an entry.
// Notes are never mutated or reordered after creation.
type Note struct {
	ID        string       `json:"id"`
	Category  NoteCategory `json:"category"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
}

// EntryContext carries structured business and technical background.
type EntryContext struct {
	BusinessContext    string   `json:"businessContext,omitempty"`
	TechnicalContext   string   `json:"technicalContext,omitempty"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
	Dependencies       []string `json:"dependencies,omitempty"`
	Decisions          []string `json:"decisions,omitempty"`
}

// AIContext captures assistant-facing summaries and hints for an entry.
type AIContext struct {
	Summary             string    `json:"summary,omitempty"`
	KeyInsights         []string  `json:"keyInsights,omitempty"`
	OpenQuestions       []string  `json:"openQuestions,omitempty"`
	SuggestedNextSteps  []string  `json:"suggestedNextSteps,omitempty"`
	LastAIUpdate        time.Time `json:"lastAIUpdate,omitempty"`
}

// ExternalRef links an entry to a record in another system.
type ExternalRef struct {
	System string `json:"system"`
	ID     string `json:"id"`
	URL    string `json:"url,omitempty"`
}

// Project is the tenancy boundary. Name is unique and display-safe.
type Project struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Settings       map[string]string `json:"settings,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastAccessedAt time.Time         `json:"lastAccessedAt"`
}
