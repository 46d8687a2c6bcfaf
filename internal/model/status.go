package model

import "time"

// Workflow bipartition used by filters and stats.
var (
	openStatuses   = []EntryStatus{StatusNew, StatusInProgress, StatusBlocked, StatusInReview, StatusTesting}
	closedStatuses = []EntryStatus{StatusDone, StatusCancelled}
)

// OpenStatuses returns the set of non-terminal workflow states.
func OpenStatuses() []EntryStatus { return append([]EntryStatus(nil), openStatuses...) }

// ClosedStatuses returns the terminal workflow states.
func ClosedStatuses() []EntryStatus { return append([]EntryStatus(nil), closedStatuses...) }

// IsClosed reports whether s is a terminal state.
func (s EntryStatus) IsClosed() bool { return s == StatusDone || s == StatusCancelled }

// Valid reports whether s is a known workflow state.
func (s EntryStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusBlocked, StatusInReview, StatusTesting, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case TypeFeature, TypeBugfix, TypeTask, TypeRefactor, TypeDocs:
		return true
	}
	return false
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ApplyStatusSideEffects enforces the closedAt invariant: entering a terminal
// state sets ClosedAt (if unset), leaving terminal states clears it. Every
// adapter calls this on save; the state machine itself is not enforced.
func ApplyStatusSideEffects(e *Entry, now time.Time) {
	if e.Status.IsClosed() {
		if e.ClosedAt == nil {
			t := now
			e.ClosedAt = &t
		}
		return
	}
	e.ClosedAt = nil
}

// ValidateEntry rejects malformed entries before any I/O.
func ValidateEntry(e *Entry) error {
	if e == nil {
		return ErrValidation
	}
	if e.Title == "" {
		return ErrValidation
	}
	if e.Type != "" && !e.Type.Valid() {
		return ErrValidation
	}
	if e.Status != "" && !e.Status.Valid() {
		return ErrValidation
	}
	if e.Priority != "" && !e.Priority.Valid() {
		return ErrValidation
	}
	return nil
}

// NormalizeEntry fills enum defaults for a new entry.
func NormalizeEntry(e *Entry) {
	if e.Type == "" {
		e.Type = TypeTask
	}
	if e.Status == "" {
		e.Status = StatusNew
	}
	if e.Priority == "" {
		e.Priority = PriorityMedium
	}
}
