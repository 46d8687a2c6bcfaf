package storage

import (
	"time"

	"github.com/devloghq/devlog/internal/model"
)

// SortField names an entry attribute results can be ordered by.
type SortField string

const (
	SortByID        SortField = "id"
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByPriority  SortField = "priority"
	SortByStatus    SortField = "status"
	SortByTitle     SortField = "title"
)

// SortOrder is the direction of ordering.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// DefaultPageLimit is applied when a filter carries no explicit limit.
const DefaultPageLimit = 20

// Pagination describes the page window and ordering of a query.
type Pagination struct {
	Page   int       `json:"page"`
	Limit  int       `json:"limit"`
	SortBy SortField `json:"sortBy"`
	Order  SortOrder `json:"sortOrder"`
}

// Normalized fills pagination defaults: page 1, DefaultPageLimit,
// updatedAt descending. Applied identically by every backend.
func (p Pagination) Normalized() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.SortBy == "" {
		p.SortBy = SortByUpdatedAt
	}
	if p.Order != SortAsc && p.Order != SortDesc {
		p.Order = SortDesc
	}
	return p
}

// Filter is the backend-agnostic query descriptor. Every field is optional;
// absence means "no constraint", not "empty set".
type Filter struct {
	ProjectID  string              `json:"projectId,omitempty"`
	Statuses   []model.EntryStatus `json:"status,omitempty"`
	Types      []model.EntryType   `json:"type,omitempty"`
	Priorities []model.Priority    `json:"priority,omitempty"`
	Assignee   string              `json:"assignee,omitempty"`
	From       *time.Time          `json:"fromDate,omitempty"`
	To         *time.Time          `json:"toDate,omitempty"`
	Archived   *bool               `json:"archived,omitempty"`
	Page       Pagination          `json:"pagination"`
}

// Validate rejects malformed filter values before any I/O.
func (f Filter) Validate() error {
	for _, s := range f.Statuses {
		if !s.Valid() {
			return model.ErrValidation
		}
	}
	for _, t := range f.Types {
		if !t.Valid() {
			return model.ErrValidation
		}
	}
	for _, p := range f.Priorities {
		if !p.Valid() {
			return model.ErrValidation
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return model.ErrValidation
	}
	return nil
}

// Matches reports whether e satisfies every constraint in f.
// Used directly by backends without native query capability and by tests
// as the reference semantics for the SQL translations.
func (f Filter) Matches(e *model.Entry) bool {
	if f.ProjectID != "" && e.ProjectID != f.ProjectID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, e.Status) {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, e.Priority) {
		return false
	}
	if f.Assignee != "" {
		if e.Assignee == nil || *e.Assignee != f.Assignee {
			return false
		}
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	if f.Archived != nil && e.Archived != *f.Archived {
		return false
	}
	return true
}

func containsStatus(set []model.EntryStatus, s model.EntryStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsType(set []model.EntryType, t model.EntryType) bool {
	for _, v := range set {
		if v == t {
			return true
		}
	}
	return false
}

func containsPriority(set []model.Priority, p model.Priority) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}
