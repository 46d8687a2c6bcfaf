// Package storage defines the provider contract every backend implements,
// plus the backend-agnostic filter, pagination, and aggregation primitives.
package storage

import (
	"context"

	"github.com/devloghq/devlog/internal/events"
	"github.com/devloghq/devlog/internal/model"
)

// Provider is the single storage contract. Implementations live under
// internal/storage/<driver>/ (sqlite, postgres, github) and must expose
// identical observable behavior for every operation.
type Provider interface {
	// Initialize establishes the connection or opens the backing file.
	// It is idempotent and returns model.ErrConnection (wrapped) when the
	// target is unreachable or misconfigured.
	Initialize(ctx context.Context) error

	Entries() Entries
	Projects() Projects
	Chat() Chat

	// Subscribe registers a callback for change events and returns an
	// idempotent unsubscribe function. The first subscriber starts the
	// backend watch strategy; the last unsubscribe stops it.
	Subscribe(cb events.Callback) func()

	// SupportsWatch reports whether this backend can observe changes made
	// by other processes. Callers that need guaranteed notification must
	// check this rather than assume every backend delivers live updates.
	SupportsWatch() bool

	// Cleanup releases connections, watchers and file handles.
	// Safe to call multiple times.
	Cleanup() error
}

// Entries exposes work-log record operations.
type Entries interface {
	Exists(ctx context.Context, id int64) (bool, error)
	// Get returns (nil, nil) when no entry has the given id.
	Get(ctx context.Context, id int64) (*model.Entry, error)
	// Save upserts: an absent id allocates one and creates, a present id
	// updates. The closedAt invariant is applied on every save.
	Save(ctx context.Context, e *model.Entry) (*model.Entry, error)
	Delete(ctx context.Context, id int64) error
	// AddNote appends an immutable note and returns the updated entry.
	AddNote(ctx context.Context, id int64, n model.Note) (*model.Entry, error)

	List(ctx context.Context, f Filter) (*PaginatedResult[model.Entry], error)
	Search(ctx context.Context, query string, f Filter) (*PaginatedResult[SearchResult], error)

	Stats(ctx context.Context, f Filter) (*Stats, error)
	TimeSeries(ctx context.Context, req TimeSeriesRequest) (*TimeSeriesResult, error)

	// NextID allocates the next monotonic entry id. Backends without
	// application-controlled numbering return model.ErrNotImplemented.
	NextID(ctx context.Context) (int64, error)
}

// Projects exposes tenancy-boundary operations.
type Projects interface {
	Create(ctx context.Context, p *model.Project) (*model.Project, error)
	// Get touches lastAccessedAt on success and returns (nil, nil) when absent.
	Get(ctx context.Context, id string) (*model.Project, error)
	GetByName(ctx context.Context, name string) (*model.Project, error)
	List(ctx context.Context) ([]*model.Project, error)
	Delete(ctx context.Context, id string) error
}

// Chat exposes the session/message/link sibling of the entry operations.
// Backends that have not implemented chat storage fail fast with
// model.ErrNotImplemented, never silently no-op.
type Chat interface {
	SaveSession(ctx context.Context, s *model.ChatSession) (*model.ChatSession, error)
	GetSession(ctx context.Context, id string) (*model.ChatSession, error)
	ListSessions(ctx context.Context, projectID string) ([]*model.ChatSession, error)
	DeleteSession(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, m *model.ChatMessage) (*model.ChatMessage, error)
	ListMessages(ctx context.Context, sessionID string) ([]*model.ChatMessage, error)
	SearchMessages(ctx context.Context, projectID, query string) ([]*model.ChatMessage, error)

	LinkEntry(ctx context.Context, l *model.ChatEntryLink) error
	Links(ctx context.Context, sessionID string) ([]*model.ChatEntryLink, error)
	ConfirmLink(ctx context.Context, sessionID string, entryID int64) error
	UnlinkEntry(ctx context.Context, sessionID string, entryID int64) error
}
