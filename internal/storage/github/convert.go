package github

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devloghq/devlog/internal/model"
)

// Label vocabulary. labelManaged marks issues owned by this tool so foreign
// issues in the same repository never leak into results. labelDeleted tombs
// an issue: the REST API cannot destroy issues, so Delete closes and tags
// them and every read filters them out.
const (
	labelManaged  = "devlog"
	labelArchived = "devlog-archived"
	labelDeleted  = "devlog-deleted"

	typeLabelPrefix     = "type:"
	priorityLabelPrefix = "priority:"
	statusLabelPrefix   = "status:"
	projectLabelPrefix  = "devlog-project:"
)

const (
	metaOpen  = "<!-- devlog:meta "
	metaClose = " -->"
	noteOpen  = "<!-- devlog:note "
	noteClose = " -->"
)

// ghIssue is the wire shape of the fields this adapter reads.
type ghIssue struct {
	Number      int64      `json:"number"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"`
	StateReason string     `json:"state_reason,omitempty"`
	Labels      []ghLabel  `json:"labels,omitempty"`
	Comments    int        `json:"comments"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	PullRequest *struct{}  `json:"pull_request,omitempty"`
}

type ghLabel struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type ghComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// issueMeta rides in an HTML comment at the end of the issue body and carries
// the structured fields that have no native issue-tracker representation.
type issueMeta struct {
	Key          string              `json:"key,omitempty"`
	ProjectID    string              `json:"projectId,omitempty"`
	Assignee     *string             `json:"assignee,omitempty"`
	Files        []string            `json:"files,omitempty"`
	Related      []string            `json:"relatedEntries,omitempty"`
	Context      *model.EntryContext `json:"context,omitempty"`
	AIContext    *model.AIContext    `json:"aiContext,omitempty"`
	ExternalRefs []model.ExternalRef `json:"externalReferences,omitempty"`
}

// noteMeta preserves note identity and category across the comment round trip.
type noteMeta struct {
	ID        string             `json:"id"`
	Category  model.NoteCategory `json:"category"`
	Timestamp time.Time          `json:"timestamp"`
}

func encodeBody(description string, m issueMeta) string {
	b, err := json.Marshal(m)
	if err != nil {
		return description
	}
	return strings.TrimRight(description, "\n") + "\n\n" + metaOpen + string(b) + metaClose
}

func decodeBody(body string) (string, issueMeta) {
	var m issueMeta
	start := strings.LastIndex(body, metaOpen)
	if start < 0 {
		return body, m
	}
	end := strings.Index(body[start:], metaClose)
	if end < 0 {
		return body, m
	}
	raw := body[start+len(metaOpen) : start+end]
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return body, m
	}
	return strings.TrimRight(body[:start], "\n"), m
}

func encodeNote(n model.Note) string {
	b, err := json.Marshal(noteMeta{ID: n.ID, Category: n.Category, Timestamp: n.Timestamp})
	if err != nil {
		return n.Content
	}
	return strings.TrimRight(n.Content, "\n") + "\n\n" + noteOpen + string(b) + noteClose
}

func decodeNote(c ghComment) model.Note {
	n := model.Note{Content: c.Body, Category: model.NoteProgress, Timestamp: c.CreatedAt.UTC()}
	start := strings.LastIndex(c.Body, noteOpen)
	if start < 0 {
		return n
	}
	end := strings.Index(c.Body[start:], noteClose)
	if end < 0 {
		return n
	}
	var m noteMeta
	if err := json.Unmarshal([]byte(c.Body[start+len(noteOpen):start+end]), &m); err != nil {
		return n
	}
	n.Content = strings.TrimRight(c.Body[:start], "\n")
	if m.ID != "" {
		n.ID = m.ID
	}
	if m.Category != "" {
		n.Category = m.Category
	}
	if !m.Timestamp.IsZero() {
		n.Timestamp = m.Timestamp.UTC()
	}
	return n
}

// entryLabels derives the label set the issue must carry. The workflow status
// label is only present on open issues; closed state plus state_reason encode
// the terminal statuses.
func entryLabels(e *model.Entry) []string {
	ls := []string{labelManaged,
		typeLabelPrefix + string(e.Type),
		priorityLabelPrefix + string(e.Priority)}
	if !e.Status.IsClosed() {
		ls = append(ls, statusLabelPrefix+string(e.Status))
	}
	if e.ProjectID != "" {
		ls = append(ls, projectLabelPrefix+e.ProjectID)
	}
	if e.Archived {
		ls = append(ls, labelArchived)
	}
	return ls
}

func stateFields(e *model.Entry) (state, reason string) {
	switch e.Status {
	case model.StatusDone:
		return "closed", "completed"
	case model.StatusCancelled:
		return "closed", "not_planned"
	default:
		return "open", ""
	}
}

func isDeleted(is *ghIssue) bool {
	for _, l := range is.Labels {
		if l.Name == labelDeleted {
			return true
		}
	}
	return false
}

func isManaged(is *ghIssue) bool {
	if is.PullRequest != nil {
		return false
	}
	for _, l := range is.Labels {
		if l.Name == labelManaged {
			return true
		}
	}
	return false
}

// issueToEntry maps one issue and its comments back to an entry. The body
// metadata block wins over labels; labels are the fallback when the block is
// missing or was edited away in the GitHub UI.
func issueToEntry(is *ghIssue, comments []ghComment) *model.Entry {
	desc, meta := decodeBody(is.Body)
	e := &model.Entry{
		ID:           is.Number,
		Key:          meta.Key,
		ProjectID:    meta.ProjectID,
		Title:        is.Title,
		Description:  desc,
		CreatedAt:    is.CreatedAt.UTC(),
		UpdatedAt:    is.UpdatedAt.UTC(),
		Assignee:     meta.Assignee,
		Files:        meta.Files,
		Related:      meta.Related,
		Context:      meta.Context,
		AIContext:    meta.AIContext,
		ExternalRefs: meta.ExternalRefs,
	}

	for _, l := range is.Labels {
		switch {
		case strings.HasPrefix(l.Name, typeLabelPrefix):
			e.Type = model.EntryType(strings.TrimPrefix(l.Name, typeLabelPrefix))
		case strings.HasPrefix(l.Name, priorityLabelPrefix):
			e.Priority = model.Priority(strings.TrimPrefix(l.Name, priorityLabelPrefix))
		case strings.HasPrefix(l.Name, statusLabelPrefix):
			e.Status = model.EntryStatus(strings.TrimPrefix(l.Name, statusLabelPrefix))
		case strings.HasPrefix(l.Name, projectLabelPrefix) && e.ProjectID == "":
			e.ProjectID = strings.TrimPrefix(l.Name, projectLabelPrefix)
		case l.Name == labelArchived:
			e.Archived = true
		}
	}

	if is.State == "closed" {
		if is.StateReason == "not_planned" {
			e.Status = model.StatusCancelled
		} else {
			e.Status = model.StatusDone
		}
		if is.ClosedAt != nil {
			t := is.ClosedAt.UTC()
			e.ClosedAt = &t
		} else {
			t := e.UpdatedAt
			e.ClosedAt = &t
		}
	}
	model.NormalizeEntry(e)
	if e.Key == "" {
		e.Key = model.GenerateKey(e.Title, e.ID)
	}

	for _, c := range comments {
		e.Notes = append(e.Notes, decodeNote(c))
	}
	return e
}

func (s *Store) normalizeNote(n *model.Note, now time.Time) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Category == "" {
		n.Category = model.NoteProgress
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = now
	}
}

func entryMeta(e *model.Entry) issueMeta {
	return issueMeta{
		Key:          e.Key,
		ProjectID:    e.ProjectID,
		Assignee:     e.Assignee,
		Files:        e.Files,
		Related:      e.Related,
		Context:      e.Context,
		AIContext:    e.AIContext,
		ExternalRefs: e.ExternalRefs,
	}
}
