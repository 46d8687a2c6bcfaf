package github

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devloghq/devlog/internal/model"
)

func TestBodyMetaRoundTrip(t *testing.T) {
	owner := "casey"
	meta := issueMeta{
		Key:       "fix-the-thing-12",
		ProjectID: "platform",
		Assignee:  &owner,
		Files:     []string{"internal/storage/github/adapter.go"},
		Context:   &model.EntryContext{BusinessContext: "billing accuracy"},
	}
	body := encodeBody("Multi-line\ndescription here.", meta)

	desc, got := decodeBody(body)
	assert.Equal(t, "Multi-line\ndescription here.", desc)
	assert.Equal(t, meta.Key, got.Key)
	assert.Equal(t, meta.ProjectID, got.ProjectID)
	require.NotNil(t, got.Assignee)
	assert.Equal(t, owner, *got.Assignee)
	require.NotNil(t, got.Context)
	assert.Equal(t, "billing accuracy", got.Context.BusinessContext)
}

func TestDecodeBodyWithoutMarker(t *testing.T) {
	desc, meta := decodeBody("plain issue written by hand")
	assert.Equal(t, "plain issue written by hand", desc)
	assert.Empty(t, meta.Key)
}

func TestNoteRoundTrip(t *testing.T) {
	n := model.Note{
		ID:        "note-1",
		Category:  model.NoteSolution,
		Content:   "switched to the pooled client",
		Timestamp: time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC),
	}
	c := ghComment{Body: encodeNote(n), CreatedAt: time.Date(2025, 4, 2, 9, 1, 0, 0, time.UTC)}

	got := decodeNote(c)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, n.Category, got.Category)
	assert.Equal(t, n.Content, got.Content)
	assert.Equal(t, n.Timestamp, got.Timestamp)
}

func TestDecodeNotePlainComment(t *testing.T) {
	created := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	got := decodeNote(ghComment{Body: "drive-by comment", CreatedAt: created})
	assert.Equal(t, "drive-by comment", got.Content)
	assert.Equal(t, model.NoteProgress, got.Category, "unmarked comments default to progress")
	assert.Equal(t, created, got.Timestamp)
}

func TestEntryLabels(t *testing.T) {
	e := &model.Entry{
		ProjectID: "platform",
		Type:      model.TypeBugfix,
		Status:    model.StatusInProgress,
		Priority:  model.PriorityHigh,
		Archived:  true,
	}
	ls := entryLabels(e)
	assert.Contains(t, ls, labelManaged)
	assert.Contains(t, ls, "type:bugfix")
	assert.Contains(t, ls, "priority:high")
	assert.Contains(t, ls, "status:in-progress")
	assert.Contains(t, ls, "devlog-project:platform")
	assert.Contains(t, ls, labelArchived)

	// Terminal statuses live in issue state, not labels.
	e.Status = model.StatusDone
	for _, l := range entryLabels(e) {
		assert.NotContains(t, l, statusLabelPrefix)
	}
}

func TestStateFields(t *testing.T) {
	state, reason := stateFields(&model.Entry{Status: model.StatusDone})
	assert.Equal(t, "closed", state)
	assert.Equal(t, "completed", reason)

	state, reason = stateFields(&model.Entry{Status: model.StatusCancelled})
	assert.Equal(t, "closed", state)
	assert.Equal(t, "not_planned", reason)

	state, reason = stateFields(&model.Entry{Status: model.StatusBlocked})
	assert.Equal(t, "open", state)
	assert.Empty(t, reason)
}

func TestIssueToEntry(t *testing.T) {
	created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	updated := created.Add(48 * time.Hour)
	closed := updated.Add(time.Hour)

	is := &ghIssue{
		Number:      17,
		Title:       "Harden the retry loop",
		Body:        encodeBody("Handle jitter.", issueMeta{Key: "harden-the-retry-loop-17", ProjectID: "platform"}),
		State:       "closed",
		StateReason: "not_planned",
		Labels: []ghLabel{
			{Name: labelManaged},
			{Name: "type:refactor"},
			{Name: "priority:critical"},
		},
		CreatedAt: created,
		UpdatedAt: updated,
		ClosedAt:  &closed,
	}
	comments := []ghComment{{Body: "superseded by the new client", CreatedAt: updated}}

	e := issueToEntry(is, comments)
	assert.Equal(t, int64(17), e.ID)
	assert.Equal(t, "harden-the-retry-loop-17", e.Key)
	assert.Equal(t, "platform", e.ProjectID)
	assert.Equal(t, "Handle jitter.", e.Description)
	assert.Equal(t, model.TypeRefactor, e.Type)
	assert.Equal(t, model.PriorityCritical, e.Priority)
	assert.Equal(t, model.StatusCancelled, e.Status, "closed + not_planned maps to cancelled")
	require.NotNil(t, e.ClosedAt)
	assert.Equal(t, closed, *e.ClosedAt)
	require.Len(t, e.Notes, 1)
	assert.Equal(t, "superseded by the new client", e.Notes[0].Content)
}

func TestIssueToEntryOpenStatusFromLabel(t *testing.T) {
	is := &ghIssue{
		Number: 5,
		Title:  "Draft the migration plan",
		State:  "open",
		Labels: []ghLabel{{Name: labelManaged}, {Name: "status:in-review"}},
	}
	e := issueToEntry(is, nil)
	assert.Equal(t, model.StatusInReview, e.Status)
	assert.Nil(t, e.ClosedAt)
	assert.Equal(t, "draft-the-migration-plan-5", e.Key, "missing metadata derives the key")
}

func TestIsManagedExcludesPullRequests(t *testing.T) {
	pr := &ghIssue{Number: 9, Labels: []ghLabel{{Name: labelManaged}}, PullRequest: &struct{}{}}
	assert.False(t, isManaged(pr))

	foreign := &ghIssue{Number: 10, Labels: []ghLabel{{Name: "bug"}}}
	assert.False(t, isManaged(foreign))

	tombstoned := &ghIssue{Number: 11, Labels: []ghLabel{{Name: labelManaged}, {Name: labelDeleted}}}
	assert.True(t, isManaged(tombstoned))
	assert.True(t, isDeleted(tombstoned))
}
