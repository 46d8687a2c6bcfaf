package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devloghq/devlog/internal/model"
)

func TestPaginationNormalized(t *testing.T) {
	def := Pagination{}.Normalized()
	assert.Equal(t, 1, def.Page)
	assert.Equal(t, DefaultPageLimit, def.Limit)
	assert.Equal(t, SortByUpdatedAt, def.SortBy)
	assert.Equal(t, SortDesc, def.Order)

	explicit := Pagination{Page: 3, Limit: 50, SortBy: SortByTitle, Order: SortAsc}.Normalized()
	assert.Equal(t, Pagination{Page: 3, Limit: 50, SortBy: SortByTitle, Order: SortAsc}, explicit)

	negative := Pagination{Page: -2, Limit: -1, Order: "sideways"}.Normalized()
	assert.Equal(t, 1, negative.Page)
	assert.Equal(t, DefaultPageLimit, negative.Limit)
	assert.Equal(t, SortDesc, negative.Order)
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{}.Validate())
	assert.NoError(t, Filter{Statuses: []model.EntryStatus{model.StatusDone}}.Validate())

	assert.ErrorIs(t, Filter{Statuses: []model.EntryStatus{"nope"}}.Validate(), model.ErrValidation)
	assert.ErrorIs(t, Filter{Types: []model.EntryType{"story"}}.Validate(), model.ErrValidation)
	assert.ErrorIs(t, Filter{Priorities: []model.Priority{"asap"}}.Validate(), model.ErrValidation)

	from := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	assert.ErrorIs(t, Filter{From: &from, To: &to}.Validate(), model.ErrValidation)
}

func TestFilterMatches(t *testing.T) {
	owner := "sam"
	created := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	e := &model.Entry{
		ProjectID: "p1",
		Status:    model.StatusInProgress,
		Type:      model.TypeFeature,
		Priority:  model.PriorityHigh,
		Assignee:  &owner,
		CreatedAt: created,
	}

	assert.True(t, Filter{}.Matches(e), "empty filter matches everything")
	assert.True(t, Filter{ProjectID: "p1"}.Matches(e))
	assert.False(t, Filter{ProjectID: "p2"}.Matches(e))

	assert.True(t, Filter{Statuses: []model.EntryStatus{model.StatusNew, model.StatusInProgress}}.Matches(e))
	assert.False(t, Filter{Statuses: []model.EntryStatus{model.StatusDone}}.Matches(e))

	assert.True(t, Filter{Assignee: "sam"}.Matches(e))
	assert.False(t, Filter{Assignee: "alex"}.Matches(e))
	unassigned := *e
	unassigned.Assignee = nil
	assert.False(t, Filter{Assignee: "sam"}.Matches(&unassigned))

	dayBefore := created.Add(-24 * time.Hour)
	dayAfter := created.Add(24 * time.Hour)
	assert.True(t, Filter{From: &dayBefore, To: &dayAfter}.Matches(e))
	assert.False(t, Filter{From: &dayAfter}.Matches(e))
	assert.False(t, Filter{To: &dayBefore}.Matches(e))

	archived := true
	assert.False(t, Filter{Archived: &archived}.Matches(e))
	notArchived := false
	assert.True(t, Filter{Archived: &notArchived}.Matches(e))

	// Constraints compose with AND
	assert.False(t, Filter{ProjectID: "p1", Assignee: "alex"}.Matches(e))
}
