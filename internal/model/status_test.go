package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyStatusSideEffects(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("entering done sets closedAt", func(t *testing.T) {
		e := &Entry{Status: StatusDone}
		ApplyStatusSideEffects(e, now)
		require.NotNil(t, e.ClosedAt)
		assert.Equal(t, now, *e.ClosedAt)
	})

	t.Run("entering cancelled sets closedAt", func(t *testing.T) {
		e := &Entry{Status: StatusCancelled}
		ApplyStatusSideEffects(e, now)
		require.NotNil(t, e.ClosedAt)
	})

	t.Run("already closed keeps original closedAt", func(t *testing.T) {
		earlier := now.Add(-24 * time.Hour)
		e := &Entry{Status: StatusDone, ClosedAt: &earlier}
		ApplyStatusSideEffects(e, now)
		require.NotNil(t, e.ClosedAt)
		assert.Equal(t, earlier, *e.ClosedAt)
	})

	t.Run("reopening clears closedAt", func(t *testing.T) {
		closed := now.Add(-time.Hour)
		e := &Entry{Status: StatusInProgress, ClosedAt: &closed}
		ApplyStatusSideEffects(e, now)
		assert.Nil(t, e.ClosedAt)
	})

	t.Run("open status without closedAt is untouched", func(t *testing.T) {
		e := &Entry{Status: StatusNew}
		ApplyStatusSideEffects(e, now)
		assert.Nil(t, e.ClosedAt)
	})
}

func TestStatusBipartition(t *testing.T) {
	all := map[EntryStatus]bool{}
	for _, s := range OpenStatuses() {
		assert.False(t, s.IsClosed(), "open status %s reported closed", s)
		all[s] = true
	}
	for _, s := range ClosedStatuses() {
		assert.True(t, s.IsClosed(), "closed status %s reported open", s)
		all[s] = true
	}
	assert.Len(t, all, 7, "bipartition must cover every status exactly once")
}

func TestValidateEntry(t *testing.T) {
	tests := []struct {
		name    string
		entry   *Entry
		wantErr bool
	}{
		{"nil entry", nil, true},
		{"missing title", &Entry{}, true},
		{"minimal valid", &Entry{Title: "t"}, false},
		{"unknown type", &Entry{Title: "t", Type: "epic"}, true},
		{"unknown status", &Entry{Title: "t", Status: "wip"}, true},
		{"unknown priority", &Entry{Title: "t", Priority: "urgent"}, true},
		{"fully specified", &Entry{Title: "t", Type: TypeBugfix, Status: StatusTesting, Priority: PriorityCritical}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntry(tt.entry)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeEntry(t *testing.T) {
	e := &Entry{Title: "t"}
	NormalizeEntry(e)
	assert.Equal(t, TypeTask, e.Type)
	assert.Equal(t, StatusNew, e.Status)
	assert.Equal(t, PriorityMedium, e.Priority)

	e2 := &Entry{Title: "t", Type: TypeDocs, Status: StatusBlocked, Priority: PriorityLow}
	NormalizeEntry(e2)
	assert.Equal(t, TypeDocs, e2.Type)
	assert.Equal(t, StatusBlocked, e2.Status)
	assert.Equal(t, PriorityLow, e2.Priority)
}
