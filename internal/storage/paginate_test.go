package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devloghq/devlog/internal/model"
)

func TestNewPageMeta(t *testing.T) {
	tests := []struct {
		page, limit, total            int
		wantPages                     int
		wantHasNext, wantHasPrevious  bool
	}{
		{1, 20, 0, 0, false, false},
		{1, 20, 20, 1, false, false},
		{1, 20, 21, 2, true, false},
		{2, 10, 25, 3, true, true},
		{3, 10, 25, 3, false, true},
		{99, 10, 25, 3, false, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("p%d_l%d_t%d", tt.page, tt.limit, tt.total), func(t *testing.T) {
			m := NewPageMeta(tt.page, tt.limit, tt.total)
			assert.Equal(t, tt.wantPages, m.TotalPages)
			assert.Equal(t, tt.wantHasNext, m.HasNext)
			assert.Equal(t, tt.wantHasPrevious, m.HasPrevious)
		})
	}
}

func TestPageOf(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	page2 := PageOf(items, Pagination{Page: 2, Limit: 10})
	assert.Len(t, page2.Items, 10)
	assert.Equal(t, 10, page2.Items[0])
	assert.Equal(t, 19, page2.Items[9])
	assert.Equal(t, 25, page2.Pagination.Total)

	last := PageOf(items, Pagination{Page: 3, Limit: 10})
	assert.Len(t, last.Items, 5)
	assert.False(t, last.Pagination.HasNext)

	past := PageOf(items, Pagination{Page: 9, Limit: 10})
	assert.Empty(t, past.Items)
	assert.Equal(t, 25, past.Pagination.Total)
}

func entryAt(id int64, p model.Priority, updated time.Time) model.Entry {
	return model.Entry{ID: id, Priority: p, UpdatedAt: updated}
}

func TestSortEntriesTieBreak(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	list := []model.Entry{
		entryAt(1, model.PriorityHigh, base.Add(1*time.Hour)),
		entryAt(2, model.PriorityHigh, base.Add(3*time.Hour)),
		entryAt(3, model.PriorityLow, base.Add(2*time.Hour)),
	}

	// Equal priorities fall back to updatedAt descending.
	SortEntries(list, Pagination{SortBy: SortByPriority, Order: SortDesc})
	assert.Equal(t, []int64{2, 1, 3}, ids(list))

	SortEntries(list, Pagination{SortBy: SortByPriority, Order: SortAsc})
	assert.Equal(t, []int64{3, 2, 1}, ids(list))
}

func TestSortEntriesFields(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	list := []model.Entry{
		{ID: 1, Title: "beta", Status: model.StatusDone, CreatedAt: base.Add(time.Hour), UpdatedAt: base},
		{ID: 2, Title: "Alpha", Status: model.StatusNew, CreatedAt: base, UpdatedAt: base.Add(time.Hour)},
		{ID: 3, Title: "gamma", Status: model.StatusBlocked, CreatedAt: base.Add(2 * time.Hour), UpdatedAt: base.Add(2 * time.Hour)},
	}

	SortEntries(list, Pagination{SortBy: SortByTitle, Order: SortAsc})
	assert.Equal(t, []int64{2, 1, 3}, ids(list), "title sort is case-insensitive")

	SortEntries(list, Pagination{SortBy: SortByStatus, Order: SortAsc})
	assert.Equal(t, []int64{2, 3, 1}, ids(list), "status sorts by workflow position")

	SortEntries(list, Pagination{SortBy: SortByCreatedAt, Order: SortDesc})
	assert.Equal(t, []int64{3, 1, 2}, ids(list))

	SortEntries(list, Pagination{})
	assert.Equal(t, []int64{3, 2, 1}, ids(list), "default is updatedAt descending")
}

func ids(list []model.Entry) []int64 {
	out := make([]int64, len(list))
	for i := range list {
		out[i] = list[i].ID
	}
	return out
}
