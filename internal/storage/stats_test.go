package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devloghq/devlog/internal/model"
)

func TestComputeStats(t *testing.T) {
	owner := "kim"
	entries := []model.Entry{
		{Status: model.StatusNew, Type: model.TypeFeature, Priority: model.PriorityHigh, Assignee: &owner},
		{Status: model.StatusInProgress, Type: model.TypeFeature, Priority: model.PriorityLow},
		{Status: model.StatusDone, Type: model.TypeBugfix, Priority: model.PriorityHigh, Assignee: &owner},
		{Status: model.StatusCancelled, Type: model.TypeTask, Priority: model.PriorityMedium},
	}

	s := ComputeStats(entries)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Open)
	assert.Equal(t, 2, s.Closed)
	assert.Equal(t, 2, s.ByType[model.TypeFeature])
	assert.Equal(t, 2, s.ByPriority[model.PriorityHigh])
	assert.Equal(t, 1, s.ByStatus[model.StatusDone])
	assert.Equal(t, 2, s.ByAssignee["kim"])
	assert.Empty(t, s.ByAssignee[""], "unassigned entries never land in the assignee map")

	empty := ComputeStats(nil)
	assert.Equal(t, 0, empty.Total)
	assert.NotNil(t, empty.ByStatus, "maps are allocated even for empty input")
}

func TestTimeSeriesResolveDefaults(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	from, to, g := TimeSeriesRequest{}.Resolve(now)
	assert.Equal(t, now, to)
	assert.Equal(t, now.Add(-DefaultTimeSeriesWindow), from)
	assert.Equal(t, GranularityDay, g)
}

func TestBucketStart(t *testing.T) {
	// 2025-06-11 is a Wednesday; its week starts Monday 2025-06-09.
	wed := time.Date(2025, 6, 11, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC), BucketStart(wed, GranularityDay))
	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), BucketStart(wed, GranularityWeek))
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), BucketStart(wed, GranularityMonth))

	// A Monday is its own week start.
	mon := time.Date(2025, 6, 9, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), BucketStart(mon, GranularityWeek))
}

func TestComputeTimeSeries(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	from := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	closedDay2 := time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)

	entries := []model.Entry{
		// Created well before the window: counts toward the cumulative baseline.
		{CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
		{CreatedAt: time.Date(2025, 6, 8, 10, 0, 0, 0, time.UTC)},
		{CreatedAt: time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC), ClosedAt: &closedDay2},
	}

	res := ComputeTimeSeries(entries, TimeSeriesRequest{From: &from, To: &now, Granularity: GranularityDay}, now)
	require.Len(t, res.Points, 3)

	day1 := res.Points[0]
	assert.Equal(t, 2, day1.CumulativeCreated, "pre-window entry counts in the baseline")
	assert.Equal(t, 0, day1.CumulativeClosed)
	assert.Equal(t, 2, day1.Open)

	day2 := res.Points[1]
	assert.Equal(t, 3, day2.CumulativeCreated)
	assert.Equal(t, 1, day2.CumulativeClosed)
	assert.Equal(t, 2, day2.Open)

	day3 := res.Points[2]
	assert.Equal(t, 3, day3.CumulativeCreated)
	assert.Equal(t, 1, day3.CumulativeClosed)
}

func TestComputeTimeSeriesUnknownGranularity(t *testing.T) {
	now := time.Now().UTC()
	res := ComputeTimeSeries([]model.Entry{{CreatedAt: now}}, TimeSeriesRequest{Granularity: "fortnight"}, now)
	assert.Empty(t, res.Points, "unknown granularity yields an empty series, not an error")
	assert.Equal(t, Granularity("fortnight"), res.Granularity)
	assert.False(t, res.From.IsZero())
}
