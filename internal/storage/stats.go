package storage

import (
	"sort"
	"time"

	"github.com/devloghq/devlog/internal/model"
)

// Stats is the aggregate view of a filtered entry set.
type Stats struct {
	Total      int                       `json:"total"`
	Open       int                       `json:"open"`
	Closed     int                       `json:"closed"`
	ByStatus   map[model.EntryStatus]int `json:"byStatus"`
	ByType     map[model.EntryType]int   `json:"byType"`
	ByPriority map[model.Priority]int    `json:"byPriority"`
	ByAssignee map[string]int            `json:"byAssignee"`
}

// NewStats returns a Stats with all grouping maps allocated.
func NewStats() *Stats {
	return &Stats{
		ByStatus:   map[model.EntryStatus]int{},
		ByType:     map[model.EntryType]int{},
		ByPriority: map[model.Priority]int{},
		ByAssignee: map[string]int{},
	}
}

// Add folds one entry into the aggregate.
func (s *Stats) Add(e *model.Entry) {
	s.Total++
	if e.Status.IsClosed() {
		s.Closed++
	} else {
		s.Open++
	}
	s.ByStatus[e.Status]++
	s.ByType[e.Type]++
	s.ByPriority[e.Priority]++
	if e.Assignee != nil && *e.Assignee != "" {
		s.ByAssignee[*e.Assignee]++
	}
}

// ComputeStats reduces a filtered entry set in memory. Backends with native
// aggregate capability push this into SQL instead; the result shape is the
// same either way.
func ComputeStats(entries []model.Entry) *Stats {
	out := NewStats()
	for i := range entries {
		out.Add(&entries[i])
	}
	return out
}

// Granularity selects the time-series bucket width.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// DefaultTimeSeriesWindow is used when a request carries no bounds.
const DefaultTimeSeriesWindow = 30 * 24 * time.Hour

// TimeSeriesRequest bounds and buckets a created/closed trend query.
type TimeSeriesRequest struct {
	ProjectID   string      `json:"projectId,omitempty"`
	From        *time.Time  `json:"from,omitempty"`
	To          *time.Time  `json:"to,omitempty"`
	Granularity Granularity `json:"granularity,omitempty"`
}

// Resolve applies the default 30-day daily window ending now.
func (r TimeSeriesRequest) Resolve(now time.Time) (from, to time.Time, g Granularity) {
	to = now
	if r.To != nil {
		to = *r.To
	}
	from = to.Add(-DefaultTimeSeriesWindow)
	if r.From != nil {
		from = *r.From
	}
	g = r.Granularity
	if g == "" {
		g = GranularityDay
	}
	return from, to, g
}

// TimeSeriesPoint is one bucket of the three-series chart shape.
type TimeSeriesPoint struct {
	Bucket            time.Time `json:"date"`
	CumulativeCreated int       `json:"cumulativeCreated"`
	CumulativeClosed  int       `json:"cumulativeClosed"`
	Open              int       `json:"open"`
}

// TimeSeriesResult carries the buckets and the resolved date range.
type TimeSeriesResult struct {
	Points      []TimeSeriesPoint `json:"dataPoints"`
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	Granularity Granularity       `json:"granularity"`
}

// BucketStart truncates t to the start of its bucket. Weeks start on Monday.
func BucketStart(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	switch g {
	case GranularityWeek:
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		wd := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -wd)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func nextBucket(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityWeek:
		return t.AddDate(0, 0, 7)
	case GranularityMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// ComputeTimeSeries buckets creation and closure events between from and to.
// Cumulative counts include events before the window start so the first
// bucket reflects the true backlog. An unknown granularity yields an empty
// series with the correct range rather than an error.
func ComputeTimeSeries(entries []model.Entry, req TimeSeriesRequest, now time.Time) *TimeSeriesResult {
	from, to, g := req.Resolve(now)
	out := &TimeSeriesResult{From: from, To: to, Granularity: g}
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth:
	default:
		return out
	}

	sorted := make([]model.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	for b := BucketStart(from, g); !b.After(to); b = nextBucket(b, g) {
		cutoff := nextBucket(b, g)
		var created, closed int
		for i := range sorted {
			e := &sorted[i]
			if e.CreatedAt.Before(cutoff) {
				created++
			}
			if e.ClosedAt != nil && e.ClosedAt.Before(cutoff) {
				closed++
			}
		}
		out.Points = append(out.Points, TimeSeriesPoint{
			Bucket:            b,
			CumulativeCreated: created,
			CumulativeClosed:  closed,
			Open:              created - closed,
		})
	}
	return out
}
