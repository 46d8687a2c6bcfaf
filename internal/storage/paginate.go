package storage

import (
	"sort"
	"strings"

	"github.com/devloghq/devlog/internal/model"
)

// PageMeta carries pagination metadata alongside a page of items.
type PageMeta struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasPrevious bool `json:"hasPreviousPage"`
	HasNext     bool `json:"hasNextPage"`
}

// PaginatedResult is a page of items plus its metadata.
type PaginatedResult[T any] struct {
	Items      []T      `json:"items"`
	Pagination PageMeta `json:"pagination"`
}

// NewPageMeta computes pagination metadata. totalPages = ceil(total/limit),
// hasNext iff page < totalPages.
func NewPageMeta(page, limit, total int) PageMeta {
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if page < 1 {
		page = 1
	}
	totalPages := (total + limit - 1) / limit
	return PageMeta{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasPrevious: page > 1,
		HasNext:     page < totalPages,
	}
}

var priorityRank = map[model.Priority]int{
	model.PriorityLow:      0,
	model.PriorityMedium:   1,
	model.PriorityHigh:     2,
	model.PriorityCritical: 3,
}

var statusRank = map[model.EntryStatus]int{
	model.StatusNew:        0,
	model.StatusInProgress: 1,
	model.StatusBlocked:    2,
	model.StatusInReview:   3,
	model.StatusTesting:    4,
	model.StatusDone:       5,
	model.StatusCancelled:  6,
}

// SortEntries orders entries in place according to p. Equal keys fall back
// to updatedAt descending so ordering is stable across backends.
func SortEntries(list []model.Entry, p Pagination) {
	p = p.Normalized()
	less := func(a, b *model.Entry) bool {
		switch p.SortBy {
		case SortByID:
			return a.ID < b.ID
		case SortByCreatedAt:
			return a.CreatedAt.Before(b.CreatedAt)
		case SortByPriority:
			return priorityRank[a.Priority] < priorityRank[b.Priority]
		case SortByStatus:
			return statusRank[a.Status] < statusRank[b.Status]
		case SortByTitle:
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		default:
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := &list[i], &list[j]
		al, bl := less(a, b), less(b, a)
		if !al && !bl { // equal on the sort key
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if p.Order == SortAsc {
			return al
		}
		return bl
	})
}

// PageOf slices a fully filtered, sorted list into the requested page.
func PageOf[T any](items []T, p Pagination) *PaginatedResult[T] {
	p = p.Normalized()
	total := len(items)
	start := (p.Page - 1) * p.Limit
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return &PaginatedResult[T]{Items: out, Pagination: NewPageMeta(p.Page, p.Limit, total)}
}
