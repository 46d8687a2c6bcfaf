package storage

import (
	"sort"
	"strings"

	"github.com/devloghq/devlog/internal/model"
)

// SearchResult is the uniform response shape for ranked search across all
// backends: a relevance score in [0,1], the fields that matched, and
// optional highlighted fragments. The ranking algorithm is backend-specific.
type SearchResult struct {
	Entry         model.Entry `json:"entry"`
	Relevance     float64     `json:"relevance"`
	MatchedFields []string    `json:"matchedFields,omitempty"`
	Highlights    []string    `json:"highlights,omitempty"`
}

// MinRelevance suppresses noise matches across every backend.
const MinRelevance = 0.1

// highlightRadius bounds the snippet text around a matched token.
const highlightRadius = 40

// field weights for the in-memory scorer; title dominates.
var searchFieldWeights = []struct {
	name   string
	weight float64
	text   func(*model.Entry) string
}{
	{"title", 1.0, func(e *model.Entry) string { return e.Title }},
	{"key", 0.9, func(e *model.Entry) string { return e.Key }},
	{"description", 0.6, func(e *model.Entry) string { return e.Description }},
	{"notes", 0.4, func(e *model.Entry) string {
		var b strings.Builder
		for _, n := range e.Notes {
			b.WriteString(n.Content)
			b.WriteByte('\n')
		}
		return b.String()
	}},
}

// ScoreEntry computes a relevance score for e against query using weighted
// substring token matching. Used by backends without a native ranked index
// (the issue-tracker adapter) and as the postgres post-scoring step.
func ScoreEntry(e *model.Entry, query string) SearchResult {
	res := SearchResult{Entry: *e}
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return res
	}
	var score, max float64
	for _, f := range searchFieldWeights {
		max += f.weight
		text := strings.ToLower(f.text(e))
		if text == "" {
			continue
		}
		hits := 0
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score += f.weight * float64(hits) / float64(len(tokens))
		res.MatchedFields = append(res.MatchedFields, f.name)
		if h := snippet(f.text(e), tokens[0]); h != "" {
			res.Highlights = append(res.Highlights, h)
		}
	}
	if max > 0 {
		res.Relevance = score / max
	}
	if res.Relevance > 1 {
		res.Relevance = 1
	}
	return res
}

// RankEntries scores, thresholds, and orders a candidate set. Equal scores
// fall back to updatedAt descending.
func RankEntries(entries []model.Entry, query string) []SearchResult {
	var out []SearchResult
	for i := range entries {
		r := ScoreEntry(&entries[i], query)
		if r.Relevance >= MinRelevance {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Relevance != out[j].Relevance {
			return out[i].Relevance > out[j].Relevance
		}
		return out[i].Entry.UpdatedAt.After(out[j].Entry.UpdatedAt)
	})
	return out
}

func tokenize(q string) []string {
	fields := strings.Fields(strings.ToLower(q))
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func snippet(text, token string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, token)
	if idx < 0 {
		return ""
	}
	start := idx - highlightRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(token) + highlightRadius
	if end > len(text) {
		end = len(text)
	}
	s := strings.TrimSpace(text[start:end])
	if start > 0 {
		s = "…" + s
	}
	if end < len(text) {
		s += "…"
	}
	return s
}
