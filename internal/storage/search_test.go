package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devloghq/devlog/internal/model"
)

func TestScoreEntryFieldWeighting(t *testing.T) {
	titleHit := model.Entry{Title: "Tune the parser"}
	noteHit := model.Entry{
		Title: "Something else",
		Notes: []model.Note{{Content: "the parser chokes on tabs"}},
	}

	rt := ScoreEntry(&titleHit, "parser")
	rn := ScoreEntry(&noteHit, "parser")
	assert.Greater(t, rt.Relevance, rn.Relevance, "title matches outweigh note matches")
	assert.Contains(t, rt.MatchedFields, "title")
	assert.Contains(t, rn.MatchedFields, "notes")

	miss := ScoreEntry(&titleHit, "kubernetes")
	assert.Zero(t, miss.Relevance)
	assert.Empty(t, miss.MatchedFields)

	blank := ScoreEntry(&titleHit, "   ")
	assert.Zero(t, blank.Relevance)
}

func TestScoreEntryMultiToken(t *testing.T) {
	e := model.Entry{Title: "Fix timeout in upload path", Description: "the retry loop never fires"}

	full := ScoreEntry(&e, "timeout upload")
	partial := ScoreEntry(&e, "timeout kubernetes")
	assert.Greater(t, full.Relevance, partial.Relevance, "more matched tokens score higher")
	assert.LessOrEqual(t, full.Relevance, 1.0)
}

func TestRankEntries(t *testing.T) {
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.AddDate(0, 3, 0)
	entries := []model.Entry{
		{ID: 1, Title: "irrelevant housekeeping", UpdatedAt: recent},
		{ID: 2, Title: "indexer rebuild", UpdatedAt: old},
		{ID: 3, Title: "indexer rebuild", UpdatedAt: recent},
	}

	ranked := RankEntries(entries, "indexer")
	require.Len(t, ranked, 2, "non-matches fall below the relevance floor")
	assert.Equal(t, int64(3), ranked[0].Entry.ID, "equal scores break ties on updatedAt desc")
	assert.Equal(t, int64(2), ranked[1].Entry.ID)
	for _, r := range ranked {
		assert.GreaterOrEqual(t, r.Relevance, MinRelevance)
	}
}

func TestSnippet(t *testing.T) {
	text := strings.Repeat("x", 100) + " needle " + strings.Repeat("y", 100)
	s := snippet(text, "needle")
	assert.Contains(t, s, "needle")
	assert.True(t, strings.HasPrefix(s, "…"))
	assert.True(t, strings.HasSuffix(s, "…"))
	assert.LessOrEqual(t, len(s), 2*highlightRadius+len("needle")+2*len("…")+2)

	assert.Equal(t, "short needle text", snippet("short needle text", "needle"))
	assert.Empty(t, snippet("nothing here", "needle"))
}
