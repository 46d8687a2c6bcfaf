package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKey(t *testing.T) {
	tests := []struct {
		name  string
		title string
		id    int64
		want  string
	}{
		{"simple", "Fix crash on login", 42, "fix-crash-on-login-42"},
		{"punctuation collapses", "Retry: the (flaky) build!", 7, "retry-the-flaky-build-7"},
		{"unicode dropped", "Café menü überhaupt", 3, "caf-men-berhaupt-3"},
		{"digits kept", "Upgrade to v2 API", 9, "upgrade-to-v2-api-9"},
		{"empty title falls back", "!!!", 1, "entry-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateKey(tt.title, tt.id))
		})
	}
}

func TestGenerateKeyBoundsSlug(t *testing.T) {
	long := strings.Repeat("verylongword ", 20)
	key := GenerateKey(long, 123)
	assert.True(t, strings.HasSuffix(key, "-123"))
	slug := strings.TrimSuffix(key, "-123")
	assert.LessOrEqual(t, len(slug), maxSlugLen+1)
	assert.False(t, strings.HasSuffix(slug, "-"), "slug must not end with a dash: %q", slug)
}
