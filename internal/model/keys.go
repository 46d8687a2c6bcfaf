package model

import (
	"fmt"
	"strings"
)

const maxSlugLen = 40

// GenerateKey derives the stable human-readable key for a new entry from its
// title and allocated id, e.g. "fix-crash-on-login-42". Appending the id
// keeps keys unique within a project without a lookup.
func GenerateKey(title string, id int64) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "entry"
	}
	return fmt.Sprintf("%s-%d", slug, id)
}
