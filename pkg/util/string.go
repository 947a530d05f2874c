package util

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9\p{Han}\p{Hangul}]+`)

// GenerateSlug creates a URL-friendly slug from title
func GenerateSlug(title string) string {
	// Convert to lowercase
	slug := strings.ToLower(title)

	// Replace spaces and special characters with hyphens, keeping CJK
	slug = slugPattern.ReplaceAllString(slug, "-")

	// Remove leading/trailing hyphens
	slug = strings.Trim(slug, "-")

	// Limit length
	if len(slug) > 50 {
		slug = slug[:50]
		slug = strings.Trim(slug, "-")
	}

	return slug
}

// DatedSlug creates a date-prefixed slug, the shape blog permalinks use
func DatedSlug(title string, date time.Time) string {
	return fmt.Sprintf("%s-%s", date.Format("2006-01-02"), GenerateSlug(title))
}

// TruncateRunes shortens s to at most n runes, appending an ellipsis when
// anything was cut
func TruncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}
