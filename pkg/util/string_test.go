package util

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		expected string
	}{
		{"simple title", "Hello World", "hello-world"},
		{"special characters", "Hello, World! (2026)", "hello-world-2026"},
		{"korean preserved", "안녕하세요 세계", "안녕하세요-세계"},
		{"mixed korean english", "Go 러닝 가이드", "go-러닝-가이드"},
		{"leading trailing punctuation", "--Hello--", "hello"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GenerateSlug(tt.title))
		})
	}
}

func TestGenerateSlug_LimitsLength(t *testing.T) {
	slug := GenerateSlug(strings.Repeat("a", 80))
	assert.LessOrEqual(t, len(slug), 50)
}

func TestDatedSlug(t *testing.T) {
	date := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01-spring-launch", DatedSlug("Spring Launch", date))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", TruncateRunes("short", 10))
	assert.Equal(t, "hell…", TruncateRunes("hello world", 5))
	assert.Equal(t, "가나다…", TruncateRunes("가나다라마", 4))
	assert.Equal(t, "h", TruncateRunes("hello", 1))
	assert.Equal(t, "exact", TruncateRunes("exact", 5))
}
