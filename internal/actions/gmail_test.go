package actions

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBuildGmailQuery(t *testing.T) {
	query := buildGmailQuery(Params{
		"sender":        "boss@example.com",
		"isUnread":      true,
		"hasAttachment": true,
		"query":         "quarterly report",
	})

	assert.Contains(t, query, "in:inbox")
	assert.Contains(t, query, "from:boss@example.com")
	assert.Contains(t, query, "is:unread")
	assert.Contains(t, query, "has:attachment")
	assert.Contains(t, query, "quarterly report")
}

func TestBuildGmailQueryDefaultsToInbox(t *testing.T) {
	assert.Equal(t, "in:inbox", buildGmailQuery(Params{}))
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "short", truncateUTF8("short", 1000))
	assert.Len(t, truncateUTF8(strings.Repeat("x", 1200), 1000), 1000)
}

func TestTruncateUTF8NeverSplitsARune(t *testing.T) {
	// Multi-byte runes positioned so the byte limit lands mid-rune.
	body := strings.Repeat("あ", 400)

	truncated := truncateUTF8(body, 1000)
	assert.True(t, utf8.ValidString(truncated))
	assert.LessOrEqual(t, len(truncated), 1000)
	assert.True(t, strings.HasPrefix(body, truncated))
}

func TestStripHTMLTags(t *testing.T) {
	assert.Equal(t, "Hello world", stripHTMLTags("<p>Hello&nbsp;<b>world</b></p>"))
}
