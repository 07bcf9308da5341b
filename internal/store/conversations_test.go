package store

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTitleFromMessageShortMessageIsKept(t *testing.T) {
	assert.Equal(t, "Schedule a meeting", titleFromMessage("Schedule a meeting"))
}

func TestTitleFromMessageTruncatesLongMessage(t *testing.T) {
	long := strings.Repeat("a", 80)

	title := titleFromMessage(long)
	assert.Len(t, title, 50)
}

func TestTitleFromMessageNeverSplitsARune(t *testing.T) {
	// 48 ASCII bytes followed by a 3-byte rune straddling the cut.
	message := strings.Repeat("a", 48) + "日本語のタイトル"

	title := titleFromMessage(message)
	assert.True(t, utf8.ValidString(title))
	assert.LessOrEqual(t, len(title), 50)
	assert.True(t, strings.HasPrefix(message, title))
}
