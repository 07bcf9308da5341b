package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Appender persists one message row. Implemented by the conversation
// store; the sink needs nothing else from it.
type Appender interface {
	AppendMessage(ctx context.Context, threadID, role, content string) error
}

// TranscriptSink accumulates everything streamed to the client for one
// turn and persists it as a single assistant message when the turn
// ends. Append is called for every chunk in stream order, so the
// accumulator and the network stream are consistent at any point.
type TranscriptSink struct {
	appender Appender
	threadID string

	mu        sync.Mutex
	buf       strings.Builder
	finalized bool
}

// NewTranscriptSink creates a sink for one turn of the given thread.
func NewTranscriptSink(appender Appender, threadID string) *TranscriptSink {
	return &TranscriptSink{appender: appender, threadID: threadID}
}

// Append records one streamed chunk.
func (t *TranscriptSink) Append(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.WriteString(text)
}

// Content returns the accumulated transcript so far.
func (t *TranscriptSink) Content() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// Finalize persists the accumulated text exactly once. Later calls are
// no-ops, so the success path and deferred error path cannot double
// write. A persistence failure is logged and swallowed: the client has
// already received the bytes and must not see a late error.
func (t *TranscriptSink) Finalize(ctx context.Context) {
	t.mu.Lock()
	if t.finalized {
		t.mu.Unlock()
		return
	}
	t.finalized = true
	content := t.buf.String()
	t.mu.Unlock()

	if err := t.appender.AppendMessage(ctx, t.threadID, "assistant", content); err != nil {
		log.Error().Err(err).
			Str("thread_id", t.threadID).
			Int("content_bytes", len(content)).
			Msg("Failed to persist assistant transcript")
	}
}

// Finalized reports whether the sink has persisted. Intended for tests.
func (t *TranscriptSink) Finalized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalized
}
