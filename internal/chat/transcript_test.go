package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptSinkAccumulatesInOrder(t *testing.T) {
	appender := &fakeAppender{}
	sink := NewTranscriptSink(appender, "thread-9")

	sink.Append("one ")
	sink.Append("two ")
	sink.Append("three")

	assert.Equal(t, "one two three", sink.Content())
	assert.False(t, sink.Finalized())
}

func TestTranscriptSinkFinalizeIsIdempotent(t *testing.T) {
	appender := &fakeAppender{}
	sink := NewTranscriptSink(appender, "thread-9")
	sink.Append("hello")

	sink.Finalize(context.Background())
	sink.Finalize(context.Background())
	sink.Finalize(context.Background())

	// Exactly one assistant row regardless of how many finalize paths ran.
	require.Len(t, appender.messages, 1)
	assert.Equal(t, "thread-9", appender.messages[0].ThreadID)
	assert.Equal(t, "assistant", appender.messages[0].Role)
	assert.Equal(t, "hello", appender.messages[0].Content)
	assert.True(t, sink.Finalized())
}

func TestTranscriptSinkPersistsEmptyTurn(t *testing.T) {
	appender := &fakeAppender{}
	sink := NewTranscriptSink(appender, "thread-9")

	sink.Finalize(context.Background())

	require.Len(t, appender.messages, 1)
	assert.Equal(t, "", appender.messages[0].Content)
}

func TestTranscriptSinkSwallowsPersistenceFailure(t *testing.T) {
	appender := &fakeAppender{err: errors.New("db down")}
	sink := NewTranscriptSink(appender, "thread-9")
	sink.Append("hello")

	// Must not panic or retry; the failure is logged only.
	sink.Finalize(context.Background())

	assert.True(t, sink.Finalized())
	assert.Empty(t, appender.messages)
}
