package aierrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyQuotaIsTerminal(t *testing.T) {
	details := Classify(errors.New("googleapi: quota exceeded for quota metric"))

	assert.False(t, details.IsRetryable)
	assert.Equal(t, "You have reached your API quota limit for today.", details.Message)
}

func TestClassifyResourceExhaustedStatus(t *testing.T) {
	err := &APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "try later"}
	details := Classify(err)

	assert.False(t, details.IsRetryable)
	assert.Contains(t, details.Message, "quota")
}

func TestClassifyPlain429IsRetryable(t *testing.T) {
	err := &APIError{Code: 429, Message: "too many requests"}
	details := Classify(err)

	assert.True(t, details.IsRetryable)
	assert.Contains(t, details.Message, "high demand")
}

func TestClassifyStructured400IsModelAvailability(t *testing.T) {
	// A bare 400 means the provider rejected the generation request;
	// switching models is the remediation, same as model-not-found.
	details := Classify(&APIError{Code: 400, Message: "something went wrong"})

	assert.False(t, details.IsRetryable)
	assert.Contains(t, details.Message, "unavailable")
	assert.Contains(t, details.UserAction, "different model")
}

func TestClassifyStructured400OutranksTimeoutWording(t *testing.T) {
	// The 400 category is resolved before the timeout check, so timeout
	// wording inside a 400 cannot flip it retryable.
	details := Classify(&APIError{Code: 400, Message: "upstream request timed out"})

	assert.False(t, details.IsRetryable)
	assert.Contains(t, details.Message, "unavailable")
}

func TestClassifyWrappedAPIError(t *testing.T) {
	err := fmt.Errorf("call failed: %w", &APIError{Code: 401, Message: "bad key"})
	details := Classify(err)

	assert.False(t, details.IsRetryable)
	assert.Contains(t, details.Message, "authentication")
}

func TestClassifyOrderedMatching(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		contains  string
	}{
		{"rate limit", errors.New("rate limit reached for requests"), true, "rate limit"},
		{"auth", errors.New("incorrect api key provided"), false, "authentication"},
		{"model missing", errors.New("model not found: gpt-99"), false, "unavailable"},
		{"timeout", errors.New("context deadline exceeded"), true, "too long"},
		{"content policy", errors.New("response blocked by safety settings"), false, "content policy"},
		{"network", errors.New("dial tcp: no such host"), true, "network connection"},
		{"server", errors.New("502 bad gateway"), true, "technical difficulties"},
		{"bad request", errors.New("invalid request: missing field"), false, "format was invalid"},
		{"unknown", errors.New("something odd happened"), true, "unexpected issue"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			details := Classify(tc.err)
			assert.Equal(t, tc.retryable, details.IsRetryable)
			assert.Contains(t, details.Message, tc.contains)
		})
	}
}

func TestClassifyNeverFails(t *testing.T) {
	details := Classify(nil)
	assert.NotEmpty(t, details.Message)
	assert.True(t, details.IsRetryable)
}

func TestFormatRetryableFooter(t *testing.T) {
	out := Format(Details{Message: "The request took too long to process.", IsRetryable: true, UserAction: "Try again."})

	assert.Contains(t, out, "**The request took too long to process.**")
	assert.Contains(t, out, "Try again.")
	assert.Contains(t, out, "💡 **Tip:**")
	assert.NotContains(t, out, "⚠️")
}

func TestFormatQuotaGetsQuickSolutions(t *testing.T) {
	out := Format(Classify(errors.New("quota exceeded")))

	assert.Contains(t, out, "⚠️ **Note:**")
	assert.Contains(t, out, "🔧 **Quick Solutions:**")
	assert.Contains(t, out, "quota resets daily")
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("quota exceeded")))
	assert.True(t, IsRetryable(errors.New("connection refused")))
}
