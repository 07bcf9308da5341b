package aierrors

import (
	"errors"
	"fmt"
	"strings"
)

// Details describes a model or action failure in user-facing terms.
type Details struct {
	Message     string `json:"message"`
	IsRetryable bool   `json:"is_retryable"`
	UserAction  string `json:"user_action,omitempty"`
}

// APIError carries the structured fields some providers attach to failures.
// Code is the HTTP status code when known; Status is the provider status
// string (e.g. "RESOURCE_EXHAUSTED").
type APIError struct {
	Code    int
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// Classify maps an arbitrary failure into a small remediation taxonomy.
// The checks run in a fixed order and the last case always matches, so
// Classify never fails. The match order mirrors severity: quota first,
// then auth, model availability, timeouts, content policy, network and
// server-side trouble, with a generic retryable fallback.
func Classify(err error) Details {
	if err == nil {
		return genericDetails()
	}

	errStr := strings.ToLower(err.Error())

	var apiErr *APIError
	code := 0
	status := ""
	if errors.As(err, &apiErr) {
		code = apiErr.Code
		status = apiErr.Status
	}

	// Quota exhaustion is terminal for the day, not worth retrying.
	if status == "RESOURCE_EXHAUSTED" || code == 429 ||
		contains(errStr, "quota") || contains(errStr, "resource_exhausted") {
		if contains(errStr, "quota") || contains(errStr, "exceeded") || status == "RESOURCE_EXHAUSTED" {
			return Details{
				Message:     "You have reached your API quota limit for today.",
				IsRetryable: false,
				UserAction:  "Please check your billing plan or try again tomorrow. You can also switch to a different AI model if available.",
			}
		}
		// Plain 429 without quota wording is transient overload.
		return Details{
			Message:     "The AI service is currently experiencing high demand.",
			IsRetryable: true,
			UserAction:  "Please wait a moment and try again.",
		}
	}

	if contains(errStr, "rate limit") {
		return Details{
			Message:     "You have reached your API rate limit.",
			IsRetryable: true,
			UserAction:  "Please wait a moment and try again, or check your API usage limits.",
		}
	}

	if code == 401 || contains(errStr, "invalid key") || contains(errStr, "authentication") ||
		contains(errStr, "unauthorized") || contains(errStr, "api key") {
		return Details{
			Message:     "There was an issue with the AI service authentication.",
			IsRetryable: false,
			UserAction:  "Please check your API key settings and try again.",
		}
	}

	// A structured 400 lands here too: providers report unknown models and
	// malformed generation requests as 400, and switching models is the
	// remediation for both.
	if code == 400 || contains(errStr, "model not found") || contains(errStr, "invalid model") ||
		contains(errStr, "not available") {
		return Details{
			Message:     "The selected AI model is currently unavailable.",
			IsRetryable: false,
			UserAction:  "Please try a different model or contact support.",
		}
	}

	if contains(errStr, "timeout") || contains(errStr, "timed out") || contains(errStr, "deadline") {
		return Details{
			Message:     "The request took too long to process.",
			IsRetryable: true,
			UserAction:  "Please try again with a shorter message or wait a moment.",
		}
	}

	if contains(errStr, "content policy") || contains(errStr, "safety") || contains(errStr, "blocked") {
		return Details{
			Message:     "Your request was blocked due to content policy restrictions.",
			IsRetryable: false,
			UserAction:  "Please rephrase your request and try again.",
		}
	}

	if contains(errStr, "network") || contains(errStr, "connection") ||
		contains(errStr, "no such host") || contains(errStr, "broken pipe") {
		return Details{
			Message:     "There was a network connection issue.",
			IsRetryable: true,
			UserAction:  "Please check your internet connection and try again.",
		}
	}

	if code >= 500 || contains(errStr, "internal server error") || contains(errStr, "server error") ||
		contains(errStr, "service unavailable") || contains(errStr, "bad gateway") {
		return Details{
			Message:     "The AI service is experiencing technical difficulties.",
			IsRetryable: true,
			UserAction:  "Please wait a moment and try again. This is a server-side issue.",
		}
	}

	if contains(errStr, "bad request") || contains(errStr, "invalid request") {
		return Details{
			Message:     "The request format was invalid.",
			IsRetryable: false,
			UserAction:  "Please check your message and try again with a different approach.",
		}
	}

	return genericDetails()
}

func genericDetails() Details {
	return Details{
		Message:     "I encountered an unexpected issue while processing your request.",
		IsRetryable: true,
		UserAction:  "Please try again. If the problem persists, contact support.",
	}
}

// Format renders classified details as the markdown block that is streamed
// to the user and appended to the transcript.
func Format(d Details) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**%s**", d.Message))

	if d.UserAction != "" {
		sb.WriteString("\n\n")
		sb.WriteString(d.UserAction)
	}

	if d.IsRetryable {
		sb.WriteString("\n\n💡 **Tip:** This issue may resolve itself, so please try again.")
	} else {
		sb.WriteString("\n\n⚠️ **Note:** This issue requires action on your part to resolve.")
	}

	// Quota failures get an expanded checklist of ways out.
	if contains(strings.ToLower(d.Message), "quota") || contains(strings.ToLower(d.Message), "limit") {
		sb.WriteString("\n\n🔧 **Quick Solutions:**\n" +
			"1. Switch to a different AI model\n" +
			"2. Wait until tomorrow (quota resets daily)\n" +
			"3. Check your API key billing status\n" +
			"4. Consider upgrading your plan")
	}

	return sb.String()
}

// IsRetryable reports whether the failure is worth a retry at all.
func IsRetryable(err error) bool {
	return Classify(err).IsRetryable
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
