package model

import "context"

// Message is one conversation entry as submitted by the client.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamFunc receives completion chunks in the order the provider
// produces them. Returning an error aborts the stream.
type StreamFunc func(ctx context.Context, chunk []byte) error

// Client is the language-model collaborator consumed by the chat core.
// Classify performs one structured-generation call and unmarshals the
// model's JSON output into target. StreamCompletion streams a free-form
// completion through fn.
type Client interface {
	Classify(ctx context.Context, system string, messages []Message, target interface{}) error
	StreamCompletion(ctx context.Context, system string, messages []Message, fn StreamFunc) error
}
