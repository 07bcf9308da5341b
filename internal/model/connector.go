package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider represents an AI provider type
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Key prefixes used to infer the provider from a caller-supplied API key.
// OpenAI keys start with "sk", Google AI Studio keys with "AI".
const (
	openAIKeyPrefix = "sk"
	googleKeyPrefix = "AI"
)

// ConnectorOptions contains options for creating a connector
type ConnectorOptions struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// Connector implements Client on top of langchaingo. The concrete
// provider is picked from the API key prefix, the way the web client
// hands keys over without naming a vendor.
type Connector struct {
	provider Provider
	llm      llms.Model
	options  ConnectorOptions
}

// NewConnector creates a connector for the provider implied by the API key.
func NewConnector(ctx context.Context, options ConnectorOptions) (*Connector, error) {
	provider, err := detectProvider(options.APIKey)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("provider", string(provider)).
		Str("model", options.Model).
		Int("max_tokens", options.MaxTokens).
		Msg("Creating model connector")

	var llm llms.Model
	switch provider {
	case ProviderOpenAI:
		llm, err = openai.New(
			openai.WithToken(options.APIKey),
			openai.WithModel(options.Model),
		)
	case ProviderGemini:
		llm, err = googleai.New(ctx,
			googleai.WithAPIKey(options.APIKey),
			googleai.WithDefaultModel(options.Model),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", provider, err)
	}

	return &Connector{
		provider: provider,
		llm:      llm,
		options:  options,
	}, nil
}

// detectProvider infers the provider from the key shape.
func detectProvider(apiKey string) (Provider, error) {
	switch {
	case apiKey == "":
		return "", fmt.Errorf("missing model API key")
	case strings.HasPrefix(apiKey, openAIKeyPrefix):
		return ProviderOpenAI, nil
	case strings.HasPrefix(apiKey, googleKeyPrefix):
		return ProviderGemini, nil
	default:
		return "", fmt.Errorf("unrecognized model API key format")
	}
}

// Provider returns the detected provider.
func (c *Connector) Provider() Provider {
	return c.provider
}

// StreamCompletion streams a completion for the conversation through fn.
func (c *Connector) StreamCompletion(ctx context.Context, system string, messages []Message, fn StreamFunc) error {
	content, err := toLangchainMessages(system, messages)
	if err != nil {
		return err
	}

	_, err = c.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(c.options.MaxTokens),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return fn(ctx, chunk)
		}),
	)
	if err != nil {
		return fmt.Errorf("completion stream failed: %w", err)
	}
	return nil
}

// Classify performs one structured-generation call. The raw model output
// is run through JSON extraction and repair before unmarshalling, since
// models routinely wrap JSON in fences or emit trailing commas.
func (c *Connector) Classify(ctx context.Context, system string, messages []Message, target interface{}) error {
	content, err := toLangchainMessages(system, messages)
	if err != nil {
		return err
	}

	resp, err := c.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(c.options.MaxTokens),
		llms.WithJSONMode(),
	)
	if err != nil {
		return fmt.Errorf("classification call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return fmt.Errorf("classification returned no choices")
	}

	return ParseStructured(resp.Choices[0].Content, target)
}

// toLangchainMessages converts wire messages to langchaingo content,
// prepending the system prompt. System entries inside the history are
// dropped: the persona is supplied per call, not persisted.
func toLangchainMessages(system string, messages []Message) ([]llms.MessageContent, error) {
	content := make([]llms.MessageContent, 0, len(messages)+1)
	if system != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}

	for _, msg := range messages {
		switch msg.Role {
		case "user":
			content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case "assistant":
			content = append(content, llms.TextParts(llms.ChatMessageTypeAI, msg.Content))
		case "system":
			continue
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}

	return content, nil
}
