package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/rowlabel/internal/model"
)

// Provider defines the interface for chat-completion providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends the system prompt and one user message and returns the reply text
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is a two-message chat request: system instructions, then user text
type CompletionRequest struct {
	System string
	User   string

	// Model overrides the configured model when set
	Model string
}

// CompletionResponse contains the provider's reply
type CompletionResponse struct {
	// Text is the raw completion text (not trimmed)
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	APIKey string

	// BaseURL for OpenAI-compatible endpoints (Moonshot, DeepSeek, Ollama, ...)
	BaseURL string

	// Timeout bounds a single request; zero means no per-request timeout
	Timeout time.Duration

	// MaxTokens for response generation (0 = provider default)
	MaxTokens int

	Temperature float32

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider: "openai",
		Timeout:  60 * time.Second,
	}
}

// ConfigFromModel converts the application config into provider config
func ConfigFromModel(cfg *model.Config) Config {
	return Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		HTTPProxy:   cfg.HTTP.HTTPProxy,
		HTTPSProxy:  cfg.HTTP.HTTPSProxy,
		NoProxy:     cfg.HTTP.NoProxy,
	}
}

// BuildSystemPrompt embeds the labeling standard verbatim into the instruction template
// and enumerates the accepted labels.
func BuildSystemPrompt(standard string, labels model.LabelSet) string {
	var b strings.Builder

	b.WriteString("You are a strict data annotator. Read the following labeling standard:\n")
	b.WriteString(standard)
	if !strings.HasSuffix(standard, "\n") {
		b.WriteString("\n")
	}

	b.WriteString("\n**Output rules**:\n")
	b.WriteString("Classify the comment according to the standard into one of the numbers below. ")
	b.WriteString("**Output exactly one digit**, with no punctuation or words:\n")
	for _, l := range promptOrder(labels) {
		fmt.Fprintf(&b, "- **%d** : %s\n", l, labelDescription(l))
	}

	return b.String()
}

// promptOrder lists useful categories first and "useless" last
func promptOrder(labels model.LabelSet) []model.Label {
	ordered := make([]model.Label, 0, len(labels))
	var trailing []model.Label
	for _, l := range labels {
		if l == model.LabelUseless {
			trailing = append(trailing, l)
			continue
		}
		ordered = append(ordered, l)
	}
	return append(ordered, trailing...)
}

func labelDescription(l model.Label) string {
	switch l {
	case model.LabelPositive:
		return "useful -> positive (explicit or implicit)"
	case model.LabelNegative:
		return "useful -> negative (explicit or implicit)"
	case model.LabelNeutral:
		return "useful -> neutral (mediation, suggestions, public concern, popular science)"
	case model.LabelUseless:
		return "useless (emotional venting, off-topic, vulgar, unrealistic)"
	default:
		return l.Meaning()
	}
}
