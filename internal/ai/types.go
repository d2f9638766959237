package ai

import (
	"context"
	"time"
)

// Provider represents different LLM providers
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
	ProviderLocal  Provider = "local"
	ProviderCustom Provider = "custom"
)

// Message represents a chat message
type Message struct {
	Role      string    `json:"role"`           // "system", "user", "assistant"
	Content   string    `json:"content"`        // Message content
	Name      string    `json:"name,omitempty"` // Optional speaker name
	Timestamp time.Time `json:"timestamp"`      // When message was created
}

// ChatRequest represents a request to the LLM
type ChatRequest struct {
	Messages    []Message              `json:"messages"`
	Model       string                 `json:"model,omitempty"`       // Optional model override
	Temperature float32                `json:"temperature,omitempty"` // 0.0 to 2.0
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Stream      bool                   `json:"stream,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"` // Additional context
}

// ChatResponse represents the LLM response
type ChatResponse struct {
	Content      string                 `json:"content"`
	FinishReason string                 `json:"finish_reason,omitempty"` // "stop", "length", "content_filter"
	Usage        *TokenUsage            `json:"usage,omitempty"`
	Model        string                 `json:"model,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamCallback is called for each chunk in streaming mode
type StreamCallback func(chunk string) error

// LLMClient defines the interface for LLM interactions
type LLMClient interface {
	// Chat sends messages and gets a response
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// ChatStream sends messages and streams the response
	ChatStream(ctx context.Context, req *ChatRequest, callback StreamCallback) error

	// GetProvider returns the provider type
	GetProvider() Provider

	// GetModel returns the model being used
	GetModel() string
}

// LLMConfig holds configuration for LLM clients
type LLMConfig struct {
	Provider    Provider `json:"provider"`
	APIKey      string   `json:"api_key"`
	Model       string   `json:"model"`
	BaseURL     string   `json:"base_url,omitempty"`    // For custom endpoints
	Temperature float32  `json:"temperature,omitempty"` // Default temperature
	MaxTokens   int      `json:"max_tokens,omitempty"`  // Default max tokens
	Timeout     int      `json:"timeout,omitempty"`     // Request timeout in seconds
}
