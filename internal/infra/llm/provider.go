// Package llm provides abstractions for generative AI providers.
package llm

import (
	"context"
	"fmt"
)

// Provider is the interface for generative AI providers.
type Provider interface {
	// Generate sends a multimodal request and returns the response,
	// which contains either generated text or tool calls.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name for logging.
	Name() string

	// Model returns the model being used.
	Model() string

	// Validate checks if the configuration is valid.
	Validate() error
}

// Part is one piece of a multimodal message: either text or inline
// media bytes. Exactly one of Text and Data should be set.
type Part struct {
	Text string

	// Inline media. MimeType is required when Data is set.
	MimeType string
	Data     []byte
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// MediaPart builds an inline media part.
func MediaPart(mimeType string, data []byte) Part {
	return Part{MimeType: mimeType, Data: data}
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// Message is one turn of a conversation.
type Message struct {
	Role  Role
	Parts []Part

	// ToolResults carries tool responses when Role is RoleTool.
	ToolResults []ToolResult
}

// Tool declares a function the model may call.
type Tool struct {
	Name        string
	Description string

	// Parameters is a JSON schema object describing the arguments.
	Parameters map[string]any
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// ToolResult is the outcome of executing a tool call, sent back to the
// model in the next turn.
type ToolResult struct {
	Name    string
	Content map[string]any
}

// Request represents a generation request.
type Request struct {
	// SystemPrompt is the system/instruction prompt.
	SystemPrompt string

	// Messages is the conversation so far, oldest first.
	Messages []Message

	// Tools the model may call during this request.
	Tools []Tool

	// MaxTokens is the maximum tokens in the response.
	MaxTokens int

	// Temperature controls randomness (0.0-1.0).
	Temperature float64

	// JSONMode requests structured JSON output. Ignored when Tools are
	// declared.
	JSONMode bool
}

// Response represents a generation response.
type Response struct {
	// Content is the generated text, empty when the model called tools.
	Content string

	// ToolCalls are the function invocations the model requested.
	ToolCalls []ToolCall

	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int

	// Model is the actual model used.
	Model string

	// FinishReason indicates why the response ended.
	FinishReason string
}

// HasToolCalls reports whether the model requested any tool calls.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Errors
var (
	ErrProviderNotConfigured = fmt.Errorf("ai provider not configured")
	ErrRateLimited           = fmt.Errorf("ai provider rate limited")
	ErrContextCanceled       = fmt.Errorf("context canceled")
	ErrInvalidResponse       = fmt.Errorf("invalid ai response")
	ErrContentBlocked        = fmt.Errorf("content blocked by safety filters")
)
