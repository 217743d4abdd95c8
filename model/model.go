// Package model specifies the contract a concrete LLM provider
// transport must satisfy. No provider is implemented here; providers
// are external collaborators, specified only by the streaming chunk
// interface below.
package model

import "context"

// Message is one entry in the LLM-visible conversation.
type Message struct {
	Role             string          `json:"role"` // system | user | assistant | tool
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ToolCallID       string          `json:"tool_call_id,omitempty"`
	Name             string          `json:"name,omitempty"`
	ToolCalls        []ToolCall      `json:"tool_calls,omitempty"`
}

// ToolCall is one complete (post-accumulation) tool call requested by
// the model.
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// GenerateConfig carries per-request sampling/response-shape overrides.
type GenerateConfig struct {
	Temperature      *float64       `json:"temperature,omitempty"`
	MaxOutputTokens  *int           `json:"max_output_tokens,omitempty"`
	ResponseSchema   map[string]any `json:"response_schema,omitempty"`
	ResponseMIMEType string         `json:"response_mime_type,omitempty"`
}

// Clone returns a deep-enough copy so a processor pipeline mutating the
// clone never affects the agent's stored config.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Temperature != nil {
		t := *c.Temperature
		cp.Temperature = &t
	}
	if c.MaxOutputTokens != nil {
		n := *c.MaxOutputTokens
		cp.MaxOutputTokens = &n
	}
	if c.ResponseSchema != nil {
		cp.ResponseSchema = make(map[string]any, len(c.ResponseSchema))
		for k, v := range c.ResponseSchema {
			cp.ResponseSchema[k] = v
		}
	}
	return &cp
}

// Request is the full LLM call: system/history messages plus available
// tools and generation config.
type Request struct {
	Messages []Message
	Tools    []ToolDefinition
	Config   *GenerateConfig
}

// Usage is token/latency accounting for one model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Accumulate adds u2's counts into u.
func (u *Usage) Accumulate(u2 Usage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
}

// ToolCallFragment is a sparse, streamed fragment of a tool call.
// Providers differ in how they fragment the arguments string; fields
// are optional because a single fragment may carry only an index, only
// an id, or only an arguments substring.
type ToolCallFragment struct {
	Index     int
	ID        *string
	Name      *string
	Arguments *string // string-append stream
	Final     bool    // true on the terminal chunk for this index
}

// Chunk is one unit of a streamed model response.
type Chunk struct {
	ContentDelta    string
	ReasoningDelta  string
	ToolCallFragments []ToolCallFragment
	Usage           *Usage
}

// LLM is the minimal streaming contract a concrete provider transport
// must satisfy.
type LLM interface {
	// Stream issues req and returns a channel of Chunks terminated when
	// the model's turn is complete. Implementations must respect
	// ctx cancellation and close the channel promptly on abort.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)

	// Name identifies the model for tracing/config purposes.
	Name() string
}
