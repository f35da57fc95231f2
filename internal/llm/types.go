package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"

	ContentTypeText = "text"
)

// UnifiedChatRequest is the provider-agnostic chat request accepted by the gateway.
// Fields it does not model, such as system or thinking, are kept in Extra and
// written back out unchanged.
type UnifiedChatRequest struct {
	Model       string     `json:"model"`
	Messages    []Message  `json:"messages"`
	MaxTokens   *int       `json:"max_tokens,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	TopP        *float64   `json:"top_p,omitempty"`
	Stop        []string   `json:"stop,omitempty"`
	Stream      bool       `json:"stream,omitempty"`
	Tools       []Tool     `json:"tools,omitempty"`
	ToolChoice  any        `json:"tool_choice,omitempty"`
	Reasoning   *Reasoning `json:"reasoning,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var requestFields = []string{"model", "messages", "max_tokens", "temperature", "top_p", "stop", "stream", "tools", "tool_choice", "reasoning"}

type unifiedChatRequest UnifiedChatRequest

func (r *UnifiedChatRequest) UnmarshalJSON(data []byte) error {
	var v unifiedChatRequest
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	extra, err := extraFields(data, requestFields)
	if err != nil {
		return err
	}

	*r = UnifiedChatRequest(v)
	r.Extra = extra
	return nil
}

func (r UnifiedChatRequest) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(unifiedChatRequest(r))
	if err != nil {
		return nil, err
	}
	return withExtra(data, r.Extra)
}

// Message is one conversation entry. Content is either a string or a list of
// content parts as decoded from JSON.
type Message struct {
	Role       string     `json:"role"`
	Content    any        `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var messageFields = []string{"role", "content", "name", "tool_calls", "tool_call_id"}

type message Message

func (m *Message) UnmarshalJSON(data []byte) error {
	var v message
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	extra, err := extraFields(data, messageFields)
	if err != nil {
		return err
	}

	*m = Message(v)
	m.Extra = extra
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(message(m))
	if err != nil {
		return nil, err
	}
	return withExtra(data, m.Extra)
}

// Tool is either an OpenAI style function tool or an Anthropic style tool with
// name and input_schema at the top level. Only the fields present in the
// input are written back.
type Tool struct {
	Type        string         `json:"type,omitempty"`
	Function    *ToolFunction  `json:"function,omitempty"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var toolFields = []string{"type", "function", "name", "description", "input_schema"}

type tool Tool

func (t *Tool) UnmarshalJSON(data []byte) error {
	var v tool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	extra, err := extraFields(data, toolFields)
	if err != nil {
		return err
	}

	*t = Tool(v)
	t.Extra = extra
	return nil
}

func (t Tool) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(tool(t))
	if err != nil {
		return nil, err
	}
	return withExtra(data, t.Extra)
}

// ToolName returns the function name or the top-level name.
func (t Tool) ToolName() string {
	if t.Function != nil && t.Function.Name != "" {
		return t.Function.Name
	}
	return t.Name
}

func (t Tool) ToolDescription() string {
	if t.Function != nil && t.Function.Description != "" {
		return t.Function.Description
	}
	return t.Description
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Reasoning struct {
	Effort    string `json:"effort,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// DecodeChatRequest parses a unified chat request and checks the fields every
// stage relies on.
func DecodeChatRequest(data []byte) (*UnifiedChatRequest, error) {
	var req UnifiedChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("unmarshal chat request: %w", err)
	}

	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("chat request has no messages")
	}

	for i, msg := range req.Messages {
		if strings.TrimSpace(msg.Role) == "" {
			return nil, fmt.Errorf("message %d: role is required", i)
		}
	}

	return &req, nil
}

// Text concatenates the textual content of every message. Used for token counting.
func (r *UnifiedChatRequest) Text() string {
	var b strings.Builder

	for _, msg := range r.Messages {
		switch c := msg.Content.(type) {
		case string:
			b.WriteString(c)
			b.WriteString("\n")
		case []any:
			for _, part := range c {
				if m, ok := part.(map[string]any); ok && m["type"] == ContentTypeText {
					if text, ok := m["text"].(string); ok {
						b.WriteString(text)
						b.WriteString("\n")
					}
				}
			}
		}
	}

	for _, t := range r.Tools {
		b.WriteString(t.ToolName())
		b.WriteString(" ")
		b.WriteString(t.ToolDescription())
		b.WriteString("\n")
	}

	if raw, ok := r.Extra["system"]; ok {
		writeText(&b, raw)
	}

	return b.String()
}

// WantsReasoning reports a unified reasoning block or an Anthropic thinking block.
func (r *UnifiedChatRequest) WantsReasoning() bool {
	if r.Reasoning != nil {
		return true
	}
	raw, ok := r.Extra["thinking"]
	return ok && string(raw) != "null"
}

// writeText appends a string or the text parts of a content list.
func writeText(b *strings.Builder, raw json.RawMessage) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		b.WriteString(s)
		b.WriteString("\n")
		return
	}

	var parts []map[string]any
	if err := json.Unmarshal(raw, &parts); err != nil {
		return
	}
	for _, part := range parts {
		if text, ok := part["text"].(string); ok {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}
}
