package transformer

import (
	"context"
	"fmt"

	"github.com/hicap-oss/claude-code-router/internal/llm"
)

const MaxTokenName = "maxtoken"

// MaxToken caps max_tokens for providers with a lower output limit. A request
// without max_tokens gets the cap.
type MaxToken struct {
	limit int
}

func NewMaxToken(limit int) (*MaxToken, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("max_tokens must be positive, got %d", limit)
	}
	return &MaxToken{limit: limit}, nil
}

func (t *MaxToken) Name() string {
	return MaxTokenName
}

func (t *MaxToken) TransformRequestIn(ctx context.Context, body any, provider *llm.Provider, tc *Context) (*Request, error) {
	if req, ok := body.(*llm.UnifiedChatRequest); ok {
		capped := *req
		if capped.MaxTokens == nil || *capped.MaxTokens > t.limit {
			limit := t.limit
			capped.MaxTokens = &limit
		}
		return &Request{Body: &capped}, nil
	}

	m, err := bodyMap(body)
	if err != nil {
		return nil, &StageInputError{Transformer: MaxTokenName, Reason: "expected a chat request body", Err: err}
	}

	switch v := m["max_tokens"].(type) {
	case nil:
	case float64:
		if int(v) <= t.limit {
			return &Request{Body: m}, nil
		}
	default:
		return nil, &StageInputError{Transformer: MaxTokenName, Reason: fmt.Sprintf("max_tokens has type %T, want number", v)}
	}

	m["max_tokens"] = t.limit
	return &Request{Body: m}, nil
}
