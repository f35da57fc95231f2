package transformer

import (
	"context"

	"github.com/hicap-oss/claude-code-router/internal/llm"
)

const CleanCacheName = "cleancache"

// CleanCache strips cache_control markers, which most non-Anthropic
// endpoints reject.
type CleanCache struct{}

func NewCleanCache() *CleanCache {
	return &CleanCache{}
}

func (t *CleanCache) Name() string {
	return CleanCacheName
}

func (t *CleanCache) TransformRequestIn(ctx context.Context, body any, provider *llm.Provider, tc *Context) (*Request, error) {
	m, err := bodyMap(body)
	if err != nil {
		return nil, &StageInputError{Transformer: CleanCacheName, Reason: "expected a JSON object body", Err: err}
	}

	return &Request{Body: removeFieldsRecursively(m, []string{"cache_control"})}, nil
}
