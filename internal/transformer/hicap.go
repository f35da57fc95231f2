package transformer

import (
	"context"
	"strings"

	"github.com/hicap-oss/claude-code-router/internal/llm"
)

const HicapName = "hicap"

// Hicap authenticates with an api-key header instead of Authorization. Both
// hooks remove any bearer token set earlier, in either casing.
type Hicap struct{}

func NewHicap() *Hicap {
	return &Hicap{}
}

func (t *Hicap) Name() string {
	return HicapName
}

func (t *Hicap) TransformRequestIn(ctx context.Context, body any, provider *llm.Provider, tc *Context) (*Request, error) {
	return &Request{
		Body:   body,
		Config: Config{Headers: hicapHeaders(provider)},
	}, nil
}

func (t *Hicap) Auth(ctx context.Context, body any, provider *llm.Provider, tc *Context) (*Request, error) {
	if strings.TrimSpace(provider.APIKey) == "" {
		return nil, &AuthResolutionError{Transformer: HicapName, Provider: provider.Name, Reason: "api key is empty"}
	}

	return &Request{
		Body:   body,
		Config: Config{Headers: hicapHeaders(provider)},
	}, nil
}

func (t *Hicap) TransformResponseOut(ctx context.Context, resp *Response, tc *Context) (*Response, error) {
	return resp, nil
}

func hicapHeaders(provider *llm.Provider) HeaderPatch {
	return HeaderPatch{}.
		Set("api-key", provider.APIKey).
		Unset("Authorization").
		Unset("authorization")
}
