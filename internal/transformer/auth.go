package transformer

import (
	"context"
	"strings"

	"github.com/hicap-oss/claude-code-router/internal/llm"
)

const (
	BearerName  = "bearer"
	XAPIKeyName = "x-api-key"
)

// Bearer writes Authorization: Bearer <api key>. It is the default auth stage
// for OpenAI-compatible providers.
type Bearer struct{}

func NewBearer() *Bearer {
	return &Bearer{}
}

func (t *Bearer) Name() string {
	return BearerName
}

func (t *Bearer) Auth(ctx context.Context, body any, provider *llm.Provider, tc *Context) (*Request, error) {
	key := strings.TrimSpace(provider.APIKey)
	if key == "" {
		return nil, &AuthResolutionError{Transformer: BearerName, Provider: provider.Name, Reason: "api key is empty"}
	}

	return &Request{
		Body:   body,
		Config: Config{Headers: HeaderPatch{}.Set("Authorization", "Bearer "+key)},
	}, nil
}

// XAPIKey writes x-api-key and drops any Authorization header, the scheme
// Anthropic-compatible endpoints expect.
type XAPIKey struct {
	version string
}

// NewXAPIKey returns the stage. A non-empty version is sent as anthropic-version.
func NewXAPIKey(version string) *XAPIKey {
	return &XAPIKey{version: version}
}

func (t *XAPIKey) Name() string {
	return XAPIKeyName
}

func (t *XAPIKey) Auth(ctx context.Context, body any, provider *llm.Provider, tc *Context) (*Request, error) {
	key := strings.TrimSpace(provider.APIKey)
	if key == "" {
		return nil, &AuthResolutionError{Transformer: XAPIKeyName, Provider: provider.Name, Reason: "api key is empty"}
	}

	headers := HeaderPatch{}.
		Unset("Authorization").
		Set("x-api-key", key)
	if t.version != "" {
		headers = headers.Set("anthropic-version", t.version)
	}

	return &Request{Body: body, Config: Config{Headers: headers}}, nil
}
