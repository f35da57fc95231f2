package transformer

import (
	"context"
	"encoding/json"
	"errors"
)

const UsageName = "usage"

// TokenMapping defines how to map token fields between formats.
type TokenMapping struct {
	InputTokens            string
	OutputTokens           string
	CacheReadInputTokens   string
	CacheCreateInputTokens string
}

var (
	OpenAITokenMapping = TokenMapping{
		InputTokens:            "prompt_tokens",
		OutputTokens:           "completion_tokens",
		CacheReadInputTokens:   "cached_tokens",
		CacheCreateInputTokens: "cache_creation_tokens",
	}

	UnifiedTokenMapping = TokenMapping{
		InputTokens:            "input_tokens",
		OutputTokens:           "output_tokens",
		CacheReadInputTokens:   "cache_read_input_tokens",
		CacheCreateInputTokens: "cache_create_input_tokens",
	}
)

// MapTokenUsage maps token usage from the source format to the unified counters.
func MapTokenUsage(sourceUsage map[string]any, sourceMapping TokenMapping) map[string]any {
	usage := make(map[string]any)

	if promptTokens, ok := sourceUsage[sourceMapping.InputTokens]; ok {
		usage[UnifiedTokenMapping.InputTokens] = promptTokens
	}

	if completionTokens, ok := sourceUsage[sourceMapping.OutputTokens]; ok {
		usage[UnifiedTokenMapping.OutputTokens] = completionTokens
	}

	if promptDetails, ok := sourceUsage["prompt_tokens_details"].(map[string]any); ok {
		if cachedTokens, ok := promptDetails[sourceMapping.CacheReadInputTokens]; ok {
			usage[UnifiedTokenMapping.CacheReadInputTokens] = cachedTokens
		}

		if cacheCreationTokens, ok := promptDetails[sourceMapping.CacheCreateInputTokens]; ok {
			usage[UnifiedTokenMapping.CacheCreateInputTokens] = cacheCreationTokens
		}
	}

	if completionDetails, ok := sourceUsage["completion_tokens_details"].(map[string]any); ok {
		for key, value := range completionDetails {
			usage["completion_"+key] = value
		}
	}

	return usage
}

// Usage rewrites OpenAI-style usage counters in a JSON response. Anything it
// does not recognize passes through unchanged unless strict is set.
type Usage struct {
	strict bool
}

func NewUsage(strict bool) *Usage {
	return &Usage{strict: strict}
}

func (t *Usage) Name() string {
	return UsageName
}

func (t *Usage) TransformResponseOut(ctx context.Context, resp *Response, tc *Context) (*Response, error) {
	var payload map[string]any
	if err := json.Unmarshal(resp.Body, &payload); err != nil || payload == nil {
		if t.strict && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err == nil {
				err = errors.New("body is null")
			}
			return nil, &ResponseNormalizationError{
				Transformer: UsageName,
				StatusCode:  resp.StatusCode,
				Reason:      "expected a JSON object",
				Err:         err,
			}
		}
		return resp, nil
	}

	source, ok := payload["usage"].(map[string]any)
	if !ok {
		return resp, nil
	}
	if _, ok := source[OpenAITokenMapping.InputTokens]; !ok {
		return resp, nil
	}

	payload["usage"] = MapTokenUsage(source, OpenAITokenMapping)

	body, err := json.Marshal(payload)
	if err != nil {
		return resp, nil
	}

	out := resp.Clone()
	out.Body = body
	out.Header.Del("Content-Length")
	return out, nil
}
