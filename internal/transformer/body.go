package transformer

import (
	"encoding/json"
	"fmt"
)

// bodyMap returns the body as a fresh JSON object map. The input is never
// modified.
func bodyMap(body any) (map[string]any, error) {
	var data []byte

	switch v := body.(type) {
	case nil:
		return nil, fmt.Errorf("body is empty")
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		data = b
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("body is not a JSON object: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("body is not a JSON object")
	}

	return m, nil
}

// removeFieldsRecursively removes the named fields from nested JSON structures.
func removeFieldsRecursively(data any, fieldsToRemove []string) any {
	switch v := data.(type) {
	case map[string]any:
		result := make(map[string]any)

		for key, value := range v {
			shouldRemove := false

			for _, field := range fieldsToRemove {
				if key == field {
					shouldRemove = true
					break
				}
			}

			if !shouldRemove {
				result[key] = removeFieldsRecursively(value, fieldsToRemove)
			}
		}

		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = removeFieldsRecursively(item, fieldsToRemove)
		}

		return result
	default:
		return v
	}
}
