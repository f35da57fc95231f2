package llm

import "encoding/json"

// extraFields returns the members of the JSON object data that are not in known.
func extraFields(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	for _, key := range known {
		delete(all, key)
	}

	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// withExtra adds extra members to the encoded object data. Modelled fields win
// over an extra member of the same name.
func withExtra(data []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return data, nil
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	for key, value := range extra {
		if _, exists := all[key]; !exists {
			all[key] = value
		}
	}

	return json.Marshal(all)
}
