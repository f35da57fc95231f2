package config

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// TransformerSpec is a transformer reference in the provider configuration.
// It is written either as a bare name or as {"name": ..., "options": {...}}.
type TransformerSpec struct {
	Name    string         `json:"name" yaml:"name"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

type transformerSpecObject TransformerSpec

func (s *TransformerSpec) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = TransformerSpec{Name: name}
		return nil
	}

	var obj transformerSpecObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("transformer must be a name or an object: %w", err)
	}

	*s = TransformerSpec(obj)
	return nil
}

func (s TransformerSpec) MarshalJSON() ([]byte, error) {
	if len(s.Options) == 0 {
		return json.Marshal(s.Name)
	}
	return json.Marshal(transformerSpecObject(s))
}

func (s *TransformerSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = TransformerSpec{Name: node.Value}
		return nil
	}

	var obj transformerSpecObject
	if err := node.Decode(&obj); err != nil {
		return fmt.Errorf("transformer must be a name or a mapping: %w", err)
	}

	*s = TransformerSpec(obj)
	return nil
}

func (s TransformerSpec) MarshalYAML() (any, error) {
	if len(s.Options) == 0 {
		return s.Name, nil
	}
	return transformerSpecObject(s), nil
}
