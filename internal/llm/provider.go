package llm

// Provider describes one upstream endpoint. It is owned by the provider
// registry and must not be modified once a call has started.
type Provider struct {
	Name         string
	BaseURL      string
	APIKey       string
	Models       []string
	DefaultModel string
}

// HasModel reports whether model is listed for the provider. A provider with
// no model list accepts any model.
func (p *Provider) HasModel(model string) bool {
	if len(p.Models) == 0 {
		return true
	}

	for _, m := range p.Models {
		if m == model {
			return true
		}
	}

	return false
}
