package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = 6970
	DefaultConfigFilename = "config.json"
	DefaultYAMLFilename   = "config.yaml"
	DefaultHost           = "127.0.0.1"
	DefaultTimeoutMS      = 600000
)

// DefaultProviderURLs fills in api_base_url for well-known provider names.
var DefaultProviderURLs = map[string]string{
	"openrouter": "https://openrouter.ai/api/v1/chat/completions",
	"openai":     "https://api.openai.com/v1/chat/completions",
	"anthropic":  "https://api.anthropic.com/v1/messages",
	"nvidia":     "https://integrate.api.nvidia.com/v1/chat/completions",
	"deepseek":   "https://api.deepseek.com/chat/completions",
}

type Provider struct {
	Name          string            `json:"name" yaml:"name"`
	APIBase       string            `json:"api_base_url" yaml:"url"`
	APIKey        string            `json:"api_key" yaml:"api_key"`
	Models        []string          `json:"models,omitempty" yaml:"models,omitempty"`
	DefaultModel  string            `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	Transformers  []TransformerSpec `json:"transformers,omitempty" yaml:"transformers,omitempty"`
	Auth          *TransformerSpec  `json:"auth,omitempty" yaml:"auth,omitempty"`
	ResponseOrder string            `json:"response_order,omitempty" yaml:"response_order,omitempty"`
}

type RouterConfig struct {
	Default     string `json:"default" yaml:"default"`
	Think       string `json:"think,omitempty" yaml:"think,omitempty"`
	Background  string `json:"background,omitempty" yaml:"background,omitempty"`
	LongContext string `json:"longContext,omitempty" yaml:"long_context,omitempty"`
	WebSearch   string `json:"webSearch,omitempty" yaml:"web_search,omitempty"`
}

type Config struct {
	Host      string       `json:"HOST,omitempty" yaml:"host,omitempty"`
	Port      int          `json:"PORT,omitempty" yaml:"port,omitempty"`
	APIKey    string       `json:"APIKEY,omitempty" yaml:"api_key,omitempty"`
	TimeoutMS int          `json:"TIMEOUT_MS,omitempty" yaml:"timeout_ms,omitempty"`
	Providers []Provider   `json:"Providers" yaml:"providers"`
	Router    RouterConfig `json:"Router" yaml:"router"`
}

// Timeout is the per-call pipeline deadline.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return DefaultTimeoutMS * time.Millisecond
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = DefaultTimeoutMS
	}

	for i := range c.Providers {
		p := &c.Providers[i]
		if p.APIBase == "" {
			p.APIBase = DefaultProviderURLs[strings.ToLower(p.Name)]
		}
		if p.DefaultModel == "" && len(p.Models) > 0 {
			p.DefaultModel = p.Models[0]
		}
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Providers) == 0 {
		errs = append(errs, "no providers configured")
	}

	seen := make(map[string]bool)
	for i, provider := range c.Providers {
		if provider.Name == "" {
			errs = append(errs, fmt.Sprintf("provider %d: name is required", i))
		} else if seen[provider.Name] {
			errs = append(errs, fmt.Sprintf("provider %d: duplicate name %q", i, provider.Name))
		}
		seen[provider.Name] = true

		if provider.APIBase == "" {
			errs = append(errs, fmt.Sprintf("provider %d: API base URL is required", i))
		}
		if provider.APIKey == "" {
			errs = append(errs, fmt.Sprintf("provider %d: API key is required", i))
		}
		switch provider.ResponseOrder {
		case "", "reverse", "forward":
		default:
			errs = append(errs, fmt.Sprintf("provider %d: response_order must be reverse or forward", i))
		}
	}

	if c.Router.Default == "" {
		errs = append(errs, "default router model is required")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	return nil
}

type Manager struct {
	baseDir     string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir: baseDir,
	}
}

func (m *Manager) Load() (*Config, error) {
	path := m.GetPath()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "read", Path: path, Err: err}
	}

	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, &Error{Op: "unmarshal", Path: path, Err: err}
	}

	cfg.applyDefaults()

	m.configValue.Store(&cfg)
	return &cfg, nil
}

func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		// Return a config with defaults if loading fails
		cfg = &Config{}
		cfg.applyDefaults()
	}
	return cfg
}

func (m *Manager) Save(cfg *Config) error {
	path := m.GetPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return &Error{Op: "marshal", Path: path, Err: err}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}

	m.configValue.Store(cfg)
	return nil
}

// GetPath returns config.yaml when it exists and config.json otherwise.
func (m *Manager) GetPath() string {
	yamlPath := filepath.Join(m.baseDir, DefaultYAMLFilename)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	return filepath.Join(m.baseDir, DefaultConfigFilename)
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetPath())
	return err == nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
