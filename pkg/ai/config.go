package ai

import (
	"fmt"
	"os"
	"strings"
)

const (
	// DefaultBaseURL points the openai provider at Groq's OpenAI-compatible API.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModelName is the model served by DefaultBaseURL.
	DefaultModelName = "meta-llama/llama-4-maverick-17b-128e-instruct"
	// DefaultModel is the configuration name of the built-in model entry.
	DefaultModel = "default"
)

// ModelConfig defines the configuration for a single LLM.
type ModelConfig struct {
	Name        string  `json:"name" yaml:"name"`                             // e.g., "default", "claude"
	Provider    string  `json:"provider" yaml:"provider"`                     // "openai", "anthropic" or "google"
	APIKey      string  `json:"api_key" yaml:"api_key"`                       // "env:NAME" reads the key from the environment
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Optional: for OpenAI-compatible endpoints
	ModelName   string  `json:"model_name" yaml:"model_name"`                 // The provider's model ID
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`                 // Max output tokens, 0 leaves the provider default
	Temperature float64 `json:"temperature" yaml:"temperature"`               // 0 keeps tool selection deterministic
}

// Config holds the model configuration of the agent.
type Config struct {
	DefaultModel string        `json:"default_model" yaml:"default_model"`
	MaxTurns     int           `json:"max_turns" yaml:"max_turns"` // generate steps per request, 0 means DefaultMaxTurns
	Models       []ModelConfig `json:"models" yaml:"models"`
}

// DefaultConfig returns the single OpenAI-compatible model the agent ships with.
func DefaultConfig() Config {
	return Config{
		DefaultModel: DefaultModel,
		MaxTurns:     DefaultMaxTurns,
		Models: []ModelConfig{{
			Name:      DefaultModel,
			Provider:  "openai",
			APIKey:    "env:OPENAI_API_KEY",
			BaseURL:   DefaultBaseURL,
			ModelName: DefaultModelName,
		}},
	}
}

// Lookup returns the model entry registered under name.
func (c *Config) Lookup(name string) (*ModelConfig, error) {
	if c == nil {
		return nil, fmt.Errorf("model config is nil")
	}
	for i := range c.Models {
		if c.Models[i].Name == name {
			return &c.Models[i], nil
		}
	}
	return nil, fmt.Errorf("model '%s' not found in configuration", name)
}

// ResolveAPIKey 解析 API 密钥。
// 如果密钥以 "env:" 开头，则从环境变量中获取实际值。
func ResolveAPIKey(key string) string {
	if strings.HasPrefix(key, "env:") {
		return os.Getenv(strings.TrimPrefix(key, "env:"))
	}
	return key
}
