// Package config loads the chat agent settings: an optional YAML file
// followed by environment overrides. Settings are read once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/IMBotPlatform/ChatAgent/pkg/ai"
)

const (
	DefaultListenAddr = ":8001"
	DefaultDBPath     = "chat_history.db"
	DefaultProject    = "basic-agent"
	DefaultPacing     = 10 * time.Millisecond
)

// ServerConfig 是 HTTP 服务配置。
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig 是对话历史存储配置。
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ToolsConfig 保存工具所需的外部密钥。
type ToolsConfig struct {
	TavilyAPIKey string `yaml:"tavily_api_key"`
}

// StreamConfig 控制 SSE 输出节奏。
type StreamConfig struct {
	Pacing time.Duration `yaml:"pacing"`
}

// Config 是进程级配置。
type Config struct {
	Server  ServerConfig     `yaml:"server"`
	Storage StorageConfig    `yaml:"storage"`
	Tools   ToolsConfig      `yaml:"tools"`
	Tracing ai.TracingConfig `yaml:"tracing"`
	Stream  StreamConfig     `yaml:"stream"`
	AI      ai.Config        `yaml:"ai"`

	// Warnings 记录被忽略的无效设置，由调用方写日志。
	Warnings []string `yaml:"-"`
}

// Default 返回全部默认值。
func Default() Config {
	return Config{
		Server:  ServerConfig{Addr: DefaultListenAddr},
		Storage: StorageConfig{Path: DefaultDBPath},
		Tracing: ai.TracingConfig{Enabled: true, Project: DefaultProject},
		Stream:  StreamConfig{Pacing: DefaultPacing},
		AI:      ai.DefaultConfig(),
	}
}

// Load 读取配置。
//
// 流程：默认值 -> YAML 文件（path 非空时）-> 环境变量覆盖。
// path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return &cfg, nil
}

// applyEnv 用环境变量覆盖配置，未设置的变量保持原值。
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get("LISTEN_ADDR"); ok {
		cfg.Server.Addr = v
	}
	if v, ok := get("CHAT_DB_PATH"); ok {
		cfg.Storage.Path = v
	}
	if v, ok := get("TAVILY_API_KEY"); ok {
		cfg.Tools.TavilyAPIKey = v
	}
	if v, ok := get("LANGCHAIN_TRACING_V2"); ok {
		// 无效值只保留原设置，不阻止启动
		if enabled, err := strconv.ParseBool(v); err != nil {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid LANGCHAIN_TRACING_V2 %q", v))
		} else {
			cfg.Tracing.Enabled = enabled
		}
	}
	if v, ok := get("LANGCHAIN_API_KEY"); ok {
		cfg.Tracing.APIKey = v
	}
	if v, ok := get("LANGCHAIN_PROJECT"); ok {
		cfg.Tracing.Project = v
	}

	// OPENAI_* 只作用于默认模型，且仅当它是 openai 兼容提供方
	model, err := cfg.AI.Lookup(cfg.AI.DefaultModel)
	if err != nil || model.Provider != "openai" {
		return nil
	}
	if v, ok := get("OPENAI_BASE_URL"); ok {
		model.BaseURL = v
	}
	if v, ok := get("OPENAI_MODEL"); ok {
		model.ModelName = v
	}
	if _, ok := get("OPENAI_API_KEY"); ok && model.APIKey == "" {
		model.APIKey = "env:OPENAI_API_KEY"
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultListenAddr
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultDBPath
	}
	if c.Tracing.Project == "" {
		c.Tracing.Project = DefaultProject
	}
	if c.Stream.Pacing < 0 {
		c.Stream.Pacing = 0
	}
	if c.AI.DefaultModel == "" {
		c.AI.DefaultModel = ai.DefaultModel
	}
	if c.AI.MaxTurns <= 0 {
		c.AI.MaxTurns = ai.DefaultMaxTurns
	}
}
