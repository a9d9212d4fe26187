package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Service 负责按配置创建并缓存模型实例。
// 它是 Conversation Graph 获取 llms.Model 的唯一入口。
type Service struct {
	config     *Config
	mu         sync.Mutex // 并发请求共享同一个 Service
	modelCache map[string]llms.Model
}

// NewService 创建一个新的模型服务实例。
func NewService(config *Config) *Service {
	return &Service{
		config:     config,
		modelCache: make(map[string]llms.Model),
	}
}

// Model 获取模型实例，name 为空时使用 default_model。
// 如果缓存中存在则直接返回，否则初始化一个新的模型实例并缓存。
//
// 逻辑流程:
// Check Cache -> (Hit) -> Return
//
//	  |
//	(Miss)
//	  v
//
// Load Config -> Init Provider (OpenAI/Anthropic/Google) -> Update Cache -> Return
func (s *Service) Model(ctx context.Context, name string) (llms.Model, error) {
	if name == "" {
		name = s.config.DefaultModel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if model, ok := s.modelCache[name]; ok {
		return model, nil
	}

	cfg, err := s.config.Lookup(name)
	if err != nil {
		return nil, err
	}

	llm, err := newModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}

	s.modelCache[name] = llm
	return llm, nil
}

// CallOptions 返回该模型在每次生成时附带的调用参数。
func (s *Service) CallOptions(name string) []llms.CallOption {
	if name == "" {
		name = s.config.DefaultModel
	}
	cfg, err := s.config.Lookup(name)
	if err != nil {
		return nil
	}
	opts := []llms.CallOption{llms.WithTemperature(cfg.Temperature)}
	if cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	return opts
}

func newModel(ctx context.Context, cfg *ModelConfig) (llms.Model, error) {
	apiKey := ResolveAPIKey(cfg.APIKey)

	switch cfg.Provider {
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("missing api key for model '%s'", cfg.Name)
		}
		opts := []openai.Option{
			openai.WithToken(apiKey),
			openai.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "google":
		return googleai.New(ctx,
			googleai.WithAPIKey(apiKey),
			googleai.WithDefaultModel(cfg.ModelName),
		)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(apiKey),
			anthropic.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
