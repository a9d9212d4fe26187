package ai

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

// TracingConfig 控制图运行追踪。
type TracingConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	APIKey  string `json:"api_key" yaml:"api_key"`
	Project string `json:"project" yaml:"project"`
}

// TraceHandler 把 langchaingo 回调写成结构化日志，每条日志带 project 字段。
type TraceHandler struct {
	callbacks.SimpleHandler
	logger zerolog.Logger
}

var _ callbacks.Handler = (*TraceHandler)(nil)

// NewTraceHandler 在追踪开启时返回处理器，否则返回 nil（Graph 会退回到空处理器）。
func NewTraceHandler(cfg TracingConfig, logger zerolog.Logger) callbacks.Handler {
	if !cfg.Enabled {
		return nil
	}
	return &TraceHandler{
		logger: logger.With().Str("component", "trace").Str("project", cfg.Project).Logger(),
	}
}

func (h *TraceHandler) HandleChainStart(_ context.Context, inputs map[string]any) {
	h.logger.Debug().Interface("inputs", inputs).Msg("run started")
}

func (h *TraceHandler) HandleChainEnd(_ context.Context, outputs map[string]any) {
	out, _ := outputs["output"].(string)
	h.logger.Info().Int("output_len", len(out)).Msg("run finished")
}

func (h *TraceHandler) HandleChainError(_ context.Context, err error) {
	h.logger.Warn().Err(err).Msg("run failed")
}

func (h *TraceHandler) HandleLLMGenerateContentStart(_ context.Context, ms []llms.MessageContent) {
	h.logger.Debug().Int("messages", len(ms)).Msg("generate")
}

func (h *TraceHandler) HandleLLMGenerateContentEnd(_ context.Context, res *llms.ContentResponse) {
	ev := h.logger.Debug()
	if res != nil && len(res.Choices) > 0 {
		ev = ev.Int("tool_calls", len(res.Choices[0].ToolCalls)).Str("stop_reason", res.Choices[0].StopReason)
	}
	ev.Msg("generate done")
}

func (h *TraceHandler) HandleLLMError(_ context.Context, err error) {
	h.logger.Error().Err(err).Msg("generate failed")
}

func (h *TraceHandler) HandleToolStart(_ context.Context, input string) {
	h.logger.Debug().Str("input", input).Msg("tool start")
}

func (h *TraceHandler) HandleToolEnd(_ context.Context, output string) {
	h.logger.Debug().Int("output_len", len(output)).Msg("tool end")
}

func (h *TraceHandler) HandleToolError(_ context.Context, err error) {
	h.logger.Warn().Err(err).Msg("tool error")
}
