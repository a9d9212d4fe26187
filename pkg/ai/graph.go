package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"

	"github.com/IMBotPlatform/ChatAgent/pkg/tools"
)

// DefaultMaxTurns 是单次请求允许的最大生成步数。
const DefaultMaxTurns = 10

var (
	// ErrMaxTurns 表示模型在允许的步数内没有给出终止回复。
	ErrMaxTurns = errors.New("max turns reached")
	// ErrEmptyResponse 表示模型没有返回任何 choice。
	ErrEmptyResponse = errors.New("empty response from llm")
)

// Graph 是两状态的对话循环：Generate -> (有工具调用) -> Dispatch -> Generate ...
// 直到模型给出不含工具调用的回复。
//
//	  messages
//	     |
//	     v
//	+----------+   tool calls   +----------+
//	| Generate | -------------> | Dispatch |
//	+----------+ <------------- +----------+
//	     |          results
//	  no calls
//	     v
//	 final text
type Graph struct {
	model       llms.Model
	toolMap     map[string]tools.Tool
	llmTools    []llms.Tool
	maxTurns    int
	callOptions []llms.CallOption
	handler     callbacks.Handler
	logger      zerolog.Logger
}

// GraphOption 自定义 Graph。
type GraphOption func(*Graph)

// WithMaxTurns 设置最大生成步数，<=0 时保持默认值。
func WithMaxTurns(n int) GraphOption {
	return func(g *Graph) {
		if n > 0 {
			g.maxTurns = n
		}
	}
}

// WithCallOptions 为每次 GenerateContent 附加调用参数（温度等）。
func WithCallOptions(opts ...llms.CallOption) GraphOption {
	return func(g *Graph) {
		g.callOptions = append(g.callOptions, opts...)
	}
}

// WithCallbacks 注入 langchaingo 回调，用于追踪模型与工具调用。
func WithCallbacks(h callbacks.Handler) GraphOption {
	return func(g *Graph) {
		g.handler = h
	}
}

// WithLogger 注入日志记录器。
func WithLogger(l zerolog.Logger) GraphOption {
	return func(g *Graph) {
		g.logger = l
	}
}

// NewGraph 绑定模型与工具集，返回可复用的 Graph。Graph 本身无请求级状态，可并发使用。
func NewGraph(model llms.Model, toolset []tools.Tool, opts ...GraphOption) *Graph {
	g := &Graph{
		model:    model,
		toolMap:  make(map[string]tools.Tool, len(toolset)),
		maxTurns: DefaultMaxTurns,
		handler:  callbacks.SimpleHandler{},
		logger:   zerolog.Nop(),
	}
	for _, t := range toolset {
		g.toolMap[t.Name()] = t
		g.llmTools = append(g.llmTools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.handler == nil {
		g.handler = callbacks.SimpleHandler{}
	}
	return g
}

// BuildMessages 组装一次请求的初始状态：可选的上下文摘要（system）+ 用户消息。
func BuildMessages(contextSummary, userMessage string) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, 2)
	if contextSummary != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, contextSummary))
	}
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, userMessage))
}

// Invoke 同步运行到终止状态，返回最终助手回复。
func (g *Graph) Invoke(ctx context.Context, messages []llms.MessageContent) (string, error) {
	return g.run(ctx, messages, nil)
}

// Stream 以事件流方式运行。调用方必须读完通道（直到关闭），
// 最后一个事件一定是 DoneEvent 或 FailedEvent。
// 取消 ctx 会中断模型与工具调用，随后以 FailedEvent 结束。
func (g *Graph) Stream(ctx context.Context, messages []llms.MessageContent) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		emit := func(ev Event) { out <- ev }

		content, err := g.run(ctx, messages, emit)
		if err != nil {
			emit(FailedEvent{Err: err})
			return
		}
		emit(DoneEvent{Content: content})
	}()
	return out
}

// run 是 Invoke 与 Stream 共用的循环。emit 为 nil 时不使用流式生成。
func (g *Graph) run(ctx context.Context, input []llms.MessageContent, emit func(Event)) (string, error) {
	if g == nil || g.model == nil {
		return "", errors.New("graph not initialized")
	}

	// 复制一份，避免改写调用方的切片
	messages := make([]llms.MessageContent, len(input), len(input)+4)
	copy(messages, input)

	g.handler.HandleChainStart(ctx, map[string]any{"messages": len(messages)})

	var cumulative strings.Builder
	opts := append([]llms.CallOption{}, g.callOptions...)
	if len(g.llmTools) > 0 {
		opts = append(opts, llms.WithTools(g.llmTools))
	}
	if emit != nil {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 || isToolCallChunk(chunk) {
				return nil
			}
			cumulative.Write(chunk)
			emit(TokenEvent{Text: string(chunk), Cumulative: cumulative.String()})
			return nil
		}))
	}

	for turn := 0; turn < g.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			g.handler.HandleChainError(ctx, err)
			return "", err
		}

		// Generate
		g.handler.HandleLLMGenerateContentStart(ctx, messages)
		resp, err := g.model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			g.handler.HandleLLMError(ctx, err)
			g.handler.HandleChainError(ctx, err)
			return "", fmt.Errorf("llm generate error: %w", err)
		}
		g.handler.HandleLLMGenerateContentEnd(ctx, resp)

		if resp == nil || len(resp.Choices) == 0 {
			g.handler.HandleChainError(ctx, ErrEmptyResponse)
			return "", ErrEmptyResponse
		}
		choice := resp.Choices[0]

		if len(choice.ToolCalls) == 0 {
			// 没有工具调用，说明是最终回复
			g.handler.HandleChainEnd(ctx, map[string]any{"output": choice.Content})
			return choice.Content, nil
		}

		// 将 LLM 的回复（包含工具调用意图）加入历史
		msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if choice.Content != "" {
			msg.Parts = append(msg.Parts, llms.TextPart(choice.Content))
		}
		names := make([]string, 0, len(choice.ToolCalls))
		for _, tc := range choice.ToolCalls {
			name, args := toolCallFields(tc)
			msg.Parts = append(msg.Parts, llms.ToolCall{
				ID:   tc.ID,
				Type: tc.Type,
				FunctionCall: &llms.FunctionCall{
					Name:      name,
					Arguments: args,
				},
			})
			names = append(names, name)
		}
		messages = append(messages, msg)

		if emit != nil {
			emit(ToolCallStartedEvent{Names: names})
		}
		// 工具调用之前的文本不属于最终回复
		cumulative.Reset()

		// Dispatch：按请求顺序串行执行
		for _, tc := range choice.ToolCalls {
			result := g.dispatch(ctx, tc)
			name, _ := toolCallFields(tc)
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       name,
						Content:    result,
					},
				},
			})
			if emit != nil {
				emit(ToolCallFinishedEvent{Name: name})
			}
		}
	}

	g.handler.HandleChainError(ctx, ErrMaxTurns)
	return "", ErrMaxTurns
}

// unknownToolName 用于缺少 function 的工具调用。
const unknownToolName = "unknown"

func toolCallFields(tc llms.ToolCall) (name, args string) {
	if tc.FunctionCall == nil {
		return unknownToolName, ""
	}
	return tc.FunctionCall.Name, tc.FunctionCall.Arguments
}

// dispatch 执行单个工具调用。工具失败被编码为结果文本，不中断循环。
func (g *Graph) dispatch(ctx context.Context, tc llms.ToolCall) string {
	if tc.FunctionCall == nil {
		return "Error: tool call without function"
	}
	name := tc.FunctionCall.Name
	args := tc.FunctionCall.Arguments

	tool, exists := g.toolMap[name]
	if !exists {
		g.logger.Warn().Str("tool", name).Msg("model requested unknown tool")
		return fmt.Sprintf("Error: Tool %s not found", name)
	}

	g.handler.HandleToolStart(ctx, name+" "+args)
	result, err := tool.Call(ctx, args)
	if err != nil {
		g.handler.HandleToolError(ctx, err)
		result = fmt.Sprintf("Error: %v", err)
	} else {
		g.handler.HandleToolEnd(ctx, result)
	}
	g.logger.Debug().Str("tool", name).Str("args", args).Int("result_len", len(result)).Msg("tool executed")
	return result
}

// isToolCallChunk 识别 openai 流式回调中推送的工具调用增量（JSON 数组或 function_call 对象），
// 这些内容不是给用户看的文本。
func isToolCallChunk(chunk []byte) bool {
	trimmed := strings.TrimSpace(string(chunk))
	if len(trimmed) < 2 || (trimmed[0] != '[' && trimmed[0] != '{') || !gjson.Valid(trimmed) {
		return false
	}
	if trimmed[0] == '[' {
		return gjson.Get(trimmed, "0.function").Exists()
	}
	return gjson.Get(trimmed, "arguments").Exists()
}
