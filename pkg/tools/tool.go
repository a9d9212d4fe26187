// Package tools 定义 Agent 可调用的工具集合。
//
// 每个工具都实现 langchaingo 的 tools.Tool 接口，并额外提供 JSON Schema 形式的参数定义，
// 用于向模型声明 function calling。
// 约定：工具永远不向调用方返回 Go error。上游失败被格式化为普通文本结果，
// 模型看到的是“工具运行了并报告了错误”。
package tools

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	lctools "github.com/tmc/langchaingo/tools"
)

// Tool 是 Conversation Graph 使用的工具接口。
type Tool interface {
	lctools.Tool
	// Parameters 返回参数的 JSON Schema（object 类型）。
	Parameters() map[string]any
}

// Config 汇总工具依赖的外部配置。
type Config struct {
	TavilyAPIKey string       // 为空时搜索工具返回错误文本，而不是阻止启动
	HTTPClient   *http.Client // 可选：测试时注入
}

// Registry 返回全部已接线的工具，顺序固定。
func Registry(cfg Config) []Tool {
	return []Tool{
		NewSearch(cfg.TavilyAPIKey, WithHTTPClient(cfg.HTTPClient)),
		NewWeather(WithHTTPClient(cfg.HTTPClient)),
		NewCurrency(WithHTTPClient(cfg.HTTPClient)),
		NewWikipedia(WithHTTPClient(cfg.HTTPClient)),
		NewWorldTime(),
	}
}

// objectSchema 构造 function calling 需要的 object schema。
func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// stringArg 读取单个字符串参数。
// 模型偶尔直接给出裸字符串而不是 JSON 对象，此时整个输入即参数值。
func stringArg(input, key string) string {
	trimmed := strings.TrimSpace(input)
	if gjson.Valid(trimmed) && strings.HasPrefix(trimmed, "{") {
		return strings.TrimSpace(gjson.Get(trimmed, key).String())
	}
	return strings.Trim(trimmed, `"`)
}
