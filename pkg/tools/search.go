package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	searchTimeout    = 10 * time.Second
	searchMaxResults = 5
	searchShown      = 3
)

// Search 通过 Tavily API 搜索互联网，返回前 3 条结果。
type Search struct {
	apiKey string
	opts   options
}

// NewSearch 创建搜索工具。apiKey 为空时工具仍然注册，但调用返回错误文本。
func NewSearch(apiKey string, opts ...Option) *Search {
	return &Search{
		apiKey: strings.TrimSpace(apiKey),
		opts:   newOptions("https://api.tavily.com", opts),
	}
}

func (t *Search) Name() string { return "tavily_search" }

func (t *Search) Description() string {
	return "Search the internet using Tavily API for current information. " +
		"Returns the top results with title, excerpt and source URL."
}

func (t *Search) Parameters() map[string]any {
	return objectSchema([]string{"query"}, map[string]any{
		"query": stringProp("The search query string"),
	})
}

func (t *Search) Call(ctx context.Context, input string) (string, error) {
	if t.apiKey == "" {
		return "Error: TAVILY_API_KEY not set", nil
	}
	query := stringArg(input, "query")
	if query == "" {
		return "Search failed: query is required", nil
	}

	data, err := t.opts.fetchJSON(ctx, searchTimeout, http.MethodPost, t.opts.baseURL+"/search", map[string]any{
		"api_key":      t.apiKey,
		"query":        query,
		"search_depth": "basic",
		"max_results":  searchMaxResults,
	})
	if err != nil {
		return fmt.Sprintf("Search failed: %v", err), nil
	}

	var results []string
	for i, item := range gjson.GetBytes(data, "results").Array() {
		if i >= searchShown {
			break
		}
		results = append(results, fmt.Sprintf("• %s\n  %s\n  Source: %s",
			orDefault(item.Get("title").String(), "No title"),
			orDefault(item.Get("content").String(), "No content"),
			orDefault(item.Get("url").String(), "N/A"),
		))
	}
	if len(results) == 0 {
		return "No results found", nil
	}
	return strings.Join(results, "\n\n"), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
