package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const wikipediaTimeout = 20 * time.Second

// Wikipedia 获取某个主题的维基百科摘要（REST v1 page/summary）。
type Wikipedia struct {
	opts options
}

// NewWikipedia 创建维基百科摘要工具。
func NewWikipedia(opts ...Option) *Wikipedia {
	return &Wikipedia{opts: newOptions("https://en.wikipedia.org", opts)}
}

func (t *Wikipedia) Name() string { return "get_wikipedia_summary" }

func (t *Wikipedia) Description() string {
	return "Get a summary of a topic from Wikipedia."
}

func (t *Wikipedia) Parameters() map[string]any {
	return objectSchema([]string{"topic"}, map[string]any{
		"topic": stringProp("The topic to search for"),
	})
}

func (t *Wikipedia) Call(ctx context.Context, input string) (string, error) {
	topic := stringArg(input, "topic")
	if topic == "" {
		return "Wikipedia lookup failed: topic is required", nil
	}

	title := strings.ReplaceAll(topic, " ", "_")
	endpoint := fmt.Sprintf("%s/api/rest_v1/page/summary/%s", t.opts.baseURL, url.PathEscape(title))
	data, err := t.opts.fetchJSON(ctx, wikipediaTimeout, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Sprintf("Wikipedia lookup failed: %v", err), nil
	}

	page := gjson.ParseBytes(data)
	return fmt.Sprintf("**%s**\n\n%s\n\nRead more: %s",
		orDefault(page.Get("title").String(), topic),
		orDefault(page.Get("extract").String(), "No summary available"),
		orDefault(page.Get("content_urls.desktop.page").String(), "N/A"),
	), nil
}
