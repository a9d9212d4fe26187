package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	userAgent       = "ChatAgent/1.0 (+https://github.com/IMBotPlatform/ChatAgent)"
	maxResponseBody = 2 << 20
)

// options 是各 HTTP 工具共享的可选项。
type options struct {
	client  *http.Client
	baseURL string
}

// Option 自定义 HTTP 工具。
type Option func(*options)

// WithHTTPClient 注入 HTTP 客户端；nil 时使用 http.DefaultClient。
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithBaseURL 覆盖上游 API 地址（测试时指向 httptest 服务）。
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
		}
	}
}

func newOptions(defaultBase string, opts []Option) options {
	o := options{client: http.DefaultClient, baseURL: defaultBase}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// fetchJSON 发起一次带超时的请求，非 2xx 视为错误，返回原始响应体。
func (o options) fetchJSON(ctx context.Context, timeout time.Duration, method, url string, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := data
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, fmt.Errorf("%d %s for url: %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), url, bytes.TrimSpace(snippet))
	}
	return data, nil
}
