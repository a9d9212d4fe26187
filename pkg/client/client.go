// Package client talks to the chat agent HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/IMBotPlatform/ChatAgent/pkg/server"
)

// DefaultBaseURL 是本地服务的默认地址。
const DefaultBaseURL = "http://localhost:8001"

// APIError 是服务端返回的非 2xx 响应。
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
}

// Client 是 API 客户端，零值不可用，使用 New 创建。
type Client struct {
	baseURL string
	http    *http.Client
}

// Option 自定义 Client。
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client。
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// New 创建客户端。baseURL 为空时使用 DefaultBaseURL。
// 流式请求可能持续较久，默认 http.Client 不设整体超时，短请求各自带超时。
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL 返回服务地址。
func (c *Client) BaseURL() string { return c.baseURL }

const shortTimeout = 10 * time.Second

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, shortTimeout)
	defer cancel()

	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

// send 发出请求，非 2xx 时转换为 *APIError。
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var payload struct {
			Detail string `json:"detail"`
		}
		detail := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &payload) == nil && payload.Detail != "" {
			detail = payload.Detail
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: detail}
	}
	return resp, nil
}

// Health 查询服务状态。
func (c *Client) Health(ctx context.Context) (*server.HealthResponse, error) {
	var out server.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sessions 列出全部会话，最近活跃的在前。
func (c *Client) Sessions(ctx context.Context) ([]server.SessionSummary, error) {
	var out server.SessionsResponse
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// History 读取会话最近 limit 条消息（按时间正序）。
func (c *Client) History(ctx context.Context, sessionID string, limit int) (*server.HistoryResponse, error) {
	path := "/history/" + url.PathEscape(sessionID) + "?limit=" + strconv.Itoa(limit)
	var out server.HistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Clear 删除会话历史，返回删除条数。
func (c *Client) Clear(ctx context.Context, sessionID string) (int64, error) {
	var out server.ClearResponse
	if err := c.do(ctx, http.MethodDelete, "/history/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return 0, err
	}
	return out.DeletedMessages, nil
}

// Stream 发送消息并逐帧回调 onFrame，直到收到 done 或 error 帧。
// 收到 error 帧时返回该错误；连接提前结束时返回 io.ErrUnexpectedEOF。
// onFrame 返回错误会中止读取。
func (c *Client) Stream(ctx context.Context, sessionID, message string, onFrame func(server.Frame) error) error {
	resp, err := c.send(ctx, http.MethodPost, "/chat/stream", server.ChatRequest{
		Message:   message,
		SessionID: sessionID,
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var frame server.Frame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			return errors.Wrap(err, "decode frame")
		}
		if onFrame != nil {
			if err := onFrame(frame); err != nil {
				return err
			}
		}
		switch frame.Type {
		case server.FrameDone:
			return nil
		case server.FrameError:
			return errors.New(frame.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read stream")
	}
	return io.ErrUnexpectedEOF
}
