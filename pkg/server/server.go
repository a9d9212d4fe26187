// Package server exposes the conversation graph and the chat history over HTTP.
//
// Routes:
//
//	GET    /                     service info
//	GET    /health               readiness and storage status
//	POST   /chat                 synchronous chat
//	POST   /chat/stream          SSE chat
//	GET    /history/{session_id} recent turns
//	DELETE /history/{session_id} clear a session
//	GET    /sessions             session summaries
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/tmc/langchaingo/llms"

	"github.com/IMBotPlatform/ChatAgent/pkg/ai"
	"github.com/IMBotPlatform/ChatAgent/pkg/memory"
)

const (
	// DefaultSessionID 是请求未指定 session_id 时使用的会话。
	DefaultSessionID = "default"
	// DefaultHistoryLimit 是 /history 未指定 limit 时返回的条数。
	DefaultHistoryLimit = 10
	// MaxHistoryLimit 是 /history 单次返回的上限，更大的 limit 会被截断。
	MaxHistoryLimit = 1000

	defaultVersion = "1.0.0"
	// timestampLayout 输出 UTC 时间，不带时区后缀。
	timestampLayout = "2006-01-02T15:04:05.000000"
)

// Runner 是服务端依赖的对话图能力，由 *ai.Graph 实现。
type Runner interface {
	Invoke(ctx context.Context, messages []llms.MessageContent) (string, error)
	Stream(ctx context.Context, messages []llms.MessageContent) <-chan ai.Event
}

var _ Runner = (*ai.Graph)(nil)

// Server 持有一次进程生命周期内的全部依赖，无全局状态。
type Server struct {
	runner  Runner
	store   memory.Store
	logger  zerolog.Logger
	pacing  time.Duration
	now     func() time.Time
	version string
}

// Option 自定义 Server。
type Option func(*Server)

// WithLogger 注入日志记录器。
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPacing 设置 SSE 帧之间的间隔，0 表示不等待。
func WithPacing(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.pacing = d
		}
	}
}

// WithClock 替换时间来源（测试用）。
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithVersion 设置 / 返回的版本号。
func WithVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// New 创建 Server。runner 为 nil 时聊天接口返回 503，health 为 initializing。
func New(runner Runner, store memory.Store, opts ...Option) *Server {
	s := &Server{
		runner:  runner,
		store:   store,
		logger:  zerolog.Nop(),
		pacing:  10 * time.Millisecond,
		now:     time.Now,
		version: defaultVersion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler 返回带 CORS 与访问日志的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /history/{session_id}", s.handleHistory)
	mux.HandleFunc("DELETE /history/{session_id}", s.handleClear)
	mux.HandleFunc("GET /sessions", s.handleSessions)

	var h http.Handler = mux
	h = cors(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(h)
	h = hlog.RemoteAddrHandler("remote")(h)
	h = hlog.NewHandler(s.logger)(h)
	return h
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

// contextMessages 读取会话摘要并拼出本次请求的初始消息。
func (s *Server) contextMessages(ctx context.Context, sessionID, message string) ([]llms.MessageContent, error) {
	summary, err := s.store.ContextSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return ai.BuildMessages(summary, message), nil
}

// persistExchange 写入一问一答。
func (s *Server) persistExchange(ctx context.Context, sessionID, user, assistant string) error {
	if err := s.store.Append(ctx, sessionID, memory.RoleUser, user); err != nil {
		return err
	}
	return s.store.Append(ctx, sessionID, memory.RoleAssistant, assistant)
}
