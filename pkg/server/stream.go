package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/IMBotPlatform/ChatAgent/pkg/ai"
)

// sseWriter 写出 data: {json}\n\n 帧。连接断开后静默丢弃后续帧。
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	pacing  time.Duration
	broken  bool
	logger  *zerolog.Logger
}

func (sw *sseWriter) send(ctx context.Context, f Frame) {
	if sw.broken {
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		sw.logger.Error().Err(err).Str("frame", f.Type).Msg("marshal frame failed")
		return
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		sw.logger.Debug().Err(err).Msg("client gone")
		sw.broken = true
		return
	}
	sw.flusher.Flush()

	// 终止帧之后没有后续输出，无需等待
	if sw.pacing <= 0 || f.Type == FrameDone || f.Type == FrameError {
		return
	}
	t := time.NewTimer(sw.pacing)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// handleChatStream 流式聊天。
//
// 帧顺序：
//
//	token* (tool_call tool_result+ token*)* done
//
// 任一步失败只输出一个 error 帧，不写入历史。
// 客户端断开时请求 ctx 取消，图随之停止，同样不写入历史。
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "Agent not initialized")
		return
	}
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	logger := hlog.FromRequest(r).With().Str("session_id", req.SessionID).Logger()
	sw := &sseWriter{w: w, flusher: flusher, pacing: s.pacing, logger: &logger}

	fail := func(err error) {
		logger.Error().Err(err).Msg("stream failed")
		sw.send(ctx, Frame{Type: FrameError, Error: err.Error()})
	}

	messages, err := s.contextMessages(ctx, req.SessionID, req.Message)
	if err != nil {
		fail(err)
		return
	}

	// current 跟踪当前生成步的累计文本，工具调用后清空
	var current string
	var final *ai.DoneEvent
	var runErr error
	for ev := range s.runner.Stream(ctx, messages) {
		switch e := ev.(type) {
		case ai.TokenEvent:
			current = e.Cumulative
			sw.send(ctx, Frame{Type: FrameToken, Token: e.Text, Content: e.Cumulative})
		case ai.ToolCallStartedEvent:
			current = ""
			sw.send(ctx, Frame{Type: FrameToolCall, Tools: e.Names})
		case ai.ToolCallFinishedEvent:
			sw.send(ctx, Frame{Type: FrameToolResult, Status: "completed"})
		case ai.DoneEvent:
			final = &e
		case ai.FailedEvent:
			runErr = e.Err
		}
	}

	if runErr == nil && final == nil {
		runErr = errors.New("stream ended without a result")
	}
	if runErr != nil {
		fail(runErr)
		return
	}

	response := current
	if response == "" {
		response = final.Content
	}
	if response != "" {
		if err := s.persistExchange(ctx, req.SessionID, req.Message, response); err != nil {
			fail(err)
			return
		}
	}

	sw.send(ctx, Frame{Type: FrameDone, SessionID: req.SessionID, Timestamp: s.timestamp()})
}
