package server

import "github.com/IMBotPlatform/ChatAgent/pkg/memory"

// ChatRequest 是 /chat 与 /chat/stream 的请求体。
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
}

type RootResponse struct {
	Message  string `json:"message"`
	Version  string `json:"version"`
	Health   string `json:"health"`
	Sessions string `json:"sessions"`
}

type HealthResponse struct {
	Status         string   `json:"status"`
	Timestamp      string   `json:"timestamp"`
	Features       []string `json:"features"`
	DatabaseStatus string   `json:"database_status"`
}

type HistoryResponse struct {
	SessionID string        `json:"session_id"`
	Messages  []memory.Turn `json:"messages"`
	Count     int           `json:"count"`
}

type ClearResponse struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	DeletedMessages int64  `json:"deleted_messages"`
}

// SessionSummary 是 /sessions 中的一项。
type SessionSummary struct {
	SessionID    string `json:"session_id"`
	FirstMessage string `json:"first_message"`
	LastMessage  string `json:"last_message"`
	MessageCount int    `json:"message_count"`
	Preview      string `json:"preview"`
}

type SessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Count    int              `json:"count"`
}

// Frame 类型。
const (
	FrameToken      = "token"
	FrameToolCall   = "tool_call"
	FrameToolResult = "tool_result"
	FrameDone       = "done"
	FrameError      = "error"
)

// Frame 是一个 SSE 数据帧（data: {json}）。按 Type 只填对应字段：
//
//	token       Token, Content(累计文本)
//	tool_call   Tools
//	tool_result Status
//	done        SessionID, Timestamp
//	error       Error
type Frame struct {
	Type      string   `json:"type"`
	Token     string   `json:"token,omitempty"`
	Content   string   `json:"content,omitempty"`
	Tools     []string `json:"tools,omitempty"`
	Status    string   `json:"status,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Error     string   `json:"error,omitempty"`
}
