package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/hlog"
)

var features = []string{
	"conversation_memory",
	"tool_calling",
	"streaming_response",
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Message:  "Basic Agent API",
		Version:  s.version,
		Health:   "/health",
		Sessions: "/sessions",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "initializing"
	if s.runner != nil {
		status = "healthy"
	}
	dbStatus := "connected"
	if err := s.store.Ping(r.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         status,
		Timestamp:      s.timestamp(),
		Features:       features,
		DatabaseStatus: dbStatus,
	})
}

// decodeChatRequest 解析请求体，失败时已写出 400。
func decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return req, false
	}
	if req.SessionID == "" {
		req.SessionID = DefaultSessionID
	}
	return req, true
}

// handleChat 同步聊天：摘要 -> Invoke -> 成功后写入一问一答。
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "Agent not initialized")
		return
	}
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := hlog.FromRequest(r).With().Str("session_id", req.SessionID).Logger()

	fail := func(err error) {
		logger.Error().Err(err).Msg("chat failed")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Chat failed: %v", err))
	}

	messages, err := s.contextMessages(ctx, req.SessionID, req.Message)
	if err != nil {
		fail(err)
		return
	}
	response, err := s.runner.Invoke(ctx, messages)
	if err != nil {
		fail(err)
		return
	}
	if err := s.persistExchange(ctx, req.SessionID, req.Message, response); err != nil {
		fail(err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:  response,
		SessionID: req.SessionID,
		Timestamp: s.timestamp(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	limit := DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = min(n, MaxHistoryLimit)
	}

	turns, err := s.store.Recent(r.Context(), sessionID, limit)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("session_id", sessionID).Msg("read history failed")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get history: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		SessionID: sessionID,
		Messages:  turns,
		Count:     len(turns),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	deleted, err := s.store.Clear(r.Context(), sessionID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("session_id", sessionID).Msg("clear history failed")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to clear history: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, ClearResponse{
		Status:          "success",
		Message:         fmt.Sprintf("History cleared for session %s", sessionID),
		DeletedMessages: deleted,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.ListSessions(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list sessions failed")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list sessions: %v", err))
		return
	}
	out := SessionsResponse{Sessions: make([]SessionSummary, 0, len(infos))}
	for _, info := range infos {
		out.Sessions = append(out.Sessions, SessionSummary{
			SessionID:    info.SessionID,
			FirstMessage: info.FirstMessage.UTC().Format(timestampLayout),
			LastMessage:  info.LastMessage.UTC().Format(timestampLayout),
			MessageCount: info.MessageCount,
			Preview:      info.Preview,
		})
	}
	out.Count = len(out.Sessions)
	writeJSON(w, http.StatusOK, out)
}
