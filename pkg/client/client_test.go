package client_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IMBotPlatform/ChatAgent/pkg/client"
	"github.com/IMBotPlatform/ChatAgent/pkg/server"
)

func TestClient_Stream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/stream", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"type":"token","token":"Hi","content":"Hi"}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"tool_call","tools":["get_world_time"]}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"tool_result","status":"completed"}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"done","session_id":"s","timestamp":"2025-01-01T00:00:00.000000"}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"token","token":"ignored"}`+"\n\n")
	}))
	defer ts.Close()

	var got []server.Frame
	err := client.New(ts.URL).Stream(context.Background(), "s", "hello", func(f server.Frame) error {
		got = append(got, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.Equal(t, []string{"get_world_time"}, got[1].Tools)
	require.Equal(t, server.FrameDone, got[3].Type)
}

func TestClient_StreamErrorFrame(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"type":"error","error":"boom"}`+"\n\n")
	}))
	defer ts.Close()

	err := client.New(ts.URL).Stream(context.Background(), "s", "hello", nil)
	require.EqualError(t, err, "boom")
}

func TestClient_StreamTruncated(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"type":"token","token":"a","content":"a"}`+"\n\n")
	}))
	defer ts.Close()

	err := client.New(ts.URL).Stream(context.Background(), "s", "hello", nil)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestClient_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"detail":"Agent not initialized"}`)
	}))
	defer ts.Close()

	err := client.New(ts.URL).Stream(context.Background(), "s", "hello", nil)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	require.Equal(t, "Agent not initialized", apiErr.Detail)
}

func TestClient_HistorySessionsClear(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /history/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "a b", r.PathValue("id"))
		require.Equal(t, "3", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"session_id":"a b","messages":[{"role":"user","content":"hi"}],"count":1}`)
	})
	mux.HandleFunc("DELETE /history/{id}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","message":"History cleared for session x","deleted_messages":4}`)
	})
	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sessions":[{"session_id":"x","message_count":2,"preview":"hi"}],"count":1}`)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"healthy","features":[],"database_status":"connected"}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := client.New(ts.URL + "/")
	ctx := context.Background()

	hist, err := c.History(ctx, "a b", 3)
	require.NoError(t, err)
	require.Equal(t, 1, hist.Count)
	require.Equal(t, "hi", hist.Messages[0].Content)

	n, err := c.Clear(ctx, "x")
	require.NoError(t, err)
	require.EqualValues(t, 4, n)

	sessions, err := c.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "hi", sessions[0].Preview)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, "healthy", health.Status)
}
