package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/IMBotPlatform/ChatAgent/pkg/tools"
)

// scriptStep 描述假模型的一次回复。
type scriptStep struct {
	chunks    []string // 流式模式下依次推送的片段
	content   string
	toolCalls []llms.ToolCall
	err       error
}

// scriptedModel 按顺序回放 steps，并记录每次收到的消息。
type scriptedModel struct {
	mu       sync.Mutex
	steps    []scriptStep
	calls    int
	received [][]llms.MessageContent
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.received = append(m.received, append([]llms.MessageContent(nil), messages...))
	m.mu.Unlock()

	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}

	// 超出脚本时一直请求同一个工具，用于测试步数上限
	step := scriptStep{toolCalls: []llms.ToolCall{toolCall("loop", "echo", `{}`)}}
	if idx < len(m.steps) {
		step = m.steps[idx]
	}
	if step.err != nil {
		return nil, step.err
	}
	if opts.StreamingFunc != nil {
		for _, c := range step.chunks {
			if err := opts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:   step.content,
		ToolCalls: step.toolCalls,
	}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}
}

// echoTool 原样返回输入，记录调用次数。
type echoTool struct {
	name  string
	err   error
	mu    sync.Mutex
	calls []string
}

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "echo input" }
func (e *echoTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (e *echoTool) Call(_ context.Context, input string) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, input)
	e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	return "echo:" + input, nil
}

func drain(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func lastToolResponse(t *testing.T, msgs []llms.MessageContent) llms.ToolCallResponse {
	t.Helper()
	last := msgs[len(msgs)-1]
	if last.Role != llms.ChatMessageTypeTool {
		t.Fatalf("expected tool message last, got %s", last.Role)
	}
	resp, ok := last.Parts[0].(llms.ToolCallResponse)
	if !ok {
		t.Fatalf("expected ToolCallResponse part, got %T", last.Parts[0])
	}
	return resp
}

func TestGraphInvoke_NoToolCall(t *testing.T) {
	model := &scriptedModel{steps: []scriptStep{{content: "hi there"}}}
	g := NewGraph(model, nil)

	out, err := g.Invoke(context.Background(), BuildMessages("", "hello"))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out != "hi there" {
		t.Fatalf("unexpected output %q", out)
	}
	if model.calls != 1 {
		t.Fatalf("expected 1 generate call, got %d", model.calls)
	}
}

func TestGraphInvoke_CurrencySingleDispatch(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"rates":{"EUR":0.9}}`))
	}))
	defer upstream.Close()

	model := &scriptedModel{steps: []scriptStep{
		{toolCalls: []llms.ToolCall{toolCall("c1", "convert_currency", `{"amount":10,"from_currency":"USD","to_currency":"EUR"}`)}},
		{content: "10 USD is 9.00 EUR."},
	}}
	toolset := []tools.Tool{tools.NewCurrency(tools.WithBaseURL(upstream.URL))}
	g := NewGraph(model, toolset)

	out, err := g.Invoke(context.Background(), BuildMessages("", "What is 10 USD in EUR?"))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out != "10 USD is 9.00 EUR." {
		t.Fatalf("unexpected output %q", out)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected exactly one currency dispatch, got %d", n)
	}

	second := model.received[1]
	// human, ai(tool call), tool
	if len(second) != 3 {
		t.Fatalf("expected 3 messages on second step, got %d", len(second))
	}
	resp := lastToolResponse(t, second)
	if resp.ToolCallID != "c1" || resp.Name != "convert_currency" {
		t.Fatalf("unexpected tool response %+v", resp)
	}
	if !strings.HasPrefix(resp.Content, "10 USD = 9.00 EUR") {
		t.Fatalf("unexpected tool content %q", resp.Content)
	}
}

func TestGraphInvoke_UnknownToolAndToolError(t *testing.T) {
	failing := &echoTool{name: "broken", err: errors.New("kaput")}
	model := &scriptedModel{steps: []scriptStep{
		{toolCalls: []llms.ToolCall{toolCall("a", "missing", `{}`)}},
		{toolCalls: []llms.ToolCall{toolCall("b", "broken", `{}`)}},
		{content: "done"},
	}}
	g := NewGraph(model, []tools.Tool{failing})

	out, err := g.Invoke(context.Background(), BuildMessages("", "go"))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out != "done" {
		t.Fatalf("unexpected output %q", out)
	}
	if got := lastToolResponse(t, model.received[1]).Content; got != "Error: Tool missing not found" {
		t.Fatalf("unexpected unknown-tool result %q", got)
	}
	if got := lastToolResponse(t, model.received[2]).Content; got != "Error: kaput" {
		t.Fatalf("unexpected tool-error result %q", got)
	}
}

func TestGraphInvoke_ToolCallWithoutFunction(t *testing.T) {
	model := &scriptedModel{steps: []scriptStep{
		{toolCalls: []llms.ToolCall{{ID: "x", Type: "function"}}},
		{content: "recovered"},
	}}
	g := NewGraph(model, []tools.Tool{&echoTool{name: "echo"}})

	out, err := g.Invoke(context.Background(), BuildMessages("", "go"))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out != "recovered" {
		t.Fatalf("unexpected output %q", out)
	}
	resp := lastToolResponse(t, model.received[1])
	if resp.ToolCallID != "x" || resp.Name != "unknown" {
		t.Fatalf("unexpected tool response %+v", resp)
	}
	if resp.Content != "Error: tool call without function" {
		t.Fatalf("unexpected tool content %q", resp.Content)
	}
}

func TestGraphStream_ToolCallWithoutFunction(t *testing.T) {
	model := &scriptedModel{steps: []scriptStep{
		{toolCalls: []llms.ToolCall{{ID: "x", Type: "function"}}},
		{chunks: []string{"ok"}, content: "ok"},
	}}
	g := NewGraph(model, nil)

	events := drain(g.Stream(context.Background(), BuildMessages("", "go")))
	if len(events) == 0 {
		t.Fatal("expected events")
	}
	if done, ok := events[len(events)-1].(DoneEvent); !ok || done.Content != "ok" {
		t.Fatalf("expected DoneEvent last, got %#v", events[len(events)-1])
	}
}

func TestGraphInvoke_DispatchOrder(t *testing.T) {
	echo := &echoTool{name: "echo"}
	model := &scriptedModel{steps: []scriptStep{
		{toolCalls: []llms.ToolCall{toolCall("1", "echo", "first"), toolCall("2", "echo", "second")}},
		{content: "ok"},
	}}
	g := NewGraph(model, []tools.Tool{echo})

	if _, err := g.Invoke(context.Background(), BuildMessages("", "x")); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(echo.calls) != 2 || echo.calls[0] != "first" || echo.calls[1] != "second" {
		t.Fatalf("unexpected dispatch order %v", echo.calls)
	}
	msgs := model.received[1]
	if len(msgs) != 4 {
		t.Fatalf("expected human, ai and two tool messages, got %d", len(msgs))
	}
	if r := msgs[2].Parts[0].(llms.ToolCallResponse); r.ToolCallID != "1" {
		t.Fatalf("first response should answer call 1, got %s", r.ToolCallID)
	}
}

func TestGraphInvoke_MaxTurns(t *testing.T) {
	model := &scriptedModel{}
	g := NewGraph(model, []tools.Tool{&echoTool{name: "echo"}}, WithMaxTurns(3))

	_, err := g.Invoke(context.Background(), BuildMessages("", "loop"))
	if !errors.Is(err, ErrMaxTurns) {
		t.Fatalf("expected ErrMaxTurns, got %v", err)
	}
	if model.calls != 3 {
		t.Fatalf("expected 3 generate calls, got %d", model.calls)
	}
}

func TestGraphInvoke_ModelError(t *testing.T) {
	boom := errors.New("rate limited")
	g := NewGraph(&scriptedModel{steps: []scriptStep{{err: boom}}}, nil)

	_, err := g.Invoke(context.Background(), BuildMessages("", "x"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped model error, got %v", err)
	}
}

func TestGraphStream_EventOrder(t *testing.T) {
	model := &scriptedModel{steps: []scriptStep{
		{
			chunks:    []string{"Let me check. ", `[{"index":0,"id":"w","type":"function","function":{"name":"echo","arguments":""}}]`},
			content:   "Let me check. ",
			toolCalls: []llms.ToolCall{toolCall("w", "echo", `{"city":"Paris"}`)},
		},
		{chunks: []string{"It is ", "sunny."}, content: "It is sunny."},
	}}
	g := NewGraph(model, []tools.Tool{&echoTool{name: "echo"}})

	events := drain(g.Stream(context.Background(), BuildMessages("", "weather?")))

	var kinds []string
	for _, ev := range events {
		switch e := ev.(type) {
		case TokenEvent:
			kinds = append(kinds, "token:"+e.Cumulative)
		case ToolCallStartedEvent:
			kinds = append(kinds, "start:"+strings.Join(e.Names, ","))
		case ToolCallFinishedEvent:
			kinds = append(kinds, "end:"+e.Name)
		case DoneEvent:
			kinds = append(kinds, "done:"+e.Content)
		case FailedEvent:
			kinds = append(kinds, "failed")
		}
	}
	want := []string{
		"token:Let me check. ",
		"start:echo",
		"end:echo",
		"token:It is ",
		"token:It is sunny.",
		"done:It is sunny.",
	}
	if strings.Join(kinds, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected events\n got: %v\nwant: %v", kinds, want)
	}
}

func TestGraphStream_FailureIsTerminal(t *testing.T) {
	model := &scriptedModel{steps: []scriptStep{{err: errors.New("upstream down")}}}
	g := NewGraph(model, nil)

	events := drain(g.Stream(context.Background(), BuildMessages("", "x")))
	if len(events) != 1 {
		t.Fatalf("expected a single event, got %d", len(events))
	}
	failed, ok := events[0].(FailedEvent)
	if !ok || !strings.Contains(failed.Err.Error(), "upstream down") {
		t.Fatalf("expected FailedEvent, got %#v", events[0])
	}
}

func TestGraphStream_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGraph(&scriptedModel{steps: []scriptStep{{content: "never"}}}, nil)

	events := drain(g.Stream(ctx, BuildMessages("", "x")))
	if len(events) != 1 {
		t.Fatalf("expected a single event, got %d", len(events))
	}
	if f, ok := events[0].(FailedEvent); !ok || !errors.Is(f.Err, context.Canceled) {
		t.Fatalf("expected cancelled FailedEvent, got %#v", events[0])
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("Recent conversation:\nuser: hi", "next")
	if len(msgs) != 2 || msgs[0].Role != llms.ChatMessageTypeSystem || msgs[1].Role != llms.ChatMessageTypeHuman {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if len(BuildMessages("", "only")) != 1 {
		t.Fatal("empty summary must not add a system message")
	}
}

func TestIsToolCallChunk(t *testing.T) {
	cases := map[string]bool{
		`[{"index":0,"function":{"name":"x"}}]`: true,
		`{"name":"x","arguments":"{}"}`:         true,
		`[1,2,3]`:                               false,
		`{"answer":42}`:                         false,
		`hello`:                                 false,
		`[`:                                     false,
	}
	for in, want := range cases {
		if got := isToolCallChunk([]byte(in)); got != want {
			t.Errorf("isToolCallChunk(%q) = %v, want %v", in, got, want)
		}
	}
}
