package ai

// Event 是 Graph.Stream 产生的事件，封闭集合：
// TokenEvent / ToolCallStartedEvent / ToolCallFinishedEvent / DoneEvent / FailedEvent。
// 每次运行以且仅以一个 DoneEvent 或 FailedEvent 结束。
type Event interface {
	isEvent()
}

// TokenEvent 携带一个增量文本片段及本轮生成至今的累计文本。
type TokenEvent struct {
	Text       string
	Cumulative string
}

// ToolCallStartedEvent 表示模型请求调用一批工具，按请求顺序列出名称。
type ToolCallStartedEvent struct {
	Names []string
}

// ToolCallFinishedEvent 表示一个工具调用已执行完毕。
type ToolCallFinishedEvent struct {
	Name string
}

// DoneEvent 是成功结束的终止事件，Content 为最终助手回复。
type DoneEvent struct {
	Content string
}

// FailedEvent 是失败结束的终止事件。
type FailedEvent struct {
	Err error
}

func (TokenEvent) isEvent()            {}
func (ToolCallStartedEvent) isEvent()  {}
func (ToolCallFinishedEvent) isEvent() {}
func (DoneEvent) isEvent()             {}
func (FailedEvent) isEvent()           {}
