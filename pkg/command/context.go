package command

import (
	"context"
)

// keyExecutionContext 是 context.Context 中存储 ExecutionContext 的键。
type keyExecutionContext struct{}

// ContextValues 存储交互会话的键值状态（例如当前 session id）。
type ContextValues map[string]string

// KeySessionID 是 ContextValues 中保存当前会话 ID 的键。
const KeySessionID = "session_id"

// ConversationStore 定义上下文存取接口，便于替换实现。
type ConversationStore interface {
	Load(key string) (ContextValues, error)
	Save(key string, values ContextValues) error
}

// ExecutionContext 为命令 handler 提供必要的环境信息。
type ExecutionContext struct {
	Key    string // 交互会话标识，用作 ConversationStore 的 key
	Input  ParseResult
	Values ContextValues
	Store  ConversationStore

	quit bool
}

// SessionID 返回当前聊天会话 ID。
func (ctx *ExecutionContext) SessionID() string {
	if ctx == nil {
		return ""
	}
	return ctx.Values[KeySessionID]
}

// SetSessionID 切换当前聊天会话并写回存储。
func (ctx *ExecutionContext) SetSessionID(id string) error {
	if ctx.Values == nil {
		ctx.Values = ContextValues{}
	}
	ctx.Values[KeySessionID] = id
	if ctx.Store == nil {
		return nil
	}
	return ctx.Store.Save(ctx.Key, ContextValues{KeySessionID: id})
}

// Quit 标记本次命令结束后退出交互。
func (ctx *ExecutionContext) Quit() {
	ctx.quit = true
}

// WithExecutionContext 将 ExecutionContext 注入到标准 context.Context 中。
func WithExecutionContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	return context.WithValue(ctx, keyExecutionContext{}, execCtx)
}

// FromContext 从标准 context.Context 中提取 ExecutionContext。
func FromContext(ctx context.Context) *ExecutionContext {
	val, _ := ctx.Value(keyExecutionContext{}).(*ExecutionContext)
	return val
}
