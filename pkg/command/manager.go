package command

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

const commandLogSnippet = 256

// Manager 串联解析、构建 Cobra 命令树并执行斜杠命令。
type Manager struct {
	factory CommandFactory
	parser  Parser
	store   ConversationStore
	logger  zerolog.Logger
}

// ManagerOption 自定义 Manager 行为。
type ManagerOption func(*Manager)

// WithLogger 注入自定义日志记录器。
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithPrefix 修改命令前缀，默认 "/"。
func WithPrefix(prefix string) ManagerOption {
	return func(m *Manager) {
		m.parser.Prefix = prefix
	}
}

// NewManager 绑定命令工厂与存储。
func NewManager(factory CommandFactory, store ConversationStore, opts ...ManagerOption) *Manager {
	mgr := &Manager{
		factory: factory,
		parser:  NewParser(),
		store:   store,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// IsCommand 判断一行输入是否应交给 Execute。
func (m *Manager) IsCommand(line string) bool {
	return m.parser.Parse(line).IsCommand
}

// Execute 为一行输入构建独立的命令树并执行，命令输出写入 out。
//
// 流程:
//
//	Parse -> (非命令) -> ErrCommandRequired
//	  |
//	Load Values(key) -> Build Cobra Tree -> Execute -> (Quit?) -> ErrQuit
//
// 未注册的命令返回包装了 ErrCommandNotFound 的错误。
func (m *Manager) Execute(ctx context.Context, key, line string, out io.Writer) error {
	if m == nil || m.factory == nil {
		return fmt.Errorf("command manager not initialized")
	}

	// 1. 初步解析
	parsed := m.parser.Parse(line)
	if !parsed.IsCommand {
		return ErrCommandRequired
	}

	// 2. 创建 Cobra 命令树
	rootCmd := m.factory()
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.InitDefaultHelpCmd()

	// 3. 准备上下文
	execCtx := &ExecutionContext{
		Key:   key,
		Input: parsed,
		Store: m.store,
	}
	if m.store != nil {
		if values, err := m.store.Load(key); err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("load command context failed")
		} else {
			execCtx.Values = values
		}
	}
	if execCtx.Values == nil {
		execCtx.Values = ContextValues{}
	}

	args := parsed.Tokens
	// 如果第一个 token 匹配 root command 的 name，移除它以避免 "unknown command X for X" 错误
	if len(args) > 0 && strings.EqualFold(args[0], rootCmd.Name()) {
		args = args[1:]
	}
	if len(args) == 0 {
		return ErrCommandRequired
	}
	if sub, _, err := rootCmd.Find(args); err != nil || sub == rootCmd {
		return fmt.Errorf("%w: /%s", ErrCommandNotFound, args[0])
	}

	// 4. 执行
	rootCmd.SetArgs(args)
	m.logger.Debug().Str("key", key).Str("input", truncateForLog(parsed.Raw, commandLogSnippet)).Msg("executing command")

	if err := rootCmd.ExecuteContext(WithExecutionContext(ctx, execCtx)); err != nil {
		m.logger.Debug().Err(err).Msg("command failed")
		return err
	}
	if execCtx.quit {
		return ErrQuit
	}
	return nil
}

// truncateForLog 限制日志中输出的文本长度。
func truncateForLog(src string, limit int) string {
	if limit <= 0 || len(src) <= limit {
		return src
	}
	return fmt.Sprintf("%s...(truncated)", src[:limit])
}
