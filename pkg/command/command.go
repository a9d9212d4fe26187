package command

import "github.com/spf13/cobra"

// CommandFactory 定义创建 Cobra 命令树的工厂函数类型。
// 每次输入都构建一棵新的命令树，避免上一条命令残留的 Flag 值影响下一条。
type CommandFactory func() *cobra.Command
