package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/IMBotPlatform/ChatAgent/pkg/client"
	"github.com/IMBotPlatform/ChatAgent/pkg/command"
	"github.com/IMBotPlatform/ChatAgent/pkg/server"
)

// replKey 是 REPL 在 command.ConversationStore 中的状态 key。单进程只有一个交互会话。
const replKey = "repl"

func newChatCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			r := newREPL(opts.client(), cmd.InOrStdin(), cmd.OutOrStdout(), opts.logger)
			return r.Run(ctx, sessionID)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "resume an existing session id (default: new session)")
	return cmd
}

// repl 读取输入行：斜杠命令交给 command.Manager，其余发送到 /chat/stream。
type repl struct {
	client  *client.Client
	manager *command.Manager
	state   *command.MemoryStore
	in      io.Reader
	out     io.Writer
	render  *renderer
	logger  zerolog.Logger
}

func newREPL(c *client.Client, in io.Reader, out io.Writer, logger zerolog.Logger) *repl {
	r := &repl{
		client: c,
		state:  command.NewMemoryStore(),
		in:     in,
		out:    out,
		render: newRenderer(out),
		logger: logger,
	}
	r.manager = command.NewManager(r.slashCommands, r.state, command.WithLogger(logger))
	return r
}

func (r *repl) sessionID() string {
	values, _ := r.state.Load(replKey)
	return values[command.KeySessionID]
}

// Run 运行交互循环，直到 /quit、EOF 或 ctx 取消。
func (r *repl) Run(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	_ = r.state.Save(replKey, command.ContextValues{command.KeySessionID: sessionID})

	r.render.title("🤖 Chat Agent")
	r.render.hint(fmt.Sprintf("Server %s · session %s · /help for commands", r.client.BaseURL(), sessionID))
	if health, err := r.client.Health(ctx); err != nil {
		r.render.err(fmt.Errorf("server unreachable: %w", err))
	} else if health.Status != "healthy" {
		r.render.hint("Server status: " + health.Status)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(r.out, r.render.prompt())
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if r.manager.IsCommand(line) {
			err := r.manager.Execute(ctx, replKey, line, r.out)
			switch {
			case errors.Is(err, command.ErrQuit):
				r.render.hint("Goodbye!")
				return nil
			case errors.Is(err, command.ErrCommandNotFound):
				r.render.err(fmt.Errorf("%v (try /help)", err))
			case err != nil:
				r.render.err(err)
			}
			continue
		}

		if err := r.send(ctx, line); err != nil {
			r.render.err(err)
		}
	}
}

// send 流式发送一条消息并把帧渲染到终端。
func (r *repl) send(ctx context.Context, message string) error {
	fmt.Fprint(r.out, r.render.assistant())
	err := r.client.Stream(ctx, r.sessionID(), message, func(f server.Frame) error {
		switch f.Type {
		case server.FrameToken:
			fmt.Fprint(r.out, f.Token)
		case server.FrameToolCall:
			r.render.tools(f.Tools)
		case server.FrameToolResult:
			r.logger.Debug().Msg("tool completed")
		case server.FrameDone:
			fmt.Fprintln(r.out)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(r.out)
	}
	return err
}
