package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/IMBotPlatform/ChatAgent/pkg/memory"
	"github.com/IMBotPlatform/ChatAgent/pkg/server"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// renderer 在终端上使用样式与 markdown 渲染，输出被重定向时退化为纯文本。
type renderer struct {
	out      io.Writer
	styled   bool
	markdown *glamour.TermRenderer
}

func newRenderer(out io.Writer) *renderer {
	r := &renderer{out: out}
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		r.styled = true
		if md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(100),
		); err == nil {
			r.markdown = md
		}
	}
	return r
}

func (r *renderer) style(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}

func (r *renderer) title(text string) { fmt.Fprintln(r.out, r.style(titleStyle, text)) }
func (r *renderer) hint(text string)  { fmt.Fprintln(r.out, r.style(hintStyle, text)) }
func (r *renderer) err(e error)       { fmt.Fprintln(r.out, r.style(errorStyle, "Error: "+e.Error())) }
func (r *renderer) tools(names []string) {
	fmt.Fprintln(r.out, r.style(toolStyle, "\n🔧 Using tools: "+strings.Join(names, ", ")))
}

func (r *renderer) prompt() string    { return r.style(userStyle, "You") + ": " }
func (r *renderer) assistant() string { return r.style(assistantStyle, "Assistant") + ": " }

// history 以 markdown 形式输出一段对话。
func (r *renderer) history(turns []memory.Turn) {
	if len(turns) == 0 {
		r.hint("No messages in this session yet.")
		return
	}
	var b strings.Builder
	for _, t := range turns {
		who := "You"
		if t.Role == memory.RoleAssistant {
			who = "Assistant"
		}
		fmt.Fprintf(&b, "**%s:** %s\n\n", who, t.Content)
	}
	text := b.String()
	if r.markdown != nil {
		if out, err := r.markdown.Render(text); err == nil {
			text = out
		}
	}
	fmt.Fprint(r.out, text)
}

// sessions 输出会话列表，current 对应的行带标记。
func (r *renderer) sessions(list []server.SessionSummary, current string) {
	if len(list) == 0 {
		r.hint("No saved sessions.")
		return
	}
	for i, s := range list {
		marker := " "
		if s.SessionID == current {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %2d. %s  %s\n", marker, i+1, s.SessionID, r.style(hintStyle,
			fmt.Sprintf("(%d messages, last %s)", s.MessageCount, s.LastMessage)))
		fmt.Fprintf(r.out, "      %s\n", s.Preview)
	}
}
