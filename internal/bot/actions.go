package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	"chatops-bot/internal/exec"
)

// Ping 连通性测试动作
type Ping struct{}

func (Ping) Name() string { return "ping" }
func (Ping) Help() string { return "Ping the bot" }
func (Ping) Hidden() bool { return false }

func (Ping) Invoke(ctx context.Context, c *Context) error {
	if err := c.ReplyHTML(ctx, "Pong!"); err != nil {
		return fmt.Errorf("failed to send response message: %w", err)
	}
	return nil
}

// Help 帮助列表动作，内容由注册表生成
type Help struct {
	dispatcher *Dispatcher
}

// NewHelp 创建帮助动作
func NewHelp(dispatcher *Dispatcher) *Help {
	return &Help{dispatcher: dispatcher}
}

func (*Help) Name() string { return "help" }
func (*Help) Help() string { return "Show help" }
func (*Help) Hidden() bool { return false }

func (h *Help) Invoke(ctx context.Context, c *Context) error {
	text := "<b>Commands:</b>\n" + buildHelpList(h.dispatcher.Actions())
	if err := c.ReplyHTML(ctx, text); err != nil {
		return fmt.Errorf("failed to send response message: %w", err)
	}
	return nil
}

// Start 私聊欢迎动作
type Start struct {
	dispatcher *Dispatcher
}

// NewStart 创建欢迎动作
func NewStart(dispatcher *Dispatcher) *Start {
	return &Start{dispatcher: dispatcher}
}

func (*Start) Name() string { return "start" }
func (*Start) Help() string { return "Start using the bot" }
func (*Start) Hidden() bool { return true }

func (s *Start) Invoke(ctx context.Context, c *Context) error {
	name := ""
	if c.Message.From != nil {
		name = c.Message.From.FirstName
	}
	text := fmt.Sprintf(
		"<b>Welcome %s!</b>\n\n"+
			"This bot adds useful features to group chats such as message stats tracking "+
			"and sandboxed command execution. Add @%s to a group chat to start using it.\n\n"+
			"You may choose one of the following commands to try it out:\n\n%s",
		html.EscapeString(name), c.BotName, buildHelpList(s.dispatcher.Actions()))
	if err := c.ReplyHTML(ctx, text); err != nil {
		return fmt.Errorf("failed to send response message: %w", err)
	}
	return nil
}

// ID 标识信息动作，回显会话与用户 ID
type ID struct{}

func (ID) Name() string { return "id" }
func (ID) Help() string { return "Show chat and user IDs" }
func (ID) Hidden() bool { return false }

func (ID) Invoke(ctx context.Context, c *Context) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Chat ID: <code>%d</code>", c.Message.Chat.ID)
	if c.Message.Chat.Title != "" {
		fmt.Fprintf(&b, "\nChat title: <code>%s</code>", html.EscapeString(c.Message.Chat.Title))
	}
	if from := c.Message.From; from != nil {
		fmt.Fprintf(&b, "\nUser ID: <code>%d</code>", from.ID)
		if from.Username != "" {
			fmt.Fprintf(&b, "\nUsername: <code>@%s</code>", html.EscapeString(from.Username))
		}
	}
	fmt.Fprintf(&b, "\nMessage ID: <code>%d</code>", c.Message.MessageID)

	if err := c.ReplyHTML(ctx, b.String()); err != nil {
		return fmt.Errorf("failed to send response message: %w", err)
	}
	return nil
}

// Stats 统计报表动作
type Stats struct{}

func (Stats) Name() string { return "stats" }
func (Stats) Help() string { return "Display message stats" }
func (Stats) Hidden() bool { return false }

func (Stats) Invoke(ctx context.Context, c *Context) error {
	var forUser *int64
	if c.Message.From != nil {
		forUser = &c.Message.From.ID
	}

	report, err := c.Queue.FetchChatStats(ctx, c.Reports, c.Message.Chat.ID, forUser)
	if err != nil {
		return fmt.Errorf("failed to fetch message stats: %w", err)
	}

	if err := c.ReplyHTML(ctx, report.FormatReport()); err != nil {
		return fmt.Errorf("failed to send response message: %w", err)
	}
	return nil
}

// Exec 沙箱命令执行动作
type Exec struct {
	orchestrator *exec.Orchestrator
}

// NewExec 创建命令执行动作
func NewExec(orchestrator *exec.Orchestrator) *Exec {
	return &Exec{orchestrator: orchestrator}
}

func (*Exec) Name() string { return "exec" }
func (*Exec) Help() string { return "Execute a shell command" }
func (*Exec) Hidden() bool { return false }

func (e *Exec) Invoke(ctx context.Context, c *Context) error {
	return e.orchestrator.ExecuteAndReport(ctx, c.Message.Chat.ID, c.Message.MessageID, c.Args)
}
