package bot

import (
	"context"
	"fmt"
	"html"

	"chatops-bot/internal/stats"
	"chatops-bot/internal/telegram"
	"chatops-bot/pkg/logging"
)

// Handler 入站更新处理器
//
// 每个更新先计入统计（新消息 +1 message，编辑 +1 edit），
// 文本消息再尝试按命令路由。统计记录只做内存操作，永远先于
// 路由完成，命令失败不影响计数。
type Handler struct {
	client     *telegram.Client
	queue      *stats.Queue
	dispatcher *Dispatcher
	reports    stats.ReportStore
	botName    string
	log        *logging.Logger
}

// NewHandler 创建更新处理器
func NewHandler(client *telegram.Client, queue *stats.Queue, dispatcher *Dispatcher, reports stats.ReportStore, botName string, log *logging.Logger) *Handler {
	return &Handler{
		client:     client,
		queue:      queue,
		dispatcher: dispatcher,
		reports:    reports,
		botName:    botName,
		log:        log,
	}
}

// HandleUpdate 处理单个更新
func (h *Handler) HandleUpdate(ctx context.Context, upd *telegram.Update) error {
	switch {
	case upd.Message != nil:
		h.queue.Increase(upd.Message, 1, 0)
		return h.handleMessage(ctx, upd.Message)
	case upd.EditedMessage != nil:
		// 编辑只计数，不触发命令
		h.queue.Increase(upd.EditedMessage, 0, 1)
		return nil
	}
	return nil
}

// handleMessage 路由一条新消息
func (h *Handler) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.Text == "" {
		return nil
	}

	log := h.log.WithChat(msg.Chat.ID)
	if msg.From != nil {
		log = log.WithUser(msg.From.ID)
	}
	log.Debug("Inbound message", "text", msg.Text)

	if cmd, args, ok := MatchCommand(msg.Text, h.botName); ok {
		c := &Context{
			Client:  h.client,
			Message: msg,
			Args:    args,
			Queue:   h.queue,
			Reports: h.reports,
			BotName: h.botName,
			Log:     log,
		}
		if err := h.dispatcher.Dispatch(ctx, c, cmd); err != nil {
			return fmt.Errorf("failed to process command message: %w", err)
		}
		return nil
	}

	if msg.IsPrivate() {
		return h.handlePrivate(ctx, msg)
	}
	return nil
}

// handlePrivate 回应不含命令的私聊消息
func (h *Handler) handlePrivate(ctx context.Context, msg *telegram.Message) error {
	name := ""
	if msg.From != nil {
		name = msg.From.FirstName
	}
	_, err := h.client.SendMessage(ctx, telegram.SendOptions{
		ChatID: msg.Chat.ID,
		Text: fmt.Sprintf("<code>BLEEP BLOOP</code>\n<code>I AM A BOT</code>\n\n%s, direct messages are not supported yet.",
			html.EscapeString(name)),
		ParseMode: telegram.ModeHTML,
		ReplyTo:   msg.MessageID,
	})
	if err != nil {
		return fmt.Errorf("failed to process private message: %w", err)
	}
	return nil
}
