// Package bot 消息路由与命令动作
//
// 入站更新先计入统计，再按命令正则路由到注册的动作。
// 动作执行中的 panic 被派发器捕获，热路径不会因单个命令崩溃。
package bot

import (
	"context"

	"chatops-bot/internal/stats"
	"chatops-bot/internal/telegram"
	"chatops-bot/pkg/logging"
)

// Context 一次命令调用的上下文
type Context struct {
	Client  *telegram.Client
	Message *telegram.Message
	Args    string // 命令名之后的原始参数文本
	Queue   *stats.Queue
	Reports stats.ReportStore
	BotName string
	Log     *logging.Logger
}

// ReplyHTML 以 HTML 模式回复触发消息
func (c *Context) ReplyHTML(ctx context.Context, text string) error {
	_, err := c.Client.SendMessage(ctx, telegram.SendOptions{
		ChatID:    c.Message.Chat.ID,
		Text:      text,
		ParseMode: telegram.ModeHTML,
		ReplyTo:   c.Message.MessageID,
	})
	return err
}
