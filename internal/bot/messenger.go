package bot

import (
	"context"

	"chatops-bot/internal/telegram"
)

// Messenger 把平台客户端适配成执行编排器需要的消息能力
type Messenger struct {
	client *telegram.Client
}

// NewMessenger 创建消息适配器
func NewMessenger(client *telegram.Client) *Messenger {
	return &Messenger{client: client}
}

// SendStatusMessage 发送状态消息，空响应返回 (0, nil)
func (m *Messenger) SendStatusMessage(ctx context.Context, chatID, replyTo int64, text string) (int64, error) {
	msg, err := m.client.SendMessage(ctx, telegram.SendOptions{
		ChatID:    chatID,
		Text:      text,
		ParseMode: telegram.ModeHTML,
		ReplyTo:   replyTo,
	})
	if err != nil {
		return 0, err
	}
	if msg == nil {
		return 0, nil
	}
	return msg.MessageID, nil
}

// EditStatusMessage 编辑状态消息
func (m *Messenger) EditStatusMessage(ctx context.Context, chatID, messageID int64, text string) error {
	return m.client.EditMessageText(ctx, chatID, messageID, text, telegram.ModeHTML)
}
