// Package telegram 消息平台客户端
//
// 通过 Bot API 长轮询接收更新、发送与编辑消息。
// 只建模机器人实际用到的字段，未知字段由 JSON 解码自动忽略。
package telegram

import "encoding/json"

// Update 一次长轮询返回的单个更新
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message,omitempty"`        // 新消息
	EditedMessage *Message `json:"edited_message,omitempty"` // 编辑过的消息
}

// User 消息发送者
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
}

// Chat 消息所属会话
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"` // private / group / supergroup / channel
	Title string `json:"title,omitempty"`
}

// Document 文件附件，GIF 检测依赖 mime 类型与文件名
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Message 入站或出站消息
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`

	Audio           *struct{}       `json:"audio,omitempty"`
	Document        *Document       `json:"document,omitempty"`
	Photo           []struct{}      `json:"photo,omitempty"`
	Sticker         *struct{}       `json:"sticker,omitempty"`
	Video           *struct{}       `json:"video,omitempty"`
	Voice           *struct{}       `json:"voice,omitempty"`
	VideoNote       *struct{}       `json:"video_note,omitempty"`
	Contact         *struct{}       `json:"contact,omitempty"`
	Location        *struct{}       `json:"location,omitempty"`
	Venue           *struct{}       `json:"venue,omitempty"`
	NewChatTitle    string          `json:"new_chat_title,omitempty"`
	NewChatPhoto    []struct{}      `json:"new_chat_photo,omitempty"`
	DeleteChatPhoto bool            `json:"delete_chat_photo,omitempty"`
	PinnedMessage   json.RawMessage `json:"pinned_message,omitempty"` // 不递归解码被置顶消息
	NewChatMembers  []User          `json:"new_chat_members,omitempty"`
	LeftChatMember  *User           `json:"left_chat_member,omitempty"`

	ForwardFrom *User `json:"forward_from,omitempty"`
	ForwardDate int64 `json:"forward_date,omitempty"`
}

// IsForward 消息是否为转发
func (m *Message) IsForward() bool {
	return m.ForwardFrom != nil || m.ForwardDate != 0
}

// IsPrivate 是否为私聊消息
func (m *Message) IsPrivate() bool {
	return m.Chat.Type == "private"
}

// ParseMode 消息格式化模式
type ParseMode string

const (
	ModePlain    ParseMode = ""
	ModeHTML     ParseMode = "HTML"
	ModeMarkdown ParseMode = "Markdown"
)
