// Package model 定义核心数据模型
//
// 数据模型与存储层解耦：chat / user / chat_user_stats 三张表
// 以 (chat_id, user_id, message_kind) 为统计维度记录消息与编辑计数。
package model

import "time"

// Chat 表示一个群聊或私聊会话
type Chat struct {
	ID        int64     `json:"id" db:"id"`                 // 平台分配的会话 ID
	Title     string    `json:"title" db:"title"`           // 会话标题（私聊为空）
	CreatedAt time.Time `json:"created_at" db:"created_at"` // 创建时间
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // 更新时间
}

// User 表示一个消息发送者
type User struct {
	ID        int64     `json:"id" db:"id"`                             // 平台分配的用户 ID
	FirstName string    `json:"first_name" db:"first_name"`             // 名
	LastName  *string   `json:"last_name,omitempty" db:"last_name"`     // 姓（可空）
	CreatedAt time.Time `json:"created_at" db:"created_at"`             // 创建时间
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`             // 更新时间
}

// ChatUserStat 表示某会话内某用户某消息类型的累计计数
// 主键为 (chat_id, user_id, message_kind)
type ChatUserStat struct {
	ChatID      int64       `json:"chat_id" db:"chat_id"`
	UserID      int64       `json:"user_id" db:"user_id"`
	MessageKind MessageKind `json:"message_kind" db:"message_kind"`
	Messages    int64       `json:"messages" db:"messages"` // 消息计数
	Edits       int64       `json:"edits" db:"edits"`       // 编辑计数
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// ChatStatRow 报表查询用的统计行，联了用户名
type ChatStatRow struct {
	UserID      int64   `json:"user_id" db:"user_id"`
	FirstName   string  `json:"first_name" db:"first_name"`
	LastName    *string `json:"last_name,omitempty" db:"last_name"`
	MessageKind int16   `json:"message_kind" db:"message_kind"`
	Messages    int64   `json:"messages" db:"messages"`
	Edits       int64   `json:"edits" db:"edits"`
}

// MessageKind 消息类型标签，作为统计维度持久化为小整数
type MessageKind int16

const (
	KindText MessageKind = iota + 1
	KindCommand
	KindAudio
	KindDocument
	KindGif
	KindPhoto
	KindSticker
	KindVideo
	KindVoice
	KindVideoNote
	KindContact
	KindLocation
	KindVenue
	KindChatTitle
	KindChatPhoto
	KindPinnedMessage
	KindForward
)

// KindFromID 根据持久化 ID 还原消息类型，未知 ID 返回 false
func KindFromID(id int16) (MessageKind, bool) {
	if id < int16(KindText) || id > int16(KindForward) {
		return 0, false
	}
	return MessageKind(id), true
}

// ID 返回持久化用的小整数 ID
func (k MessageKind) ID() int16 {
	return int16(k)
}

// kindNames 各消息类型的展示名称
var kindNames = map[MessageKind]string{
	KindText:          "text message",
	KindCommand:       "command",
	KindAudio:         "audio message",
	KindDocument:      "document",
	KindGif:           "GIF",
	KindPhoto:         "photo",
	KindSticker:       "sticker",
	KindVideo:         "video",
	KindVoice:         "voice message",
	KindVideoNote:     "video note",
	KindContact:       "contact",
	KindLocation:      "location",
	KindVenue:         "venue",
	KindChatTitle:     "changed chat title",
	KindChatPhoto:     "changed chat photo",
	KindPinnedMessage: "pinned",
	KindForward:       "forward",
}

// Name 返回展示名称
func (k MessageKind) Name() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}
