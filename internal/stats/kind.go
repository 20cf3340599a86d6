// Package stats 消息统计：写回队列、落库引擎与报表
package stats

import (
	"strings"

	"chatops-bot/internal/model"
	"chatops-bot/internal/telegram"
)

// KindOf 将入站消息分类为统计维度
//
// 转发标记优先于所有内容类型。部分事件类型不计入统计
// （成员进出、群组迁移等），返回 false 表示丢弃。
func KindOf(msg *telegram.Message) (model.MessageKind, bool) {
	if msg.IsForward() {
		return model.KindForward, true
	}

	switch {
	case msg.Text != "":
		if strings.HasPrefix(strings.TrimLeft(msg.Text, " \t"), "/") {
			return model.KindCommand, true
		}
		return model.KindText, true
	case msg.Audio != nil:
		return model.KindAudio, true
	case msg.Document != nil:
		return classifyDocument(msg.Document), true
	case len(msg.Photo) > 0:
		return model.KindPhoto, true
	case msg.Sticker != nil:
		return model.KindSticker, true
	case msg.Video != nil:
		return model.KindVideo, true
	case msg.Voice != nil:
		return model.KindVoice, true
	case msg.VideoNote != nil:
		return model.KindVideoNote, true
	case msg.Contact != nil:
		return model.KindContact, true
	case msg.Location != nil:
		return model.KindLocation, true
	case msg.Venue != nil:
		return model.KindVenue, true
	case msg.NewChatTitle != "":
		return model.KindChatTitle, true
	case len(msg.NewChatPhoto) > 0, msg.DeleteChatPhoto:
		return model.KindChatPhoto, true
	case len(msg.PinnedMessage) > 0:
		return model.KindPinnedMessage, true
	}
	return 0, false
}

// classifyDocument 区分普通文件与 GIF
//
// 平台把 GIF 作为 document 发送：mime image/gif 必然是 GIF，
// Giphy 的 mp4 封装按惯例也算。
func classifyDocument(doc *telegram.Document) model.MessageKind {
	if doc.MimeType == "image/gif" {
		return model.KindGif
	}
	if doc.MimeType == "video/mp4" && doc.FileName == "giphy.mp4" {
		return model.KindGif
	}
	return model.KindDocument
}
