package stats

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"chatops-bot/internal/model"
)

// ReportStore 报表需要的查询能力
type ReportStore interface {
	ListChatStats(ctx context.Context, chatID int64) ([]model.ChatStatRow, error)
	StatsSince(ctx context.Context, chatID int64) (*time.Time, error)
}

// UserTotal 单个用户的消息与编辑合计
type UserTotal struct {
	Name     string
	UserID   int64
	Messages int64
	Edits    int64
}

// KindTotal 单个统计维度的消息与编辑合计
type KindTotal struct {
	Kind     model.MessageKind
	Messages int64
	Edits    int64
}

// ChatStats 一个会话的统计报表
//
// Users 与 Specific 均按 messages+edits 降序；Specific 省略零活动维度。
type ChatStats struct {
	Users         []UserTotal
	Specific      []KindTotal // 指定用户时填充
	TotalMessages int64
	TotalEdits    int64
	Since         *time.Time
}

// FetchChatStats 取会话报表，合并已落库数据与排队中的增量
//
// forUser 非 nil 时附带该用户按维度细分的统计。
func (q *Queue) FetchChatStats(ctx context.Context, store ReportStore, chatID int64, forUser *int64) (*ChatStats, error) {
	rows, err := store.ListChatStats(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat stats: %w", err)
	}

	type totalEntry struct {
		name     string
		messages int64
		edits    int64
	}
	userTotals := make(map[int64]*totalEntry)
	for _, row := range rows {
		entry, ok := userTotals[row.UserID]
		if !ok {
			entry = &totalEntry{}
			userTotals[row.UserID] = entry
		}
		entry.name = row.FirstName
		entry.messages += row.Messages
		entry.edits += row.Edits
	}

	// 排队中尚未落库的增量也计入，报表始终反映当前观测值
	queued := q.chatSnapshot(chatID)
	for userID, kinds := range queued {
		entry, ok := userTotals[userID]
		if !ok {
			entry = &totalEntry{}
			userTotals[userID] = entry
		}
		if name, cached := q.cachedName(userID); cached {
			entry.name = name.first
		}
		for _, c := range kinds {
			entry.messages += c.Messages
			entry.edits += c.Edits
		}
	}

	stats := &ChatStats{}
	for userID, entry := range userTotals {
		name := entry.name
		if name == "" {
			name = strconv.FormatInt(userID, 10)
		}
		stats.Users = append(stats.Users, UserTotal{
			Name:     name,
			UserID:   userID,
			Messages: entry.messages,
			Edits:    entry.edits,
		})
		stats.TotalMessages += entry.messages
		stats.TotalEdits += entry.edits
	}
	sort.Slice(stats.Users, func(i, j int) bool {
		return stats.Users[i].Messages+stats.Users[i].Edits > stats.Users[j].Messages+stats.Users[j].Edits
	})

	if forUser != nil {
		stats.Specific = buildSpecific(rows, queued, *forUser)
	}

	since, err := store.StatsSince(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats start time: %w", err)
	}
	stats.Since = since

	return stats, nil
}

// buildSpecific 聚合指定用户按维度细分的统计
func buildSpecific(rows []model.ChatStatRow, queued map[int64]map[model.MessageKind]Counts, userID int64) []KindTotal {
	perKind := make(map[model.MessageKind]*Counts)
	for _, row := range rows {
		if row.UserID != userID {
			continue
		}
		kind, ok := model.KindFromID(row.MessageKind)
		if !ok {
			continue
		}
		entry, found := perKind[kind]
		if !found {
			entry = &Counts{}
			perKind[kind] = entry
		}
		entry.Messages += row.Messages
		entry.Edits += row.Edits
	}
	for kind, c := range queued[userID] {
		entry, found := perKind[kind]
		if !found {
			entry = &Counts{}
			perKind[kind] = entry
		}
		entry.Messages += c.Messages
		entry.Edits += c.Edits
	}

	var specific []KindTotal
	for kind, c := range perKind {
		if c.Messages+c.Edits == 0 {
			continue
		}
		specific = append(specific, KindTotal{Kind: kind, Messages: c.Messages, Edits: c.Edits})
	}
	sort.Slice(specific, func(i, j int) bool {
		return specific[i].Messages+specific[i].Edits > specific[j].Messages+specific[j].Edits
	})
	return specific
}

// FormatReport 把报表渲染为 HTML 消息文本
func (s *ChatStats) FormatReport() string {
	var b strings.Builder
	b.WriteString("<b>Messages (edits):</b>\n")

	lines := make([]string, 0, len(s.Users))
	for i, u := range s.Users {
		if u.Edits > 0 {
			lines = append(lines, fmt.Sprintf("%d. %s: <i>%d (%d)</i>", i+1, u.Name, u.Messages, u.Edits))
		} else {
			lines = append(lines, fmt.Sprintf("%d. %s: <i>%d</i>", i+1, u.Name, u.Messages))
		}
	}
	b.WriteString(strings.Join(lines, "\n"))

	if len(s.Specific) > 0 {
		b.WriteString("\n\n<b>Your messages (edits):</b>\n")
		lines = lines[:0]
		for _, k := range s.Specific {
			label := ucfirst(k.Kind.Name())
			if k.Edits > 0 {
				lines = append(lines, fmt.Sprintf("%ss: <i>%d (%d)</i>", label, k.Messages, k.Edits))
			} else {
				lines = append(lines, fmt.Sprintf("%ss: <i>%d</i>", label, k.Messages))
			}
		}
		b.WriteString(strings.Join(lines, "\n"))
	}

	b.WriteString("\n\n<b>Other stats:</b>")
	fmt.Fprintf(&b, "\nTotal: <i>%d (%d)</i>", s.TotalMessages, s.TotalEdits)
	if s.Since != nil {
		fmt.Fprintf(&b, "\nSince: <code>%s</code>", s.Since.Format("2006-01-02 15:04:05"))
	}

	return b.String()
}

// ucfirst 首字母大写
func ucfirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
