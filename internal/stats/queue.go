package stats

import (
	"sync"

	"chatops-bot/internal/model"
	"chatops-bot/internal/telegram"
)

// Counts 某维度下的消息与编辑增量
type Counts struct {
	Messages int64
	Edits    int64
}

// nameEntry 用户展示名缓存项
type nameEntry struct {
	first string
	last  *string
}

// Queue 统计写回队列
//
// 计数按 chat → user → kind 三层嵌套暂存，周期性由 Flusher 落库。
// 记录路径只做内存操作，消息处理热路径上不会因数据库问题失败。
// 两把锁固定按 counts → names 顺序获取。
type Queue struct {
	mu     sync.Mutex
	counts map[int64]map[int64]map[model.MessageKind]*Counts

	namesMu sync.Mutex
	names   map[int64]nameEntry // 首次见到的名字为准，落库后移除
}

// NewQueue 创建统计队列
func NewQueue() *Queue {
	return &Queue{
		counts: make(map[int64]map[int64]map[model.MessageKind]*Counts),
		names:  make(map[int64]nameEntry),
	}
}

// Increase 按消息分类累加计数并缓存发送者名字
//
// 分类不计入统计的消息只更新名字缓存。messages/edits 通常是
// (1,0) 新消息或 (0,1) 编辑。
func (q *Queue) Increase(msg *telegram.Message, messages, edits int64) {
	if msg.From == nil {
		return
	}

	if kind, ok := KindOf(msg); ok {
		q.mu.Lock()
		users, ok := q.counts[msg.Chat.ID]
		if !ok {
			users = make(map[int64]map[model.MessageKind]*Counts)
			q.counts[msg.Chat.ID] = users
		}
		kinds, ok := users[msg.From.ID]
		if !ok {
			kinds = make(map[model.MessageKind]*Counts)
			users[msg.From.ID] = kinds
		}
		entry, ok := kinds[kind]
		if !ok {
			entry = &Counts{}
			kinds[kind] = entry
		}
		entry.Messages += messages
		entry.Edits += edits
		q.mu.Unlock()
	}

	q.namesMu.Lock()
	if _, ok := q.names[msg.From.ID]; !ok {
		var last *string
		if msg.From.LastName != "" {
			l := msg.From.LastName
			last = &l
		}
		q.names[msg.From.ID] = nameEntry{first: msg.From.FirstName, last: last}
	}
	q.namesMu.Unlock()
}

// Depth 队列中待落库的叶子计数条目数
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, users := range q.counts {
		for _, kinds := range users {
			n += len(kinds)
		}
	}
	return n
}

// chatSnapshot 会话的排队增量只读副本，供报表合并使用
func (q *Queue) chatSnapshot(chatID int64) map[int64]map[model.MessageKind]Counts {
	q.mu.Lock()
	defer q.mu.Unlock()

	users, ok := q.counts[chatID]
	if !ok {
		return nil
	}
	snap := make(map[int64]map[model.MessageKind]Counts, len(users))
	for userID, kinds := range users {
		kindsCopy := make(map[model.MessageKind]Counts, len(kinds))
		for kind, c := range kinds {
			kindsCopy[kind] = *c
		}
		snap[userID] = kindsCopy
	}
	return snap
}

// cachedName 名字缓存查询
func (q *Queue) cachedName(userID int64) (nameEntry, bool) {
	q.namesMu.Lock()
	defer q.namesMu.Unlock()
	entry, ok := q.names[userID]
	return entry, ok
}
