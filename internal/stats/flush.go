package stats

import (
	"context"
	"time"

	"chatops-bot/internal/model"
	"chatops-bot/pkg/logging"
)

// Store 落库引擎需要的存储能力
//
// Find 族在记录不存在时返回 (nil, nil)，错误只代表存储层故障。
type Store interface {
	FindChat(ctx context.Context, id int64) (*model.Chat, error)
	InsertChat(ctx context.Context, id int64) error
	FindUser(ctx context.Context, id int64) (*model.User, error)
	InsertUser(ctx context.Context, id int64, firstName string, lastName *string) error
	UpdateUserName(ctx context.Context, id int64, firstName string, lastName *string) error
	FindStat(ctx context.Context, chatID, userID int64, kind int16) (*model.ChatUserStat, error)
	InsertStat(ctx context.Context, chatID, userID int64, kind int16, messages, edits int64) error
	AddStatCounts(ctx context.Context, chatID, userID int64, kind int16, messages, edits int64) error
}

// Flusher 周期性把队列增量落库
//
// 三层 find-or-insert（chat / user / stat 行），任一层失败都保留
// 该分支的排队数据等待下个周期重试。语义是至少一次：增量只在
// 成功写入后才从队列移除，同一增量不会写入两次。
type Flusher struct {
	queue   *Queue
	store   Store
	metrics *Metrics // 可选
	log     *logging.Logger
}

// NewFlusher 创建落库引擎
func NewFlusher(queue *Queue, store Store, log *logging.Logger) *Flusher {
	return &Flusher{queue: queue, store: store, log: log}
}

// WithMetrics 挂接落库指标
func (f *Flusher) WithMetrics(m *Metrics) *Flusher {
	f.metrics = m
	return f
}

// Run 按固定间隔落库直到 ctx 取消，退出前做一次最终落库
func (f *Flusher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// 最终落库用独立超时，进程退出前尽量不丢增量
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			f.Flush(finalCtx)
			cancel()
			return
		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}

// Flush 排空一轮队列，失败分支保留重试
func (f *Flusher) Flush(ctx context.Context) {
	start := time.Now()

	f.queue.mu.Lock()
	f.queue.namesMu.Lock()
	chats := len(f.queue.counts)
	f.flushChats(ctx)
	retained := len(f.queue.counts)
	f.queue.namesMu.Unlock()
	f.queue.mu.Unlock()

	if f.metrics != nil {
		f.metrics.RecordFlush(chats, retained, time.Since(start))
		f.metrics.QueueDepth.Set(float64(f.queue.Depth()))
	}
	if chats > 0 {
		f.log.FlushLog(chats, retained, time.Since(start))
	}
}

// flushChats 排空所有会话，调用方持有两把队列锁
func (f *Flusher) flushChats(ctx context.Context) {
	for chatID, users := range f.queue.counts {
		chat, err := f.store.FindChat(ctx, chatID)
		if err != nil {
			f.log.WithError(err).WithChat(chatID).Warn("Failed to look up queued chat, retrying next cycle")
			f.recordError()
			continue
		}
		if chat == nil {
			if err := f.store.InsertChat(ctx, chatID); err != nil {
				f.log.WithError(err).WithChat(chatID).Warn("Failed to create queued chat, retrying next cycle")
				f.recordError()
				continue
			}
		}

		f.flushUsers(ctx, chatID, users)

		if len(users) == 0 {
			delete(f.queue.counts, chatID)
		}
	}
}

// flushUsers 排空一个会话下的所有用户
func (f *Flusher) flushUsers(ctx context.Context, chatID int64, users map[int64]map[model.MessageKind]*Counts) {
	for userID, kinds := range users {
		user, err := f.store.FindUser(ctx, userID)
		if err != nil {
			f.log.WithError(err).WithUser(userID).Warn("Failed to look up queued user, retrying next cycle")
			f.recordError()
			continue
		}

		if user == nil {
			name, cached := f.queue.names[userID]
			if !cached {
				name = nameEntry{}
			}
			if err := f.store.InsertUser(ctx, userID, name.first, name.last); err != nil {
				f.log.WithError(err).WithUser(userID).Warn("Failed to create queued user, retrying next cycle")
				f.recordError()
				continue
			}
			delete(f.queue.names, userID)
		} else {
			if name, cached := f.queue.names[userID]; cached {
				if name.first != user.FirstName || !equalName(name.last, user.LastName) {
					if err := f.store.UpdateUserName(ctx, userID, name.first, name.last); err != nil {
						f.log.WithError(err).WithUser(userID).Warn("Failed to update queued user name, retrying next cycle")
						f.recordError()
						continue
					}
				}
				delete(f.queue.names, userID)
			}
		}

		f.flushKinds(ctx, chatID, userID, kinds)

		if len(kinds) == 0 {
			delete(users, userID)
		}
	}
}

// flushKinds 排空一个用户的各统计维度
func (f *Flusher) flushKinds(ctx context.Context, chatID, userID int64, kinds map[model.MessageKind]*Counts) {
	for kind, counts := range kinds {
		if err := f.flushStat(ctx, chatID, userID, kind, counts); err != nil {
			f.log.WithError(err).WithChat(chatID).WithUser(userID).
				Warn("Failed to flush stat counts, retrying next cycle", "kind", kind.Name())
			f.recordError()
			continue
		}
		delete(kinds, kind)
	}
}

// flushStat 落库单个统计行，存在则累加，不存在则插入
func (f *Flusher) flushStat(ctx context.Context, chatID, userID int64, kind model.MessageKind, counts *Counts) error {
	stat, err := f.store.FindStat(ctx, chatID, userID, kind.ID())
	if err != nil {
		return err
	}
	if stat == nil {
		return f.store.InsertStat(ctx, chatID, userID, kind.ID(), counts.Messages, counts.Edits)
	}
	return f.store.AddStatCounts(ctx, chatID, userID, kind.ID(), counts.Messages, counts.Edits)
}

func (f *Flusher) recordError() {
	if f.metrics != nil {
		f.metrics.FlushErrors.Inc()
	}
}

// equalName 比较可空姓氏与存储值
func equalName(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
