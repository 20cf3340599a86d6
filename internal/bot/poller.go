package bot

import (
	"context"
	"time"

	"chatops-bot/internal/telegram"
	"chatops-bot/pkg/logging"
)

// OffsetStore 长轮询游标的持久化能力
type OffsetStore interface {
	UpdateOffset(ctx context.Context) (int64, error)
	SetUpdateOffset(ctx context.Context, offset int64) error
}

// Poller 更新长轮询循环
//
// 游标持久化在外部存储，进程重启后从上次确认的位置继续，
// 已处理的更新不会重放。
type Poller struct {
	client  *telegram.Client
	handler *Handler
	offsets OffsetStore
	timeout time.Duration
	log     *logging.Logger
}

// NewPoller 创建长轮询器
func NewPoller(client *telegram.Client, handler *Handler, offsets OffsetStore, timeout time.Duration, log *logging.Logger) *Poller {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Poller{
		client:  client,
		handler: handler,
		offsets: offsets,
		timeout: timeout,
		log:     log,
	}
}

// Run 轮询直到 ctx 取消
//
// 单个更新的处理失败只记日志，游标照常推进；卡在坏更新上
// 反复重试只会放大故障。
func (p *Poller) Run(ctx context.Context) {
	offset, err := p.offsets.UpdateOffset(ctx)
	if err != nil {
		p.log.WithError(err).Warn("Failed to restore update offset, starting from 0")
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.WithError(err).Warn("Long poll failed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for i := range updates {
			upd := &updates[i]
			if err := p.handler.HandleUpdate(ctx, upd); err != nil {
				p.log.WithError(err).Warn("Failed to handle update", "update_id", upd.UpdateID)
			}
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
		}

		if len(updates) > 0 {
			if err := p.offsets.SetUpdateOffset(ctx, offset); err != nil {
				p.log.WithError(err).Warn("Failed to persist update offset")
			}
		}
	}
}
