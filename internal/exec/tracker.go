// Package exec 隔离命令执行核心
//
// 三个协作对象：
//   - Runner: 在受限容器内启动用户命令，按行回传 stdout/stderr
//   - Tracker: 累积输出与退出状态，渲染并节流状态消息更新
//   - Orchestrator: 串联占位消息 → 执行 → 周期刷新 → 最终刷新
package exec

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"
)

const (
	// OutputCapacity 状态消息可承载的输出上限（字符数）
	// 平台单条消息上限 4096，预留格式化开销
	OutputCapacity = 4096 - 150

	// truncatedPrefix 输出被截断时的前缀标记
	truncatedPrefix = "[truncated] "

	// throttleSlack 节流阈值的固定回扣，避免 ticker 边界抖动错过整个周期
	throttleSlack = 50 * time.Millisecond

	// placeholderText 尚无输出时的状态消息
	placeholderText = "<i>Executing command...</i>"

	// timeoutExitCode timeout(1) 封装产生的哨兵退出码
	timeoutExitCode = 124

	// timeoutSlack 超时检测允许的时钟误差
	timeoutSlack = time.Second
)

// ExitStatus 子进程退出状态
type ExitStatus struct {
	Code int // 退出码，被信号终止时为 128+signal
}

// Success 是否正常退出
func (s ExitStatus) Success() bool {
	return s.Code == 0
}

// StatusEditor 状态消息编辑能力，由编排器用平台客户端实现
type StatusEditor interface {
	EditStatus(ctx context.Context, text string) error
}

// Tracker 跟踪一次执行的输出与状态，渲染节流的状态消息
//
// 每次执行恰好持有一个 Tracker 实例；ticker 循环与 Runner 的行回调
// 并发访问，所有可变状态由内部互斥锁串行化。
type Tracker struct {
	mu sync.Mutex

	output      []byte        // 累积输出，上限 capacity，超出后丢弃最旧内容
	capacity    int           // 输出容量
	truncated   bool          // 输出是否发生过截断
	status      *ExitStatus   // 退出状态，设置即代表执行完成
	startedAt   time.Time     // 执行开始时间
	completedIn time.Duration // 完成耗时，SetStatus 首次设置时计算

	changed     bool      // 输出或状态自上次刷新后是否变化
	changedAt   time.Time // 上次刷新时间，节流判断依据
	updateCount int       // 已刷新次数，决定当前节流档位

	execTimeout time.Duration // 配置的执行超时，用于超时判定
	editor      StatusEditor
}

// NewTracker 创建执行状态跟踪器
func NewTracker(editor StatusEditor, execTimeout time.Duration) *Tracker {
	now := time.Now()
	return &Tracker{
		output:      make([]byte, 0, 256),
		capacity:    OutputCapacity,
		startedAt:   now,
		changedAt:   now,
		execTimeout: execTimeout,
		editor:      editor,
	}
}

// Append 追加输出，超出容量时从头部截断，只保留最近 capacity 个字符
func (t *Tracker) Append(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(text)
}

func (t *Tracker) appendLocked(text string) {
	if text == "" {
		return
	}
	t.output = append(t.output, text...)
	if len(t.output) > t.capacity {
		cut := len(t.output) - t.capacity
		// 截断点不能落在多字节字符中间，前进到下一个字符边界
		for cut < len(t.output) && t.output[cut]&0xC0 == 0x80 {
			cut++
		}
		t.output = t.output[cut:]
		t.truncated = true
	}
	t.changed = true
}

// AppendLine 追加一行输出（行尾不含换行符）
func (t *Tracker) AppendLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.output) > 0 {
		t.appendLocked("\n")
	}
	t.appendLocked(line)
}

// SetStatus 记录退出状态，完成耗时只在首次设置时计算
func (t *Tracker) SetStatus(status ExitStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == nil || *t.status != status {
		t.changed = true
	}
	if t.status == nil {
		t.completedIn = time.Since(t.startedAt)
	}
	t.status = &status
}

// Completed 执行是否已结束（成功或失败）
func (t *Tracker) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status != nil
}

// truncatedLocked 输出是否处于截断状态
func (t *Tracker) truncatedLocked() bool {
	return t.truncated
}

// throttleThreshold 第 n 次更新前要求的最小间隔
//
// 平台对同一条消息的编辑有速率限制，输出密集的命令必须逐步退避。
// 阈值随更新次数单调不减。
func throttleThreshold(updateCount int) time.Duration {
	switch {
	case updateCount < 2:
		return time.Second
	case updateCount < 5:
		return 3 * time.Second
	case updateCount < 8:
		return 5 * time.Second
	default:
		return 10 * time.Second
	}
}

// Render 渲染当前状态为 HTML 消息文本
func (t *Tracker) Render() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renderLocked()
}

func (t *Tracker) renderLocked() string {
	completed := t.status != nil

	// 未完成且没有任何输出时维持占位文本
	if !completed && len(t.output) == 0 {
		return placeholderText
	}

	var emoji string
	switch {
	case !completed:
		emoji = "⏳"
	case t.status.Success():
		emoji = "✅"
	default:
		emoji = "❌"
	}

	var outputBlock string
	if len(t.output) == 0 {
		outputBlock = "<i>No output</i>"
	} else {
		text := string(t.output)
		if t.truncatedLocked() {
			text = truncatedPrefix + text
		}
		outputBlock = fmt.Sprintf("<b>Output:</b>\n<code>%s</code>", html.EscapeString(text))
	}

	var notices []string
	if completed && !t.status.Success() {
		notices = append(notices, fmt.Sprintf("Exit code <code>%d</code>", t.status.Code))
	}
	if threshold := throttleThreshold(t.updateCount); !completed && threshold > time.Second {
		notices = append(notices, fmt.Sprintf("throttling %ds", int(threshold.Seconds())))
	}
	if completed && t.status.Code == timeoutExitCode && t.execTimeout > 0 &&
		t.completedIn >= t.execTimeout-timeoutSlack {
		notices = append(notices, "timed out")
	}
	if completed {
		notices = append(notices, fmt.Sprintf("took %s", formatDuration(t.completedIn)))
	}
	if t.truncatedLocked() {
		if completed {
			notices = append(notices, "truncated")
		} else {
			notices = append(notices, "truncating")
		}
	}

	line := emoji
	if len(notices) > 0 {
		line += "   " + strings.Join(notices, "   ")
	}

	return outputBlock + "\n\n" + line
}

// Flush 无条件重新渲染并编辑状态消息
//
// 编辑成功与否都推进节流状态：编辑失败只影响这一次展示，
// 下个周期会带着累计变化重试。
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	text := t.renderLocked()
	t.changed = false
	t.changedAt = time.Now()
	t.updateCount++
	editor := t.editor
	t.mu.Unlock()

	if err := editor.EditStatus(ctx, text); err != nil {
		return fmt.Errorf("failed to edit status message: %w", err)
	}
	return nil
}

// FlushIfDue 有变化且节流窗口已过时刷新
func (t *Tracker) FlushIfDue(ctx context.Context) error {
	t.mu.Lock()
	due := t.changed && time.Since(t.changedAt) >= throttleThreshold(t.updateCount)-throttleSlack
	t.mu.Unlock()

	if !due {
		return nil
	}
	return t.Flush(ctx)
}

// Snapshot 当前状态快照，供监控推送使用
type Snapshot struct {
	Output      string        `json:"output"`
	Completed   bool          `json:"completed"`
	ExitCode    *int          `json:"exit_code,omitempty"`
	Truncated   bool          `json:"truncated"`
	Elapsed     time.Duration `json:"elapsed"`
	UpdateCount int           `json:"update_count"`
}

// Snapshot 返回当前状态的一致快照
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Output:      string(t.output),
		Completed:   t.status != nil,
		Truncated:   t.truncatedLocked(),
		Elapsed:     time.Since(t.startedAt),
		UpdateCount: t.updateCount,
	}
	if t.status != nil {
		code := t.status.Code
		snap.ExitCode = &code
		snap.Elapsed = t.completedIn
	}
	return snap
}

// formatDuration 人类可读的耗时：秒以下保留毫秒，其余取整到秒
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
