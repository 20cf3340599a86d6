package exec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatops-bot/pkg/logging"
)

const (
	// tickerPeriod 状态刷新检查周期，实际刷新由 Tracker 节流
	tickerPeriod = time.Second

	// sendTimeout 占位消息与帮助消息的发送超时
	sendTimeout = 10 * time.Second

	// fullLogCapacity 完整输出留存上限，超过后放弃归档
	fullLogCapacity = 8 * 1024 * 1024

	// emptyCommandHelp 空命令时的提示
	emptyCommandHelp = "Usage: /exec &lt;shell command&gt;\nExample: <code>/exec uname -a</code>"
)

// Messenger 编排器需要的平台消息能力
//
// SendStatusMessage 返回新消息 ID；平台接受请求但未返回消息体时
// 返回 (0, nil)，与传输层错误区分。
type Messenger interface {
	SendStatusMessage(ctx context.Context, chatID int64, replyTo int64, text string) (int64, error)
	EditStatusMessage(ctx context.Context, chatID, messageID int64, text string) error
}

// StatusPublisher 执行状态旁路推送（监控流），失败不影响执行
type StatusPublisher interface {
	PublishStatus(execID string, snap Snapshot)
}

// ArtifactStore 完整输出归档能力，由对象存储实现
type ArtifactStore interface {
	PutExecutionLog(ctx context.Context, execID string, output string) (string, error)
}

// CommandRunner 编排器需要的命令执行能力，生产实现是 Runner
type CommandRunner interface {
	Run(ctx context.Context, command string, onLine LineFunc) (ExitStatus, error)
	Timeout() time.Duration
}

// Orchestrator 串联一次命令执行的完整流程
//
// 占位消息 → 启动 Runner → 1s ticker 周期刷新 → 最终刷新。
// 最终刷新无条件执行，即使执行本身失败，用户也能看到终态。
type Orchestrator struct {
	runner    CommandRunner
	messenger Messenger
	metrics   *Metrics        // 可选
	publisher StatusPublisher // 可选
	artifacts ArtifactStore   // 可选
	log       *logging.Logger
}

// NewOrchestrator 创建执行编排器
func NewOrchestrator(runner CommandRunner, messenger Messenger, log *logging.Logger) *Orchestrator {
	return &Orchestrator{runner: runner, messenger: messenger, log: log}
}

// WithMetrics 挂接执行指标
func (o *Orchestrator) WithMetrics(m *Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithPublisher 挂接状态旁路推送
func (o *Orchestrator) WithPublisher(p StatusPublisher) *Orchestrator {
	o.publisher = p
	return o
}

// WithArtifacts 挂接完整输出归档
func (o *Orchestrator) WithArtifacts(s ArtifactStore) *Orchestrator {
	o.artifacts = s
	return o
}

// statusEditor 把 Messenger 适配成 Tracker 的编辑接口并计数
type statusEditor struct {
	o         *Orchestrator
	chatID    int64
	messageID int64
}

func (e *statusEditor) EditStatus(ctx context.Context, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	err := e.o.messenger.EditStatusMessage(sendCtx, e.chatID, e.messageID, text)
	if e.o.metrics != nil {
		e.o.metrics.RecordStatusEdit(err == nil)
	}
	return err
}

// runResult Runner goroutine 的回传
type runResult struct {
	status ExitStatus
	err    error
}

// ExecuteAndReport 执行命令并通过状态消息持续反馈
//
// chatID/replyTo 标识会话与触发消息。返回的错误类型标记失败面：
// HelpError / StatusMessageError / ExecuteError / ThrottleError。
func (o *Orchestrator) ExecuteAndReport(ctx context.Context, chatID, replyTo int64, command string) error {
	command = strings.TrimSpace(command)

	// 空命令不进入执行流程，直接回复用法
	if command == "" {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		if _, err := o.messenger.SendStatusMessage(sendCtx, chatID, replyTo, emptyCommandHelp); err != nil {
			return &HelpError{Err: err}
		}
		return nil
	}

	log := o.log.WithChat(chatID)

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	messageID, err := o.messenger.SendStatusMessage(sendCtx, chatID, replyTo, placeholderText)
	cancel()
	if err != nil {
		return &StatusMessageError{Err: err}
	}
	if messageID == 0 {
		return &StatusMessageError{Empty: true}
	}

	execID := fmt.Sprintf("%d-%d", chatID, messageID)
	editor := &statusEditor{o: o, chatID: chatID, messageID: messageID}
	tracker := NewTracker(editor, o.runner.Timeout())

	if o.metrics != nil {
		o.metrics.RecordStart()
	}
	log.Info("Command execution started", "exec_id", execID)

	// 完整输出与消息内输出分开留存，前者用于归档
	var fullLog strings.Builder

	done := make(chan runResult, 1)
	go func() {
		status, runErr := o.runner.Run(ctx, command, func(line string) {
			tracker.AppendLine(line)
			if o.metrics != nil {
				o.metrics.OutputBytesTotal.Add(float64(len(line)))
			}
			if fullLog.Len() < fullLogCapacity {
				fullLog.WriteString(line)
				fullLog.WriteByte('\n')
			}
		})
		done <- runResult{status: status, err: runErr}
	}()

	// 周期刷新循环与执行完成竞争；ctx 取消时中断循环但仍做最终刷新
	var result runResult
	var loopErr error
	ticker := time.NewTicker(tickerPeriod)

loop:
	for {
		select {
		case result = <-done:
			break loop
		case <-ctx.Done():
			loopErr = &ThrottleError{Err: ctx.Err()}
			result = <-done
			break loop
		case <-ticker.C:
			if err := tracker.FlushIfDue(ctx); err != nil {
				log.WithError(err).Warn("Periodic status update failed")
			}
			o.publish(execID, tracker)
		}
	}
	ticker.Stop()

	if result.err == nil {
		tracker.SetStatus(result.status)
	}

	// 最终刷新不依赖执行结果，用独立超时避免被已取消的 ctx 拖死
	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	if err := tracker.Flush(flushCtx); err != nil {
		log.WithError(err).Warn("Final status update failed")
	}
	flushCancel()
	o.publish(execID, tracker)

	snap := tracker.Snapshot()
	o.recordOutcome(result, snap)

	if result.err != nil {
		var execErr *ExecuteError
		if errors.As(result.err, &execErr) {
			log.WithError(result.err).Error("Command execution failed", "stage", string(execErr.Stage))
			return result.err
		}
		return &ExecuteError{Stage: StageWait, Err: result.err}
	}

	log.WithDuration(snap.Elapsed).Info("Command execution finished",
		"exec_id", execID, "exit_code", result.status.Code, "truncated", snap.Truncated)

	o.archive(ctx, execID, snap, fullLog.String())
	return loopErr
}

// publish 推送状态快照到监控流
func (o *Orchestrator) publish(execID string, tracker *Tracker) {
	if o.publisher != nil {
		o.publisher.PublishStatus(execID, tracker.Snapshot())
	}
}

// recordOutcome 记录执行结果指标
func (o *Orchestrator) recordOutcome(result runResult, snap Snapshot) {
	if o.metrics == nil {
		return
	}
	var outcome string
	switch {
	case result.err != nil:
		outcome = "error"
	case result.status.Code == timeoutExitCode:
		outcome = "timeout"
	case result.status.Success():
		outcome = "success"
	default:
		outcome = "failure"
	}
	o.metrics.RecordComplete(outcome, snap.Elapsed)
	if snap.Truncated {
		o.metrics.TruncationsTotal.Inc()
	}
}

// archive 归档完整输出，只在消息内输出被截断时有增量价值
func (o *Orchestrator) archive(ctx context.Context, execID string, snap Snapshot, output string) {
	if o.artifacts == nil || !snap.Truncated || output == "" {
		return
	}
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	key, err := o.artifacts.PutExecutionLog(putCtx, execID, output)
	if err != nil {
		o.log.WithError(err).Warn("Failed to archive execution log", "exec_id", execID)
		return
	}
	o.log.Debug("Execution log archived", "exec_id", execID, "object", key)
}
