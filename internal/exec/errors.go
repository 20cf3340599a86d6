package exec

import "fmt"

// 执行编排的错误分类。
// 每类错误对应编排过程中一个独立的失败面，调用方据此决定
// 是否还能向用户反馈（占位消息失败时通常已无处可报）。

// RunStage Runner 内部的失败阶段
type RunStage string

const (
	StageSpawn   RunStage = "spawn"   // 容器/进程启动失败
	StageCollect RunStage = "collect" // 输出流读取失败
	StageWait    RunStage = "wait"    // 等待退出状态失败
)

// HelpError 空命令反馈消息发送失败
type HelpError struct {
	Err error
}

func (e *HelpError) Error() string {
	return fmt.Sprintf("failed to send help message: %v", e.Err)
}

func (e *HelpError) Unwrap() error { return e.Err }

// StatusMessageError 占位状态消息创建失败
//
// Empty 区分平台接受请求但返回空消息体与传输层失败两种情况。
type StatusMessageError struct {
	Empty bool
	Err   error
}

func (e *StatusMessageError) Error() string {
	if e.Empty {
		return "platform returned no status message"
	}
	return fmt.Sprintf("failed to send status message: %v", e.Err)
}

func (e *StatusMessageError) Unwrap() error { return e.Err }

// ExecuteError Runner 执行失败，Stage 标记失败阶段
type ExecuteError struct {
	Stage RunStage
	Err   error
}

func (e *ExecuteError) Error() string {
	return fmt.Sprintf("command execution failed at %s: %v", e.Stage, e.Err)
}

func (e *ExecuteError) Unwrap() error { return e.Err }

// ThrottleError 周期刷新循环被中断
//
// 已捕获的输出不受影响，最终刷新仍会尝试上报。
type ThrottleError struct {
	Err error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("status update loop interrupted: %v", e.Err)
}

func (e *ThrottleError) Unwrap() error { return e.Err }
