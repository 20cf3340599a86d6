package exec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"chatops-bot/pkg/docker"
	"chatops-bot/pkg/logging"
)

// RunnerConfig 隔离执行配置
type RunnerConfig struct {
	Image       string  // 容器镜像
	WorkDir     string  // 容器内工作目录
	CPUs        float64 // CPU 配额
	StopTimeout int     // docker stop 宽限秒数
	TimeoutSec  int     // 软超时（SIGTERM），秒
	KillAfter   int     // 软超时后强杀前的宽限秒数
}

// DefaultRunnerConfig 默认执行配置
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Image:       "ubuntu",
		WorkDir:     "/root",
		CPUs:        0.2,
		StopTimeout: 1,
		TimeoutSec:  300,
		KillAfter:   5,
	}
}

// LineFunc 每收到完整一行输出时被同步调用
//
// 回调在输出流的读取 goroutine 上执行，不应有明显阻塞，
// 典型实现只是向锁保护的 Tracker 追加一行。
type LineFunc func(line string)

// Runner 在一次性容器内执行用户命令
//
// 命令由容器内的 timeout(1) 包裹：超时先发 SIGTERM，
// 宽限期后强杀，产生哨兵退出码 124。
type Runner struct {
	cfg     RunnerConfig
	sandbox *docker.Client // 可选，登记容器名供退出兜底清理
	log     *logging.Logger
}

// NewRunner 创建隔离执行器
func NewRunner(cfg RunnerConfig, sandbox *docker.Client, log *logging.Logger) *Runner {
	return &Runner{cfg: cfg, sandbox: sandbox, log: log}
}

// Timeout 配置的软超时时长
func (r *Runner) Timeout() time.Duration {
	return time.Duration(r.cfg.TimeoutSec) * time.Second
}

// buildArgs 构建 docker run 参数
func (r *Runner) buildArgs(name, command string) []string {
	return []string{
		"run",
		"--rm",
		"--name", name,
		"--cpus", strconv.FormatFloat(r.cfg.CPUs, 'f', -1, 64),
		"--workdir", r.cfg.WorkDir,
		"--restart", "no",
		"--stop-timeout", strconv.Itoa(r.cfg.StopTimeout),
		r.cfg.Image,
		"timeout", "--signal=TERM",
		fmt.Sprintf("--kill-after=%d", r.cfg.KillAfter),
		strconv.Itoa(r.cfg.TimeoutSec),
		"bash", "-c", command,
	}
}

// Run 执行命令直至退出，stdout/stderr 独立按行回调
//
// 完成条件是三路汇合：stdout 读尽、stderr 读尽、进程退出。
// 各失败面类型化且互不混淆（spawn / collect / wait），本层不重试。
func (r *Runner) Run(ctx context.Context, command string, onLine LineFunc) (ExitStatus, error) {
	name := fmt.Sprintf("chatops-exec-%d", time.Now().UnixNano())
	if r.sandbox != nil {
		r.sandbox.Track(name)
		defer r.sandbox.Untrack(name)
	}

	cmd := exec.CommandContext(ctx, "docker", r.buildArgs(name, command)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return ExitStatus{}, &ExecuteError{Stage: StageSpawn, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return ExitStatus{}, &ExecuteError{Stage: StageSpawn, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return ExitStatus{}, &ExecuteError{Stage: StageSpawn, Err: err}
	}
	r.log.Debug("Command container started", "container", name)

	// stdout 与 stderr 并发读取，互不等待
	var wg sync.WaitGroup
	collectErrs := make(chan error, 2)
	for _, stream := range []io.Reader{stdout, stderr} {
		wg.Add(1)
		go func(rd io.Reader) {
			defer wg.Done()
			if err := scanLines(rd, onLine); err != nil {
				collectErrs <- err
			}
		}(stream)
	}

	// 两个输出流必须在 Wait 之前读尽，否则管道会被提前关闭
	wg.Wait()
	close(collectErrs)

	waitErr := cmd.Wait()

	// 输出收集失败优先于退出状态：输出不完整时状态没有意义
	if err := <-collectErrs; err != nil {
		return ExitStatus{}, &ExecuteError{Stage: StageCollect, Err: err}
	}

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return ExitStatus{Code: exitErr.ExitCode()}, nil
		}
		return ExitStatus{}, &ExecuteError{Stage: StageWait, Err: waitErr}
	}
	return ExitStatus{Code: 0}, nil
}

// scanLines 按行读取并回调，放大缓冲以容忍长行
func scanLines(r io.Reader, onLine LineFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
	return scanner.Err()
}
