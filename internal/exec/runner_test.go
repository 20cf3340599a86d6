package exec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"chatops-bot/pkg/logging"
)

func TestBuildArgs(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig(), nil, logging.Default("test"))

	args := r.buildArgs("chatops-exec-1", "echo hi; sleep 1")
	joined := strings.Join(args, " ")

	assert.Equal(t, "run", args[0])
	assert.Contains(t, joined, "--rm")
	assert.Contains(t, joined, "--name chatops-exec-1")
	assert.Contains(t, joined, "--cpus 0.2")
	assert.Contains(t, joined, "--workdir /root")
	assert.Contains(t, joined, "--restart no")
	assert.Contains(t, joined, "--stop-timeout 1")
	assert.Contains(t, joined, "ubuntu timeout --signal=TERM --kill-after=5 300 bash -c")
	// 用户命令作为单个参数传递，不经 shell 拆分
	assert.Equal(t, "echo hi; sleep 1", args[len(args)-1])
}

func TestBuildArgsCustomConfig(t *testing.T) {
	cfg := RunnerConfig{
		Image:       "alpine",
		WorkDir:     "/tmp",
		CPUs:        1.5,
		StopTimeout: 2,
		TimeoutSec:  60,
		KillAfter:   3,
	}
	r := NewRunner(cfg, nil, logging.Default("test"))

	joined := strings.Join(r.buildArgs("c", "true"), " ")
	assert.Contains(t, joined, "--cpus 1.5")
	assert.Contains(t, joined, "--workdir /tmp")
	assert.Contains(t, joined, "alpine timeout --signal=TERM --kill-after=3 60 bash -c")
}

func TestScanLines(t *testing.T) {
	var lines []string
	err := scanLines(strings.NewReader("one\ntwo\nthree"), func(line string) {
		lines = append(lines, line)
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, lines)
}

func TestScanLinesLongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	var lines []string
	err := scanLines(strings.NewReader(long), func(line string) {
		lines = append(lines, line)
	})
	assert.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.Len(t, lines[0], 200*1024)
}
