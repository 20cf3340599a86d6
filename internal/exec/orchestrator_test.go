package exec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatops-bot/pkg/logging"
)

// fakeMessenger 记录发送与编辑调用的测试替身
type fakeMessenger struct {
	sendErr   error
	sendEmpty bool
	sent      []string
	edits     []string
	messageID int64
}

func (m *fakeMessenger) SendStatusMessage(ctx context.Context, chatID, replyTo int64, text string) (int64, error) {
	if m.sendErr != nil {
		return 0, m.sendErr
	}
	if m.sendEmpty {
		return 0, nil
	}
	m.sent = append(m.sent, text)
	if m.messageID == 0 {
		m.messageID = 42
	}
	return m.messageID, nil
}

func (m *fakeMessenger) EditStatusMessage(ctx context.Context, chatID, messageID int64, text string) error {
	m.edits = append(m.edits, text)
	return nil
}

// fakeRunner 立即回放预设输出与退出状态
type fakeRunner struct {
	lines  []string
	status ExitStatus
	err    error
	delay  time.Duration
}

func (r *fakeRunner) Run(ctx context.Context, command string, onLine LineFunc) (ExitStatus, error) {
	for _, line := range r.lines {
		onLine(line)
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
		}
	}
	return r.status, r.err
}

func (r *fakeRunner) Timeout() time.Duration { return 300 * time.Second }

func newTestOrchestrator(runner CommandRunner, messenger Messenger) *Orchestrator {
	return NewOrchestrator(runner, messenger, logging.Default("test"))
}

func TestExecuteEmptyCommandSendsHelp(t *testing.T) {
	messenger := &fakeMessenger{}
	o := newTestOrchestrator(&fakeRunner{}, messenger)

	err := o.ExecuteAndReport(context.Background(), 1, 2, "   ")
	require.NoError(t, err)
	require.Len(t, messenger.sent, 1)
	assert.Contains(t, messenger.sent[0], "Usage")
	assert.Empty(t, messenger.edits, "no execution for empty command")
}

func TestExecuteEmptyCommandHelpError(t *testing.T) {
	messenger := &fakeMessenger{sendErr: errors.New("network down")}
	o := newTestOrchestrator(&fakeRunner{}, messenger)

	err := o.ExecuteAndReport(context.Background(), 1, 2, "")
	var helpErr *HelpError
	require.ErrorAs(t, err, &helpErr)
}

func TestExecutePlaceholderSendFailure(t *testing.T) {
	messenger := &fakeMessenger{sendErr: errors.New("network down")}
	o := newTestOrchestrator(&fakeRunner{}, messenger)

	err := o.ExecuteAndReport(context.Background(), 1, 2, "echo hi")
	var statusErr *StatusMessageError
	require.ErrorAs(t, err, &statusErr)
	assert.False(t, statusErr.Empty)
}

func TestExecutePlaceholderEmptyResponse(t *testing.T) {
	messenger := &fakeMessenger{sendEmpty: true}
	o := newTestOrchestrator(&fakeRunner{}, messenger)

	err := o.ExecuteAndReport(context.Background(), 1, 2, "echo hi")
	var statusErr *StatusMessageError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.Empty)
}

func TestExecuteSuccessFinalFlush(t *testing.T) {
	messenger := &fakeMessenger{}
	runner := &fakeRunner{lines: []string{"hello"}, status: ExitStatus{Code: 0}}
	o := newTestOrchestrator(runner, messenger)

	err := o.ExecuteAndReport(context.Background(), 1, 2, "echo hello")
	require.NoError(t, err)

	// 占位消息先发出，随后至少一次最终刷新
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, placeholderText, messenger.sent[0])
	require.NotEmpty(t, messenger.edits)
	final := messenger.edits[len(messenger.edits)-1]
	assert.Contains(t, final, "✅")
	assert.Contains(t, final, "hello")
}

func TestExecuteFailurePropagatesExecuteError(t *testing.T) {
	messenger := &fakeMessenger{}
	runner := &fakeRunner{err: &ExecuteError{Stage: StageSpawn, Err: errors.New("docker missing")}}
	o := newTestOrchestrator(runner, messenger)

	err := o.ExecuteAndReport(context.Background(), 1, 2, "echo hi")
	var execErr *ExecuteError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, StageSpawn, execErr.Stage)

	// 执行失败也有最终刷新
	assert.NotEmpty(t, messenger.edits)
}

func TestExecuteNonZeroExit(t *testing.T) {
	messenger := &fakeMessenger{}
	runner := &fakeRunner{lines: []string{"boom"}, status: ExitStatus{Code: 3}}
	o := newTestOrchestrator(runner, messenger)

	require.NoError(t, o.ExecuteAndReport(context.Background(), 1, 2, "false"))
	final := messenger.edits[len(messenger.edits)-1]
	assert.Contains(t, final, "❌")
	assert.Contains(t, final, "Exit code <code>3</code>")
}

func TestExecuteContextCancelledStillFlushes(t *testing.T) {
	messenger := &fakeMessenger{}
	runner := &fakeRunner{status: ExitStatus{Code: 0}, delay: 3 * time.Second}
	o := newTestOrchestrator(runner, messenger)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := o.ExecuteAndReport(ctx, 1, 2, "sleep 5")
	var throttleErr *ThrottleError
	require.ErrorAs(t, err, &throttleErr)
	// 取消后仍完成最终刷新
	assert.NotEmpty(t, messenger.edits)
}
