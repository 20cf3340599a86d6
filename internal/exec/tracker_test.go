package exec

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEditor 记录编辑调用的测试替身
type fakeEditor struct {
	texts []string
	err   error
}

func (e *fakeEditor) EditStatus(ctx context.Context, text string) error {
	e.texts = append(e.texts, text)
	return e.err
}

func newTestTracker() (*Tracker, *fakeEditor) {
	editor := &fakeEditor{}
	return NewTracker(editor, 300*time.Second), editor
}

func TestAppendTruncatesFromFront(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.Append(strings.Repeat("a", OutputCapacity-10))
	tracker.Append(strings.Repeat("b", 100))

	assert.Len(t, tracker.output, OutputCapacity)
	// 最旧的内容被丢弃，尾部保留最新写入
	assert.True(t, strings.HasSuffix(string(tracker.output), strings.Repeat("b", 100)))
	assert.True(t, strings.HasPrefix(string(tracker.output), "a"))
}

func TestAppendEmptyDoesNotMarkChanged(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.changed = false

	tracker.Append("")
	assert.False(t, tracker.changed)

	tracker.Append("x")
	assert.True(t, tracker.changed)
}

func TestAppendLineSeparatesWithNewline(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.AppendLine("first")
	tracker.AppendLine("second")

	assert.Equal(t, "first\nsecond", string(tracker.output))
}

func TestTruncationInvariantUnderManyLines(t *testing.T) {
	tracker, _ := newTestTracker()

	for i := 0; i < 1000; i++ {
		tracker.AppendLine(strings.Repeat("x", 50))
	}
	assert.LessOrEqual(t, len(tracker.output), OutputCapacity)
	assert.True(t, tracker.truncatedLocked())
}

func TestTruncationKeepsRuneBoundaries(t *testing.T) {
	tracker, _ := newTestTracker()

	// 多字节字符流，截断点大概率落在字符中间
	for !tracker.truncatedLocked() {
		tracker.Append("héllo wörld 你好 ")
	}

	assert.True(t, tracker.truncatedLocked())
	assert.LessOrEqual(t, len(tracker.output), OutputCapacity)
	assert.True(t, utf8.Valid(tracker.output), "truncation must not split a rune")
}

func TestTruncationAtEveryOffsetStaysValidUTF8(t *testing.T) {
	// 逐字节挪动截断点，落在头部多字节字符的任何偏移都必须保持合法 UTF-8
	for pad := 0; pad < 6; pad++ {
		tracker, _ := newTestTracker()
		tracker.Append("日本語")
		tracker.Append(strings.Repeat("a", OutputCapacity-2+pad))

		assert.True(t, utf8.Valid(tracker.output), "pad %d", pad)
		assert.LessOrEqual(t, len(tracker.output), OutputCapacity, "pad %d", pad)
		assert.True(t, tracker.truncatedLocked(), "pad %d", pad)
	}
}

func TestRenderPlaceholderBeforeOutput(t *testing.T) {
	tracker, _ := newTestTracker()
	assert.Equal(t, placeholderText, tracker.Render())
}

func TestRenderRunningWithOutput(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.AppendLine("hello <world>")

	text := tracker.Render()
	assert.Contains(t, text, "<b>Output:</b>")
	assert.Contains(t, text, "hello &lt;world&gt;")
	assert.Contains(t, text, "⏳")
	assert.NotContains(t, text, "took")
}

func TestRenderSuccess(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.AppendLine("done")
	tracker.SetStatus(ExitStatus{Code: 0})

	text := tracker.Render()
	assert.Contains(t, text, "✅")
	assert.Contains(t, text, "took")
	assert.NotContains(t, text, "Exit code")
}

func TestRenderFailureShowsExitCode(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.SetStatus(ExitStatus{Code: 2})

	text := tracker.Render()
	assert.Contains(t, text, "❌")
	assert.Contains(t, text, "Exit code <code>2</code>")
	assert.Contains(t, text, "<i>No output</i>")
}

func TestRenderIdempotentAfterCompletion(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.AppendLine("output")
	tracker.SetStatus(ExitStatus{Code: 0})

	first := tracker.Render()
	time.Sleep(10 * time.Millisecond)
	second := tracker.Render()
	assert.Equal(t, first, second)
}

func TestCompletedInComputedOnce(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.SetStatus(ExitStatus{Code: 0})
	first := tracker.completedIn

	time.Sleep(10 * time.Millisecond)
	tracker.SetStatus(ExitStatus{Code: 0})
	assert.Equal(t, first, tracker.completedIn)
}

func TestSetStatusMarksChangedOnlyOnDifference(t *testing.T) {
	tracker, _ := newTestTracker()

	tracker.SetStatus(ExitStatus{Code: 1})
	tracker.changed = false

	tracker.SetStatus(ExitStatus{Code: 1})
	assert.False(t, tracker.changed)

	tracker.SetStatus(ExitStatus{Code: 2})
	assert.True(t, tracker.changed)
}

func TestTimedOutNotice(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.startedAt = time.Now().Add(-300 * time.Second)
	tracker.SetStatus(ExitStatus{Code: timeoutExitCode})

	assert.Contains(t, tracker.Render(), "timed out")
}

func TestExitCode124WithoutElapsedIsNotTimeout(t *testing.T) {
	// 命令自己退出 124 不算超时，耗时必须接近配置的上限
	tracker, _ := newTestTracker()
	tracker.SetStatus(ExitStatus{Code: timeoutExitCode})

	assert.NotContains(t, tracker.Render(), "timed out")
}

func TestTruncationNotices(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.Append(strings.Repeat("x", OutputCapacity+1))

	assert.Contains(t, tracker.Render(), "truncating")
	assert.Contains(t, tracker.Render(), truncatedPrefix)

	tracker.SetStatus(ExitStatus{Code: 0})
	text := tracker.Render()
	assert.Contains(t, text, "truncated")
	assert.NotContains(t, text, "truncating")
}

func TestThrottleThresholdTiers(t *testing.T) {
	assert.Equal(t, time.Second, throttleThreshold(0))
	assert.Equal(t, time.Second, throttleThreshold(1))
	assert.Equal(t, 3*time.Second, throttleThreshold(2))
	assert.Equal(t, 3*time.Second, throttleThreshold(4))
	assert.Equal(t, 5*time.Second, throttleThreshold(5))
	assert.Equal(t, 5*time.Second, throttleThreshold(7))
	assert.Equal(t, 10*time.Second, throttleThreshold(8))
	assert.Equal(t, 10*time.Second, throttleThreshold(100))
}

func TestThrottleThresholdMonotonic(t *testing.T) {
	prev := time.Duration(0)
	for n := 0; n < 20; n++ {
		cur := throttleThreshold(n)
		assert.GreaterOrEqual(t, cur, prev, "threshold must not decrease at update %d", n)
		prev = cur
	}
}

func TestThrottlingNoticeOnlyWhileRunning(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.AppendLine("output")
	tracker.updateCount = 3

	assert.Contains(t, tracker.Render(), "throttling 3s")

	tracker.SetStatus(ExitStatus{Code: 0})
	assert.NotContains(t, tracker.Render(), "throttling")
}

func TestFlushAdvancesThrottleState(t *testing.T) {
	tracker, editor := newTestTracker()
	tracker.AppendLine("line")

	require.NoError(t, tracker.Flush(context.Background()))
	assert.Len(t, editor.texts, 1)
	assert.Equal(t, 1, tracker.updateCount)
	assert.False(t, tracker.changed)
}

func TestFlushAdvancesStateOnEditorError(t *testing.T) {
	tracker, editor := newTestTracker()
	editor.err = errors.New("edit failed")
	tracker.AppendLine("line")

	err := tracker.Flush(context.Background())
	assert.Error(t, err)
	// 编辑失败只影响这一次展示，节流状态照常推进
	assert.Equal(t, 1, tracker.updateCount)
	assert.False(t, tracker.changed)
}

func TestFlushIfDueRespectsThrottleWindow(t *testing.T) {
	tracker, editor := newTestTracker()
	tracker.AppendLine("line")
	tracker.changedAt = time.Now()
	tracker.updateCount = 2 // 档位 3s

	require.NoError(t, tracker.FlushIfDue(context.Background()))
	assert.Empty(t, editor.texts, "within throttle window, no flush")

	tracker.changedAt = time.Now().Add(-3 * time.Second)
	require.NoError(t, tracker.FlushIfDue(context.Background()))
	assert.Len(t, editor.texts, 1)
}

func TestFlushIfDueNoChange(t *testing.T) {
	tracker, editor := newTestTracker()
	tracker.changed = false
	tracker.changedAt = time.Now().Add(-time.Minute)

	require.NoError(t, tracker.FlushIfDue(context.Background()))
	assert.Empty(t, editor.texts)
}

func TestFlushIfDueSlack(t *testing.T) {
	tracker, editor := newTestTracker()
	tracker.AppendLine("line")
	tracker.updateCount = 0 // 档位 1s
	tracker.changedAt = time.Now().Add(-time.Second + throttleSlack/2)

	// 阈值减去回扣后已经到期
	require.NoError(t, tracker.FlushIfDue(context.Background()))
	assert.Len(t, editor.texts, 1)
}

func TestSnapshot(t *testing.T) {
	tracker, _ := newTestTracker()
	tracker.AppendLine("out")
	tracker.SetStatus(ExitStatus{Code: 3})

	snap := tracker.Snapshot()
	assert.Equal(t, "out", snap.Output)
	assert.True(t, snap.Completed)
	require.NotNil(t, snap.ExitCode)
	assert.Equal(t, 3, *snap.ExitCode)
	assert.False(t, snap.Truncated)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "3s", formatDuration(2900*time.Millisecond))
	assert.Equal(t, "1m5s", formatDuration(65*time.Second))
}
