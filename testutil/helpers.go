// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 轨迹、消息与异步状态的断言
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertEventKinds(t, tr.Snapshot(), types.EventKindMessage, types.EventKindScreenshot)
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/captain/types"
)

const pollInterval = 10 * time.Millisecond

// TestContext 返回 30 秒超时的上下文，测试结束时自动取消
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 同 TestContext，超时可调
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// AssertMessagesEqual 比较角色、文本与图片数量；时间戳不参与比较
func AssertMessagesEqual(t *testing.T, expected, actual []types.Message) {
	t.Helper()
	if len(expected) != len(actual) {
		t.Errorf("got %d messages, want %d", len(actual), len(expected))
		return
	}
	for i, want := range expected {
		got := actual[i]
		if want.Role != got.Role || want.Content != got.Content || len(want.Images) != len(got.Images) {
			t.Errorf("message[%d] = {%s %q images=%d}, want {%s %q images=%d}",
				i, got.Role, got.Content, len(got.Images), want.Role, want.Content, len(want.Images))
		}
	}
}

// AssertEventKinds 断言事件序列的种类依次为 kinds
func AssertEventKinds(t *testing.T, events []types.Event, kinds ...types.EventKind) {
	t.Helper()
	if len(events) != len(kinds) {
		t.Errorf("got %d events, want %d", len(events), len(kinds))
		return
	}
	for i, ev := range events {
		if ev.Kind != kinds[i] {
			t.Errorf("event[%d] kind = %s, want %s", i, ev.Kind, kinds[i])
		}
	}
}

// AssertEventuallyTrue 轮询 condition，超时仍为假则报错
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(pollInterval)
	}
	if !condition() {
		t.Errorf("condition still false after %v", timeout)
	}
}
