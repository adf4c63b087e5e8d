package chat

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	agentcontext "github.com/BaSui01/captain/agent/context"
	"github.com/BaSui01/captain/agent/screen"
	"github.com/BaSui01/captain/agent/trajectory"
	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/testutil"
	"github.com/BaSui01/captain/testutil/fixtures"
	"github.com/BaSui01/captain/testutil/mocks"
	"github.com/BaSui01/captain/types"
)

func sequenceCapturer(t *testing.T) (screen.Capturer, *atomic.Int32) {
	var n atomic.Int32
	return screen.CapturerFunc(func(ctx context.Context) (*types.Screenshot, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fixtures.Screenshot(t, int(n.Add(1))), nil
	}), &n
}

func newLog() *trajectory.Trajectory {
	cfg := trajectory.DefaultConfig()
	cfg.DiscardRedundant = false
	return trajectory.New(cfg, trajectory.Dependencies{
		Assembler: agentcontext.NewAssembler(agentcontext.DefaultAssemblerConfig(), nil, nil),
	}, zap.NewNop())
}

// queryLog 记录每次组装使用的召回 query
type queryLog struct {
	*trajectory.Trajectory
	mu      sync.Mutex
	queries []string
}

func (l *queryLog) BuildMessages(ctx context.Context, query string) ([]types.Message, error) {
	l.mu.Lock()
	l.queries = append(l.queries, query)
	l.mu.Unlock()
	return l.Trajectory.BuildMessages(ctx, query)
}

func TestSend_RecordsTurnAndPrintsReply(t *testing.T) {
	log := newLog()
	defer log.Close()
	capturer, _ := sequenceCapturer(t)
	provider := mocks.NewSuccessProvider("  Try running go vet.  ")
	var out bytes.Buffer

	s := NewSession(DefaultConfig(), log, capturer, provider, &out, zap.NewNop())
	reply, err := s.Send(testutil.TestContext(t), "what should I do next?")
	require.NoError(t, err)
	assert.Equal(t, "Try running go vet.", reply)
	assert.Equal(t, "assistant: How can I help you?\nassistant: Try running go vet.\n", out.String())

	snap := log.Snapshot()
	testutil.AssertEventKinds(t, snap,
		types.EventKindMessage, types.EventKindScreenshot, types.EventKindMessage, types.EventKindMessage)
	assert.Equal(t, types.RoleAssistant, snap[0].Message.Role)
	assert.Equal(t, "How can I help you?", snap[0].Message.Content)
	assert.Equal(t, types.RoleUser, snap[2].Message.Role)
	assert.Equal(t, "what should I do next?", snap[2].Message.Content)
	assert.Equal(t, "Try running go vet.", snap[3].Message.Content)

	req := provider.GetLastCall().Request
	assert.Equal(t, "claude-3-5-sonnet-20241022", req.Model)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "How can I help you?", req.Messages[0].Content)
	assert.True(t, req.Messages[1].HasImages())
	assert.Equal(t, "what should I do next?", req.Messages[2].Content)
}

func TestSend_SecondTurnSeesHistory(t *testing.T) {
	log := newLog()
	defer log.Close()
	capturer, _ := sequenceCapturer(t)
	provider := mocks.NewSuccessProvider("ok")
	s := NewSession(DefaultConfig(), log, capturer, provider, nil, nil)

	ctx := testutil.TestContext(t)
	_, err := s.Send(ctx, "first")
	require.NoError(t, err)
	_, err = s.Send(ctx, "second")
	require.NoError(t, err)

	msgs := provider.GetLastCall().Request.Messages
	require.Len(t, msgs, 6)
	assert.Equal(t, "first", msgs[2].Content)
	assert.Equal(t, "ok", msgs[3].Content)
	assert.True(t, msgs[4].HasImages())
	assert.Equal(t, "second", msgs[5].Content)
}

func TestSend_RetrievalQuery(t *testing.T) {
	tests := []struct {
		name     string
		retrieve bool
		want     string
	}{
		{"message is the query", true, "where was the stack trace?"},
		{"retrieval disabled", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &queryLog{Trajectory: newLog()}
			defer log.Close()
			capturer, _ := sequenceCapturer(t)
			cfg := DefaultConfig()
			cfg.RetrieveWithMessage = tt.retrieve

			s := NewSession(cfg, log, capturer, mocks.NewSuccessProvider("ok"), nil, nil)
			_, err := s.Send(testutil.TestContext(t), "where was the stack trace?")
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, log.queries)
		})
	}
}

func TestSend_Errors(t *testing.T) {
	noFrame := screen.CapturerFunc(func(context.Context) (*types.Screenshot, error) {
		return nil, types.NewError(types.ErrResourceUnavailable, "no frame").WithCause(screen.ErrNoDisplay)
	})

	t.Run("empty message", func(t *testing.T) {
		log := newLog()
		defer log.Close()
		capturer, n := sequenceCapturer(t)
		s := NewSession(DefaultConfig(), log, capturer, mocks.NewSuccessProvider("ok"), nil, nil)

		_, err := s.Send(testutil.TestContext(t), "   ")
		assert.True(t, types.IsErrorCode(err, types.ErrInvariantViolation))
		assert.Zero(t, n.Load())
		assert.Zero(t, log.Len())
	})

	t.Run("capture failure drops the turn", func(t *testing.T) {
		log := newLog()
		defer log.Close()
		provider := mocks.NewSuccessProvider("ok")
		s := NewSession(DefaultConfig(), log, noFrame, provider, nil, nil)

		_, err := s.Send(testutil.TestContext(t), "hello")
		assert.ErrorIs(t, err, screen.ErrNoDisplay)
		assert.Zero(t, provider.GetCallCount())
		// 只有开场白
		assert.Equal(t, 1, log.Len())
	})

	t.Run("transport failure keeps the user message", func(t *testing.T) {
		log := newLog()
		defer log.Close()
		capturer, _ := sequenceCapturer(t)
		provider := mocks.NewErrorProvider(&llm.Error{Code: llm.ErrUnauthorized, Message: "bad key", HTTPStatus: 401})
		var out bytes.Buffer
		s := NewSession(DefaultConfig(), log, capturer, provider, &out, nil)

		_, err := s.Send(testutil.TestContext(t), "hello")
		assert.True(t, types.IsErrorCode(err, types.ErrTransport))

		snap := log.Snapshot()
		last := snap[len(snap)-1]
		assert.Equal(t, types.RoleUser, last.Message.Role)
		assert.Equal(t, "assistant: How can I help you?\n", out.String())
	})
}

func TestStart_IdempotentAndOptionalGreeting(t *testing.T) {
	log := newLog()
	defer log.Close()
	capturer, _ := sequenceCapturer(t)
	var out bytes.Buffer
	s := NewSession(DefaultConfig(), log, capturer, mocks.NewMockProvider(), &out, nil)

	s.Start()
	s.Start()
	assert.Equal(t, 1, log.Len())
	assert.Equal(t, "assistant: How can I help you?\n", out.String())

	quiet := newLog()
	defer quiet.Close()
	cfg := DefaultConfig()
	cfg.Greeting = ""
	NewSession(cfg, quiet, capturer, mocks.NewMockProvider(), nil, nil).Start()
	assert.Zero(t, quiet.Len())
}

func TestCaptureLoop(t *testing.T) {
	log := newLog()
	defer log.Close()
	capturer, n := sequenceCapturer(t)

	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	s := NewSession(cfg, log, capturer, mocks.NewMockProvider(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.CaptureLoop(ctx) }()

	testutil.AssertEventuallyTrue(t, func() bool { return n.Load() >= 3 }, 5*time.Second)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("capture loop did not stop")
	}
	assert.GreaterOrEqual(t, log.Stats().Screenshots, 3)
}
