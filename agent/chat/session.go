package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/captain/agent/screen"
	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/types"
)

const instrumentationName = "github.com/BaSui01/captain/agent/chat"

// Log 会话依赖的轨迹操作，*trajectory.Trajectory 满足该接口.
type Log interface {
	AppendUserMessage(content string) int
	AppendAssistantMessage(content string) int
	AppendScreenshot(ctx context.Context, shot *types.Screenshot) (int, bool)
	BuildMessages(ctx context.Context, query string) ([]types.Message, error)
}

// Config 会话配置.
type Config struct {
	Model       string        `json:"model"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Interval    time.Duration `json:"interval"` // 后台截图间隔
	Greeting    string        `json:"greeting"`
	// RetrieveWithMessage 为 true 时用户消息同时作为语义召回的 query
	RetrieveWithMessage bool `json:"retrieve_with_message"`
}

// DefaultConfig 返回默认配置.
func DefaultConfig() Config {
	return Config{
		Model:               "claude-3-5-sonnet-20241022",
		Temperature:         0.7,
		MaxTokens:           1024,
		Interval:            5 * time.Second,
		Greeting:            "How can I help you?",
		RetrieveWithMessage: true,
	}
}

// Session 对话会话.
type Session struct {
	config   Config
	log      Log
	capturer screen.Capturer
	provider llm.Provider
	logger   *zap.Logger

	outMu sync.Mutex
	out   io.Writer

	startOnce sync.Once
	// 一次只处理一条用户消息，保证 user/assistant 在轨迹中成对出现
	sendMu sync.Mutex
}

// NewSession 创建会话；out 为 nil 时丢弃输出.
func NewSession(config Config, log Log, capturer screen.Capturer, provider llm.Provider, out io.Writer, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Session{
		config:   config,
		log:      log,
		capturer: capturer,
		provider: provider,
		out:      out,
		logger:   logger.With(zap.String("component", "chat")),
	}
}

// Start 写入并输出开场白，重复调用无副作用.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		if s.config.Greeting == "" {
			return
		}
		s.log.AppendAssistantMessage(s.config.Greeting)
		s.print("assistant", s.config.Greeting)
	})
}

// CaptureOnce 截图一次并追加到轨迹.
func (s *Session) CaptureOnce(ctx context.Context) error {
	shot, err := s.capturer.Capture(ctx)
	if err != nil {
		return err
	}
	idx, appended := s.log.AppendScreenshot(ctx, shot)
	s.logger.Debug("screenshot captured", zap.Int("index", idx), zap.Bool("appended", appended))
	return nil
}

// CaptureLoop 按 Interval 截图直到 ctx 结束。截图失败只记录日志.
func (s *Session) CaptureLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if err := s.CaptureOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("screenshot failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Send 处理一条用户消息，返回并输出助手回复.
func (s *Session) Send(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", types.NewError(types.ErrInvariantViolation, "empty chat message")
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.Start()

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "chat.send",
		trace.WithAttributes(attribute.Int("chat.message_length", len(message))))
	defer span.End()

	reply, err := s.send(ctx, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return reply, nil
}

func (s *Session) send(ctx context.Context, message string) (string, error) {
	if err := s.CaptureOnce(ctx); err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}
	s.log.AppendUserMessage(message)

	query := ""
	if s.config.RetrieveWithMessage {
		query = message
	}
	messages, err := s.log.BuildMessages(ctx, query)
	if err != nil {
		return "", fmt.Errorf("build context: %w", err)
	}

	reply, err := llm.CompleteText(ctx, s.provider, &llm.ChatRequest{
		Model:       s.config.Model,
		Messages:    messages,
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
	})
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)

	s.log.AppendAssistantMessage(reply)
	s.print("assistant", reply)
	s.logger.Info("chat reply generated", zap.Int("length", len(reply)))
	return reply, nil
}

func (s *Session) print(author, text string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if _, err := fmt.Fprintf(s.out, "%s: %s\n", author, text); err != nil {
		s.logger.Warn("failed to write chat output", zap.Error(err))
	}
}
