package autocomplete

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/captain/agent/screen"
	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/types"
)

const instrumentationName = "github.com/BaSui01/captain/agent/autocomplete"

// Typer 把补全文本送到用户的机器上.
type Typer interface {
	Type(ctx context.Context, text string) error
}

// Log 会话依赖的轨迹操作，*trajectory.Trajectory 满足该接口.
type Log interface {
	AppendSystemMessage(content string) int
	AppendAssistantMessage(content string) int
	AppendScreenshot(ctx context.Context, shot *types.Screenshot) (int, bool)
	BuildMessages(ctx context.Context, query string) ([]types.Message, error)
}

// Config 会话配置.
type Config struct {
	Model          string        `json:"model"`
	Temperature    float32       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	Interval       time.Duration `json:"interval"`        // 后台截图间隔
	RetrievalQuery string        `json:"retrieval_query"` // 为空时不做语义召回
}

// DefaultConfig 返回默认配置.
func DefaultConfig() Config {
	return Config{
		Model:     "claude-3-5-sonnet-20241022",
		MaxTokens: 1024,
		Interval:  5 * time.Second,
	}
}

// response 是模型回复代码块中的 JSON.
type response struct {
	Autocomplete *string `json:"autocomplete"`
}

// Session 自动补全会话.
type Session struct {
	config   Config
	log      Log
	capturer screen.Capturer
	provider llm.Provider
	typer    Typer
	logger   *zap.Logger

	startOnce sync.Once
	// 同一时刻只处理一次触发，避免两次补全交错输出
	triggerMu sync.Mutex
}

// NewSession 创建会话.
func NewSession(config Config, log Log, capturer screen.Capturer, provider llm.Provider, typer Typer, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Session{
		config:   config,
		log:      log,
		capturer: capturer,
		provider: provider,
		typer:    typer,
		logger:   logger.With(zap.String("component", "autocomplete")),
	}
}

// Start 写入系统提示，重复调用无副作用.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.log.AppendSystemMessage(SystemPrompt)
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
	s.Start()
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

// Trigger 生成一次补全并输出，返回补全文本.
func (s *Session) Trigger(ctx context.Context) (string, error) {
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()
	s.Start()

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "autocomplete.trigger")
	defer span.End()

	text, err := s.trigger(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

func (s *Session) trigger(ctx context.Context) (string, error) {
	if err := s.CaptureOnce(ctx); err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}

	messages, err := s.log.BuildMessages(ctx, s.config.RetrievalQuery)
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

	text, err := ParseResponse(reply)
	if err != nil {
		s.logger.Debug("unparseable autocomplete reply", zap.String("reply", reply))
		return "", err
	}

	if err := s.typer.Type(ctx, text); err != nil {
		return "", fmt.Errorf("type autocompletion: %w", err)
	}
	s.log.AppendAssistantMessage(text)
	s.logger.Info("autocompletion generated", zap.Int("length", len(text)))
	return text, nil
}

// ParseResponse 从模型回复的代码块中解析 autocomplete 字段.
func ParseResponse(reply string) (string, error) {
	block, err := llm.ExtractFencedBlock(reply)
	if err != nil {
		return "", types.NewError(types.ErrParseFailure, "autocomplete reply has no code block").WithCause(err)
	}
	var r response
	if err := json.Unmarshal([]byte(strings.TrimSpace(block)), &r); err != nil {
		return "", types.NewError(types.ErrParseFailure, "invalid autocomplete reply").WithCause(err)
	}
	if r.Autocomplete == nil {
		return "", types.NewError(types.ErrParseFailure, "autocomplete reply is missing the autocomplete field")
	}
	return *r.Autocomplete, nil
}

// WriterTyper 把补全写到 io.Writer，用于没有键盘模拟的环境.
type WriterTyper struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterTyper 创建 WriterTyper.
func NewWriterTyper(w io.Writer) *WriterTyper {
	return &WriterTyper{w: w}
}

// Type 写入文本并换行.
func (t *WriterTyper) Type(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.w, text)
	return err
}
