package enrichment

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/captain/internal/metrics"
	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/llm/embedding"
	"github.com/BaSui01/captain/types"
)

const instrumentationName = "github.com/BaSui01/captain/agent/enrichment"

// Config 描述生成配置.
type Config struct {
	Model             string  `json:"model"`
	Temperature       float32 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	RequestsPerSecond float64 `json:"requests_per_second"` // <= 0 不限流
	Burst             int     `json:"burst"`
}

// DefaultConfig 返回默认配置.
func DefaultConfig() Config {
	return Config{
		Model:             "gpt-4o-mini",
		MaxTokens:         1024,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// Sink 接收写回结果，由轨迹实现。每个方法是一次独立的加锁写入.
type Sink interface {
	SetDescription(idx int, description string) error
	SetEmbedding(idx int, embedding []float32) error
	SetEnrichmentState(idx int, state types.EnrichmentState) error
}

// Metrics 记录单次增强的结果，*metrics.Collector 满足该接口.
type Metrics interface {
	RecordEnrichment(outcome string, duration time.Duration)
}

// Pipeline 截图增强流水线，并发安全.
type Pipeline struct {
	config   Config
	vision   llm.Provider
	embedder embedding.Provider
	limiter  *rate.Limiter
	metrics  Metrics
	logger   *zap.Logger
}

// Option 配置 Pipeline.
type Option func(*Pipeline)

// WithMetrics 设置指标收集器.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLimiter 替换默认令牌桶，多个组件可以共享同一个.
func WithLimiter(l *rate.Limiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

// New 创建流水线.
func New(config Config, vision llm.Provider, embedder embedding.Provider, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		config:   config,
		vision:   vision,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "enrichment")),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.limiter == nil {
		p.limiter = newLimiter(config.RequestsPerSecond, config.Burst)
	}
	return p
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), max(burst, 1))
}

// Run 对 idx 处的截图执行描述、向量化与写回.
// 失败时槽位被标记为 failed，返回的错误仅供调用方记录.
func (p *Pipeline) Run(ctx context.Context, sink Sink, idx int, shot *types.Screenshot, history []types.Message) error {
	start := time.Now()
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "enrichment.run",
		trace.WithAttributes(attribute.Int("trajectory.index", idx)))
	defer span.End()

	err := p.run(ctx, sink, idx, shot, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.record(metrics.OutcomeFailure, start)
		return err
	}
	p.record(metrics.OutcomeSuccess, start)
	return nil
}

func (p *Pipeline) run(ctx context.Context, sink Sink, idx int, shot *types.Screenshot, history []types.Message) error {
	description, err := p.Describe(ctx, shot, history)
	if err != nil {
		p.fail(sink, idx, "describe", err)
		return err
	}
	if err := sink.SetDescription(idx, description); err != nil {
		return err
	}

	vector, err := p.Embed(ctx, description)
	if err != nil {
		p.fail(sink, idx, "embed", err)
		return err
	}
	return sink.SetEmbedding(idx, vector)
}

func (p *Pipeline) fail(sink Sink, idx int, stage string, cause error) {
	p.logger.Warn("screenshot enrichment failed",
		zap.Int("index", idx),
		zap.String("stage", stage),
		zap.Error(cause))
	if err := sink.SetEnrichmentState(idx, types.EnrichmentFailed); err != nil {
		p.logger.Warn("failed to mark enrichment failure", zap.Int("index", idx), zap.Error(err))
	}
}

// Describe 生成截图的文本描述。history 中的系统消息会被剔除.
func (p *Pipeline) Describe(ctx context.Context, shot *types.Screenshot, history []types.Message) (string, error) {
	if shot == nil {
		return "", types.NewError(types.ErrInvariantViolation, "nil screenshot")
	}
	if p.vision == nil {
		return "", types.NewError(types.ErrResourceUnavailable, "no vision provider configured")
	}
	if err := p.wait(ctx); err != nil {
		return "", err
	}

	convo := types.WithoutSystem(history)
	messages := make([]types.Message, 0, len(convo)+2)
	messages = append(messages, types.NewSystemMessage(SystemPrompt))
	messages = append(messages, convo...)
	messages = append(messages, types.NewUserMessage(describeInstruction).WithImages([]types.ImageContent{shot.ImageContent()}))

	text, err := llm.CompleteText(ctx, p.vision, &llm.ChatRequest{
		Model:       p.config.Model,
		Messages:    messages,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Embed 对描述做向量化.
func (p *Pipeline) Embed(ctx context.Context, description string) ([]float32, error) {
	if p.embedder == nil {
		return nil, types.NewError(types.ErrResourceUnavailable, "no embedding provider configured")
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	vector, err := p.embedder.EmbedQuery(ctx, description)
	if err != nil {
		if types.GetErrorCode(err) != "" {
			return nil, err
		}
		return nil, types.NewError(types.ErrTransport, "embedding request failed").
			WithCause(err).
			WithProvider(p.embedder.Name()).
			WithRetryable(llmRetryable(err))
	}
	if len(vector) == 0 {
		return nil, types.NewError(types.ErrResourceUnavailable, "empty embedding").WithProvider(p.embedder.Name())
	}
	return vector, nil
}

func (p *Pipeline) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return types.NewError(types.ErrTransport, "request aborted while waiting for rate limiter").WithCause(err)
	}
	return nil
}

func (p *Pipeline) record(outcome string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordEnrichment(outcome, time.Since(start))
	}
}

func llmRetryable(err error) bool {
	if e, ok := err.(*llm.Error); ok {
		return e.Retryable
	}
	return false
}
