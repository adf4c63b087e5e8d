package redundancy

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/types"
)

const instrumentationName = "github.com/BaSui01/captain/agent/redundancy"

// DefaultSimilarityThresholdPixels 约等于 1280×800 的画面.
const DefaultSimilarityThresholdPixels = 1_000_000

// Config 冗余检测配置.
type Config struct {
	Model                     string  `json:"model"`
	SimilarityThresholdPixels int     `json:"similarity_threshold_pixels"`
	Temperature               float32 `json:"temperature"`
	MaxTokens                 int     `json:"max_tokens"`
}

// DefaultConfig 返回默认配置.
func DefaultConfig() Config {
	return Config{
		Model:                     "gpt-4o-mini",
		SimilarityThresholdPixels: DefaultSimilarityThresholdPixels,
		MaxTokens:                 256,
	}
}

// Reason 说明结论是在哪一级得出的.
type Reason string

const (
	ReasonIdentical  Reason = "identical"  // 像素完全相同
	ReasonDissimilar Reason = "dissimilar" // 相同像素数未超过阈值
	ReasonModel      Reason = "model"      // 视觉模型判定
)

// Verdict 一次检测的结论.
type Verdict struct {
	Discard        bool   `json:"discard"`
	Reason         Reason `json:"reason"`
	MatchingPixels int    `json:"matching_pixels"`
}

// reply 是模型回复代码块中的 JSON.
type reply struct {
	PreviousHasUniqueInfo *bool `json:"previous_screenshot_contains_important_information_not_present_in_current_screenshot"`
}

// Detector 冗余检测器，并发安全.
type Detector struct {
	config   Config
	provider llm.Provider
	logger   *zap.Logger
}

// New 创建检测器。provider 为 nil 时所有需要模型的判定都会失败.
func New(config Config, provider llm.Provider, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SimilarityThresholdPixels <= 0 {
		config.SimilarityThresholdPixels = DefaultSimilarityThresholdPixels
	}
	return &Detector{
		config:   config,
		provider: provider,
		logger:   logger.With(zap.String("component", "redundancy_detector")),
	}
}

// ShouldDiscardPrevious 报告 prev 是否可以被 cur 取代.
func (d *Detector) ShouldDiscardPrevious(ctx context.Context, prev, cur *types.Screenshot) (bool, error) {
	v, err := d.Check(ctx, prev, cur)
	if err != nil {
		return false, err
	}
	return v.Discard, nil
}

// Check 与 ShouldDiscardPrevious 相同，但返回完整结论.
func (d *Detector) Check(ctx context.Context, prev, cur *types.Screenshot) (Verdict, error) {
	if prev == nil || cur == nil {
		return Verdict{}, types.NewError(types.ErrInvariantViolation, "redundancy check needs two screenshots")
	}
	if prev.Equal(cur) {
		return Verdict{Discard: true, Reason: ReasonIdentical, MatchingPixels: prev.Width() * prev.Height()}, nil
	}

	matching := types.CountMatchingPixels(prev, cur)
	if matching <= d.config.SimilarityThresholdPixels {
		return Verdict{Reason: ReasonDissimilar, MatchingPixels: matching}, nil
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "redundancy.check")
	defer span.End()
	span.SetAttributes(
		attribute.Int("redundancy.matching_pixels", matching),
		attribute.String("llm.model", d.config.Model),
	)

	discard, err := d.askModel(ctx, prev, cur)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verdict{}, err
	}
	span.SetAttributes(attribute.Bool("redundancy.discard", discard))

	d.logger.Debug("redundancy verdict",
		zap.Bool("discard", discard),
		zap.Int("matching_pixels", matching))
	return Verdict{Discard: discard, Reason: ReasonModel, MatchingPixels: matching}, nil
}

func (d *Detector) askModel(ctx context.Context, prev, cur *types.Screenshot) (bool, error) {
	if d.provider == nil {
		return false, types.NewError(types.ErrResourceUnavailable, "no vision provider configured")
	}
	req := &llm.ChatRequest{
		Model: d.config.Model,
		Messages: []types.Message{
			types.NewSystemMessage(SystemPrompt),
			prev.ToMessage(previousCaption),
			cur.ToMessage(currentCaption),
			types.NewUserMessage(instruction),
		},
		MaxTokens:   d.config.MaxTokens,
		Temperature: d.config.Temperature,
	}

	text, err := llm.CompleteText(ctx, d.provider, req)
	if err != nil {
		return false, err
	}
	return parseReply(text)
}

// parseReply 解析代码块中的 JSON，字段缺失视为解析失败.
func parseReply(text string) (bool, error) {
	block, err := llm.ExtractFencedBlock(text)
	if err != nil {
		return false, types.NewError(types.ErrParseFailure, "redundancy reply has no code block").WithCause(err)
	}
	var r reply
	if err := json.Unmarshal([]byte(strings.TrimSpace(block)), &r); err != nil {
		return false, types.NewError(types.ErrParseFailure, "invalid redundancy reply").WithCause(err)
	}
	if r.PreviousHasUniqueInfo == nil {
		return false, types.NewError(types.ErrParseFailure, "redundancy reply is missing the verdict field")
	}
	return !*r.PreviousHasUniqueInfo, nil
}
