package trajectory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/captain/agent/enrichment"
	"github.com/BaSui01/captain/internal/metrics"
	"github.com/BaSui01/captain/internal/pool"
	"github.com/BaSui01/captain/types"
)

const (
	taskRedundancy = "redundancy"
	taskEnrichment = "enrichment"
)

// Config 轨迹配置.
type Config struct {
	DiscardRedundant bool          `json:"discard_redundant"`
	TaskTimeout      time.Duration `json:"task_timeout"` // 单个后台任务的超时
	Workers          int           `json:"workers"`
	QueueSize        int           `json:"queue_size"`
}

// DefaultConfig 返回默认配置.
func DefaultConfig() Config {
	return Config{
		DiscardRedundant: true,
		TaskTimeout:      2 * time.Minute,
		Workers:          4,
		QueueSize:        64,
	}
}

// Detector 判断上一张截图能否被当前截图取代.
type Detector interface {
	ShouldDiscardPrevious(ctx context.Context, prev, cur *types.Screenshot) (bool, error)
}

// Enricher 为截图生成描述与向量并经由 sink 写回.
type Enricher interface {
	Run(ctx context.Context, sink enrichment.Sink, idx int, shot *types.Screenshot, history []types.Message) error
}

// Builder 把快照组装成模型消息.
type Builder interface {
	Build(ctx context.Context, snapshot []types.Event, query string) ([]types.Message, error)
}

// Metrics 轨迹相关指标，*metrics.Collector 满足该接口.
type Metrics interface {
	RecordScreenshotAppended(deduped bool)
	RecordRedundancyVerdict(verdict string)
	RecordTaskRejected(task string)
}

// Dependencies 轨迹的协作者，均可为 nil。
// Detector 为 nil 时不做冗余检测，Enricher 为 nil 时不做增强.
type Dependencies struct {
	Detector  Detector
	Enricher  Enricher
	Assembler Builder
	Metrics   Metrics
}

// Stats 轨迹当前状态的计数.
type Stats struct {
	Events      int   `json:"events"`
	Screenshots int   `json:"screenshots"`
	Redundant   int   `json:"redundant"`
	Described   int   `json:"described"`
	Embedded    int   `json:"embedded"`
	Failed      int   `json:"failed"`
	Deduped     int64 `json:"deduped"`
}

// Trajectory 会话事件日志，并发安全.
type Trajectory struct {
	config Config
	deps   Dependencies
	pool   *pool.GoroutinePool
	logger *zap.Logger

	mu       sync.RWMutex
	events   []types.Event
	lastShot int // 最后一张保留截图的索引，-1 表示没有
	deduped  int64
}

// New 创建轨迹并启动后台池.
func New(config Config, deps Dependencies, logger *zap.Logger) *Trajectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = def.TaskTimeout
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}

	t := &Trajectory{
		config:   config,
		deps:     deps,
		logger:   logger.With(zap.String("component", "trajectory")),
		lastShot: -1,
	}
	t.pool = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers: config.Workers,
		QueueSize:  config.QueueSize,
		PanicHandler: func(r any) {
			t.logger.Error("background task panicked", zap.Any("recover", r))
		},
	})
	return t
}

// AppendMessage 追加一条消息，返回其索引.
func (t *Trajectory) AppendMessage(msg types.Message) int {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, types.NewMessageEvent(uuid.NewString(), msg))
	return len(t.events) - 1
}

// AppendUserMessage 追加用户消息.
func (t *Trajectory) AppendUserMessage(content string) int {
	return t.AppendMessage(types.NewUserMessage(content))
}

// AppendAssistantMessage 追加助手消息.
func (t *Trajectory) AppendAssistantMessage(content string) int {
	return t.AppendMessage(types.NewAssistantMessage(content))
}

// AppendSystemMessage 追加系统消息.
func (t *Trajectory) AppendSystemMessage(content string) int {
	return t.AppendMessage(types.NewSystemMessage(content))
}

// AppendScreenshot 追加截图并提交后台任务，立即返回。
// 与最后一张保留截图像素相同时不追加，返回那张截图的索引与 false.
func (t *Trajectory) AppendScreenshot(ctx context.Context, shot *types.Screenshot) (int, bool) {
	if shot == nil {
		return -1, false
	}

	t.mu.Lock()
	if t.lastShot >= 0 && t.events[t.lastShot].Screenshot.Screenshot.Equal(shot) {
		idx := t.lastShot
		t.deduped++
		t.mu.Unlock()
		t.recordAppended(true)
		return idx, false
	}

	prevIdx := t.lastShot
	var prev *types.Screenshot
	if prevIdx >= 0 {
		prev = t.events[prevIdx].Screenshot.Screenshot
	}

	t.events = append(t.events, types.NewScreenshotEvent(uuid.NewString(), shot))
	idx := len(t.events) - 1
	t.lastShot = idx
	var snap []types.Event
	if t.deps.Enricher != nil {
		snap = t.snapshotLocked()
	}
	t.mu.Unlock()

	t.recordAppended(false)

	// 后台任务不随调用方取消
	bg := context.WithoutCancel(ctx)
	if t.config.DiscardRedundant && t.deps.Detector != nil && prev != nil {
		t.submit(bg, taskRedundancy, func(ctx context.Context) error {
			return t.checkRedundancy(ctx, prevIdx, prev, shot)
		})
	}
	if t.deps.Enricher != nil {
		history := t.enrichmentHistory(ctx, snap)
		t.submit(bg, taskEnrichment, func(ctx context.Context) error {
			return t.deps.Enricher.Run(ctx, t, idx, shot, history)
		})
	}
	return idx, true
}

// enrichmentHistory 是截图追加当时组装出的上下文（含最近的截图与这张新截图），去掉系统消息。
// 没有组装器或组装失败时退回到纯文本消息.
func (t *Trajectory) enrichmentHistory(ctx context.Context, snap []types.Event) []types.Message {
	if t.deps.Assembler != nil {
		msgs, err := t.deps.Assembler.Build(ctx, snap, "")
		if err == nil {
			return types.WithoutSystem(msgs)
		}
		t.logger.Warn("enrichment history falls back to text", zap.Error(err))
	}
	return textHistory(snap)
}

// textHistory 快照中的非系统文本消息.
func textHistory(snap []types.Event) []types.Message {
	var history []types.Message
	for _, ev := range snap {
		if ev.IsScreenshot() || ev.Message.Role == types.RoleSystem {
			continue
		}
		history = append(history, ev.Message)
	}
	return history
}

func (t *Trajectory) submit(ctx context.Context, name string, task func(context.Context) error) {
	err := t.pool.Submit(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, t.config.TaskTimeout)
		defer cancel()
		if err := task(ctx); err != nil {
			t.logger.Warn("background task failed", zap.String("task", name), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		t.logger.Warn("background task rejected", zap.String("task", name), zap.Error(err))
		if t.deps.Metrics != nil {
			t.deps.Metrics.RecordTaskRejected(name)
		}
	}
}

func (t *Trajectory) checkRedundancy(ctx context.Context, prevIdx int, prev, cur *types.Screenshot) error {
	discard, err := t.deps.Detector.ShouldDiscardPrevious(ctx, prev, cur)
	if err != nil {
		t.recordVerdict(metrics.VerdictError)
		return fmt.Errorf("redundancy check for event %d: %w", prevIdx, err)
	}
	if !discard {
		t.recordVerdict(metrics.VerdictKeep)
		return nil
	}
	t.recordVerdict(metrics.VerdictDiscard)
	return t.MarkRedundant(prevIdx)
}

func (t *Trajectory) recordAppended(deduped bool) {
	if t.deps.Metrics != nil {
		t.deps.Metrics.RecordScreenshotAppended(deduped)
	}
}

func (t *Trajectory) recordVerdict(v string) {
	if t.deps.Metrics != nil {
		t.deps.Metrics.RecordRedundancyVerdict(v)
	}
}

// Snapshot 返回事件列表的深拷贝.
func (t *Trajectory) Snapshot() []types.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *Trajectory) snapshotLocked() []types.Event {
	out := make([]types.Event, len(t.events))
	for i, ev := range t.events {
		out[i] = ev.Clone()
	}
	return out
}

// Len 返回事件数量.
func (t *Trajectory) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.events)
}

// BuildMessages 用当前快照组装模型消息.
func (t *Trajectory) BuildMessages(ctx context.Context, query string) ([]types.Message, error) {
	if t.deps.Assembler == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "trajectory has no context assembler")
	}
	return t.deps.Assembler.Build(ctx, t.Snapshot(), query)
}

// Stats 返回当前计数.
func (t *Trajectory) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Stats{Events: len(t.events), Deduped: t.deduped}
	for _, ev := range t.events {
		if !ev.IsScreenshot() {
			continue
		}
		s.Screenshots++
		if ev.Screenshot.Redundant {
			s.Redundant++
		}
		switch ev.Screenshot.Enrichment {
		case types.EnrichmentDescribed:
			s.Described++
		case types.EnrichmentEmbedded:
			s.Embedded++
		case types.EnrichmentFailed:
			s.Failed++
		}
	}
	return s
}

// Wait 阻塞直到已提交的后台任务全部完成.
func (t *Trajectory) Wait() {
	t.pool.Wait()
}

// Close 停止接受后台任务并等待在途任务完成。之后仍可追加事件，但不再做冗余检测与增强.
func (t *Trajectory) Close() {
	t.pool.Close()
}
