package context

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/captain/llm/embedding"
	"github.com/BaSui01/captain/llm/tokenizer"
	"github.com/BaSui01/captain/rag"
	"github.com/BaSui01/captain/types"
)

const instrumentationName = "github.com/BaSui01/captain/agent/context"

// AssemblerConfig 控制一次组装中截图的数量上限.
type AssemblerConfig struct {
	RecencyBudget      int    `json:"recency_budget"`       // 按时间倒序直接放入的截图数
	RetrievalBudget    int    `json:"retrieval_budget"`     // 窗口之外按相似度召回的截图数
	ImageTokens        int    `json:"image_tokens"`         // 每张图的 token 估算
	ReservedTextTokens int    `json:"reserved_text_tokens"` // 留给文本对话的 token
	MaxContextTokens   int    `json:"max_context_tokens"`   // 0 表示不检查
	TokenizerModel     string `json:"tokenizer_model"`
}

// DefaultAssemblerConfig 返回默认配置: 80 张图 × 1600 + 5000 文本 = 133000.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		RecencyBudget:      40,
		RetrievalBudget:    40,
		ImageTokens:        1600,
		ReservedTextTokens: 5000,
		MaxContextTokens:   133_000,
		TokenizerModel:     "gpt-4o",
	}
}

// BuildMetrics 记录组装耗时与召回数量，*metrics.Collector 满足该接口.
type BuildMetrics interface {
	RecordContextBuild(duration time.Duration, retrieved int)
}

// BuildStats 累计组装统计.
type BuildStats struct {
	Builds          int64 `json:"builds"`
	Retrievals      int64 `json:"retrievals"`       // 实际调用了相似度检索的次数
	RetrievedImages int64 `json:"retrieved_images"` // 召回拼接的截图总数
	Failures        int64 `json:"failures"`
}

// Assembler 把轨迹快照组装成模型消息列表.
// 它只读快照，不持有轨迹的任何引用，可以被多个 goroutine 并发使用.
type Assembler struct {
	config    AssemblerConfig
	embedder  embedding.Provider
	tokenizer tokenizer.Tokenizer
	metrics   BuildMetrics
	logger    *zap.Logger

	mu    sync.Mutex
	stats BuildStats
}

// Option 配置 Assembler.
type Option func(*Assembler)

// WithTokenizer 替换 Estimate 使用的分词器.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(a *Assembler) { a.tokenizer = t }
}

// WithMetrics 设置指标收集器.
func WithMetrics(m BuildMetrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

// NewAssembler 创建组装器。embedder 为 nil 时召回池超出预算的部分无法排序，此时不召回.
func NewAssembler(config AssemblerConfig, embedder embedding.Provider, logger *zap.Logger, opts ...Option) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assembler{
		config:   config,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "context_assembler")),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tokenizer == nil {
		a.tokenizer = tokenizer.GetTokenizerOrEstimator(config.TokenizerModel)
	}
	return a
}

// Config 返回组装配置.
func (a *Assembler) Config() AssemblerConfig { return a.config }

// pooled 是召回池中的一张截图及其在快照中的位置.
type pooled struct {
	index int
	shot  *types.Screenshot
}

// Build 从最新到最旧遍历快照：
// 消息全部保留；非冗余截图在 RecencyBudget 内直接放入；
// 超出窗口且已有向量的截图进入召回池（仅在 query 非空时）。
// 召回池不超过 RetrievalBudget 时全部放入，否则按 query 的向量取 top-k（需要 embedder）。
// 召回的截图按时间顺序作为一个整体插在最后一条消息之前.
func (a *Assembler) Build(ctx context.Context, snapshot []types.Event, query string) ([]types.Message, error) {
	start := time.Now()
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "context.build")
	defer span.End()

	retrieval := query != "" && a.config.RetrievalBudget > 0

	rev := make([]types.Message, 0, len(snapshot))
	var pool []rag.EmbeddedDocument[pooled]
	placed := 0

	for i := len(snapshot) - 1; i >= 0; i-- {
		ev := snapshot[i]
		if !ev.IsScreenshot() {
			rev = append(rev, ev.Message)
			continue
		}
		se := ev.Screenshot
		if se.Redundant || se.Screenshot == nil {
			continue
		}
		if placed < a.config.RecencyBudget {
			rev = append(rev, se.Screenshot.ToMessage(""))
			placed++
			continue
		}
		if retrieval && se.HasEmbedding() {
			pool = append(pool, rag.EmbeddedDocument[pooled]{
				Embedding: se.Embedding,
				Document:  pooled{index: i, shot: se.Screenshot},
			})
		}
	}
	slices.Reverse(rev)

	span.SetAttributes(
		attribute.Int("context.events", len(snapshot)),
		attribute.Int("context.recent_images", placed),
		attribute.Int("context.pool_size", len(pool)),
	)

	selected, err := a.selectRetrieved(ctx, query, pool)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.record(start, 0, false, true)
		return nil, err
	}

	out := spliceBeforeLast(rev, selected)
	span.SetAttributes(attribute.Int("context.retrieved_images", len(selected)))
	a.record(start, len(selected), len(pool) > a.config.RetrievalBudget && a.embedder != nil, false)
	return out, nil
}

// selectRetrieved 返回需要拼接的截图消息，按快照位置升序.
func (a *Assembler) selectRetrieved(ctx context.Context, query string, pool []rag.EmbeddedDocument[pooled]) ([]types.Message, error) {
	if len(pool) == 0 {
		return nil, nil
	}

	chosen := make([]pooled, 0, min(len(pool), a.config.RetrievalBudget))
	if len(pool) <= a.config.RetrievalBudget {
		for _, doc := range pool {
			chosen = append(chosen, doc.Document)
		}
	} else if a.embedder == nil {
		// 召回池超出预算却无法向量化 query，放弃召回
		a.logger.Debug("retrieval pool exceeds budget, no embedder to rank it", zap.Int("pool", len(pool)))
		return nil, nil
	} else {
		qv, err := a.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return nil, types.NewError(types.ErrTransport, "failed to embed retrieval query").
				WithCause(err).
				WithProvider(a.embedder.Name())
		}
		results, err := rag.TopK(qv, pool, a.config.RetrievalBudget)
		if err != nil {
			return nil, types.NewError(types.ErrRetrievalFailed, "similarity search failed").WithCause(err)
		}
		for _, r := range results {
			chosen = append(chosen, r.Document.Document)
		}
	}

	slices.SortFunc(chosen, func(x, y pooled) int { return x.index - y.index })
	msgs := make([]types.Message, len(chosen))
	for i, p := range chosen {
		msgs[i] = p.shot.ToMessage("")
	}
	return msgs, nil
}

// spliceBeforeLast 把 block 插入到 msgs 最后一个元素之前.
func spliceBeforeLast(msgs, block []types.Message) []types.Message {
	if len(block) == 0 {
		return msgs
	}
	pos := max(len(msgs)-1, 0)
	return slices.Insert(msgs, pos, block...)
}

func (a *Assembler) record(start time.Time, retrieved int, searched, failed bool) {
	elapsed := time.Since(start)
	a.mu.Lock()
	a.stats.Builds++
	if searched {
		a.stats.Retrievals++
	}
	a.stats.RetrievedImages += int64(retrieved)
	if failed {
		a.stats.Failures++
	}
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.RecordContextBuild(elapsed, retrieved)
	}
}

// Stats 返回累计统计.
func (a *Assembler) Stats() BuildStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
