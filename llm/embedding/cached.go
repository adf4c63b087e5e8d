package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/BaSui01/captain/types"
	"go.uber.org/zap"
)

// CacheStore 是 CachedProvider 依赖的批量向量缓存，由 cache.Manager 实现.
// GetVectors 对未命中的键返回 nil.
type CacheStore interface {
	GetVectors(ctx context.Context, keys []string) ([][]float32, error)
	SetVectors(ctx context.Context, keys []string, vectors [][]float32, ttl time.Duration) error
}

// CacheMetrics 记录缓存命中情况，可为 nil.
type CacheMetrics interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

const cacheType = "embedding"

// CachedProvider 为任意 Provider 增加基于 Redis 的向量缓存.
// 相同模型与文本的嵌入结果在 TTL 内复用；缓存读写失败只记录日志，不影响主流程.
type CachedProvider struct {
	inner   Provider
	store   CacheStore
	model   string
	ttl     time.Duration
	metrics CacheMetrics
	logger  *zap.Logger
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider 包装 inner. model 参与缓存键计算，切换模型后旧向量不会被命中.
func NewCachedProvider(inner Provider, store CacheStore, model string, ttl time.Duration, metrics CacheMetrics, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{
		inner:   inner,
		store:   store,
		model:   model,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "embedding_cache")),
	}
}

func (c *CachedProvider) Name() string    { return c.inner.Name() }
func (c *CachedProvider) Dimensions() int { return c.inner.Dimensions() }

// CacheKey 返回 model 与 text 对应的缓存键.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

// EmbedQuery 嵌入单个查询，优先读取缓存.
func (c *CachedProvider) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := c.EmbedDocuments(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments 一次批量读取缓存，只把未命中的文本交给底层 Provider.
// 缓存整体不可用时按全部未命中处理.
func (c *CachedProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error) {
	keys := make([]string, len(documents))
	for i, doc := range documents {
		keys[i] = CacheKey(c.model, doc)
	}

	result, err := c.store.GetVectors(ctx, keys)
	if err != nil || len(result) != len(documents) {
		if err != nil {
			c.logger.Warn("embedding cache read failed", zap.Error(err))
		}
		result = make([][]float32, len(documents))
	}

	var missingIdx []int
	for i, vec := range result {
		if len(vec) > 0 {
			c.recordHit()
			continue
		}
		c.recordMiss()
		missingIdx = append(missingIdx, i)
	}
	if len(missingIdx) == 0 {
		return result, nil
	}

	missing := make([]string, len(missingIdx))
	missingKeys := make([]string, len(missingIdx))
	for j, i := range missingIdx {
		missing[j] = documents[i]
		missingKeys[j] = keys[i]
	}
	vecs, err := c.inner.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, types.NewError(types.ErrParseFailure, "embedding count does not match input").
			WithProvider(c.inner.Name())
	}
	for j, i := range missingIdx {
		result[i] = vecs[j]
	}
	if err := c.store.SetVectors(ctx, missingKeys, vecs, c.ttl); err != nil {
		c.logger.Warn("embedding cache write failed", zap.Error(err))
	}
	return result, nil
}

func (c *CachedProvider) recordHit() {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(cacheType)
	}
}

func (c *CachedProvider) recordMiss() {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(cacheType)
	}
}
