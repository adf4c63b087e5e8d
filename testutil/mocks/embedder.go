// MockEmbedder 的向量 Provider 测试模拟实现。
package mocks

import (
	"context"
	"hash/fnv"
	"sync"
)

// MockEmbedder 是 embedding.Provider 的模拟实现。
// 默认对文本做 FNV 哈希生成确定性向量，相同文本总是得到相同向量
type MockEmbedder struct {
	mu sync.RWMutex

	dimensions int
	vectors    map[string][]float32
	err        error

	queries   []string
	documents []string
}

// NewMockEmbedder 创建新的 MockEmbedder
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 8
	}
	return &MockEmbedder{
		dimensions: dimensions,
		vectors:    make(map[string][]float32),
	}
}

// WithVector 为指定文本设置固定向量
func (m *MockEmbedder) WithVector(text string, vector []float32) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vector
	return m
}

// WithError 设置返回错误
func (m *MockEmbedder) WithError(err error) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Name 返回 Provider 名称
func (m *MockEmbedder) Name() string { return "mock-embedding" }

// Dimensions 返回向量维度
func (m *MockEmbedder) Dimensions() int { return m.dimensions }

// EmbedQuery 向量化单条查询
func (m *MockEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.err != nil {
		return nil, m.err
	}
	return m.vectorLocked(query), nil
}

// EmbedDocuments 向量化一批文档
func (m *MockEmbedder) EmbedDocuments(ctx context.Context, docs []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, docs...)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(docs))
	for i, d := range docs {
		out[i] = m.vectorLocked(d)
	}
	return out, nil
}

func (m *MockEmbedder) vectorLocked(text string) []float32 {
	if v, ok := m.vectors[text]; ok {
		return append([]float32(nil), v...)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	v := make([]float32, m.dimensions)
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(seed>>40)/float32(1<<24) + 0.01
	}
	return v
}

// Queries 返回收到的所有查询
func (m *MockEmbedder) Queries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.queries...)
}

// Documents 返回收到的所有文档
func (m *MockEmbedder) Documents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.documents...)
}
