package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/captain/internal/cache"
	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/types"
)

// --- ChooseModel ---

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req-model", ChooseModel("req-model", "default", "fallback"))
	assert.Equal(t, "default", ChooseModel("", "default", "fallback"))
	assert.Equal(t, "fallback", ChooseModel("", "", "fallback"))
}

// --- BaseProvider ---

func TestNewBaseProvider(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		bp := NewBaseProvider(BaseConfig{
			Name:    "test",
			BaseURL: "http://example.com/",
		})
		assert.Equal(t, "test", bp.Name())
		assert.Equal(t, 100, bp.MaxBatchSize())
		assert.Equal(t, "http://example.com", bp.baseURL)
	})

	t.Run("custom values", func(t *testing.T) {
		bp := NewBaseProvider(BaseConfig{
			Name:       "custom",
			BaseURL:    "http://api.test",
			Dimensions: 512,
			MaxBatch:   50,
			Timeout:    10 * time.Second,
		})
		assert.Equal(t, 512, bp.Dimensions())
		assert.Equal(t, 50, bp.MaxBatchSize())
	})
}

func TestBaseProvider_EmbedDocumentsBatchesAndReorders(t *testing.T) {
	bp := NewBaseProvider(BaseConfig{Name: "test", BaseURL: "http://unused", MaxBatch: 2})
	var batches [][]string

	embedFn := func(_ context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
		batches = append(batches, req.Input)
		// 倒序返回，验证按 index 还原
		out := make([]EmbeddingData, len(req.Input))
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			out[i] = EmbeddingData{Index: j, Embedding: []float32{float32(len(req.Input[j]))}}
		}
		return &EmbeddingResponse{Embeddings: out}, nil
	}

	vecs, err := bp.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"}, embedFn)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, batches)
	assert.Equal(t, [][]float32{{1}, {2}, {3}}, vecs)
}

func TestBaseProvider_EmbedDocumentsCountMismatch(t *testing.T) {
	bp := NewBaseProvider(BaseConfig{Name: "test", BaseURL: "http://unused"})
	embedFn := func(_ context.Context, _ *EmbeddingRequest) (*EmbeddingResponse, error) {
		return &EmbeddingResponse{}, nil
	}

	_, err := bp.EmbedDocuments(context.Background(), []string{"a"}, embedFn)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrResourceUnavailable))
}

// --- OpenAIProvider ---

func newOpenAIServer(t *testing.T, status int, handler func(req openAIEmbedRequest) any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(handler(req))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_Defaults(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k"})
	assert.Equal(t, "openai-embedding", p.Name())
	assert.Equal(t, 1536, p.Dimensions())
	assert.Equal(t, "text-embedding-3-small", p.Model())
}

func TestOpenAIProvider_EmbedDocuments(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusOK, func(req openAIEmbedRequest) any {
		assert.Equal(t, "text-embedding-3-small", req.Model)
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{float32(i), 1}}
		}
		return map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 4, "total_tokens": 4},
		}
	})

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	vecs, err := p.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, vecs)

	vec, err := p.EmbedQuery(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)
}

func TestOpenAIProvider_HTTPError(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusTooManyRequests, func(openAIEmbedRequest) any {
		return map[string]any{"error": map[string]string{"message": "slow down"}}
	})

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	_, err := p.EmbedQuery(context.Background(), "x")
	require.Error(t, err)

	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrRateLimited, llmErr.Code)
	assert.True(t, llmErr.Retryable)
}

func TestOpenAIProvider_MissingKey(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{BaseURL: "http://unused"})
	_, err := p.EmbedQuery(context.Background(), "x")

	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrProviderUnavailable, llmErr.Code)
}

// --- CachedProvider ---

type countingProvider struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (p *countingProvider) EmbedDocuments(_ context.Context, docs []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, docs)
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, len(docs))
	for i, d := range docs {
		out[i] = []float32{float32(len(d)), 0.5}
	}
	return out, nil
}

func (p *countingProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	v, err := p.EmbedDocuments(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (p *countingProvider) Name() string    { return "counting" }
func (p *countingProvider) Dimensions() int { return 2 }

type recordingMetrics struct {
	hits, misses int
}

func (m *recordingMetrics) RecordCacheHit(string)  { m.hits++ }
func (m *recordingMetrics) RecordCacheMiss(string) { m.misses++ }

func newTestCache(t *testing.T) (*miniredis.Miniredis, *cache.Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	mgr, err := cache.NewManager(cache.Config{Addr: mr.Addr(), KeyPrefix: "test:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mr, mgr
}

func TestCachedProvider_HitAvoidsInnerCall(t *testing.T) {
	mr, mgr := newTestCache(t)
	inner := &countingProvider{}
	metrics := &recordingMetrics{}
	p := NewCachedProvider(inner, mgr, "m", time.Hour, metrics, nil)

	first, err := p.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	second, err := p.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, inner.calls, 1)
	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
	assert.True(t, mr.Exists("test:"+CacheKey("m", "hello")))
	assert.Equal(t, time.Hour, mr.TTL("test:"+CacheKey("m", "hello")))
}

func TestCachedProvider_OnlyMissesReachInner(t *testing.T) {
	_, mgr := newTestCache(t)
	inner := &countingProvider{}
	p := NewCachedProvider(inner, mgr, "m", time.Minute, nil, zap.NewNop())

	_, err := p.EmbedDocuments(context.Background(), []string{"a"})
	require.NoError(t, err)

	vecs, err := p.EmbedDocuments(context.Background(), []string{"bb", "a", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 0.5}, {1, 0.5}, {3, 0.5}}, vecs)
	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"bb", "ccc"}, inner.calls[1])
}

func TestCachedProvider_ModelIsPartOfKey(t *testing.T) {
	assert.NotEqual(t, CacheKey("a", "text"), CacheKey("b", "text"))
	assert.Equal(t, CacheKey("a", "text"), CacheKey("a", "text"))
}

func TestCachedProvider_InnerErrorPropagates(t *testing.T) {
	_, mgr := newTestCache(t)
	boom := errors.New("boom")
	p := NewCachedProvider(&countingProvider{err: boom}, mgr, "m", time.Minute, nil, nil)

	_, err := p.EmbedQuery(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestCachedProvider_DegradesWhenCacheDown(t *testing.T) {
	mr, mgr := newTestCache(t)
	inner := &countingProvider{}
	p := NewCachedProvider(inner, mgr, "m", time.Minute, nil, nil)
	mr.Close()

	vec, err := p.EmbedQuery(context.Background(), "hey")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 0.5}, vec)
	assert.Equal(t, "counting", p.Name())
	assert.Equal(t, 2, p.Dimensions())
}
