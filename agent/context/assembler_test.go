package context

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/captain/llm/tokenizer"
	"github.com/BaSui01/captain/types"
)

// --- helpers ---

var baseTime = time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

func shot(t testing.TB, n int) *types.Screenshot {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = uint8(n*37 + i)
	}
	img.Set(0, 0, color.RGBA{R: uint8(n), A: 255})
	s, err := types.NewScreenshot(img, baseTime.Add(time.Duration(n)*time.Second))
	require.NoError(t, err)
	return s
}

func shotEvent(s *types.Screenshot, embedding []float32, redundant bool) types.Event {
	ev := types.NewScreenshotEvent(fmt.Sprintf("s-%d", s.Timestamp.Unix()), s)
	ev.Screenshot.Embedding = embedding
	ev.Screenshot.Redundant = redundant
	if len(embedding) > 0 {
		ev.Screenshot.Enrichment = types.EnrichmentEmbedded
	}
	return ev
}

func msgEvent(m types.Message) types.Event {
	return types.NewMessageEvent("m-"+m.Content, m)
}

func caption(s *types.Screenshot) string { return s.Caption("") }

// captions 把消息列表转成可比较的字符串序列.
func captions(msgs []types.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func imageCount(msgs []types.Message) int {
	n := 0
	for _, m := range msgs {
		if m.HasImages() {
			n++
		}
	}
	return n
}

type stubEmbedder struct {
	mu    sync.Mutex
	query []float32
	err   error
	calls int
}

func (s *stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.query, s.err
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, docs []string) ([][]float32, error) {
	out := make([][]float32, len(docs))
	for i := range docs {
		v, err := s.EmbedQuery(ctx, docs[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Name() string    { return "stub" }
func (s *stubEmbedder) Dimensions() int { return 2 }

type recordingBuildMetrics struct {
	builds    int
	retrieved int
}

func (r *recordingBuildMetrics) RecordContextBuild(_ time.Duration, retrieved int) {
	r.builds++
	r.retrieved += retrieved
}

func newAssembler(recency, retrieval int, emb *stubEmbedder, opts ...Option) *Assembler {
	cfg := DefaultAssemblerConfig()
	cfg.RecencyBudget = recency
	cfg.RetrievalBudget = retrieval
	opts = append([]Option{WithTokenizer(tokenizer.NewEstimatorTokenizer("test", 0))}, opts...)
	if emb == nil {
		return NewAssembler(cfg, nil, zap.NewNop(), opts...)
	}
	return NewAssembler(cfg, emb, zap.NewNop(), opts...)
}

// --- Build ---

func TestBuild_SystemThenSingleImage(t *testing.T) {
	a := shot(t, 1)
	snapshot := []types.Event{
		msgEvent(types.NewSystemMessage("sys")),
		shotEvent(a, nil, false),
	}

	out, err := newAssembler(40, 40, nil).Build(context.Background(), snapshot, "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, types.RoleSystem, out[0].Role)
	assert.Equal(t, caption(a), out[1].Content)
	assert.Equal(t, a.Base64(), out[1].Images[0].Data)
}

func TestBuild_RecencyBudgetKeepsNewest(t *testing.T) {
	s1, s2, s3 := shot(t, 1), shot(t, 2), shot(t, 3)
	snapshot := []types.Event{shotEvent(s1, nil, false), shotEvent(s2, nil, false), shotEvent(s3, nil, false)}

	out, err := newAssembler(1, 40, nil).Build(context.Background(), snapshot, "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, caption(s3), out[0].Content)
}

func TestBuild_RedundantExcludedEverywhere(t *testing.T) {
	s1, s2, s3 := shot(t, 1), shot(t, 2), shot(t, 3)
	emb := &stubEmbedder{query: []float32{1, 0}}
	snapshot := []types.Event{
		shotEvent(s1, []float32{1, 0}, true),
		shotEvent(s2, []float32{1, 0}, false),
		shotEvent(s3, nil, true),
		msgEvent(types.NewUserMessage("q")),
	}

	// 冗余的 s3 不占用窗口，s1 即使有向量也不进入召回池
	out, err := newAssembler(1, 5, emb).Build(context.Background(), snapshot, "q")
	require.NoError(t, err)
	assert.Equal(t, []string{caption(s2), "q"}, captions(out))
}

func TestBuild_MessagesAlwaysIncluded(t *testing.T) {
	snapshot := []types.Event{
		msgEvent(types.NewSystemMessage("sys")),
		shotEvent(shot(t, 1), nil, false),
		msgEvent(types.NewUserMessage("u1")),
		shotEvent(shot(t, 2), nil, false),
		msgEvent(types.NewAssistantMessage("a1")),
	}

	out, err := newAssembler(0, 0, nil).Build(context.Background(), snapshot, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sys", "u1", "a1"}, captions(out))
}

func TestBuild_PoolFitsBudgetSplicesAllChronologically(t *testing.T) {
	s := []*types.Screenshot{shot(t, 0), shot(t, 1), shot(t, 2), shot(t, 3), shot(t, 4)}
	emb := &stubEmbedder{query: []float32{1, 0}}
	snapshot := []types.Event{msgEvent(types.NewSystemMessage("sys"))}
	for _, sh := range s {
		snapshot = append(snapshot, shotEvent(sh, []float32{1, 1}, false))
	}
	snapshot = append(snapshot, msgEvent(types.NewUserMessage("what next")))

	out, err := newAssembler(1, 10, emb).Build(context.Background(), snapshot, "what next")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"sys", caption(s[4]),
		caption(s[0]), caption(s[1]), caption(s[2]), caption(s[3]),
		"what next",
	}, captions(out))
	assert.Zero(t, emb.calls, "no similarity search when the pool fits")
}

func TestBuild_TopKSplicedBeforeFinalMessage(t *testing.T) {
	s := []*types.Screenshot{shot(t, 0), shot(t, 1), shot(t, 2), shot(t, 3), shot(t, 4)}
	embeddings := [][]float32{{1, 0}, {0, 1}, {1, 0.1}, {0, 1}, {0, 1}}
	emb := &stubEmbedder{query: []float32{1, 0}}
	metrics := &recordingBuildMetrics{}

	snapshot := []types.Event{msgEvent(types.NewSystemMessage("sys"))}
	for i, sh := range s {
		snapshot = append(snapshot, shotEvent(sh, embeddings[i], false))
	}
	snapshot = append(snapshot, msgEvent(types.NewUserMessage("what next")))

	a := newAssembler(1, 2, emb, WithMetrics(metrics))
	out, err := a.Build(context.Background(), snapshot, "what next")
	require.NoError(t, err)

	assert.Equal(t, []string{"sys", caption(s[4]), caption(s[0]), caption(s[2]), "what next"}, captions(out))
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, 1, metrics.builds)
	assert.Equal(t, 2, metrics.retrieved)

	stats := a.Stats()
	assert.Equal(t, int64(1), stats.Builds)
	assert.Equal(t, int64(1), stats.Retrievals)
	assert.Equal(t, int64(2), stats.RetrievedImages)
}

func TestBuild_UnembeddedOverflowDropped(t *testing.T) {
	s0, s1, s2 := shot(t, 0), shot(t, 1), shot(t, 2)
	emb := &stubEmbedder{query: []float32{1, 0}}
	snapshot := []types.Event{
		shotEvent(s0, nil, false),
		shotEvent(s1, []float32{1, 0}, false),
		shotEvent(s2, nil, false),
	}

	out, err := newAssembler(1, 5, emb).Build(context.Background(), snapshot, "q")
	require.NoError(t, err)
	// 唯一的消息就是 s2，召回的 s1 插在它之前
	assert.Equal(t, []string{caption(s1), caption(s2)}, captions(out))
}

func TestBuild_EmptyQuerySkipsRetrieval(t *testing.T) {
	s0, s1 := shot(t, 0), shot(t, 1)
	snapshot := []types.Event{shotEvent(s0, []float32{1, 0}, false), shotEvent(s1, []float32{1, 0}, false)}

	emb := &stubEmbedder{query: []float32{1, 0}}
	out, err := newAssembler(1, 5, emb).Build(context.Background(), snapshot, "")
	require.NoError(t, err)
	assert.Equal(t, []string{caption(s1)}, captions(out))
	assert.Zero(t, emb.calls)
}

func TestBuild_NoEmbedderStillFitsPool(t *testing.T) {
	s0, s1, s2 := shot(t, 0), shot(t, 1), shot(t, 2)
	snapshot := []types.Event{
		shotEvent(s0, []float32{1, 0}, false),
		shotEvent(s1, []float32{0, 1}, false),
		shotEvent(s2, []float32{1, 0}, false),
	}

	// 池（s0、s1）不超过预算，无需向量化 query
	out, err := newAssembler(1, 2, nil).Build(context.Background(), snapshot, "q")
	require.NoError(t, err)
	assert.Equal(t, []string{caption(s0), caption(s1), caption(s2)}, captions(out))

	// 池超过预算，没有 embedder 无法排序，只保留最近窗口
	out, err = newAssembler(1, 1, nil).Build(context.Background(), snapshot, "q")
	require.NoError(t, err)
	assert.Equal(t, []string{caption(s2)}, captions(out))
}

func TestBuild_QueryEmbeddingFailureIsTransport(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("network down")}
	snapshot := []types.Event{
		shotEvent(shot(t, 0), []float32{1, 0}, false),
		shotEvent(shot(t, 1), []float32{1, 0}, false),
		shotEvent(shot(t, 2), nil, false),
	}

	a := newAssembler(1, 1, emb)
	_, err := a.Build(context.Background(), snapshot, "q")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrTransport))
	assert.Equal(t, int64(1), a.Stats().Failures)
}

func TestBuild_ZeroNormQueryIsRetrievalFailure(t *testing.T) {
	emb := &stubEmbedder{query: []float32{0, 0}}
	snapshot := []types.Event{
		shotEvent(shot(t, 0), []float32{1, 0}, false),
		shotEvent(shot(t, 1), []float32{1, 0}, false),
		shotEvent(shot(t, 2), nil, false),
	}

	_, err := newAssembler(1, 1, emb).Build(context.Background(), snapshot, "q")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRetrievalFailed))
}

func TestBuild_EmptySnapshot(t *testing.T) {
	out, err := newAssembler(40, 40, &stubEmbedder{}).Build(context.Background(), nil, "q")
	require.NoError(t, err)
	assert.Empty(t, out)
}

// --- properties ---

func TestBuild_BudgetAndOrderProperties(t *testing.T) {
	pool := make([]*types.Screenshot, 64)
	for i := range pool {
		pool[i] = shot(t, i)
	}

	rapid.Check(t, func(rt *rapid.T) {
		recency := rapid.IntRange(0, 10).Draw(rt, "recency")
		n := rapid.IntRange(0, len(pool)).Draw(rt, "n")

		var snapshot []types.Event
		var kept []string
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(rt, "screenshot") {
				redundant := rapid.Bool().Draw(rt, "redundant")
				snapshot = append(snapshot, shotEvent(pool[i], nil, redundant))
				if !redundant {
					kept = append(kept, caption(pool[i]))
				}
				continue
			}
			snapshot = append(snapshot, msgEvent(types.NewUserMessage(fmt.Sprintf("msg-%d", i))))
		}

		out, err := newAssembler(recency, 40, nil).Build(context.Background(), snapshot, "")
		if err != nil {
			rt.Fatalf("build failed: %v", err)
		}

		wantImages := min(recency, len(kept))
		if got := imageCount(out); got != wantImages {
			rt.Fatalf("image count = %d, want %d", got, wantImages)
		}

		// 输出是 (消息 ∪ 最新 wantImages 张截图) 按原顺序的子序列
		want := make(map[string]bool)
		for _, c := range kept[len(kept)-wantImages:] {
			want[c] = true
		}
		var expected []string
		for _, ev := range snapshot {
			if !ev.IsScreenshot() {
				expected = append(expected, ev.Message.Content)
			} else if want[caption(ev.Screenshot.Screenshot)] && !ev.Screenshot.Redundant {
				expected = append(expected, caption(ev.Screenshot.Screenshot))
			}
		}
		got := captions(out)
		if len(got) != len(expected) {
			rt.Fatalf("got %v, want %v", got, expected)
		}
		for i := range got {
			if got[i] != expected[i] {
				rt.Fatalf("order mismatch at %d: got %v, want %v", i, got, expected)
			}
		}
	})
}

func TestBuild_RetrievedBlockAlwaysBeforeLast(t *testing.T) {
	pool := make([]*types.Screenshot, 30)
	for i := range pool {
		pool[i] = shot(t, i)
	}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, len(pool)).Draw(rt, "n")
		retrieval := rapid.IntRange(1, 6).Draw(rt, "retrieval")
		emb := &stubEmbedder{query: []float32{1, 0}}

		var snapshot []types.Event
		for i := 0; i < n; i++ {
			v := []float32{float32(i%5) + 1, float32(i % 3)}
			snapshot = append(snapshot, shotEvent(pool[i], v, false))
		}
		snapshot = append(snapshot, msgEvent(types.NewUserMessage("final")))

		out, err := newAssembler(1, retrieval, emb).Build(context.Background(), snapshot, "final")
		if err != nil {
			rt.Fatalf("build failed: %v", err)
		}

		wantRetrieved := min(retrieval, n-1)
		if len(out) != 2+wantRetrieved {
			rt.Fatalf("len = %d, want %d", len(out), 2+wantRetrieved)
		}
		if out[0].Content != caption(pool[n-1]) || out[len(out)-1].Content != "final" {
			rt.Fatalf("recency window or final message moved: %v", captions(out))
		}
		block := out[1 : len(out)-1]
		for i := 1; i < len(block); i++ {
			if !block[i-1].Timestamp.Before(block[i].Timestamp) {
				rt.Fatalf("retrieved block not chronological: %v", captions(block))
			}
		}
	})
}

// --- Estimate ---

func TestEstimate(t *testing.T) {
	a := newAssembler(40, 40, nil)
	s := shot(t, 1)
	msgs := []types.Message{
		types.NewUserMessage("abcdefgh"),
		s.ToMessage(""),
	}

	est, err := a.Estimate(msgs)
	require.NoError(t, err)
	assert.Equal(t, 1, est.Images)
	assert.Equal(t, 1600, est.ImageTokens)
	assert.Equal(t, est.TextTokens+1600, est.Total)
	assert.False(t, est.OverReserve)
	assert.False(t, est.OverBudget)
}

func TestEstimate_FlagsOverBudget(t *testing.T) {
	cfg := DefaultAssemblerConfig()
	cfg.ImageTokens = 100
	cfg.MaxContextTokens = 150
	cfg.ReservedTextTokens = 1
	a := NewAssembler(cfg, nil, nil, WithTokenizer(tokenizer.NewEstimatorTokenizer("t", 0)))

	s := shot(t, 1)
	est, err := a.Estimate([]types.Message{s.ToMessage(""), s.ToMessage("")})
	require.NoError(t, err)
	assert.True(t, est.OverBudget)
	assert.True(t, est.OverReserve)
}
