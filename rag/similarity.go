package rag

import (
	"container/heap"
	"errors"
	"math"
)

var (
	// ErrZeroNorm is returned when a vector has zero magnitude.
	ErrZeroNorm = errors.New("rag: zero-norm vector")
	// ErrDimensionMismatch is returned when two vectors differ in length.
	ErrDimensionMismatch = errors.New("rag: vector dimension mismatch")
)

// EmbeddedDocument pairs an embedding with the item it was computed for.
type EmbeddedDocument[T any] struct {
	Embedding []float32 `json:"embedding"`
	Document  T         `json:"document"`
}

// SearchResult is one TopK hit. Distance is 1 - cosine similarity, so smaller is closer.
type SearchResult[T any] struct {
	Document EmbeddedDocument[T] `json:"document"`
	Distance float32             `json:"distance"`
}

// CosineDistance 计算 1 - cos(a, b)。
func CosineDistance(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	na := norm(a)
	if na == 0 {
		return 0, ErrZeroNorm
	}
	return cosineDistance(a, na, b)
}

func cosineDistance(a []float32, na float64, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	nb := norm(b)
	if nb == 0 {
		return 0, ErrZeroNorm
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(1 - dot/(na*nb)), nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// TopK returns the k candidates closest to query, ascending by distance.
//
// Selection keeps a max-heap of at most k entries, so it runs in O(n log k)
// time and O(k) memory. Candidates with a zero-norm embedding or a dimension
// different from the query are skipped. A zero-norm query yields ErrZeroNorm.
func TopK[T any](query []float32, candidates []EmbeddedDocument[T], k int) ([]SearchResult[T], error) {
	if k <= 0 || len(candidates) == 0 {
		return []SearchResult[T]{}, nil
	}
	qn := norm(query)
	if qn == 0 {
		return nil, ErrZeroNorm
	}

	h := make(resultHeap[T], 0, min(k, len(candidates)))
	for _, c := range candidates {
		d, err := cosineDistance(query, qn, c.Embedding)
		if err != nil {
			continue
		}
		if h.Len() < k {
			heap.Push(&h, SearchResult[T]{Document: c, Distance: d})
			continue
		}
		if d < h[0].Distance {
			h[0] = SearchResult[T]{Document: c, Distance: d}
			heap.Fix(&h, 0)
		}
	}

	// 依次弹出最大值，倒序写入即得升序结果
	out := make([]SearchResult[T], h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(SearchResult[T])
	}
	return out, nil
}

// resultHeap is a max-heap on Distance.
type resultHeap[T any] []SearchResult[T]

func (h resultHeap[T]) Len() int           { return len(h) }
func (h resultHeap[T]) Less(i, j int) bool { return h[i].Distance > h[j].Distance }
func (h resultHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *resultHeap[T]) Push(x any) {
	*h = append(*h, x.(SearchResult[T]))
}

func (h *resultHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
