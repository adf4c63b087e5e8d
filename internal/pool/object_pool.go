package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

const (
	// DefaultFrameCapacity 新建缓冲区的初始容量，够放一张压缩后的 1080p 截图
	DefaultFrameCapacity = 512 * 1024
	// DefaultMaxRetained 超过该容量的缓冲区不再放回池中，避免偶发的大帧长期占用内存
	DefaultMaxRetained = 8 * 1024 * 1024
)

// BufferPool 复用读取截图文件时的字节缓冲区
type BufferPool struct {
	pool        sync.Pool
	maxRetained int

	gets    atomic.Int64
	puts    atomic.Int64
	news    atomic.Int64
	dropped atomic.Int64
}

// NewBufferPool 创建缓冲池；initialCap、maxRetained 非正时取默认值
func NewBufferPool(initialCap, maxRetained int) *BufferPool {
	if initialCap <= 0 {
		initialCap = DefaultFrameCapacity
	}
	if maxRetained <= 0 {
		maxRetained = DefaultMaxRetained
	}
	p := &BufferPool{maxRetained: maxRetained}
	p.pool.New = func() any {
		p.news.Add(1)
		return bytes.NewBuffer(make([]byte, 0, initialCap))
	}
	return p
}

// Get 取出一个空缓冲区
func (p *BufferPool) Get() *bytes.Buffer {
	p.gets.Add(1)
	return p.pool.Get().(*bytes.Buffer)
}

// Put 清空后放回；nil 或过大的缓冲区直接丢弃
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() > p.maxRetained {
		p.dropped.Add(1)
		return
	}
	p.puts.Add(1)
	buf.Reset()
	p.pool.Put(buf)
}

// Stats 返回计数快照
func (p *BufferPool) Stats() Stats {
	return Stats{
		Gets:    p.gets.Load(),
		Puts:    p.puts.Load(),
		News:    p.news.Load(),
		Dropped: p.dropped.Load(),
	}
}

// Stats 缓冲池计数
type Stats struct {
	Gets    int64 `json:"gets"`
	Puts    int64 `json:"puts"`
	News    int64 `json:"news"`
	Dropped int64 `json:"dropped"`
}

// ReuseRate Get 中命中已有缓冲区的比例
func (s Stats) ReuseRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

// FrameBuffers 截图读取共用的缓冲池
var FrameBuffers = NewBufferPool(DefaultFrameCapacity, DefaultMaxRetained)
